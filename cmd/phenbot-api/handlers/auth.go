package handlers

import (
	"net/http"

	"github.com/phenbot/study-engine/cmd/phenbot-api/middleware"
	"github.com/phenbot/study-engine/internal/account"
	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/observability"
)

// AuthHandler handles registration, login and logout.
type AuthHandler struct {
	logger   *observability.Logger
	accounts *account.Service
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(logger *observability.Logger, accounts *account.Service) *AuthHandler {
	return &AuthHandler{logger: logger, accounts: accounts}
}

// RegisterRequestDTO is the body of POST /auth/register.
type RegisterRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

// RegisterResponseDTO is returned after a successful registration.
type RegisterResponseDTO struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

// LoginRequestDTO is the body of POST /auth/login.
type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponseDTO carries the session token and public profile fields.
type LoginResponseDTO struct {
	Success bool    `json:"success"`
	Token   string  `json:"token"`
	User    UserDTO `json:"user"`
}

// UserDTO is the public view of a profile.
type UserDTO struct {
	UserID      string             `json:"userId"`
	Email       string             `json:"email"`
	Username    string             `json:"username"`
	Preferences domain.Preferences `json:"preferences"`
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	profile, err := h.accounts.Register(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, RegisterResponseDTO{Success: true, UserID: profile.UserID})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, LoginResponseDTO{
		Success: true,
		Token:   res.Token,
		User: UserDTO{
			UserID:      res.Profile.UserID,
			Email:       res.Profile.Email,
			Username:    res.Profile.Username,
			Preferences: res.Profile.Preferences,
		},
	})
}

// Logout handles POST /api/v1/auth/logout. With ?all=true every session of the
// token's user is closed. Logging out without a live token still succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r)
	if ok {
		ctx := r.Context()
		if r.URL.Query().Get("all") == "true" {
			if session, err := h.accounts.Validate(ctx, token); err == nil {
				if err := h.accounts.LogoutAll(ctx, session.UserID); err != nil {
					writeDomainError(h.logger, w, err)
					return
				}
			}
		} else if err := h.accounts.Logout(ctx, token); err != nil {
			writeDomainError(h.logger, w, err)
			return
		}
	}

	writeJSON(h.logger, w, http.StatusOK, SuccessDTO{Success: true, Message: "Logged out successfully"})
}
