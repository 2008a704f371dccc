package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/phenbot/study-engine/internal/cache"
	"github.com/phenbot/study-engine/internal/domain"
)

const tokenBytes = 32

// Session is an authenticated login.
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token   string
	Session Session
	Profile *domain.Profile
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) openSession(ctx context.Context, profile *domain.Profile, now time.Time) (*Session, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	session := &Session{
		Token:     token,
		UserID:    profile.UserID,
		Email:     profile.Email,
		Username:  profile.Username,
		CreatedAt: now,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	if err := s.sessions.Set(ctx, cache.SessionKey(token), data, s.config.SessionTTL); err != nil {
		return nil, domain.StorageFailure("store session", err)
	}
	if err := s.sessions.Set(ctx, userSessionKey(profile.UserID, token), []byte(token), s.config.SessionTTL); err != nil {
		return nil, domain.StorageFailure("index session", err)
	}
	return session, nil
}

// Validate resolves a session token. Unknown or expired tokens are Unauthorized.
func (s *Service) Validate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, domain.Unauthorized("Unauthorized", nil)
	}

	data, err := s.sessions.Get(ctx, cache.SessionKey(token))
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domain.Unauthorized("Unauthorized", err)
		}
		return nil, domain.StorageFailure("load session", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, domain.Unauthorized("Unauthorized", fmt.Errorf("decode session: %w", err))
	}
	session.Token = token

	// A session revoked through LogoutAll loses its index entry first.
	if _, err := s.sessions.Get(ctx, userSessionKey(session.UserID, token)); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domain.Unauthorized("Unauthorized", err)
		}
		return nil, domain.StorageFailure("load session", err)
	}
	return &session, nil
}

// Logout ends a session. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if session, err := s.Validate(ctx, token); err == nil {
		if err := s.sessions.Delete(ctx, userSessionKey(session.UserID, token)); err != nil {
			return domain.StorageFailure("delete session", err)
		}
	}
	if err := s.sessions.Delete(ctx, cache.SessionKey(token)); err != nil {
		return domain.StorageFailure("delete session", err)
	}
	return nil
}

// LogoutAll ends every session the user holds.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.sessions.DeleteByPrefix(ctx, cache.UserSessionPrefix(userID)); err != nil {
		return domain.StorageFailure("delete sessions", err)
	}
	return nil
}

func userSessionKey(userID, token string) string {
	return cache.UserSessionPrefix(userID) + token
}
