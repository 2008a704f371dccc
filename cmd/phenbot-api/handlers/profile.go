package handlers

import (
	"net/http"

	"github.com/phenbot/study-engine/internal/account"
	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/storage"
)

// HistoryLimit is the number of entries returned by GET /history.
const HistoryLimit = 20

// ProfileHandler serves preferences, analytics, history and custom subjects.
type ProfileHandler struct {
	logger   *observability.Logger
	accounts *account.Service
	history  storage.HistoryStore
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(logger *observability.Logger, accounts *account.Service, history storage.HistoryStore) *ProfileHandler {
	return &ProfileHandler{logger: logger, accounts: accounts, history: history}
}

// PreferencesResponseDTO returns the merged preferences.
type PreferencesResponseDTO struct {
	Success     bool                `json:"success"`
	Preferences *domain.Preferences `json:"preferences"`
}

// HistoryResponseDTO is the body of GET /history.
type HistoryResponseDTO struct {
	Success bool                  `json:"success"`
	History []domain.HistoryEntry `json:"history"`
}

// SubjectRequestDTO names one custom subject.
type SubjectRequestDTO struct {
	Subject string `json:"subject"`
}

// SubjectsResponseDTO lists custom subjects.
type SubjectsResponseDTO struct {
	Success  bool     `json:"success"`
	Subjects []string `json:"subjects"`
}

// UpdatePreferences handles POST /api/v1/preferences. Only the fields present are changed.
func (h *ProfileHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch account.PreferencesPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	prefs, err := h.accounts.UpdatePreferences(r.Context(), userID(r), patch)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, PreferencesResponseDTO{Success: true, Preferences: prefs})
}

// Analytics handles GET /api/v1/analytics.
func (h *ProfileHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.accounts.Analytics(r.Context(), userID(r))
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, analytics)
}

// History handles GET /api/v1/history.
func (h *ProfileHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.history.ListHistory(r.Context(), userID(r), HistoryLimit)
	if err != nil {
		writeDomainError(h.logger, w, domain.StorageFailure("Failed to load history", err))
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	writeJSON(h.logger, w, http.StatusOK, HistoryResponseDTO{Success: true, History: entries})
}

// Subjects handles GET /api/v1/subjects.
func (h *ProfileHandler) Subjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.accounts.Subjects(r.Context(), userID(r))
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, SubjectsResponseDTO{Success: true, Subjects: subjects})
}

// AddSubject handles POST /api/v1/subjects.
func (h *ProfileHandler) AddSubject(w http.ResponseWriter, r *http.Request) {
	var req SubjectRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	subjects, err := h.accounts.AddSubject(r.Context(), userID(r), req.Subject)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, SubjectsResponseDTO{Success: true, Subjects: subjects})
}

// RemoveSubject handles DELETE /api/v1/subjects. The subject comes from the
// "subject" query parameter or a JSON body.
func (h *ProfileHandler) RemoveSubject(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		var req SubjectRequestDTO
		if err := decodeJSON(r, &req); err != nil {
			writeError(h.logger, w, http.StatusBadRequest, "Invalid request", err.Error())
			return
		}
		subject = req.Subject
	}

	subjects, err := h.accounts.RemoveSubject(r.Context(), userID(r), subject)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, SubjectsResponseDTO{Success: true, Subjects: subjects})
}
