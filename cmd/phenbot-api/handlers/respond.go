// Package handlers provides HTTP handlers for the PhenBOT API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/observability"
)

// ErrorResponseDTO is the body of every failed request.
type ErrorResponseDTO struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
}

// SuccessDTO acknowledges a request that returns no data.
type SuccessDTO struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func writeJSON(logger *observability.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(logger *observability.Logger, w http.ResponseWriter, status int, message, detail string) {
	writeJSON(logger, w, status, ErrorResponseDTO{Error: message, Detail: detail})
}

// writeDomainError maps an error kind onto a status code. Internal details are
// logged but not returned.
func writeDomainError(logger *observability.Logger, w http.ResponseWriter, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		logger.Error().Err(err).Msg("Request failed")
		writeError(logger, w, http.StatusInternalServerError, "Internal error", "")
		return
	}

	status := statusFor(de.Kind)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("kind", string(de.Kind)).Msg("Request failed")
	}
	writeError(logger, w, status, de.Message, "")
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNoKnowledge:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func userID(r *http.Request) string {
	return observability.UserIDFromContext(r.Context())
}
