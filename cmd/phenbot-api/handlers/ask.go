package handlers

import (
	"net/http"

	"github.com/phenbot/study-engine/internal/answer"
	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/observability"
)

// AskHandler answers study questions.
type AskHandler struct {
	logger *observability.Logger
	router *answer.Router
}

// NewAskHandler creates a new ask handler.
func NewAskHandler(logger *observability.Logger, router *answer.Router) *AskHandler {
	return &AskHandler{logger: logger, router: router}
}

// AskRequestDTO is the body of POST /ask.
type AskRequestDTO struct {
	Question   string `json:"question"`
	Mode       string `json:"mode,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Difficulty int    `json:"difficulty,omitempty"`
}

// UnavailableDTO is returned with status 200 when no answer could be produced.
type UnavailableDTO struct {
	Error      string        `json:"error"`
	Confidence int           `json:"confidence"`
	Source     domain.Source `json:"source"`
}

// Ask handles POST /api/v1/ask.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Invalid request format", err.Error())
		return
	}

	record, err := h.router.AnswerQuestion(r.Context(), answer.Request{
		UserID:     userID(r),
		Question:   req.Question,
		Mode:       domain.Mode(req.Mode),
		Subject:    req.Subject,
		Difficulty: req.Difficulty,
	})
	if domain.IsKind(err, domain.KindNoKnowledge) {
		writeJSON(h.logger, w, http.StatusOK, UnavailableDTO{
			Error:      record.Answer,
			Confidence: record.Confidence,
			Source:     record.Source,
		})
		return
	}
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, record)
}
