package handlers

import (
	"net/http"

	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/study"
)

// FlashcardHandler handles user-made and generated flashcards.
type FlashcardHandler struct {
	logger *observability.Logger
	study  *study.Service
}

// NewFlashcardHandler creates a new flashcard handler.
func NewFlashcardHandler(logger *observability.Logger, studySvc *study.Service) *FlashcardHandler {
	return &FlashcardHandler{logger: logger, study: studySvc}
}

// GenerateRequestDTO is the body of POST /flashcards/generate.
type GenerateRequestDTO struct {
	PDFID string `json:"pdfId"`
	Count int    `json:"count,omitempty"`
}

// FlashcardResponseDTO wraps a single created card.
type FlashcardResponseDTO struct {
	Success   bool              `json:"success"`
	Flashcard *domain.Flashcard `json:"flashcard"`
}

// GeneratedResponseDTO lists generated cards.
type GeneratedResponseDTO struct {
	Success    bool               `json:"success"`
	Flashcards []domain.Flashcard `json:"flashcards"`
	Count      int                `json:"count"`
}

// DeckResponseDTO is the body of GET /flashcards.
type DeckResponseDTO struct {
	Success    bool                  `json:"success"`
	Flashcards *domain.FlashcardDeck `json:"flashcards"`
}

// Create handles POST /api/v1/flashcards.
func (h *FlashcardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req study.FlashcardInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}

	card, err := h.study.CreateFlashcard(r.Context(), userID(r), req)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, FlashcardResponseDTO{Success: true, Flashcard: card})
}

// Generate handles POST /api/v1/flashcards/generate.
func (h *FlashcardHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if req.PDFID == "" {
		writeError(h.logger, w, http.StatusBadRequest, "pdfId is required", "")
		return
	}

	cards, err := h.study.GenerateFlashcards(r.Context(), userID(r), req.PDFID, req.Count)
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, GeneratedResponseDTO{Success: true, Flashcards: cards, Count: len(cards)})
}

// List handles GET /api/v1/flashcards.
func (h *FlashcardHandler) List(w http.ResponseWriter, r *http.Request) {
	deck, err := h.study.Flashcards(r.Context(), userID(r))
	if err != nil {
		writeDomainError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, DeckResponseDTO{Success: true, Flashcards: deck})
}
