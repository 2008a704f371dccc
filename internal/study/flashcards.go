// Package study provides flashcards and document summaries built on uploaded material.
package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phenbot/study-engine/internal/answer"
	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/llm"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/storage"
)

const (
	// DefaultGenerateCount is the number of cards requested when none is given.
	DefaultGenerateCount = 5

	tagAIGenerated  = "ai-generated"
	cardSourceChars = 500
)

// Service implements flashcard and summary operations.
type Service struct {
	logger    *observability.Logger
	documents storage.DocumentStore
	cards     storage.FlashcardStore
	backend   llm.Backend
	timeout   time.Duration
	now       func() time.Time
}

// NewService creates a study service. timeout bounds each backend call.
func NewService(logger *observability.Logger, documents storage.DocumentStore, cards storage.FlashcardStore, backend llm.Backend, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{
		logger:    logger,
		documents: documents,
		cards:     cards,
		backend:   backend,
		timeout:   timeout,
		now:       time.Now,
	}
}

// FlashcardInput describes a user-made card.
type FlashcardInput struct {
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	Subject    string   `json:"subject"`
	Difficulty int      `json:"difficulty"`
	Tags       []string `json:"tags"`
}

// CreateFlashcard stores a user-made card.
func (s *Service) CreateFlashcard(ctx context.Context, userID string, in FlashcardInput) (*domain.Flashcard, error) {
	question := strings.TrimSpace(in.Question)
	ans := strings.TrimSpace(in.Answer)
	if question == "" || ans == "" {
		return nil, domain.InvalidInput("question and answer are required", nil)
	}

	card := domain.Flashcard{
		ID:         uuid.NewString(),
		Question:   question,
		Answer:     ans,
		Subject:    in.Subject,
		Difficulty: in.Difficulty,
		CreatedAt:  s.now().UTC(),
		Tags:       in.Tags,
	}
	if card.Subject == "" {
		card.Subject = domain.SubjectGeneral
	}
	if card.Difficulty == 0 {
		card.Difficulty = domain.DefaultDifficulty
	}
	if card.Tags == nil {
		card.Tags = []string{}
	}

	if err := s.cards.SaveFlashcard(ctx, userID, card); err != nil {
		return nil, domain.StorageFailure("save flashcard", err)
	}
	return &card, nil
}

// Flashcards returns the user's deck.
func (s *Service) Flashcards(ctx context.Context, userID string) (*domain.FlashcardDeck, error) {
	deck, err := s.cards.ListFlashcards(ctx, userID)
	if err != nil {
		return nil, domain.StorageFailure("list flashcards", err)
	}
	return &deck, nil
}

// GenerateFlashcards asks the backend for one card per chunk over the first count
// chunks of a document. Replies without Q: and A: lines are skipped. A backend
// failure aborts the run and nothing is stored.
func (s *Service) GenerateFlashcards(ctx context.Context, userID, docID string, count int) ([]domain.Flashcard, error) {
	if count <= 0 {
		count = DefaultGenerateCount
	}

	doc, err := s.document(ctx, userID, docID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithContext(ctx).WithOperation("generate_flashcards").WithUser(userID)
	short := &domain.Preferences{AnswerLength: "short"}

	cards := []domain.Flashcard{}
	for _, chunk := range doc.Chunks[:min(count, len(doc.Chunks))] {
		prompt := answer.BuildPrompt(short, domain.ModeNormal, flashcardPrompt(chunk.Text), nil, 0)

		reply, err := s.complete(ctx, prompt)
		if err != nil {
			return nil, domain.BackendUnavailable("Failed to generate flashcards", err)
		}

		question, ans, ok := parseCard(reply)
		if !ok {
			log.Debug().Str("chunk_id", chunk.ID).Msg("Skipping unparseable flashcard reply")
			continue
		}

		cards = append(cards, domain.Flashcard{
			ID:             uuid.NewString(),
			Question:       question,
			Answer:         ans,
			Subject:        doc.Subject,
			Difficulty:     domain.DefaultDifficulty,
			CreatedAt:      s.now().UTC(),
			SourceDocument: doc.ID,
			Tags:           []string{tagAIGenerated, doc.Subject},
			AIGenerated:    true,
		})
	}

	for _, card := range cards {
		if err := s.cards.SaveFlashcard(ctx, userID, card); err != nil {
			return nil, domain.StorageFailure("save flashcard", err)
		}
	}

	log.Info().Str("document_id", doc.ID).Int("cards", len(cards)).Msg("Flashcards generated")
	return cards, nil
}

func flashcardPrompt(text string) string {
	runes := []rune(text)
	if len(runes) > cardSourceChars {
		runes = runes[:cardSourceChars]
	}
	return "Based on this text, create a flashcard question and answer:\n\n" +
		"Text: " + string(runes) + "\n\n" +
		"Create a clear, educational question and concise answer. Format as:\n" +
		"Q: [question]\n" +
		"A: [answer]"
}

// parseCard takes the first line starting with Q: and the first starting with A:.
func parseCard(reply string) (question, ans string, ok bool) {
	var haveQ, haveA bool
	for _, line := range strings.Split(reply, "\n") {
		switch {
		case !haveQ && strings.HasPrefix(line, "Q:"):
			question, haveQ = strings.TrimSpace(line[2:]), true
		case !haveA && strings.HasPrefix(line, "A:"):
			ans, haveA = strings.TrimSpace(line[2:]), true
		}
	}
	return question, ans, haveQ && haveA
}

func (s *Service) document(ctx context.Context, userID, docID string) (*domain.Document, error) {
	doc, err := s.documents.GetDocument(ctx, userID, docID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("PDF not found", err)
		}
		return nil, domain.StorageFailure("load document", err)
	}
	return doc, nil
}

func (s *Service) complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.backend.Complete(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("backend completion: %w", err)
	}
	return reply, nil
}
