// Package storage provides persistence for profiles, documents, history and flashcards.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phenbot/study-engine/internal/domain"
)

// Common errors
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflict")
)

// UserStore persists user profiles.
type UserStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	CreateProfile(ctx context.Context, profile *domain.Profile) error
	SaveProfile(ctx context.Context, profile *domain.Profile) error
}

// DocumentStore persists uploaded documents and their chunks.
type DocumentStore interface {
	ListDocuments(ctx context.Context, userID string) ([]domain.Document, error)
	GetDocument(ctx context.Context, userID, docID string) (*domain.Document, error)
	SaveDocument(ctx context.Context, doc *domain.Document) error
	DeleteDocument(ctx context.Context, userID, docID string) error
}

// HistoryStore persists each user's answered questions.
type HistoryStore interface {
	// AppendHistory adds entry and evicts the oldest entries beyond limit.
	AppendHistory(ctx context.Context, userID string, entry domain.HistoryEntry, limit int) error
	// ListHistory returns the last n entries in chronological order; n <= 0 returns all.
	ListHistory(ctx context.Context, userID string, n int) ([]domain.HistoryEntry, error)
}

// FlashcardStore persists study cards.
type FlashcardStore interface {
	SaveFlashcard(ctx context.Context, userID string, card domain.Flashcard) error
	ListFlashcards(ctx context.Context, userID string) (domain.FlashcardDeck, error)
}

// Store is the full persistence surface.
type Store interface {
	UserStore
	DocumentStore
	HistoryStore
	FlashcardStore
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a store backend.
type Config struct {
	Driver          string // sqlite, postgres, bolt or memory
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	JournalMode     string
	BoltTimeout     time.Duration
}

// Open connects to the configured backend and applies the schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Driver {
	case "sqlite", "postgres":
		store, err = OpenSQL(cfg)
	case "bolt":
		store, err = OpenBolt(cfg.DSN, cfg.BoltTimeout)
	case "memory":
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// lastN returns the trailing n entries, or all of them when n <= 0.
func lastN(entries []domain.HistoryEntry, n int) []domain.HistoryEntry {
	if n > 0 && len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}
