package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/phenbot/study-engine/internal/domain"
)

// SQLStore implements Store on SQLite or Postgres through sqlx.
type SQLStore struct {
	db    *sqlx.DB
	repos *Repositories
}

// OpenSQL connects to a SQLite or Postgres database.
func OpenSQL(cfg Config) (*SQLStore, error) {
	driverName := cfg.Driver
	if driverName == "sqlite" {
		driverName = "sqlite3"
	}

	db, err := sqlx.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if driverName == "sqlite3" {
		// One writer keeps :memory: databases shared and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		if cfg.JournalMode != "" {
			if _, err := db.Exec(fmt.Sprintf("PRAGMA journal_mode=%s", cfg.JournalMode)); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("set journal mode: %w", err)
			}
		}
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	return NewSQLStore(db), nil
}

// NewSQLStore wraps an existing connection.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, repos: NewRepositories(db)}
}

// Migrate applies the schema.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.db)
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return s.repos.Users.Get(ctx, userID)
}

func (s *SQLStore) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	return s.repos.Users.Create(ctx, profile)
}

func (s *SQLStore) SaveProfile(ctx context.Context, profile *domain.Profile) error {
	return s.repos.Users.Update(ctx, profile)
}

func (s *SQLStore) ListDocuments(ctx context.Context, userID string) ([]domain.Document, error) {
	return s.repos.Documents.ListByUser(ctx, userID)
}

func (s *SQLStore) GetDocument(ctx context.Context, userID, docID string) (*domain.Document, error) {
	return s.repos.Documents.GetByID(ctx, userID, docID)
}

func (s *SQLStore) SaveDocument(ctx context.Context, doc *domain.Document) error {
	return s.repos.Documents.Create(ctx, doc)
}

func (s *SQLStore) DeleteDocument(ctx context.Context, userID, docID string) error {
	return s.repos.Documents.Delete(ctx, userID, docID)
}

func (s *SQLStore) AppendHistory(ctx context.Context, userID string, entry domain.HistoryEntry, limit int) error {
	return s.repos.History.Append(ctx, userID, entry, limit)
}

func (s *SQLStore) ListHistory(ctx context.Context, userID string, n int) ([]domain.HistoryEntry, error) {
	return s.repos.History.List(ctx, userID, n)
}

func (s *SQLStore) SaveFlashcard(ctx context.Context, userID string, card domain.Flashcard) error {
	return s.repos.Flashcards.Create(ctx, userID, card)
}

func (s *SQLStore) ListFlashcards(ctx context.Context, userID string) (domain.FlashcardDeck, error) {
	return s.repos.Flashcards.ListByUser(ctx, userID)
}
