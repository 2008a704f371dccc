package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/phenbot/study-engine/internal/domain"
)

// UserRepository handles profile CRUD operations.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Get retrieves a profile by user ID.
func (r *UserRepository) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	query := r.db.Rebind(`
		SELECT user_id, email, username, password_hash, created_at, last_login,
			preferences, analytics, custom_subjects
		FROM users WHERE user_id = ?
	`)
	var row profileRow
	err := r.db.GetContext(ctx, &row, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// Create inserts a profile, failing with ErrConflict when the user already exists.
func (r *UserRepository) Create(ctx context.Context, profile *domain.Profile) error {
	row, err := toProfileRow(profile)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM users WHERE user_id = ? OR email = ?`), row.UserID, row.Email); err != nil {
		return err
	}
	if count > 0 {
		return ErrConflict
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO users (user_id, email, username, password_hash, created_at, last_login,
			preferences, analytics, custom_subjects)
		VALUES (:user_id, :email, :username, :password_hash, :created_at, :last_login,
			:preferences, :analytics, :custom_subjects)
	`, row); err != nil {
		return err
	}
	return tx.Commit()
}

// Update overwrites a profile's mutable fields.
func (r *UserRepository) Update(ctx context.Context, profile *domain.Profile) error {
	row, err := toProfileRow(profile)
	if err != nil {
		return err
	}

	res, err := r.db.NamedExecContext(ctx, `
		UPDATE users SET email = :email, username = :username, password_hash = :password_hash,
			last_login = :last_login, preferences = :preferences, analytics = :analytics,
			custom_subjects = :custom_subjects
		WHERE user_id = :user_id
	`, row)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// DocumentRepository handles document and chunk persistence.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a document and its chunks in one transaction.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	row, err := toDocumentRow(doc)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO documents (id, user_id, original_name, stored_name, uploaded_at, size, pages, subject, keywords)
		VALUES (:id, :user_id, :original_name, :stored_name, :uploaded_at, :size, :pages, :subject, :keywords)
	`, row); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	for i, c := range doc.Chunks {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO chunks (document_id, position, chunk_id, text, length)
			VALUES (:document_id, :position, :chunk_id, :text, :length)
		`, chunkRow{DocumentID: doc.ID, Position: i, ChunkID: c.ID, Text: c.Text, Length: c.Length}); err != nil {
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ListByUser returns a user's documents in upload order, chunks included.
func (r *DocumentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Document, error) {
	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, user_id, original_name, stored_name, uploaded_at, size, pages, subject, keywords
		FROM documents WHERE user_id = ? ORDER BY seq
	`), userID); err != nil {
		return nil, err
	}

	var chunks []chunkRow
	if err := r.db.SelectContext(ctx, &chunks, r.db.Rebind(`
		SELECT c.document_id, c.position, c.chunk_id, c.text, c.length
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE d.user_id = ? ORDER BY c.document_id, c.position
	`), userID); err != nil {
		return nil, err
	}

	byDoc := make(map[string][]domain.Chunk, len(rows))
	for _, c := range chunks {
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], domain.Chunk{ID: c.ChunkID, Text: c.Text, Length: c.Length})
	}

	docs := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		if cs, ok := byDoc[doc.ID]; ok {
			doc.Chunks = cs
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// GetByID retrieves one of a user's documents.
func (r *DocumentRepository) GetByID(ctx context.Context, userID, docID string) (*domain.Document, error) {
	var row documentRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, user_id, original_name, stored_name, uploaded_at, size, pages, subject, keywords
		FROM documents WHERE user_id = ? AND id = ?
	`), userID, docID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	doc, err := row.toDomain()
	if err != nil {
		return nil, err
	}

	var chunks []chunkRow
	if err := r.db.SelectContext(ctx, &chunks, r.db.Rebind(`
		SELECT document_id, position, chunk_id, text, length
		FROM chunks WHERE document_id = ? ORDER BY position
	`), docID); err != nil {
		return nil, err
	}
	for _, c := range chunks {
		doc.Chunks = append(doc.Chunks, domain.Chunk{ID: c.ChunkID, Text: c.Text, Length: c.Length})
	}
	return &doc, nil
}

// Delete removes a document and its chunks.
func (r *DocumentRepository) Delete(ctx context.Context, userID, docID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM documents WHERE user_id = ? AND id = ?`), userID, docID)
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM chunks WHERE document_id = ?`), docID); err != nil {
		return err
	}
	return tx.Commit()
}

// HistoryRepository handles the per-user answer history.
type HistoryRepository struct {
	db *sqlx.DB

	// appendMu serializes insert-then-trim so the cap holds under concurrent appends.
	appendMu sync.Mutex
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts an entry and trims the user's history to the newest limit entries.
func (r *HistoryRepository) Append(ctx context.Context, userID string, entry domain.HistoryEntry, limit int) error {
	row, err := toHistoryRow(userID, entry)
	if err != nil {
		return err
	}

	r.appendMu.Lock()
	defer r.appendMu.Unlock()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO history (id, user_id, created_at, question, answer, metadata)
		VALUES (:id, :user_id, :created_at, :question, :answer, :metadata)
	`, row); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	if limit > 0 {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			DELETE FROM history WHERE user_id = ? AND seq NOT IN (
				SELECT seq FROM history WHERE user_id = ? ORDER BY seq DESC LIMIT ?
			)
		`), userID, userID, limit); err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}

	return tx.Commit()
}

// List returns the user's last n entries in chronological order.
func (r *HistoryRepository) List(ctx context.Context, userID string, n int) ([]domain.HistoryEntry, error) {
	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, user_id, created_at, question, answer, metadata
		FROM history WHERE user_id = ? ORDER BY seq
	`), userID); err != nil {
		return nil, err
	}

	entries := make([]domain.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return lastN(entries, n), nil
}

// FlashcardRepository handles flashcard persistence.
type FlashcardRepository struct {
	db *sqlx.DB
}

// NewFlashcardRepository creates a new flashcard repository.
func NewFlashcardRepository(db *sqlx.DB) *FlashcardRepository {
	return &FlashcardRepository{db: db}
}

// Create inserts a flashcard.
func (r *FlashcardRepository) Create(ctx context.Context, userID string, card domain.Flashcard) error {
	row, err := toFlashcardRow(userID, card)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO flashcards (id, user_id, ai_generated, question, answer, subject, difficulty,
			created_at, source_document, last_reviewed, review_count, correct_count, tags)
		VALUES (:id, :user_id, :ai_generated, :question, :answer, :subject, :difficulty,
			:created_at, :source_document, :last_reviewed, :review_count, :correct_count, :tags)
	`, row)
	return err
}

// ListByUser returns the user's deck split by origin, oldest first.
func (r *FlashcardRepository) ListByUser(ctx context.Context, userID string) (domain.FlashcardDeck, error) {
	var rows []flashcardRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, user_id, ai_generated, question, answer, subject, difficulty, created_at,
			source_document, last_reviewed, review_count, correct_count, tags
		FROM flashcards WHERE user_id = ? ORDER BY seq
	`), userID); err != nil {
		return domain.FlashcardDeck{}, err
	}

	deck := domain.FlashcardDeck{UserMade: []domain.Flashcard{}, AIGenerated: []domain.Flashcard{}}
	for _, row := range rows {
		card, err := row.toDomain()
		if err != nil {
			return domain.FlashcardDeck{}, err
		}
		if card.AIGenerated {
			deck.AIGenerated = append(deck.AIGenerated, card)
		} else {
			deck.UserMade = append(deck.UserMade, card)
		}
	}
	return deck, nil
}

// Repositories groups the SQL repositories over one connection.
type Repositories struct {
	Users      *UserRepository
	Documents  *DocumentRepository
	History    *HistoryRepository
	Flashcards *FlashcardRepository
}

// NewRepositories creates all repositories with the given database connection.
func NewRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Users:      NewUserRepository(db),
		Documents:  NewDocumentRepository(db),
		History:    NewHistoryRepository(db),
		Flashcards: NewFlashcardRepository(db),
	}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
