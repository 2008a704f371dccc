package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phenbot/study-engine/internal/domain"
)

// profileRow represents a row in the users table.
type profileRow struct {
	UserID         string       `db:"user_id"`
	Email          string       `db:"email"`
	Username       string       `db:"username"`
	PasswordHash   string       `db:"password_hash"`
	CreatedAt      time.Time    `db:"created_at"`
	LastLogin      sql.NullTime `db:"last_login"`
	Preferences    string       `db:"preferences"`
	Analytics      string       `db:"analytics"`
	CustomSubjects string       `db:"custom_subjects"`
}

// documentRow represents a row in the documents table.
type documentRow struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	OriginalName string    `db:"original_name"`
	StoredName   string    `db:"stored_name"`
	UploadedAt   time.Time `db:"uploaded_at"`
	Size         int64     `db:"size"`
	Pages        int       `db:"pages"`
	Subject      string    `db:"subject"`
	Keywords     string    `db:"keywords"`
}

// chunkRow represents a row in the chunks table.
type chunkRow struct {
	DocumentID string `db:"document_id"`
	Position   int    `db:"position"`
	ChunkID    string `db:"chunk_id"`
	Text       string `db:"text"`
	Length     int    `db:"length"`
}

// historyRow represents a row in the history table.
type historyRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	Question  string    `db:"question"`
	Answer    string    `db:"answer"`
	Metadata  string    `db:"metadata"`
}

// flashcardRow represents a row in the flashcards table.
type flashcardRow struct {
	ID             string       `db:"id"`
	UserID         string       `db:"user_id"`
	AIGenerated    bool         `db:"ai_generated"`
	Question       string       `db:"question"`
	Answer         string       `db:"answer"`
	Subject        string       `db:"subject"`
	Difficulty     int          `db:"difficulty"`
	CreatedAt      time.Time    `db:"created_at"`
	SourceDocument string       `db:"source_document"`
	LastReviewed   sql.NullTime `db:"last_reviewed"`
	ReviewCount    int          `db:"review_count"`
	CorrectCount   int          `db:"correct_count"`
	Tags           string       `db:"tags"`
}

func toProfileRow(p *domain.Profile) (profileRow, error) {
	prefs, err := encodeJSON(p.Preferences)
	if err != nil {
		return profileRow{}, err
	}
	analytics, err := encodeJSON(p.Analytics)
	if err != nil {
		return profileRow{}, err
	}
	subjects, err := encodeJSON(nonNil(p.CustomSubjects))
	if err != nil {
		return profileRow{}, err
	}

	return profileRow{
		UserID:         p.UserID,
		Email:          p.Email,
		Username:       p.Username,
		PasswordHash:   p.PasswordHash,
		CreatedAt:      p.CreatedAt.UTC(),
		LastLogin:      nullTime(p.LastLogin),
		Preferences:    prefs,
		Analytics:      analytics,
		CustomSubjects: subjects,
	}, nil
}

func (r profileRow) toDomain() (*domain.Profile, error) {
	p := &domain.Profile{
		UserID:       r.UserID,
		Email:        r.Email,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		LastLogin:    timePtr(r.LastLogin),
		Analytics:    domain.NewAnalytics(),
	}
	if err := decodeJSON(r.Preferences, &p.Preferences); err != nil {
		return nil, err
	}
	if err := decodeJSON(r.Analytics, &p.Analytics); err != nil {
		return nil, err
	}
	if err := decodeJSON(r.CustomSubjects, &p.CustomSubjects); err != nil {
		return nil, err
	}
	p.CustomSubjects = nonNil(p.CustomSubjects)
	return p, nil
}

func toDocumentRow(d *domain.Document) (documentRow, error) {
	keywords, err := encodeJSON(nonNil(d.Keywords))
	if err != nil {
		return documentRow{}, err
	}
	return documentRow{
		ID:           d.ID,
		UserID:       d.UserID,
		OriginalName: d.OriginalName,
		StoredName:   d.StoredName,
		UploadedAt:   d.UploadedAt.UTC(),
		Size:         d.Size,
		Pages:        d.Pages,
		Subject:      d.Subject,
		Keywords:     keywords,
	}, nil
}

func (r documentRow) toDomain() (domain.Document, error) {
	d := domain.Document{
		ID:           r.ID,
		UserID:       r.UserID,
		OriginalName: r.OriginalName,
		StoredName:   r.StoredName,
		UploadedAt:   r.UploadedAt.UTC(),
		Size:         r.Size,
		Pages:        r.Pages,
		Subject:      r.Subject,
		Chunks:       []domain.Chunk{},
	}
	if err := decodeJSON(r.Keywords, &d.Keywords); err != nil {
		return domain.Document{}, err
	}
	d.Keywords = nonNil(d.Keywords)
	return d, nil
}

func toHistoryRow(userID string, e domain.HistoryEntry) (historyRow, error) {
	meta, err := encodeJSON(e.Metadata)
	if err != nil {
		return historyRow{}, err
	}
	return historyRow{
		ID:        e.ID,
		UserID:    userID,
		CreatedAt: e.Timestamp.UTC(),
		Question:  e.Question,
		Answer:    e.Answer,
		Metadata:  meta,
	}, nil
}

func (r historyRow) toDomain() (domain.HistoryEntry, error) {
	e := domain.HistoryEntry{
		ID:        r.ID,
		Timestamp: r.CreatedAt.UTC(),
		Question:  r.Question,
		Answer:    r.Answer,
	}
	if err := decodeJSON(r.Metadata, &e.Metadata); err != nil {
		return domain.HistoryEntry{}, err
	}
	return e, nil
}

func toFlashcardRow(userID string, c domain.Flashcard) (flashcardRow, error) {
	tags, err := encodeJSON(nonNil(c.Tags))
	if err != nil {
		return flashcardRow{}, err
	}
	return flashcardRow{
		ID:             c.ID,
		UserID:         userID,
		AIGenerated:    c.AIGenerated,
		Question:       c.Question,
		Answer:         c.Answer,
		Subject:        c.Subject,
		Difficulty:     c.Difficulty,
		CreatedAt:      c.CreatedAt.UTC(),
		SourceDocument: c.SourceDocument,
		LastReviewed:   nullTime(c.LastReviewed),
		ReviewCount:    c.ReviewCount,
		CorrectCount:   c.CorrectCount,
		Tags:           tags,
	}, nil
}

func (r flashcardRow) toDomain() (domain.Flashcard, error) {
	c := domain.Flashcard{
		ID:             r.ID,
		Question:       r.Question,
		Answer:         r.Answer,
		Subject:        r.Subject,
		Difficulty:     r.Difficulty,
		CreatedAt:      r.CreatedAt.UTC(),
		SourceDocument: r.SourceDocument,
		LastReviewed:   timePtr(r.LastReviewed),
		ReviewCount:    r.ReviewCount,
		CorrectCount:   r.CorrectCount,
		AIGenerated:    r.AIGenerated,
	}
	if err := decodeJSON(r.Tags, &c.Tags); err != nil {
		return domain.Flashcard{}, err
	}
	c.Tags = nonNil(c.Tags)
	return c, nil
}

func encodeJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json column: %w", err)
	}
	return string(data), nil
}

func decodeJSON(raw string, v interface{}) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
