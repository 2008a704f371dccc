package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order. {{serial}} and {{timestamp}} are replaced per dialect.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL,
		last_login {{timestamp}} NULL,
		preferences TEXT NOT NULL,
		analytics TEXT NOT NULL,
		custom_subjects TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		original_name TEXT NOT NULL,
		stored_name TEXT NOT NULL,
		uploaded_at {{timestamp}} NOT NULL,
		size BIGINT NOT NULL,
		pages INTEGER NOT NULL,
		subject TEXT NOT NULL,
		keywords TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_user ON documents (user_id, seq)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		document_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		chunk_id TEXT NOT NULL,
		text TEXT NOT NULL,
		length INTEGER NOT NULL,
		PRIMARY KEY (document_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS history (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		metadata TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_user ON history (user_id, seq)`,
	`CREATE TABLE IF NOT EXISTS flashcards (
		seq {{serial}},
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		ai_generated BOOLEAN NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		subject TEXT NOT NULL,
		difficulty INTEGER NOT NULL,
		created_at {{timestamp}} NOT NULL,
		source_document TEXT NOT NULL,
		last_reviewed {{timestamp}} NULL,
		review_count INTEGER NOT NULL,
		correct_count INTEGER NOT NULL,
		tags TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_flashcards_user ON flashcards (user_id, seq)`,
}

// dialectTypes maps schema placeholders to column types for a sqlx driver name.
func dialectTypes(driverName string) map[string]string {
	if driverName == "postgres" {
		return map[string]string{
			"{{serial}}":    "BIGSERIAL PRIMARY KEY",
			"{{timestamp}}": "TIMESTAMPTZ",
		}
	}
	return map[string]string{
		"{{serial}}":    "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{timestamp}}": "TIMESTAMP",
	}
}

// migrate applies the schema. Every statement is idempotent.
func migrate(ctx context.Context, db *sqlx.DB) error {
	types := dialectTypes(db.DriverName())
	for i, stmt := range schema {
		for placeholder, typ := range types {
			stmt = strings.ReplaceAll(stmt, placeholder, typ)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
