package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenbot/study-engine/internal/domain"
)

type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

// storeBackends is extended by integration builds.
var storeBackends = []storeFactory{
	{name: "sqlite", open: func(t *testing.T) Store {
		s, err := Open(context.Background(), Config{Driver: "sqlite", DSN: ":memory:"})
		require.NoError(t, err)
		return s
	}},
	{name: "bolt", open: func(t *testing.T) Store {
		s, err := Open(context.Background(), Config{Driver: "bolt", DSN: filepath.Join(t.TempDir(), "test.bolt")})
		require.NoError(t, err)
		return s
	}},
	{name: "memory", open: func(t *testing.T) Store {
		s, err := Open(context.Background(), Config{Driver: "memory"})
		require.NoError(t, err)
		return s
	}},
}

// forEachStore runs fn against every backend.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for _, f := range storeBackends {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func newProfile(userID string) *domain.Profile {
	return &domain.Profile{
		UserID:         userID,
		Email:          userID + "@example.com",
		Username:       "student",
		PasswordHash:   "$2a$10$hash",
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Preferences:    domain.DefaultPreferences(),
		Analytics:      domain.NewAnalytics(),
		CustomSubjects: []string{},
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestStore_ProfileLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.GetProfile(ctx, "u1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.SaveProfile(ctx, newProfile("u1")), ErrNotFound)

		require.NoError(t, s.CreateProfile(ctx, newProfile("u1")))
		assert.ErrorIs(t, s.CreateProfile(ctx, newProfile("u1")), ErrConflict)

		p, err := s.GetProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1@example.com", p.Email)
		assert.Nil(t, p.LastLogin)
		assert.Equal(t, "analyze", p.Preferences.BloomsLevel)
		assert.Equal(t, 0, p.Analytics.BloomsLevels[domain.BloomCreate])
		assert.Empty(t, p.CustomSubjects)

		login := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
		p.LastLogin = &login
		p.Preferences.StudyStreak = 3
		p.Analytics.QuestionsAsked = 7
		p.Analytics.BloomsLevels[domain.BloomApply] = 2
		p.CustomSubjects = []string{"astronomy"}
		require.NoError(t, s.SaveProfile(ctx, p))

		got, err := s.GetProfile(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
		assert.True(t, login.Equal(*got.LastLogin))
		assert.Equal(t, 3, got.Preferences.StudyStreak)
		assert.Equal(t, 7, got.Analytics.QuestionsAsked)
		assert.Equal(t, 2, got.Analytics.BloomsLevels[domain.BloomApply])
		assert.Equal(t, []string{"astronomy"}, got.CustomSubjects)
	})
}

func TestStore_ReturnedProfileIsACopy(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateProfile(ctx, newProfile("u1")))

		p, err := s.GetProfile(ctx, "u1")
		require.NoError(t, err)
		p.Analytics.QuestionsAsked = 99

		again, err := s.GetProfile(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, again.Analytics.QuestionsAsked)
	})
}

func TestStore_DocumentsKeepUploadOrderAndChunks(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for i, name := range []string{"b.pdf", "a.pdf", "c.pdf"} {
			doc := &domain.Document{
				ID:           fmt.Sprintf("doc-%d", i),
				UserID:       "u1",
				OriginalName: name,
				StoredName:   "stored-" + name,
				UploadedAt:   time.Date(2026, 3, 1, 0, 0, i, 0, time.UTC),
				Size:         1024,
				Pages:        2,
				Subject:      "biology",
				Keywords:     []string{"cell", "membrane"},
				Chunks: []domain.Chunk{
					{ID: "chunk-0", Text: "first " + name, Length: 10},
					{ID: "chunk-1", Text: "second " + name, Length: 11},
				},
			}
			require.NoError(t, s.SaveDocument(ctx, doc))
		}
		require.NoError(t, s.SaveDocument(ctx, &domain.Document{ID: "other", UserID: "u2", OriginalName: "x.pdf"}))

		docs, err := s.ListDocuments(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, docs, 3)
		assert.Equal(t, "b.pdf", docs[0].OriginalName)
		assert.Equal(t, "a.pdf", docs[1].OriginalName)
		assert.Equal(t, "c.pdf", docs[2].OriginalName)
		require.Len(t, docs[1].Chunks, 2)
		assert.Equal(t, "chunk-1", docs[1].Chunks[1].ID)
		assert.Equal(t, "second a.pdf", docs[1].Chunks[1].Text)
		assert.Equal(t, []string{"cell", "membrane"}, docs[0].Keywords)

		doc, err := s.GetDocument(ctx, "u1", "doc-2")
		require.NoError(t, err)
		assert.Equal(t, "c.pdf", doc.OriginalName)
		assert.Len(t, doc.Chunks, 2)

		_, err = s.GetDocument(ctx, "u2", "doc-2")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.DeleteDocument(ctx, "u1", "doc-1"))
		assert.ErrorIs(t, s.DeleteDocument(ctx, "u1", "doc-1"), ErrNotFound)

		docs, err = s.ListDocuments(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, docs, 2)
	})
}

func TestStore_ListDocumentsEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		docs, err := s.ListDocuments(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}

func TestStore_HistoryEvictsOldestBeyondLimit(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

		for i := 0; i < 105; i++ {
			entry := domain.HistoryEntry{
				ID:        fmt.Sprintf("h-%03d", i),
				Timestamp: base.Add(time.Duration(i) * time.Second),
				Question:  fmt.Sprintf("question %d", i),
				Answer:    "answer",
				Metadata:  domain.HistoryMetadata{Mode: domain.ModeNormal, Source: domain.SourceDataset, PDFSources: []string{}},
			}
			require.NoError(t, s.AppendHistory(ctx, "u1", entry, 100))
		}

		all, err := s.ListHistory(ctx, "u1", 0)
		require.NoError(t, err)
		require.Len(t, all, 100)
		assert.Equal(t, "question 5", all[0].Question)
		assert.Equal(t, "question 104", all[99].Question)
		assert.Equal(t, domain.SourceDataset, all[0].Metadata.Source)

		last, err := s.ListHistory(ctx, "u1", 3)
		require.NoError(t, err)
		require.Len(t, last, 3)
		assert.Equal(t, "question 102", last[0].Question)
		assert.Equal(t, "question 104", last[2].Question)
	})
}

func TestStore_FlashcardsSplitByOrigin(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		created := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, s.SaveFlashcard(ctx, "u1", domain.Flashcard{
			ID: "f1", Question: "Q1", Answer: "A1", Subject: "math", Difficulty: 3, CreatedAt: created, Tags: []string{},
		}))
		require.NoError(t, s.SaveFlashcard(ctx, "u1", domain.Flashcard{
			ID: "f2", Question: "Q2", Answer: "A2", Subject: "biology", Difficulty: 5, CreatedAt: created,
			SourceDocument: "cells.pdf", Tags: []string{"ai-generated", "biology"}, AIGenerated: true,
		}))

		deck, err := s.ListFlashcards(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, deck.UserMade, 1)
		require.Len(t, deck.AIGenerated, 1)
		assert.Equal(t, "Q1", deck.UserMade[0].Question)
		assert.Equal(t, "cells.pdf", deck.AIGenerated[0].SourceDocument)
		assert.Equal(t, []string{"ai-generated", "biology"}, deck.AIGenerated[0].Tags)
		assert.True(t, deck.AIGenerated[0].AIGenerated)

		empty, err := s.ListFlashcards(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, empty.UserMade)
		assert.Empty(t, empty.AIGenerated)
	})
}

func TestStore_ConcurrentHistoryAppends(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = s.AppendHistory(ctx, "u1", domain.HistoryEntry{
					ID:        fmt.Sprintf("c-%d", i),
					Timestamp: time.Now(),
					Question:  "q",
				}, 10)
			}(i)
		}
		wg.Wait()

		entries, err := s.ListHistory(ctx, "u1", 0)
		require.NoError(t, err)
		assert.Len(t, entries, 10)
	})
}
