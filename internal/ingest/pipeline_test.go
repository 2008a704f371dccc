package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/storage"
)

type fakeExtractor struct {
	text  string
	pages int
	err   error
	calls atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte) (*Extraction, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &Extraction{Text: f.text, Pages: f.pages}, nil
}

func newTestPipeline(t *testing.T, ex Extractor) (*Pipeline, *storage.MemoryStore, string) {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewMemoryStore()
	p := NewPipeline(observability.NopLogger(), PipelineConfig{
		UploadDir:         dir,
		ChunkSize:         50,
		MaxConcurrentJobs: 2,
	}, ex, store)
	return p, store, dir
}

func TestPipeline_IngestPersistsAnalyzedDocument(t *testing.T) {
	ex := &fakeExtractor{
		text:  "Cells are the unit of life. Every cell has a membrane. The gene controls the protein.",
		pages: 3,
	}
	p, store, dir := newTestPipeline(t, ex)

	doc, err := p.Ingest(context.Background(), "u1", Upload{Name: "cells.PDF", Data: []byte("%PDF-1.4 fake")})
	require.NoError(t, err)

	assert.Equal(t, "u1", doc.UserID)
	assert.Equal(t, "cells.PDF", doc.OriginalName)
	assert.Equal(t, doc.ID+".pdf", doc.StoredName)
	assert.Equal(t, 3, doc.Pages)
	assert.Equal(t, int64(len("%PDF-1.4 fake")), doc.Size)
	assert.Equal(t, "biology", doc.Subject)
	assert.Contains(t, doc.Keywords, "cell")
	assert.Greater(t, len(doc.Chunks), 1)

	assert.FileExists(t, filepath.Join(dir, "u1", "pdfs", doc.StoredName))
	text, err := os.ReadFile(filepath.Join(dir, "u1", "extracted-text", doc.ID+".txt"))
	require.NoError(t, err)
	assert.Equal(t, ex.text, string(text))

	stored, err := store.ListDocuments(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, doc.ID, stored[0].ID)
	assert.Equal(t, doc.Chunks, stored[0].Chunks)
}

func TestPipeline_IngestRejectsBadUploads(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		upload Upload
	}{
		{name: "not a pdf", userID: "u1", upload: Upload{Name: "notes.txt", Data: []byte("x")}},
		{name: "empty payload", userID: "u1", upload: Upload{Name: "empty.pdf"}},
		{name: "missing user", userID: "", upload: Upload{Name: "a.pdf", Data: []byte("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &fakeExtractor{text: "ignored"}
			p, _, _ := newTestPipeline(t, ex)

			_, err := p.Ingest(context.Background(), tt.userID, tt.upload)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.KindInvalidInput))
			assert.Equal(t, int32(0), ex.calls.Load())
		})
	}
}

func TestPipeline_ExtractionFailureRemovesStoredFile(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("corrupt xref")}
	p, store, dir := newTestPipeline(t, ex)

	_, err := p.Ingest(context.Background(), "u1", Upload{Name: "broken.pdf", Data: []byte("junk")})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidInput))

	entries, err := os.ReadDir(filepath.Join(dir, "u1", "pdfs"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	docs, err := store.ListDocuments(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestPipeline_IngestManyKeepsInputOrder(t *testing.T) {
	ex := &fakeExtractor{text: "The equation has a proof.", pages: 1}
	p, store, _ := newTestPipeline(t, ex)

	results := p.IngestMany(context.Background(), "u1", []Upload{
		{Name: "a.pdf", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
		{Name: "c.pdf", Data: []byte("c")},
	})

	require.Len(t, results, 3)
	assert.Equal(t, "a.pdf", results[0].Name)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "b.txt", results[1].Name)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Document)
	assert.Equal(t, "c.pdf", results[2].Name)
	require.NoError(t, results[2].Err)
	assert.Equal(t, "mathematics", results[2].Document.Subject)

	docs, err := store.ListDocuments(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}
