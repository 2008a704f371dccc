// Package ingest turns uploaded PDFs into segmented, classified study documents.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/observability"
	"github.com/phenbot/study-engine/internal/storage"
)

// Pipeline orchestrates document ingestion.
type Pipeline struct {
	logger    *observability.Logger
	extractor Extractor
	store     storage.DocumentStore
	config    PipelineConfig
	now       func() time.Time
}

// PipelineConfig holds pipeline configuration.
type PipelineConfig struct {
	UploadDir         string
	ChunkSize         int
	KeywordLimit      int
	MaxConcurrentJobs int
}

// Upload is one file received for ingestion.
type Upload struct {
	Name string
	Data []byte
}

// Result is the outcome of ingesting one file in a batch.
type Result struct {
	Name     string
	Document *domain.Document
	Err      error
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(logger *observability.Logger, cfg PipelineConfig, extractor Extractor, store storage.DocumentStore) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.KeywordLimit <= 0 {
		cfg.KeywordLimit = DefaultKeywordLimit
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}
	return &Pipeline{
		logger:    logger,
		extractor: extractor,
		store:     store,
		config:    cfg,
		now:       time.Now,
	}
}

// Ingest stores, extracts, analyzes and persists one PDF for a user.
func (p *Pipeline) Ingest(ctx context.Context, userID string, up Upload) (*domain.Document, error) {
	if userID == "" {
		return nil, domain.InvalidInput("user id is required", nil)
	}
	if !strings.EqualFold(filepath.Ext(up.Name), ".pdf") {
		return nil, domain.InvalidInput("Only PDF files are allowed", nil)
	}
	if len(up.Data) == 0 {
		return nil, domain.InvalidInput("No PDF file uploaded", nil)
	}

	docID := uuid.NewString()
	startTime := p.now()
	logger := p.logger.WithUser(userID).WithOperation("ingest")

	logger.Info().
		Str("doc_id", docID).
		Str("file", up.Name).
		Int("bytes", len(up.Data)).
		Msg("Starting document ingestion")

	// Step 1: Store the original file
	userDir := filepath.Join(p.config.UploadDir, userID)
	storedName := docID + ".pdf"
	pdfPath := filepath.Join(userDir, "pdfs", storedName)
	if err := writeFile(pdfPath, up.Data); err != nil {
		return nil, domain.StorageFailure("save uploaded file", err)
	}

	// Step 2: Extract text
	extraction, err := p.extractor.Extract(ctx, up.Data)
	if err != nil {
		_ = os.Remove(pdfPath)
		return nil, domain.InvalidInput("Failed to process PDF", err)
	}

	textPath := filepath.Join(userDir, "extracted-text", docID+".txt")
	if err := writeFile(textPath, []byte(extraction.Text)); err != nil {
		logger.Warn().Err(err).Str("path", textPath).Msg("Failed to save extracted text")
	}

	// Step 3: Segment and analyze
	doc := &domain.Document{
		ID:           docID,
		UserID:       userID,
		OriginalName: up.Name,
		StoredName:   storedName,
		UploadedAt:   startTime.UTC(),
		Size:         int64(len(up.Data)),
		Pages:        extraction.Pages,
		Subject:      ClassifySubject(extraction.Text),
		Keywords:     ExtractKeywords(extraction.Text, p.config.KeywordLimit),
		Chunks:       Segment(extraction.Text, p.config.ChunkSize),
	}
	if doc.Chunks == nil {
		doc.Chunks = []domain.Chunk{}
	}

	// Step 4: Persist
	if err := p.store.SaveDocument(ctx, doc); err != nil {
		_ = os.Remove(pdfPath)
		_ = os.Remove(textPath)
		return nil, domain.StorageFailure("persist document", err)
	}

	logger.Info().
		Str("doc_id", docID).
		Str("subject", doc.Subject).
		Int("pages", doc.Pages).
		Int("chunks", len(doc.Chunks)).
		Dur("duration", p.now().Sub(startTime)).
		Msg("Document ingestion completed")

	return doc, nil
}

// IngestMany ingests uploads concurrently, bounded by MaxConcurrentJobs.
// Results are returned in input order; one failure does not stop the others.
func (p *Pipeline) IngestMany(ctx context.Context, userID string, uploads []Upload) []Result {
	results := make([]Result, len(uploads))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrentJobs)

	for i, up := range uploads {
		i, up := i, up
		g.Go(func() error {
			doc, err := p.Ingest(gctx, userID, up)
			results[i] = Result{Name: up.Name, Document: doc, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
