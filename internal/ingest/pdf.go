package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Extraction is the text content of a PDF.
type Extraction struct {
	Text  string
	Pages int
}

// Extractor pulls plain text out of a PDF payload.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*Extraction, error)
}

// FitzExtractor extracts text with MuPDF through go-fitz.
type FitzExtractor struct{}

// NewFitzExtractor creates a MuPDF-backed extractor.
func NewFitzExtractor() *FitzExtractor {
	return &FitzExtractor{}
}

// Extract opens the PDF from memory and concatenates the text of every page.
func (e *FitzExtractor) Extract(ctx context.Context, data []byte) (*Extraction, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	pages := make([]string, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		text, err := doc.Text(pageNum)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", pageNum+1, err)
		}
		pages = append(pages, text)
	}

	return &Extraction{
		Text:  strings.Join(pages, "\n\n"),
		Pages: pageCount,
	}, nil
}
