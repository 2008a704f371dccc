package study

import (
	"context"
	"strings"

	"github.com/phenbot/study-engine/internal/answer"
	"github.com/phenbot/study-engine/internal/domain"
)

const summarySourceChars = 4000

// Summary is a generated overview of one document.
type Summary struct {
	DocumentID     string `json:"documentId"`
	DocumentName   string `json:"documentName"`
	Summary        string `json:"summary"`
	OriginalLength int    `json:"originalLength"`
}

// SummarizeDocument asks the backend for a detailed summary of a document's text.
func (s *Service) SummarizeDocument(ctx context.Context, userID, docID string) (*Summary, error) {
	doc, err := s.document(ctx, userID, docID)
	if err != nil {
		return nil, err
	}

	text := documentText(doc)
	if text == "" {
		return nil, domain.InvalidInput("document has no extracted text", nil)
	}

	runes := []rune(text)
	excerpt := string(runes[:min(len(runes), summarySourceChars)])

	prompt := answer.BuildPrompt(&domain.Preferences{AnswerLength: "long"}, domain.ModeNormal,
		"Summarize the document:\n\n"+excerpt+"...", nil, 0)

	reply, err := s.complete(ctx, prompt)
	if err != nil {
		return nil, domain.BackendUnavailable("Summarization failed", err)
	}

	return &Summary{
		DocumentID:     doc.ID,
		DocumentName:   doc.OriginalName,
		Summary:        reply,
		OriginalLength: len(runes),
	}, nil
}

func documentText(doc *domain.Document) string {
	parts := make([]string, 0, len(doc.Chunks))
	for _, c := range doc.Chunks {
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
