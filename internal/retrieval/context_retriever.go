package retrieval

import (
	"sort"
	"strings"

	"github.com/phenbot/study-engine/internal/domain"
)

// DefaultMaxChunks is the number of passages returned per question.
const DefaultMaxChunks = 3

// ContextRetriever selects the document chunks that share the most terms with a question.
type ContextRetriever struct {
	maxChunks int
}

// NewContextRetriever creates a retriever returning at most maxChunks passages.
func NewContextRetriever(maxChunks int) *ContextRetriever {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	return &ContextRetriever{maxChunks: maxChunks}
}

// Retrieve scores every chunk by how many question terms it contains as substrings.
// Chunks with no match are dropped; ties keep document then chunk order.
func (r *ContextRetriever) Retrieve(question string, docs []domain.Document) []domain.RetrievalResult {
	terms := queryTerms(question)
	if len(terms) == 0 {
		return []domain.RetrievalResult{}
	}

	results := []domain.RetrievalResult{}
	for _, doc := range docs {
		for _, chunk := range doc.Chunks {
			lower := strings.ToLower(chunk.Text)
			score := 0
			for _, term := range terms {
				if strings.Contains(lower, term) {
					score++
				}
			}
			if score == 0 {
				continue
			}
			results = append(results, domain.RetrievalResult{
				Text:         chunk.Text,
				Score:        score,
				DocumentName: doc.OriginalName,
				DocumentID:   doc.ID,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > r.maxChunks {
		results = results[:r.maxChunks]
	}
	return results
}

// queryTerms keeps repeated terms, so a word asked twice counts twice.
func queryTerms(question string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(question)) {
		if len(w) > 3 {
			terms = append(terms, w)
		}
	}
	return terms
}
