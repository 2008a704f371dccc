package retrieval

import (
	"fmt"
	"math"

	"github.com/phenbot/study-engine/internal/dataset"
)

// Dataset lookup policies.
const (
	PolicyExact = "exact"
	PolicyFuzzy = "fuzzy"
)

// ExactConfidence is the confidence assigned to an exact dataset hit.
const ExactConfidence = 90

// Match is a curated answer selected for a question.
type Match struct {
	Subject    string
	Question   string
	Answer     string
	Confidence int
}

// DatasetMatcher finds a curated answer for a question.
type DatasetMatcher interface {
	Match(ds *dataset.Dataset, subject, question string) (Match, bool)
}

// NewDatasetMatcher returns the matcher for a named policy.
func NewDatasetMatcher(policy string) (DatasetMatcher, error) {
	switch policy {
	case "", PolicyExact:
		return ExactMatcher{}, nil
	case PolicyFuzzy:
		return FuzzyMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown dataset policy: %s", policy)
	}
}

// ExactMatcher requires the subject and the trimmed question text to match exactly.
type ExactMatcher struct{}

func (ExactMatcher) Match(ds *dataset.Dataset, subject, question string) (Match, bool) {
	if ds == nil {
		return Match{}, false
	}
	answer, ok := ds.Lookup(subject, question)
	if !ok || answer == "" {
		return Match{}, false
	}
	return Match{Subject: subject, Question: question, Answer: answer, Confidence: ExactConfidence}, true
}

// FuzzyMatcher picks the curated question with the highest word-set similarity
// across all subjects. The first strictly greater score wins.
type FuzzyMatcher struct{}

func (FuzzyMatcher) Match(ds *dataset.Dataset, subject, question string) (Match, bool) {
	if ds == nil {
		return Match{}, false
	}

	var (
		best      dataset.Entry
		bestScore float64
		found     bool
	)
	for _, e := range ds.Entries() {
		score := Similarity(question, e.Question)
		if score > bestScore {
			best, bestScore, found = e, score, true
		}
	}
	if !found {
		return Match{}, false
	}

	return Match{
		Subject:    best.Subject,
		Question:   best.Question,
		Answer:     best.Answer,
		Confidence: int(math.Round(bestScore * 100)),
	}, true
}
