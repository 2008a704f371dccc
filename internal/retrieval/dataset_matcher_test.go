package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenbot/study-engine/internal/dataset"
)

func testDataset() *dataset.Dataset {
	return dataset.New(
		dataset.Entry{Subject: "physics", Question: "What is Newton's second law?", Answer: "F = ma."},
		dataset.Entry{Subject: "biology", Question: "What is a cell membrane?", Answer: "A lipid bilayer."},
		dataset.Entry{Subject: "biology", Question: "What does a cell membrane do?", Answer: "Controls transport."},
	)
}

func TestNewDatasetMatcher(t *testing.T) {
	m, err := NewDatasetMatcher("")
	require.NoError(t, err)
	assert.IsType(t, ExactMatcher{}, m)

	m, err = NewDatasetMatcher(PolicyFuzzy)
	require.NoError(t, err)
	assert.IsType(t, FuzzyMatcher{}, m)

	_, err = NewDatasetMatcher("semantic")
	assert.Error(t, err)
}

func TestExactMatcher(t *testing.T) {
	ds := testDataset()

	m, ok := ExactMatcher{}.Match(ds, "physics", "What is Newton's second law?")
	require.True(t, ok)
	assert.Equal(t, "F = ma.", m.Answer)
	assert.Equal(t, ExactConfidence, m.Confidence)

	_, ok = ExactMatcher{}.Match(ds, "biology", "What is Newton's second law?")
	assert.False(t, ok, "subject must match")

	_, ok = ExactMatcher{}.Match(ds, "physics", "what is newton's second law?")
	assert.False(t, ok, "question text must match exactly")

	_, ok = ExactMatcher{}.Match(nil, "physics", "anything")
	assert.False(t, ok)
}

func TestFuzzyMatcher(t *testing.T) {
	ds := testDataset()

	m, ok := FuzzyMatcher{}.Match(ds, "", "what is newton's second law?")
	require.True(t, ok)
	assert.Equal(t, "physics", m.Subject)
	assert.Equal(t, 100, m.Confidence)

	// {what, the, cell, membrane?} against {what, cell, membrane?} is 3/4.
	m, ok = FuzzyMatcher{}.Match(ds, "", "what is the cell membrane?")
	require.True(t, ok)
	assert.Equal(t, "What is a cell membrane?", m.Question)
	assert.Equal(t, 75, m.Confidence)

	_, ok = FuzzyMatcher{}.Match(ds, "", "zzz yyy xxx")
	assert.False(t, ok)
}
