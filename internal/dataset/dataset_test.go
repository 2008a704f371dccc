package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "physics": {
    "What is Newton's second law?": "Force equals mass times acceleration.",
    "What is inertia?": "Resistance to changes in motion."
  },
  "biology": {
    "What is a cell?": "The basic unit of life."
  }
}`

func TestParse_KeepsFileOrder(t *testing.T) {
	ds, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []string{"physics", "biology"}, ds.Subjects())

	entries := ds.Entries()
	assert.Equal(t, "What is Newton's second law?", entries[0].Question)
	assert.Equal(t, "What is inertia?", entries[1].Question)
	assert.Equal(t, "biology", entries[2].Subject)
}

func TestLookup(t *testing.T) {
	ds, err := Parse([]byte(sampleJSON))
	require.NoError(t, err)

	answer, ok := ds.Lookup("physics", "What is inertia?")
	assert.True(t, ok)
	assert.Equal(t, "Resistance to changes in motion.", answer)

	_, ok = ds.Lookup("biology", "What is inertia?")
	assert.False(t, ok)

	_, ok = ds.Lookup("physics", "what is inertia?")
	assert.False(t, ok, "lookup is exact")
}

func TestParse_YAML(t *testing.T) {
	ds, err := Parse([]byte(`
mathematics:
  What is a prime?: A number with exactly two divisors.
`))
	require.NoError(t, err)

	answer, ok := ds.Lookup("mathematics", "What is a prime?")
	assert.True(t, ok)
	assert.Equal(t, "A number with exactly two divisors.", answer)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "root is a list", input: `["a", "b"]`, wantErr: "must be a mapping"},
		{name: "subject is a string", input: `{"physics": "nope"}`, wantErr: "must map questions"},
		{name: "broken json", input: `{"physics": {`, wantErr: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	ds, err := Load(filepath.Join(t.TempDir(), "qa.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
}

func TestLoad_MalformedFileReturnsEmptyAndError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"physics": [`), 0o644))

	ds, err := Load(path)
	require.Error(t, err)
	require.NotNil(t, ds)
	assert.Equal(t, 0, ds.Len())
}

func TestNew_DuplicateReplacesAnswerInPlace(t *testing.T) {
	ds := New(
		Entry{Subject: "physics", Question: "q1", Answer: "old"},
		Entry{Subject: "physics", Question: "q2", Answer: "a2"},
		Entry{Subject: "physics", Question: "q1", Answer: "new"},
	)

	assert.Equal(t, 2, ds.Len())
	answer, _ := ds.Lookup("physics", "q1")
	assert.Equal(t, "new", answer)
	assert.Equal(t, "q1", ds.Entries()[0].Question)
}
