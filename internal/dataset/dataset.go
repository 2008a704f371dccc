// Package dataset loads the curated subject → question → answer mapping.
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is one curated question and its answer.
type Entry struct {
	Subject  string
	Question string
	Answer   string
}

// Dataset is a read-only, ordered subject → question → answer mapping.
// It is safe for concurrent reads.
type Dataset struct {
	entries []Entry
	index   map[string]map[string]string
}

// Empty returns a dataset with no entries.
func Empty() *Dataset {
	return &Dataset{index: map[string]map[string]string{}}
}

// Load reads a dataset file. JSON and YAML are both accepted; file order is kept.
// A missing file yields an empty dataset and no error. A malformed file yields an
// empty dataset together with the parse error.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Empty(), nil
	}
	if err != nil {
		return Empty(), fmt.Errorf("read dataset: %w", err)
	}

	ds, err := Parse(data)
	if err != nil {
		return Empty(), fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return ds, nil
}

// Parse decodes a dataset document, walking the node tree to preserve key order.
func Parse(data []byte) (*Dataset, error) {
	ds := Empty()
	if len(strings.TrimSpace(string(data))) == 0 {
		return ds, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return ds, nil
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("dataset root must be a mapping, got %s", kindName(top.Kind))
	}

	for i := 0; i+1 < len(top.Content); i += 2 {
		subject := top.Content[i].Value
		questions := top.Content[i+1]
		if questions.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("subject %q must map questions to answers", subject)
		}

		for j := 0; j+1 < len(questions.Content); j += 2 {
			q, a := questions.Content[j], questions.Content[j+1]
			if a.Kind != yaml.ScalarNode {
				continue
			}
			ds.add(Entry{Subject: subject, Question: q.Value, Answer: a.Value})
		}
	}

	return ds, nil
}

// New builds a dataset from entries in the given order. Later duplicates replace earlier answers.
func New(entries ...Entry) *Dataset {
	ds := Empty()
	for _, e := range entries {
		ds.add(e)
	}
	return ds
}

func (d *Dataset) add(e Entry) {
	questions, ok := d.index[e.Subject]
	if !ok {
		questions = make(map[string]string)
		d.index[e.Subject] = questions
	}
	if _, dup := questions[e.Question]; dup {
		for i := range d.entries {
			if d.entries[i].Subject == e.Subject && d.entries[i].Question == e.Question {
				d.entries[i].Answer = e.Answer
			}
		}
	} else {
		d.entries = append(d.entries, e)
	}
	questions[e.Question] = e.Answer
}

// Lookup returns the answer stored under subject for the exact question text.
func (d *Dataset) Lookup(subject, question string) (string, bool) {
	answer, ok := d.index[subject][question]
	return answer, ok
}

// Entries returns every entry in file order.
func (d *Dataset) Entries() []Entry {
	out := make([]Entry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Subjects returns the subject names in file order.
func (d *Dataset) Subjects() []string {
	var subjects []string
	seen := make(map[string]bool)
	for _, e := range d.entries {
		if !seen[e.Subject] {
			seen[e.Subject] = true
			subjects = append(subjects, e.Subject)
		}
	}
	return subjects
}

// Len reports the number of entries.
func (d *Dataset) Len() int {
	return len(d.entries)
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "mapping"
	}
}
