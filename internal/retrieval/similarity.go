// Package retrieval ranks document passages and curated answers against a question
// using lexical overlap only.
package retrieval

import "strings"

// Similarity returns the Jaccard index of the two texts' word sets. Words are
// whitespace-separated, lower-cased, and longer than two characters.
func Similarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}
