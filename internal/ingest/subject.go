package ingest

import (
	"regexp"
	"sort"
	"strings"

	"github.com/phenbot/study-engine/internal/domain"
)

// DefaultKeywordLimit is the number of keywords kept per document.
const DefaultKeywordLimit = 10

type subjectKeywords struct {
	subject  string
	keywords []string
}

// subjectTable is ordered; on equal scores the earlier subject wins.
var subjectTable = []subjectKeywords{
	{"mathematics", []string{"equation", "theorem", "proof", "calculus", "algebra", "geometry", "derivative", "integral"}},
	{"physics", []string{"force", "energy", "momentum", "velocity", "acceleration", "mass", "gravity", "quantum"}},
	{"chemistry", []string{"molecule", "atom", "reaction", "compound", "element", "periodic", "bond", "ion"}},
	{"biology", []string{"cell", "organism", "gene", "protein", "evolution", "species", "dna", "enzyme"}},
	{"programming", []string{"function", "variable", "algorithm", "code", "programming", "software", "data structure"}},
	{"history", []string{"war", "empire", "civilization", "century", "revolution", "ancient", "medieval"}},
	{"literature", []string{"poem", "novel", "author", "character", "plot", "theme", "narrative"}},
}

// ClassifySubject labels text with the subject whose keywords occur most often.
// Occurrences are literal substrings, so "ion" also counts inside "reaction".
func ClassifySubject(text string) string {
	lower := strings.ToLower(text)

	best, bestScore := domain.SubjectGeneral, 0
	for _, s := range subjectTable {
		score := 0
		for _, kw := range s.keywords {
			score += strings.Count(lower, kw)
		}
		if score > bestScore {
			best, bestScore = s.subject, score
		}
	}
	return best
}

var wordPattern = regexp.MustCompile(`\b\w{4,}\b`)

// ExtractKeywords returns up to limit words of four or more characters, most frequent first.
// Equal counts keep first-seen order.
func ExtractKeywords(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultKeywordLimit
	}

	counts := make(map[string]int)
	var order []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > limit {
		order = order[:limit]
	}
	if order == nil {
		return []string{}
	}
	return order
}
