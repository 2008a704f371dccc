package answer

import (
	"strings"

	"github.com/phenbot/study-engine/internal/domain"
)

type bloomKeywords struct {
	level    domain.BloomLevel
	keywords []string
}

// bloomTable is ordered by precedence: higher-order verbs are checked first.
var bloomTable = []bloomKeywords{
	{domain.BloomCreate, []string{"create", "design", "compose", "develop", "plan", "construct", "produce", "formulate", "invent", "synthesize"}},
	{domain.BloomEvaluate, []string{"evaluate", "judge", "critique", "assess", "recommend", "justify", "argue", "support", "value", "appraise"}},
	{domain.BloomAnalyze, []string{"analyze", "compare", "contrast", "differentiate", "examine", "test", "categorize", "investigate", "organize"}},
	{domain.BloomApply, []string{"apply", "demonstrate", "use", "execute", "implement", "solve", "show", "perform", "experiment", "illustrate"}},
	{domain.BloomUnderstand, []string{"explain", "describe", "summarize", "paraphrase", "interpret", "classify", "discuss", "identify", "report"}},
	{domain.BloomRemember, []string{"define", "list", "recall", "state", "name", "label", "repeat", "who", "what", "when", "where"}},
}

// ClassifyBloom returns the first level whose keyword list has any substring
// match in the lower-cased question, or understand when none match.
func ClassifyBloom(question string) domain.BloomLevel {
	lower := strings.ToLower(question)
	for _, row := range bloomTable {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.level
			}
		}
	}
	return domain.BloomUnderstand
}
