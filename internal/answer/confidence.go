package answer

import (
	"strings"
	"unicode/utf8"

	"github.com/phenbot/study-engine/internal/domain"
)

// EstimateConfidence scores an answer from a base value plus provenance bonuses.
// The result is clamped to [0, 100].
func EstimateConfidence(answer string, base int, source domain.Source, hasContext bool) int {
	score := base
	lower := strings.ToLower(string(source))

	if strings.Contains(lower, "dataset") {
		score += 30
	}
	if strings.Contains(lower, "pdf") || hasContext {
		score += 25
	}
	if utf8.RuneCountInString(answer) > 100 {
		score += 10
	}

	return min(max(score, 0), 100)
}
