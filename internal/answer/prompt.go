package answer

import (
	"fmt"
	"strings"

	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/llm"
)

const (
	basePrompt = "You are PhenBOT, an advanced AI study companion."

	// DefaultContextCharBudget bounds each reference chunk quoted in a prompt.
	DefaultContextCharBudget = 800
)

type lengthProfile struct {
	maxTokens   int
	temperature float64
	suffix      string
}

var lengthProfiles = map[string]lengthProfile{
	"short":  {200, 0.3, " Keep answers concise and to the point."},
	"medium": {500, 0.5, " Provide clear, informative answers."},
	"long":   {1000, 0.7, " Provide comprehensive, detailed explanations with examples."},
}

var modeSuffixes = map[domain.Mode]string{
	domain.ModeReverse: " Act as a student asking probing questions to test understanding.",
	domain.ModeSummary: " Ask the user to summarize the concept in their own words after explaining.",
	domain.ModeQuiz:    " End with a quick quiz question related to the topic.",
}

// BuildPrompt composes the backend request for a question. prefs may be nil
// for users without a stored profile.
func BuildPrompt(prefs *domain.Preferences, mode domain.Mode, question string, refs []domain.RetrievalResult, charBudget int) llm.CompletionRequest {
	if prefs == nil {
		prefs = &domain.Preferences{}
	}
	if charBudget <= 0 {
		charBudget = DefaultContextCharBudget
	}

	length, ok := lengthProfiles[prefs.AnswerLength]
	if !ok {
		length = lengthProfiles["medium"]
	}

	var system strings.Builder
	system.WriteString(basePrompt)
	system.WriteString(length.suffix)
	if prefs.AnalogyStyle != "" && prefs.AnalogyStyle != "none" {
		fmt.Fprintf(&system, " Use %s analogies to explain complex concepts.", prefs.AnalogyStyle)
	}
	if prefs.BloomsLevel != "" {
		fmt.Fprintf(&system, " Focus on %s level understanding.", prefs.BloomsLevel)
	}
	system.WriteString(modeSuffixes[mode])

	return llm.CompletionRequest{
		SystemPrompt: system.String(),
		UserPrompt:   userPrompt(question, refs, charBudget),
		MaxTokens:    length.maxTokens,
		Temperature:  length.temperature,
	}
}

func userPrompt(question string, refs []domain.RetrievalResult, charBudget int) string {
	if len(refs) == 0 {
		return question
	}

	quoted := make([]string, len(refs))
	for i, r := range refs {
		quoted[i] = fmt.Sprintf("From \"%s\": %s", r.DocumentName, truncateRunes(r.Text, charBudget))
	}

	return "Use this reference material to help answer the question:\n\n" +
		strings.Join(quoted, "\n\n") +
		"\n\nQuestion: " + question +
		"\n\nPlease provide a comprehensive answer using the reference material above."
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
