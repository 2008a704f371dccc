package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenbot/study-engine/internal/answer"
	"github.com/phenbot/study-engine/internal/domain"
)

type stubAsker struct {
	requests []answer.Request
	record   *domain.AnswerRecord
	err      error
}

func (s *stubAsker) AnswerQuestion(ctx context.Context, req answer.Request) (*domain.AnswerRecord, error) {
	s.requests = append(s.requests, req)
	return s.record, s.err
}

func newModel(asker Asker) Model {
	m := New(context.Background(), asker, "u1", "math")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func typeAndEnter(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestChat_AsksAndRendersAnswer(t *testing.T) {
	asker := &stubAsker{record: &domain.AnswerRecord{
		Answer: "4", Source: domain.SourceDataset, Confidence: 90, AccuracyScore: 100, BloomLevel: domain.BloomRemember,
	}}
	m := newModel(asker)

	m, cmd := typeAndEnter(t, m, "What is 2+2?")
	require.NotNil(t, cmd)
	assert.Equal(t, "What is 2+2?", m.pending)
	assert.Empty(t, m.input.Value())

	next, _ := m.Update(cmd())
	m = next.(Model)

	require.Len(t, asker.requests, 1)
	assert.Equal(t, answer.Request{UserID: "u1", Question: "What is 2+2?", Mode: domain.ModeNormal, Subject: "math"}, asker.requests[0])
	assert.Empty(t, m.pending)
	require.Len(t, m.turns, 1)
	assert.Contains(t, m.renderTranscript(), "4")
	assert.Contains(t, m.status, "Local Dataset")
}

func TestChat_IgnoresInputWhileWaiting(t *testing.T) {
	asker := &stubAsker{record: &domain.AnswerRecord{Answer: "a"}}
	m := newModel(asker)

	m, cmd := typeAndEnter(t, m, "first")
	require.NotNil(t, cmd)

	m, cmd = typeAndEnter(t, m, "second")
	assert.Nil(t, cmd)
	assert.Equal(t, "first", m.pending)
}

func TestChat_Commands(t *testing.T) {
	asker := &stubAsker{}
	m := newModel(asker)

	m, cmd := typeAndEnter(t, m, "/mode quiz")
	assert.Nil(t, cmd)
	assert.Equal(t, domain.ModeQuiz, m.mode)

	m, _ = typeAndEnter(t, m, "/mode sideways")
	assert.Equal(t, domain.ModeQuiz, m.mode)
	assert.Contains(t, m.status, "Unknown mode")

	m, _ = typeAndEnter(t, m, "/subject biology")
	assert.Equal(t, "biology", m.subject)

	_, cmd = typeAndEnter(t, m, "/quit")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, asker.requests)
}

func TestChat_RendersUnavailable(t *testing.T) {
	asker := &stubAsker{
		record: &domain.AnswerRecord{Answer: answer.UnavailableMessage, Source: domain.SourceError},
		err:    domain.NoKnowledge(answer.UnavailableMessage, nil),
	}
	m := newModel(asker)

	m, cmd := typeAndEnter(t, m, "What is dark matter?")
	next, _ := m.Update(cmd())
	m = next.(Model)

	assert.Contains(t, m.renderTranscript(), answer.UnavailableMessage)
}
