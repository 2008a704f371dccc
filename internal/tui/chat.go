// Package tui provides the interactive study chat.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/phenbot/study-engine/internal/answer"
	"github.com/phenbot/study-engine/internal/domain"
)

// Asker is the chat-facing subset of the answer router.
type Asker interface {
	AnswerQuestion(ctx context.Context, req answer.Request) (*domain.AnswerRecord, error)
}

type turn struct {
	question string
	record   *domain.AnswerRecord
	err      error
}

type answerMsg struct {
	record *domain.AnswerRecord
	err    error
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	ctx      context.Context
	asker    Asker
	userID   string
	subject  string
	mode     domain.Mode
	input    textinput.Model
	viewport viewport.Model
	turns    []turn
	pending  string
	status   string
	ready    bool
}

// New creates a chat bound to one user. An empty userID asks anonymously.
func New(ctx context.Context, asker Asker, userID, subject string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /mode quiz, /subject math, /quit"
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		ctx:      ctx,
		asker:    asker,
		userID:   userID,
		subject:  subject,
		mode:     domain.ModeNormal,
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Ready.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles keys, window size and answers.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-fh-ih-3)
		m.refresh()
		return m, nil

	case answerMsg:
		m.turns = append(m.turns, turn{question: m.pending, record: msg.record, err: msg.err})
		m.pending = ""
		m.status = "Ready."
		if msg.record != nil {
			m.status = fmt.Sprintf("%s · %d%% confidence · %s", msg.record.Source, msg.record.Confidence, msg.record.BloomLevel)
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.pending != "" {
		return m, nil
	}
	m.input.SetValue("")

	if strings.HasPrefix(text, "/") {
		return m.command(text)
	}

	m.pending = text
	m.status = "Thinking..."
	m.refresh()
	return m, m.ask(text)
}

func (m Model) command(text string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "quit", "exit":
		return m, tea.Quit
	case "mode":
		switch mode := domain.Mode(arg); mode {
		case domain.ModeNormal, domain.ModeReverse, domain.ModeSummary, domain.ModeQuiz:
			m.mode = mode
			m.status = "Mode set to " + arg + "."
		default:
			m.status = "Unknown mode " + arg + ". Use normal, reverse, summary or quiz."
		}
	case "subject":
		m.subject = arg
		if arg == "" {
			m.status = "Subject cleared."
		} else {
			m.status = "Subject set to " + arg + "."
		}
	default:
		m.status = "Unknown command /" + name + "."
	}
	return m, nil
}

func (m Model) ask(question string) tea.Cmd {
	req := answer.Request{UserID: m.userID, Question: question, Mode: m.mode, Subject: m.subject}
	return func() tea.Msg {
		record, err := m.asker.AnswerQuestion(m.ctx, req)
		return answerMsg{record: record, err: err}
	}
}

// View renders the transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render("PhenBOT") + " " + dimStyle.Render(m.settings())
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(m.status)
}

func (m Model) settings() string {
	subject := m.subject
	if subject == "" {
		subject = domain.SubjectGeneral
	}
	return fmt.Sprintf("mode=%s subject=%s", m.mode, subject)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 && m.pending == "" {
		return dimStyle.Render("No questions yet.")
	}

	var b strings.Builder
	for _, t := range m.turns {
		b.WriteString(questionStyle.Render("You: " + t.question))
		b.WriteString("\n")
		switch {
		case t.record != nil && t.record.Source == domain.SourceError:
			b.WriteString(errorStyle.Render(t.record.Answer))
		case t.record != nil:
			b.WriteString(t.record.Answer)
			b.WriteString("\n")
			b.WriteString(dimStyle.Render(fmt.Sprintf("[%s, accuracy %d%%]", t.record.Source, t.record.AccuracyScore)))
		default:
			b.WriteString(errorStyle.Render("Error: " + t.err.Error()))
		}
		b.WriteString("\n\n")
	}
	if m.pending != "" {
		b.WriteString(questionStyle.Render("You: " + m.pending))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("..."))
	}
	return b.String()
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
