package main

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/phenbot/study-engine/internal/answer"
	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/tui"
)

// newAskCmd creates the ask subcommand.
func newAskCmd() *cobra.Command {
	var (
		user       string
		subject    string
		mode       string
		difficulty int
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one study question",
		Long: `Ask routes a question through the dataset, the user's uploaded PDFs and
the generative backend, exactly as the API does.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ui := NewUI(cmd.OutOrStdout(), outputJSON)

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			stop := ui.Spinner("Thinking...")
			record, err := a.Router.AnswerQuestion(ctx, answer.Request{
				UserID:     resolveUser(user),
				Question:   strings.Join(args, " "),
				Mode:       domain.Mode(mode),
				Subject:    subject,
				Difficulty: difficulty,
			})
			stop()

			if err != nil && !domain.IsKind(err, domain.KindNoKnowledge) {
				return err
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), record)
			}
			printAnswer(ui, record)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "user id or email (enables PDF context, analytics and history)")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "dataset subject")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(domain.ModeNormal), "normal, reverse, summary or quiz")
	cmd.Flags().IntVarP(&difficulty, "difficulty", "d", domain.DefaultDifficulty, "difficulty from 1 to 10")

	return cmd
}

func printAnswer(ui *UI, record *domain.AnswerRecord) {
	if record.Source == domain.SourceError {
		ui.Error("%s", record.Answer)
		return
	}

	ui.Section(string(record.Source))
	color.New(color.Bold).Fprintln(ui.out, record.Answer)
	ui.Section("details")
	ui.KeyValue("confidence", record.Confidence)
	ui.KeyValue("accuracy", record.AccuracyScore)
	ui.KeyValue("bloom level", record.BloomLevel)
	ui.KeyValue("subject", record.Subject)
	for _, ref := range record.PDFSources {
		ui.KeyValue("source", ref.Name)
	}
}

// newChatCmd creates the interactive chat subcommand.
func newChatCmd() *cobra.Command {
	var (
		user    string
		subject string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive study chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			m := tui.New(ctx, a.Router, resolveUser(user), subject)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "user id or email")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "dataset subject")

	return cmd
}
