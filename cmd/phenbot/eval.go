package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phenbot/study-engine/internal/answer"
	"github.com/phenbot/study-engine/internal/app"
	"github.com/phenbot/study-engine/internal/domain"
	"github.com/phenbot/study-engine/internal/llm"
)

// EvalMissDTO is a dataset question that did not resolve from the dataset.
type EvalMissDTO struct {
	Subject  string `json:"subject"`
	Question string `json:"question"`
	Source   string `json:"source"`
}

// EvalReportDTO summarizes a dataset evaluation run.
type EvalReportDTO struct {
	Total   int           `json:"total"`
	Hits    int64         `json:"hits"`
	HitRate float64       `json:"hitRate"`
	Misses  []EvalMissDTO `json:"misses"`
}

// newEvalCmd creates the eval subcommand.
func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Check that every dataset question answers from the dataset",
		Long: `Eval routes each curated question through the answer router with the
generative backend disabled and reports how many resolve from the dataset.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx, app.WithBackend(llm.Unavailable{}))
			if err != nil {
				return err
			}
			defer a.Close()

			ui := NewUI(cmd.OutOrStdout(), outputJSON)
			entries := a.Dataset.Entries()
			report := EvalReportDTO{Total: len(entries), Misses: []EvalMissDTO{}}

			bar := ui.Counter(len(entries), "evaluating")
			for _, e := range entries {
				if err := ctx.Err(); err != nil {
					return err
				}
				record, err := a.Router.AnswerQuestion(ctx, answer.Request{
					Question: e.Question,
					Subject:  e.Subject,
				})
				if err != nil && !domain.IsKind(err, domain.KindNoKnowledge) {
					return err
				}
				if record.Source != domain.SourceDataset {
					report.Misses = append(report.Misses, EvalMissDTO{
						Subject:  e.Subject,
						Question: e.Question,
						Source:   string(record.Source),
					})
				}
				_ = bar.Add(1)
			}

			report.Hits = a.Router.Metrics().Dataset.Load()
			if report.Total > 0 {
				report.HitRate = float64(report.Hits) / float64(report.Total)
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}

			ui.Section("evaluation")
			ui.KeyValue("questions", report.Total)
			ui.KeyValue("dataset hits", report.Hits)
			ui.KeyValue("hit rate", formatPercent(report.HitRate))
			if len(report.Misses) == 0 {
				ui.Success("Every dataset question resolved from the dataset")
				return nil
			}
			ui.Section("misses")
			for _, m := range report.Misses {
				ui.Warning("[%s] %s (%s)", m.Subject, m.Question, m.Source)
			}
			return nil
		},
	}

	return cmd
}

func formatPercent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}
