package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/phenbot/study-engine/internal/ingest"
)

// newWatchCmd creates the watch subcommand.
func newWatchCmd() *cobra.Command {
	var (
		inbox  string
		settle time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest PDFs dropped into <inbox>/<userId>/",
		Long: `Watch monitors the inbox directory. A PDF written to <inbox>/<userId>/ is
ingested for that user once it stops changing, then moved to processed/ or
failed/ inside the user's folder. Stop with Ctrl+C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if inbox == "" {
				inbox = cfg.Ingestion.InboxDir
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ui := NewUI(cmd.OutOrStdout(), outputJSON)
			w := ingest.NewWatcher(logger, a.Pipeline, inbox, settle)
			w.OnResult = func(userID string, res ingest.Result) {
				if outputJSON {
					dto := IngestResultDTO{File: res.Name, Success: res.Err == nil}
					if res.Err != nil {
						dto.Error = res.Err.Error()
					} else if res.Document != nil {
						dto.DocumentID = res.Document.ID
						dto.Subject = res.Document.Subject
						dto.Pages = res.Document.Pages
						dto.Chunks = len(res.Document.Chunks)
					}
					_ = writeJSON(cmd.OutOrStdout(), dto)
					return
				}
				if res.Err != nil {
					ui.Error("%s/%s: %v", userID, res.Name, res.Err)
					return
				}
				ui.Success("%s/%s → %s (%s)", userID, res.Name, res.Document.ID, res.Document.Subject)
			}

			ui.Info("Watching %s", inbox)
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&inbox, "inbox", "", "inbox directory (default from config)")
	cmd.Flags().DurationVar(&settle, "settle", 500*time.Millisecond, "how long a file must stay unchanged before ingestion")

	return cmd
}
