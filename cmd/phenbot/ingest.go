package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/phenbot/study-engine/internal/ingest"
)

// IngestResultDTO reports one file for --json output.
type IngestResultDTO struct {
	File       string `json:"file"`
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	Error      string `json:"error,omitempty"`
}

// newIngestCmd creates the ingest subcommand.
func newIngestCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Ingest PDFs into a user's study library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID := resolveUser(user)
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ui := NewUI(cmd.OutOrStdout(), outputJSON)
			results := make([]IngestResultDTO, len(args))

			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(cfg.Ingestion.MaxConcurrentJobs)

			for i, path := range args {
				i, path := i, path
				g.Go(func() error {
					results[i] = ingestFile(gctx, ui, a.Pipeline, userID, path)
					return nil
				})
			}
			_ = g.Wait()
			ui.Close()

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), results)
			}

			failed := 0
			for _, r := range results {
				if r.Success {
					ui.Success("%s → %s (%s, %d pages, %d chunks)", r.File, r.DocumentID, r.Subject, r.Pages, r.Chunks)
				} else {
					failed++
					ui.Error("%s: %s", r.File, r.Error)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "user id or email (required)")

	return cmd
}

func ingestFile(ctx context.Context, ui *UI, pipeline *ingest.Pipeline, userID, path string) IngestResultDTO {
	name := filepath.Base(path)
	res := IngestResultDTO{File: name}

	f, err := os.Open(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		res.Error = err.Error()
		return res
	}

	var r io.Reader = f
	bar := ui.ProgressBar(name, info.Size())
	if bar != nil {
		r = bar.ProxyReader(f)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		if bar != nil {
			bar.Abort(false)
		}
		res.Error = err.Error()
		return res
	}

	doc, err := pipeline.Ingest(ctx, userID, ingest.Upload{Name: name, Data: data})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Success = true
	res.DocumentID = doc.ID
	res.Subject = doc.Subject
	res.Pages = doc.Pages
	res.Chunks = len(doc.Chunks)
	return res
}
