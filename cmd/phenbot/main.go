// Package main provides the PhenBOT CLI entrypoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/phenbot/study-engine/internal/account"
	"github.com/phenbot/study-engine/internal/app"
	"github.com/phenbot/study-engine/internal/config"
	"github.com/phenbot/study-engine/internal/observability"
)

var (
	// Global flags
	cfgFile    string
	outputJSON bool
	verbose    bool

	// Configuration and logger
	cfg    *config.Config
	logger *observability.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "phenbot",
	Short: "PhenBOT study companion CLI",
	Long: `PhenBOT answers study questions from a curated dataset, your uploaded
PDFs and a generative backend.

Use this tool to:
- Ask questions and chat interactively
- Ingest PDFs directly or through a watched inbox
- Measure how much of the dataset answers without the backend
- Apply the storage schema

All commands support --json for automation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		level := "warn"
		if verbose {
			level = "debug"
		}
		logFormat := "console"
		if outputJSON {
			logFormat = "json"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       level,
			Format:      logFormat,
			Output:      os.Stderr,
			ServiceName: "phenbot-cli",
		})

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("CONFIG_PATH"), "config file path (default: uses env vars)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	return a, nil
}

// resolveUser accepts either a user id or the email it is derived from.
func resolveUser(user string) string {
	user = strings.TrimSpace(user)
	if strings.Contains(user, "@") {
		return account.UserID(user)
	}
	return user
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
