package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/phenbot/study-engine/internal/app"
	"github.com/phenbot/study-engine/internal/storage"
)

// Version is the CLI release, overridden at build time with -ldflags.
var Version = "0.1.0"

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the storage schema for the configured driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeCfg := app.StoreConfig(cfg)
			ui := NewUI(cmd.OutOrStdout(), outputJSON)

			store, err := storage.Open(cmd.Context(), storeCfg)
			if err != nil {
				return err
			}
			if err := store.Close(); err != nil {
				return err
			}

			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"success": true,
					"driver":  storeCfg.Driver,
				})
			}
			ui.Success("Schema is up to date (%s)", storeCfg.Driver)
			return nil
		},
	}
}

// newVersionCmd creates the version subcommand.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"version": Version,
					"go":      runtime.Version(),
				})
			}
			cmd.Printf("phenbot v%s (%s)\n", Version, runtime.Version())
			return nil
		},
	}
}
