// Command eventsd runs the family event catalog: scheduled source
// ingestion, enrichment workers and the read-only catalog API.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/STRATINT/eventcatalog/internal/config"
	"github.com/STRATINT/eventcatalog/internal/logging"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "eventsd <command>",
	Short:         "Family event catalog for Ostrava",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		l, err := logging.New(loaded.Logging)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		cfg = loaded
		logger = l
		slog.SetDefault(l)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, scrapeCmd, enrichCmd, deactivateCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("command failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
