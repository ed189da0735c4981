package cmd

import (
	"github.com/mselser95/pm-endgame/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the venue ingest service",
	Long: `Starts the ingest service: discovers active markets on the venue,
polls NO-side quotes for the close-time window, refreshes rule text when
its hash changes, and persists everything to Postgres in batches.`,
	RunE: runIngestService,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngestService(cmd *cobra.Command, args []string) error {
	return runServices(&app.Options{Ingest: true})
}
