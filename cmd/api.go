package cmd

import (
	"github.com/mselser95/pm-endgame/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the read-only HTTP API",
	Long: `Starts the read API: /v1/opportunities lists stored recommendations
ranked by score, /v1/market/{market_id} returns the full detail of one
market, /health probes the database, /metrics exposes Prometheus text.`,
	RunE: runAPIService,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPIService(cmd *cobra.Command, args []string) error {
	return runServices(&app.Options{API: true})
}
