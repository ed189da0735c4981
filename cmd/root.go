package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "pm-endgame",
	Short: "Prediction market endgame sweep",
	Long: `Prediction market endgame sweep: finds near-resolution markets where
the NO side is priced close to certainty and ranks them by yield
velocity against definition risk.

Three services share one Postgres store: ingest sweeps the venue for
markets, quotes and rule text; score joins the latest rows into ranked
scores and recommendations; api serves the stored rows read-only.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	// Missing .env is fine; deployments may set the environment directly.
	cobra.OnInitialize(func() {
		_ = godotenv.Load()
	})
}
