package cmd

import (
	"github.com/mselser95/pm-endgame/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run the scoring service",
	Long: `Starts the scoring service: on a fixed cadence it joins the latest
stored markets, quotes and rules, computes NO-side scores, and replaces
the score and recommendation rows.`,
	RunE: runScoreService,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(scoreCmd)
}

func runScoreService(cmd *cobra.Command, args []string) error {
	return runServices(&app.Options{Score: true})
}
