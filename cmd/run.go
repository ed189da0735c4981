package cmd

import (
	"fmt"

	"github.com/mselser95/pm-endgame/internal/app"
	"github.com/mselser95/pm-endgame/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingest, scoring and the read API in one process",
	Long: `Starts all three services in a single process, for development or
single-host deployments:
1. Ingest sweeps the venue for markets, quotes and rule text
2. Scoring joins the stored rows into scores and recommendations
3. The read API serves them over HTTP`,
	RunE: runAll,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runAll(cmd *cobra.Command, args []string) error {
	return runServices(&app.Options{Ingest: true, Score: true, API: true})
}

// runServices is the shared body of the service subcommands: load config,
// build the logger, wire the selected services, and block until shutdown.
func runServices(opts *app.Options) error {
	// Load config
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Create logger
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger, opts)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	// Run app
	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
