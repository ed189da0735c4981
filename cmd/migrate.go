package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/pm-endgame/internal/storage"
	"github.com/mselser95/pm-endgame/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Long: `Applies the idempotent DDL for the full table set: markets,
market_outcomes, quotes_latest, quotes_5m, rules_latest, scores_latest
and recs_latest. Safe to run on every deploy.`,
	RunE: runMigrate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

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

	store, err := storage.NewPostgresStorage(&storage.PostgresConfig{
		DatabaseURL:     cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("create postgres storage: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	err = store.InitSchema(ctx)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	fmt.Println("Schema is up to date.")

	return nil
}
