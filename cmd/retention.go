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
var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Prune old quote history rows",
	Long: `Deletes quotes_5m rows older than the retention window. Latest-row
tables are unaffected. Meant to run as an external scheduled job (cron,
Kubernetes CronJob).`,
	RunE: runRetention,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(retentionCmd)
	retentionCmd.Flags().IntP("days", "d", 0, "Retention window in days (defaults to RETENTION_DAYS)")
}

func runRetention(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
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

	// Get flags
	days, _ := cmd.Flags().GetInt("days")
	if days <= 0 {
		days = cfg.RetentionDays
	}

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

	deleted, err := store.DeleteOldQuotes5m(ctx, days)
	if err != nil {
		return fmt.Errorf("delete old quotes: %w", err)
	}

	fmt.Printf("Pruned %d quote history rows older than %d days.\n", deleted, days)

	return nil
}
