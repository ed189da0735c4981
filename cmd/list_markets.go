package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mselser95/pm-endgame/internal/storage"
	"github.com/mselser95/pm-endgame/pkg/config"
	"github.com/mselser95/pm-endgame/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listMarketsCmd = &cobra.Command{
	Use:   "list-markets",
	Short: "List stored markets",
	Long:  `Dumps markets from storage in tabular form for debugging.`,
	RunE:  runListMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listMarketsCmd)
	listMarketsCmd.Flags().IntP("limit", "l", 20, "Maximum number of markets to list")
	listMarketsCmd.Flags().IntP("offset", "o", 0, "Rows to skip")
	listMarketsCmd.Flags().StringP("status", "s", "active", "Filter by status: active, closed, resolved, halted, all")
	listMarketsCmd.Flags().BoolP("verbose", "v", false, "Show detailed market information")
}

// parseStatusFilter maps the --status flag onto a ListMarkets filter.
// "all" means no filter.
func parseStatusFilter(statusStr string) (*types.MarketStatus, error) {
	switch statusStr {
	case "all":
		return nil, nil
	case "active", "closed", "resolved", "halted":
		status := types.MarketStatus(statusStr)
		return &status, nil
	default:
		return nil, fmt.Errorf("invalid status option: %s. Valid options: active, closed, resolved, halted, all", statusStr)
	}
}

func runListMarkets(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	statusStr, _ := cmd.Flags().GetString("status")
	verbose, _ := cmd.Flags().GetBool("verbose")

	status, err := parseStatusFilter(statusStr)
	if err != nil {
		return err
	}
	filter := storage.MarketFilter{Status: status, Limit: limit, Offset: offset}

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

	markets, err := store.ListMarkets(ctx, filter)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}

	if len(markets) == 0 {
		fmt.Println("No markets found.")
		return nil
	}

	// Display markets
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "MARKET ID\tSTATUS\tCLOSES\tTITLE\n")
	fmt.Fprintf(w, "---------\t------\t------\t-----\n")

	for i := range markets {
		market := &markets[i]

		closes := "-"
		if market.CloseTime != nil {
			closes = market.CloseTime.UTC().Format(time.RFC3339)
		}

		title := market.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", market.MarketID, market.Status, closes, title)

		if verbose {
			if market.Slug != nil {
				fmt.Fprintf(w, "\tSlug: %s\n", *market.Slug)
			}
			if market.Category != nil {
				fmt.Fprintf(w, "\tCategory: %s\n", *market.Category)
			}
			if market.URL != nil {
				fmt.Fprintf(w, "\tURL: %s\n", *market.URL)
			}
			fmt.Fprintf(w, "\n")
		}
	}

	w.Flush()

	fmt.Printf("\nShowing %d markets\n", len(markets))

	return nil
}
