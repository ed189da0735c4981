package app

import (
	"context"
	"fmt"

	"github.com/mselser95/pm-endgame/internal/circuitbreaker"
	"github.com/mselser95/pm-endgame/internal/ingest"
	"github.com/mselser95/pm-endgame/internal/scoring"
	"github.com/mselser95/pm-endgame/internal/storage"
	"github.com/mselser95/pm-endgame/internal/venue"
	"github.com/mselser95/pm-endgame/pkg/cache"
	"github.com/mselser95/pm-endgame/pkg/config"
	"github.com/mselser95/pm-endgame/pkg/healthprobe"
	"github.com/mselser95/pm-endgame/pkg/httpserver"
	"github.com/mselser95/pm-endgame/pkg/retry"
	"go.uber.org/zap"
)

// New creates an application instance running the services selected in
// opts.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts == nil || (!opts.Ingest && !opts.Score && !opts.API) {
		return nil, fmt.Errorf("at least one service must be enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())

	store, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		storage:       store,
		ctx:           ctx,
		cancel:        cancel,
	}

	if opts.Ingest {
		a.ingestOrch, err = setupIngest(cfg, logger, store)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("setup ingest: %w", err)
		}
	}

	if opts.Score {
		a.scoringOrch, err = setupScoring(cfg, logger, store)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("setup scoring: %w", err)
		}
	}

	if opts.API {
		a.httpServer, err = setupHTTPServer(cfg, logger, store)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("setup http server: %w", err)
		}
	}

	// The headless services get a probe listener; the API serves its own
	// /health and /metrics.
	if (opts.Ingest || opts.Score) && cfg.HealthProbePort > 0 {
		a.probeServer, err = healthprobe.NewServer(&healthprobe.Config{
			Port:    cfg.HealthProbePort,
			Checker: a.healthChecker,
			Logger:  logger,
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("setup health probe: %w", err)
		}
	}

	return a, nil
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
		DatabaseURL:     cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres storage: %w", err)
	}

	return pgStorage, nil
}

func setupIngest(cfg *config.Config, logger *zap.Logger, store storage.Storage) (*ingest.Orchestrator, error) {
	marketCache, err := setupCache(logger)
	if err != nil {
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create circuit breaker: %w", err)
	}

	venueClient, err := venue.NewPolymarketClient(&venue.Config{
		BaseURL:     cfg.VenueBaseURL,
		HTTPTimeout: cfg.VenueHTTPTimeout,
		Retry: retry.Config{
			MaxAttempts:  cfg.RetryMaxAttempts,
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
			Jitter:       cfg.RetryJitter,
		},
		Cache:    marketCache,
		CacheTTL: cfg.VenueCacheTTL,
		Breaker:  breaker,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create venue client: %w", err)
	}

	return ingest.New(&ingest.Config{
		Venue:                  venueClient,
		Storage:                store,
		Breaker:                breaker,
		DiscoveryCadence:       cfg.DiscoveryCadence,
		QuotesCadence:          cfg.QuotesCadence,
		RulesRefreshCadence:    cfg.RulesRefreshCadence,
		MaxMarketsPerDiscovery: cfg.MaxMarketsPerDiscovery,
		MaxQuotesPerFetch:      cfg.MaxQuotesPerFetch,
		MaxChannelSize:         cfg.MaxChannelSize,
		MinRemainingSec:        cfg.MinTRemainingSec,
		MaxRemainingSec:        cfg.MaxTRemainingSec,
		Logger:                 logger,
	})
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000, // 10x expected max items (1000 markets)
		MaxCost:     1000,  // Maximum 1000 items in cache
		BufferItems: 64,    // Buffer size for Get operations
		Logger:      logger,
	})
}

func setupScoring(cfg *config.Config, logger *zap.Logger, store storage.Storage) (*scoring.Orchestrator, error) {
	return scoring.New(&scoring.Config{
		Storage: store,
		Params:  scoringParams(cfg),
		Cadence: cfg.ScoringCadence,
		Logger:  logger,
	})
}

// scoringParams maps the flat env config onto the engine tuning surface.
func scoringParams(cfg *config.Config) scoring.Params {
	return scoring.Params{
		Weights: scoring.Weights{
			Velocity:       cfg.WeightVelocity,
			NetYield:       cfg.WeightNetYield,
			Liquidity:      cfg.WeightLiquidity,
			DefinitionRisk: cfg.WeightDefRisk,
			Staleness:      cfg.WeightStaleness,
		},
		Bounds: scoring.Bounds{
			MinTRemainingSec: cfg.MinTRemainingSec,
			MaxTRemainingSec: cfg.MaxTRemainingSec,
			QuoteStaleMaxSec: cfg.QuoteStaleMaxSec,
			MinTDays:         cfg.MinTDays,
			SpreadTarget:     cfg.SpreadTarget,
		},
		FeeBps: cfg.FeeBps,
		Sizing: scoring.Sizing{BasePositionPct: cfg.BasePositionPct},
	}
}

func setupHTTPServer(cfg *config.Config, logger *zap.Logger, store storage.Storage) (*httpserver.Server, error) {
	return httpserver.New(&httpserver.Config{
		BindAddr:        cfg.APIBindAddr,
		Port:            cfg.APIPort,
		Storage:         store,
		DefaultPageSize: cfg.APIDefaultPageSize,
		MaxPageSize:     cfg.APIMaxPageSize,
		RequestTimeout:  cfg.APIRequestTimeout,
		Logger:          logger,
	})
}
