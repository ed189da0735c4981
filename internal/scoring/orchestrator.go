package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mselser95/pm-endgame/internal/storage"
	"github.com/mselser95/pm-endgame/pkg/types"
	"go.uber.org/zap"
)

// maxMarketsPerCycle caps how many active markets one cycle scores.
const maxMarketsPerCycle = 1000

// Config holds the scoring orchestrator dependencies.
type Config struct {
	Storage storage.Storage
	Params  Params
	Cadence time.Duration
	Logger  *zap.Logger
}

// Orchestrator runs the scoring engine on a cadence against the latest
// stored markets, quotes, and rules, replacing the score and
// recommendation rows each cycle. Cycles are independent: no state is
// carried from one tick to the next.
type Orchestrator struct {
	engine  *Engine
	storage storage.Storage
	cadence time.Duration

	minRemainingSec int64
	maxRemainingSec int64

	logger *zap.Logger
}

// New creates a scoring orchestrator from the given configuration.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if cfg.Cadence <= 0 {
		return nil, fmt.Errorf("cadence must be positive")
	}
	if cfg.Params.Bounds.QuoteStaleMaxSec <= 0 {
		return nil, fmt.Errorf("quote stale max seconds must be positive")
	}
	if cfg.Params.Bounds.SpreadTarget <= 0 {
		return nil, fmt.Errorf("spread target must be positive")
	}
	if cfg.Params.Bounds.MinTRemainingSec <= 0 || cfg.Params.Bounds.MaxTRemainingSec <= cfg.Params.Bounds.MinTRemainingSec {
		return nil, fmt.Errorf("time remaining bounds must satisfy 0 < min < max")
	}

	return &Orchestrator{
		engine:          NewEngine(cfg.Params, cfg.Logger),
		storage:         cfg.Storage,
		cadence:         cfg.Cadence,
		minRemainingSec: cfg.Params.Bounds.MinTRemainingSec,
		maxRemainingSec: cfg.Params.Bounds.MaxTRemainingSec,
		logger:          cfg.Logger,
	}, nil
}

// Run executes scoring cycles until ctx is cancelled. The first cycle
// starts immediately. A failed cycle is logged and the next tick retries
// from fresh reads.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("scoring-orchestrator-starting",
		zap.Duration("cadence", o.cadence),
		zap.Int64("min-remaining-sec", o.minRemainingSec),
		zap.Int64("max-remaining-sec", o.maxRemainingSec))

	ticker := time.NewTicker(o.cadence)
	defer ticker.Stop()

	if err := o.runCycle(ctx); err != nil {
		o.logger.Error("scoring-cycle-failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("scoring-orchestrator-stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := o.runCycle(ctx); err != nil {
				o.logger.Error("scoring-cycle-failed", zap.Error(err))
			}
		}
	}
}

// runCycle joins the latest market, quote, and rule rows, computes
// scores and recommendations, and upserts both batches. Any storage
// error aborts the cycle.
func (o *Orchestrator) runCycle(ctx context.Context) error {
	start := time.Now()
	defer func() {
		CycleDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	now := time.Now().UTC()
	logger := o.logger.With(zap.String("cycle-id", uuid.NewString()))

	markets, err := o.storage.ListActiveMarkets(ctx, o.minRemainingSec, o.maxRemainingSec, maxMarketsPerCycle)
	if err != nil {
		CycleErrorsTotal.Inc()
		return fmt.Errorf("list active markets: %w", err)
	}
	if len(markets) == 0 {
		logger.Debug("no-active-markets-to-score")
		return nil
	}

	marketIDs := make([]string, len(markets))
	for i := range markets {
		marketIDs[i] = markets[i].MarketID
	}

	quoteRows, err := o.storage.GetQuotesLatestBatch(ctx, marketIDs)
	if err != nil {
		CycleErrorsTotal.Inc()
		return fmt.Errorf("fetch latest quotes: %w", err)
	}
	quotes := make(map[string]types.Quote, len(quoteRows))
	for i := range quoteRows {
		quotes[quoteRows[i].MarketID] = quoteRows[i]
	}

	ruleRows, err := o.storage.GetRulesBatch(ctx, marketIDs)
	if err != nil {
		CycleErrorsTotal.Inc()
		return fmt.Errorf("fetch rules: %w", err)
	}
	rules := make(map[string]types.RuleSnapshot, len(ruleRows))
	for i := range ruleRows {
		rules[ruleRows[i].MarketID] = ruleRows[i]
	}

	scores := o.engine.ComputeScoresBatch(markets, quotes, rules, now)
	if len(scores) == 0 {
		logger.Debug("no-scores-computed", zap.Int("markets", len(markets)))
		return nil
	}

	if err := o.storage.UpsertScoresBatch(ctx, scores); err != nil {
		CycleErrorsTotal.Inc()
		return fmt.Errorf("save scores: %w", err)
	}
	ScoresComputedTotal.Add(float64(len(scores)))

	scoresByID := make(map[string]types.Score, len(scores))
	for i := range scores {
		scoresByID[scores[i].MarketID] = scores[i]
	}

	recs := o.engine.GenerateRecommendationsBatch(markets, scoresByID, quotes, rules)
	if len(recs) > 0 {
		if err := o.storage.UpsertRecsBatch(ctx, recs); err != nil {
			CycleErrorsTotal.Inc()
			return fmt.Errorf("save recommendations: %w", err)
		}
		RecsGeneratedTotal.Add(float64(len(recs)))
	}

	logger.Info("scoring-cycle-complete",
		zap.Int("markets", len(markets)),
		zap.Int("scores", len(scores)),
		zap.Int("recs", len(recs)),
		zap.Duration("duration", time.Since(start)))
	return nil
}
