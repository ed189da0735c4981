// Package ingest coordinates the periodic venue sweeps. Three producers
// (market discovery, quote polling, rule refresh) feed three bounded
// channels, and three writers drain them into storage. Channel sends
// block, so a slow writer backpressures its producer instead of losing
// messages.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mselser95/pm-endgame/internal/circuitbreaker"
	"github.com/mselser95/pm-endgame/internal/storage"
	"github.com/mselser95/pm-endgame/internal/venue"
	"github.com/mselser95/pm-endgame/pkg/types"
	"go.uber.org/zap"
)

const (
	taskDiscovery = "discovery"
	taskQuotes    = "quotes"
	taskRules     = "rules"

	// marketFlushSize is how many markets accumulate before a batch write.
	marketFlushSize = 100

	// rulesMarketsPerSweep caps how many markets get a rule check per sweep.
	rulesMarketsPerSweep = 100

	// drainTimeout bounds the writes that flush buffered messages after
	// cancellation.
	drainTimeout = 10 * time.Second

	defaultMinRemainingSec int64 = 3600    // 1 hour
	defaultMaxRemainingSec int64 = 1209600 // 14 days
)

// Orchestrator runs the ingestion pipeline: periodic producers on one
// side, storage writers on the other.
type Orchestrator struct {
	venue   venue.Client
	storage storage.Storage
	breaker *circuitbreaker.FailureBreaker
	logger  *zap.Logger

	discoveryCadence time.Duration
	quotesCadence    time.Duration
	rulesCadence     time.Duration

	maxMarketsPerDiscovery int
	maxQuotesPerFetch      int
	maxChannelSize         int
	minRemainingSec        int64
	maxRemainingSec        int64

	wg sync.WaitGroup
}

// Config holds ingest orchestrator configuration.
type Config struct {
	Venue   venue.Client
	Storage storage.Storage

	// Breaker, when set, is consulted before each venue sweep. Sweeps are
	// skipped while it is open.
	Breaker *circuitbreaker.FailureBreaker

	DiscoveryCadence    time.Duration
	QuotesCadence       time.Duration
	RulesRefreshCadence time.Duration

	MaxMarketsPerDiscovery int
	MaxQuotesPerFetch      int
	MaxChannelSize         int

	// MinRemainingSec and MaxRemainingSec bound the close-time window for
	// quote and rule sweeps. Zero values fall back to 1 hour and 14 days.
	MinRemainingSec int64
	MaxRemainingSec int64

	Logger *zap.Logger
}

// New creates an ingest orchestrator.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Venue == nil {
		return nil, fmt.Errorf("venue client cannot be nil")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if cfg.DiscoveryCadence <= 0 {
		return nil, fmt.Errorf("discovery cadence must be positive")
	}
	if cfg.QuotesCadence <= 0 {
		return nil, fmt.Errorf("quotes cadence must be positive")
	}
	if cfg.RulesRefreshCadence <= 0 {
		return nil, fmt.Errorf("rules refresh cadence must be positive")
	}
	if cfg.MaxMarketsPerDiscovery <= 0 {
		return nil, fmt.Errorf("max markets per discovery must be positive")
	}
	if cfg.MaxQuotesPerFetch <= 0 {
		return nil, fmt.Errorf("max quotes per fetch must be positive")
	}
	if cfg.MaxChannelSize <= 0 {
		return nil, fmt.Errorf("max channel size must be positive")
	}

	minRemaining := cfg.MinRemainingSec
	if minRemaining <= 0 {
		minRemaining = defaultMinRemainingSec
	}
	maxRemaining := cfg.MaxRemainingSec
	if maxRemaining <= 0 {
		maxRemaining = defaultMaxRemainingSec
	}

	return &Orchestrator{
		venue:                  cfg.Venue,
		storage:                cfg.Storage,
		breaker:                cfg.Breaker,
		logger:                 cfg.Logger,
		discoveryCadence:       cfg.DiscoveryCadence,
		quotesCadence:          cfg.QuotesCadence,
		rulesCadence:           cfg.RulesRefreshCadence,
		maxMarketsPerDiscovery: cfg.MaxMarketsPerDiscovery,
		maxQuotesPerFetch:      cfg.MaxQuotesPerFetch,
		maxChannelSize:         cfg.MaxChannelSize,
		minRemainingSec:        minRemaining,
		maxRemainingSec:        maxRemaining,
	}, nil
}

// Run starts the producer and writer goroutines and blocks until the
// context is cancelled and all of them have returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("ingest-orchestrator-starting",
		zap.Duration("discovery-cadence", o.discoveryCadence),
		zap.Duration("quotes-cadence", o.quotesCadence),
		zap.Duration("rules-cadence", o.rulesCadence),
		zap.Int("max-channel-size", o.maxChannelSize))

	marketsCh := make(chan venue.DiscoveredMarket, o.maxChannelSize)
	quotesCh := make(chan []types.Quote, o.maxChannelSize)
	rulesCh := make(chan types.RuleSnapshot, o.maxChannelSize)

	o.wg.Add(6)
	go o.discoveryLoop(ctx, marketsCh)
	go o.quotePollLoop(ctx, quotesCh)
	go o.ruleRefreshLoop(ctx, rulesCh)
	go o.marketWriteLoop(ctx, marketsCh)
	go o.quoteWriteLoop(ctx, quotesCh)
	go o.ruleWriteLoop(ctx, rulesCh)

	o.wg.Wait()
	o.logger.Info("ingest-orchestrator-stopped")

	return ctx.Err()
}

// venueAllowed reports whether the breaker permits a sweep.
func (o *Orchestrator) venueAllowed(task string) bool {
	if o.breaker == nil || o.breaker.Allow() {
		return true
	}

	SweepSkipsTotal.WithLabelValues(task).Inc()
	o.logger.Warn("sweep-skipped-breaker-open", zap.String("task", task))
	return false
}

// discoveryLoop sweeps immediately, then on every discovery tick.
func (o *Orchestrator) discoveryLoop(ctx context.Context, out chan<- venue.DiscoveredMarket) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.discoveryCadence)
	defer ticker.Stop()

	o.runDiscovery(ctx, out)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("discovery-loop-stopping")
			return
		case <-ticker.C:
			o.runDiscovery(ctx, out)
		}
	}
}

// runDiscovery pages through the venue catalog until an empty page and
// enqueues every market. A page error abandons the sweep; the next tick
// starts over from offset 0.
func (o *Orchestrator) runDiscovery(ctx context.Context, out chan<- venue.DiscoveredMarket) {
	if !o.venueAllowed(taskDiscovery) {
		return
	}

	start := time.Now()
	defer func() {
		SweepDurationSeconds.WithLabelValues(taskDiscovery).Observe(time.Since(start).Seconds())
	}()

	limit := o.maxMarketsPerDiscovery
	offset := 0
	total := 0

	for {
		discovered, err := o.venue.DiscoverMarkets(ctx, limit, offset)
		if err != nil {
			SweepErrorsTotal.WithLabelValues(taskDiscovery).Inc()
			o.logger.Error("discovery-page-failed",
				zap.Int("offset", offset),
				zap.Error(err))
			return
		}
		if len(discovered) == 0 {
			break
		}

		for i := range discovered {
			select {
			case out <- discovered[i]:
				MarketsEnqueuedTotal.Inc()
			case <-ctx.Done():
				return
			}
		}

		total += len(discovered)
		offset += limit
	}

	o.logger.Debug("discovery-sweep-complete",
		zap.Int("markets", total),
		zap.Duration("duration", time.Since(start)))
}

// quotePollLoop sweeps immediately, then on every quotes tick.
func (o *Orchestrator) quotePollLoop(ctx context.Context, out chan<- []types.Quote) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.quotesCadence)
	defer ticker.Stop()

	o.runQuotePoll(ctx, out)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("quote-poll-loop-stopping")
			return
		case <-ticker.C:
			o.runQuotePoll(ctx, out)
		}
	}
}

// runQuotePoll fetches quotes for the active window in one venue call and
// enqueues them as a single batch so the writer can upsert them in one
// transaction.
func (o *Orchestrator) runQuotePoll(ctx context.Context, out chan<- []types.Quote) {
	if !o.venueAllowed(taskQuotes) {
		return
	}

	start := time.Now()
	defer func() {
		SweepDurationSeconds.WithLabelValues(taskQuotes).Observe(time.Since(start).Seconds())
	}()

	active, err := o.storage.ListActiveMarkets(ctx, o.minRemainingSec, o.maxRemainingSec, o.maxQuotesPerFetch)
	if err != nil {
		SweepErrorsTotal.WithLabelValues(taskQuotes).Inc()
		o.logger.Error("list-active-markets-failed", zap.Error(err))
		return
	}
	if len(active) == 0 {
		o.logger.Debug("no-active-markets-to-poll")
		return
	}

	marketIDs := make([]string, len(active))
	for i := range active {
		marketIDs[i] = active[i].MarketID
	}

	quotes, err := o.venue.GetQuotes(ctx, marketIDs)
	if err != nil {
		SweepErrorsTotal.WithLabelValues(taskQuotes).Inc()
		o.logger.Error("quote-poll-failed", zap.Error(err))
		return
	}
	if len(quotes) == 0 {
		o.logger.Debug("no-quotes-fetched", zap.Int("markets", len(marketIDs)))
		return
	}

	select {
	case out <- quotes:
		QuotesEnqueuedTotal.Add(float64(len(quotes)))
	case <-ctx.Done():
		return
	}

	o.logger.Debug("quote-sweep-complete",
		zap.Int("quotes", len(quotes)),
		zap.Duration("duration", time.Since(start)))
}

// ruleRefreshLoop sweeps immediately, then on every rules tick.
func (o *Orchestrator) ruleRefreshLoop(ctx context.Context, out chan<- types.RuleSnapshot) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.rulesCadence)
	defer ticker.Stop()

	o.runRuleRefresh(ctx, out)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("rule-refresh-loop-stopping")
			return
		case <-ticker.C:
			o.runRuleRefresh(ctx, out)
		}
	}
}

// runRuleRefresh fetches rules for the active window and enqueues only
// the snapshots whose hash differs from what is stored. A failed hash
// check counts as changed so the rewrite is never skipped by mistake.
func (o *Orchestrator) runRuleRefresh(ctx context.Context, out chan<- types.RuleSnapshot) {
	if !o.venueAllowed(taskRules) {
		return
	}

	start := time.Now()
	defer func() {
		SweepDurationSeconds.WithLabelValues(taskRules).Observe(time.Since(start).Seconds())
	}()

	active, err := o.storage.ListActiveMarkets(ctx, o.minRemainingSec, o.maxRemainingSec, rulesMarketsPerSweep)
	if err != nil {
		SweepErrorsTotal.WithLabelValues(taskRules).Inc()
		o.logger.Error("list-active-markets-failed", zap.Error(err))
		return
	}

	changed := 0
	for i := range active {
		if ctx.Err() != nil {
			return
		}
		marketID := active[i].MarketID

		rule, err := o.venue.GetRules(ctx, marketID)
		if err != nil {
			SweepErrorsTotal.WithLabelValues(taskRules).Inc()
			o.logger.Error("rule-fetch-failed",
				zap.String("market-id", marketID),
				zap.Error(err))
			continue
		}

		hasChanged, err := o.storage.HasRuleChanged(ctx, marketID, rule.RuleHash)
		if err != nil {
			o.logger.Warn("rule-hash-check-failed",
				zap.String("market-id", marketID),
				zap.Error(err))
			hasChanged = true
		}
		if !hasChanged {
			continue
		}

		o.logger.Info("rule-text-changed", zap.String("market-id", marketID))

		select {
		case out <- *rule:
			RulesEnqueuedTotal.Inc()
			changed++
		case <-ctx.Done():
			return
		}
	}

	o.logger.Debug("rule-sweep-complete",
		zap.Int("markets", len(active)),
		zap.Int("changed", changed),
		zap.Duration("duration", time.Since(start)))
}

// marketWriteLoop batches incoming markets and flushes every
// marketFlushSize. On cancellation it drains the channel and flushes
// whatever is left.
func (o *Orchestrator) marketWriteLoop(ctx context.Context, in <-chan venue.DiscoveredMarket) {
	defer o.wg.Done()

	batch := make([]venue.DiscoveredMarket, 0, marketFlushSize)

	for {
		select {
		case <-ctx.Done():
			o.drainMarkets(in, batch)
			o.logger.Info("market-writer-stopping")
			return
		case m := <-in:
			batch = append(batch, m)
			if len(batch) >= marketFlushSize {
				o.flushMarkets(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// drainMarkets empties the channel after cancellation and flushes
// everything, including the partial batch.
func (o *Orchestrator) drainMarkets(in <-chan venue.DiscoveredMarket, batch []venue.DiscoveredMarket) {
	flushCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case m := <-in:
			batch = append(batch, m)
			if len(batch) >= marketFlushSize {
				o.flushMarkets(flushCtx, batch)
				batch = batch[:0]
			}
		default:
			o.flushMarkets(flushCtx, batch)
			return
		}
	}
}

// flushMarkets writes one batch of markets, then their outcome legs. The
// batch is discarded either way; a failed write is recovered by the next
// discovery sweep.
func (o *Orchestrator) flushMarkets(ctx context.Context, batch []venue.DiscoveredMarket) {
	if len(batch) == 0 {
		return
	}

	markets := make([]types.Market, len(batch))
	var outcomes []types.Outcome
	for i := range batch {
		markets[i] = batch[i].Market
		outcomes = append(outcomes, batch[i].Outcomes...)
	}

	if err := o.storage.UpsertMarketsBatch(ctx, markets); err != nil {
		WriteErrorsTotal.WithLabelValues("markets").Inc()
		o.logger.Error("market-batch-write-failed",
			zap.Int("count", len(markets)),
			zap.Error(err))
		return
	}
	MarketsWrittenTotal.Add(float64(len(markets)))

	if len(outcomes) > 0 {
		if err := o.storage.UpsertOutcomes(ctx, outcomes); err != nil {
			WriteErrorsTotal.WithLabelValues("market_outcomes").Inc()
			o.logger.Error("outcome-write-failed",
				zap.Int("count", len(outcomes)),
				zap.Error(err))
		}
	}

	o.logger.Debug("markets-persisted", zap.Int("count", len(markets)))
}

// quoteWriteLoop persists each quote batch as it arrives. On cancellation
// it drains buffered batches before returning.
func (o *Orchestrator) quoteWriteLoop(ctx context.Context, in <-chan []types.Quote) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			o.drainQuotes(in)
			o.logger.Info("quote-writer-stopping")
			return
		case quotes := <-in:
			o.writeQuotes(ctx, quotes)
		}
	}
}

func (o *Orchestrator) drainQuotes(in <-chan []types.Quote) {
	flushCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case quotes := <-in:
			o.writeQuotes(flushCtx, quotes)
		default:
			return
		}
	}
}

// writeQuotes upserts the latest-quote rows in one transaction, then
// samples each quote into the 5-minute table. A failed batch write does
// not stop the sampling pass.
func (o *Orchestrator) writeQuotes(ctx context.Context, quotes []types.Quote) {
	if len(quotes) == 0 {
		return
	}

	if err := o.storage.UpsertQuotesLatestBatch(ctx, quotes); err != nil {
		WriteErrorsTotal.WithLabelValues("quotes_latest").Inc()
		o.logger.Error("quote-batch-write-failed",
			zap.Int("count", len(quotes)),
			zap.Error(err))
	}

	for i := range quotes {
		if err := o.storage.InsertQuote5m(ctx, &quotes[i]); err != nil {
			WriteErrorsTotal.WithLabelValues("quotes_5m").Inc()
			o.logger.Error("quote-sample-write-failed",
				zap.String("market-id", quotes[i].MarketID),
				zap.Error(err))
		}
	}

	QuotesWrittenTotal.Add(float64(len(quotes)))
	o.logger.Debug("quotes-persisted", zap.Int("count", len(quotes)))
}

// ruleWriteLoop persists each rule snapshot as it arrives. On
// cancellation it drains buffered snapshots before returning.
func (o *Orchestrator) ruleWriteLoop(ctx context.Context, in <-chan types.RuleSnapshot) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			o.drainRules(in)
			o.logger.Info("rule-writer-stopping")
			return
		case rule := <-in:
			o.writeRule(ctx, rule)
		}
	}
}

func (o *Orchestrator) drainRules(in <-chan types.RuleSnapshot) {
	flushCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case rule := <-in:
			o.writeRule(flushCtx, rule)
		default:
			return
		}
	}
}

func (o *Orchestrator) writeRule(ctx context.Context, rule types.RuleSnapshot) {
	if err := o.storage.UpsertRule(ctx, &rule); err != nil {
		WriteErrorsTotal.WithLabelValues("rules_latest").Inc()
		o.logger.Error("rule-write-failed",
			zap.String("market-id", rule.MarketID),
			zap.Error(err))
		return
	}

	RulesWrittenTotal.Inc()
	o.logger.Debug("rule-persisted", zap.String("market-id", rule.MarketID))
}
