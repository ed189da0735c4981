// Package scoring turns joined market, quote, and rule snapshots into
// ranked NO-side scores and sized recommendations. The engine is a pure
// function of its inputs; the orchestrator runs it on a cadence against
// the latest stored snapshot.
package scoring

import (
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/pm-endgame/pkg/types"
	"go.uber.org/zap"
)

// Normalization ceilings for the weighted composition: yield velocity is
// measured against 1.0 per day, net yield against 0.5.
const (
	velocityNorm = 1.0
	netYieldNorm = 0.5
)

// Position sizing is clamped to this band regardless of haircuts.
const (
	minPositionPct = 0.01
	maxPositionPct = 0.10
)

const secondsPerDay = 86400.0

// Weights blend the score components into the overall score. Velocity,
// NetYield and Liquidity add; DefinitionRisk and Staleness subtract.
type Weights struct {
	Velocity       float64
	NetYield       float64
	Liquidity      float64
	DefinitionRisk float64
	Staleness      float64
}

// Bounds gate which markets are scorable and shape the penalty ramps.
type Bounds struct {
	MinTRemainingSec int64
	MaxTRemainingSec int64
	QuoteStaleMaxSec int64
	MinTDays         float64
	SpreadTarget     float64
}

// Sizing holds the position sizing inputs.
type Sizing struct {
	BasePositionPct float64
}

// Params is the full tuning surface of the engine.
type Params struct {
	Weights Weights
	Bounds  Bounds
	FeeBps  float64
	Sizing  Sizing
}

// DefaultParams returns the production scoring parameters.
func DefaultParams() Params {
	return Params{
		Weights: Weights{
			Velocity:       0.45,
			NetYield:       0.25,
			Liquidity:      0.15,
			DefinitionRisk: 0.10,
			Staleness:      0.05,
		},
		Bounds: Bounds{
			MinTRemainingSec: 3600,
			MaxTRemainingSec: 1209600,
			QuoteStaleMaxSec: 180,
			MinTDays:         0.25,
			SpreadTarget:     0.02,
		},
		FeeBps: 120.0,
		Sizing: Sizing{BasePositionPct: 0.10},
	}
}

// Engine computes scores and recommendations. It holds no mutable state
// and is safe for concurrent use.
type Engine struct {
	params Params
	logger *zap.Logger
}

// NewEngine creates an engine with the given parameters. A nil logger
// disables the per-market debug logging of the batch entrypoints.
func NewEngine(params Params, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{params: params, logger: logger}
}

// scoreBreakdown echoes the raw scoring inputs for auditability.
type scoreBreakdown struct {
	YieldVelocity       float64 `json:"yield_velocity"`
	NetYield            float64 `json:"net_yield"`
	LiquidityScore      float64 `json:"liquidity_score"`
	DefinitionRiskScore float64 `json:"definition_risk_score"`
	StalenessPenalty    float64 `json:"staleness_penalty"`
	GrossYield          float64 `json:"gross_yield"`
	FeeRate             float64 `json:"fee_rate"`
	TDays               float64 `json:"t_days"`
	EntryPrice          float64 `json:"entry_price"`
}

// ComputeScore scores one market from its latest quote and optional rule
// snapshot. It fails with types.ErrInvalidMarket when the market has no
// close time or its time remaining falls outside the configured window,
// and with types.ErrMissingQuote when either NO-side price is absent.
func (e *Engine) ComputeScore(market *types.Market, quote *types.Quote, rule *types.RuleSnapshot, now time.Time) (types.Score, error) {
	if market.CloseTime == nil {
		return types.Score{}, fmt.Errorf("market %s has no close time: %w", market.MarketID, types.ErrInvalidMarket)
	}

	tRemainingSec := int64(market.CloseTime.Sub(now) / time.Second)
	if tRemainingSec < e.params.Bounds.MinTRemainingSec || tRemainingSec > e.params.Bounds.MaxTRemainingSec {
		return types.Score{}, fmt.Errorf("market %s time remaining %d outside bounds: %w", market.MarketID, tRemainingSec, types.ErrInvalidMarket)
	}

	stalenessSec := int64(now.Sub(quote.AsOf) / time.Second)
	stalenessPenalty := e.stalenessPenalty(stalenessSec)

	if quote.NoBid == nil || quote.NoAsk == nil {
		return types.Score{}, fmt.Errorf("market %s: %w", market.MarketID, types.ErrMissingQuote)
	}
	noBid, noAsk := *quote.NoBid, *quote.NoAsk

	// Selling NO at the bid; the full entry price is the gross yield
	// because a winning NO contract pays out 1.0.
	entryPrice := noBid
	grossYield := entryPrice
	feeRate := e.params.FeeBps / 10000
	netYield := grossYield * (1 - feeRate)

	tDays := float64(tRemainingSec) / secondsPerDay
	tDaysClamped := math.Max(tDays, e.params.Bounds.MinTDays)
	yieldVelocity := netYield / tDaysClamped

	liquidityScore := e.liquidityScore(noBid, noAsk, stalenessPenalty)

	definitionRisk := 0.0
	if rule != nil {
		definitionRisk = rule.DefinitionRiskScore
	}

	overall := e.overallScore(yieldVelocity, netYield, liquidityScore, definitionRisk, stalenessPenalty)

	breakdown, err := json.Marshal(scoreBreakdown{
		YieldVelocity:       yieldVelocity,
		NetYield:            netYield,
		LiquidityScore:      liquidityScore,
		DefinitionRiskScore: definitionRisk,
		StalenessPenalty:    stalenessPenalty,
		GrossYield:          grossYield,
		FeeRate:             feeRate,
		TDays:               tDays,
		EntryPrice:          entryPrice,
	})
	if err != nil {
		return types.Score{}, fmt.Errorf("marshal score breakdown for market %s: %w", market.MarketID, err)
	}

	return types.Score{
		MarketID:            market.MarketID,
		AsOf:                now,
		TRemainingSec:       tRemainingSec,
		GrossYield:          grossYield,
		FeeBps:              e.params.FeeBps,
		NetYield:            netYield,
		YieldVelocity:       yieldVelocity,
		LiquidityScore:      liquidityScore,
		StalenessSec:        stalenessSec,
		StalenessPenalty:    stalenessPenalty,
		DefinitionRiskScore: definitionRisk,
		OverallScore:        overall,
		ScoreBreakdown:      breakdown,
	}, nil
}

// GenerateRecommendation sizes a NO-side position from a computed score.
// It never fails: a missing NO bid prices the entry at zero and a missing
// rule contributes no flags.
func (e *Engine) GenerateRecommendation(market *types.Market, score *types.Score, quote *types.Quote, rule *types.RuleSnapshot) types.Recommendation {
	entryPrice := 0.0
	if quote.NoBid != nil {
		entryPrice = *quote.NoBid
	}

	maxPosition := e.positionSize(score)

	// Not clamped: downstream filters may observe values above 1.0.
	riskScore := score.DefinitionRiskScore + score.StalenessPenalty

	riskFlags := []types.RiskFlag{}
	if rule != nil && len(rule.RiskFlags) > 0 {
		riskFlags = rule.RiskFlags
	}

	notes := fmt.Sprintf("Yield: %.2f%% | Velocity: %.2f%% | Liquidity: %.2f | Risk: %.2f",
		score.NetYield*100, score.YieldVelocity*100, score.LiquidityScore, riskScore)

	return types.Recommendation{
		MarketID:        market.MarketID,
		AsOf:            score.AsOf,
		RecommendedSide: types.SideNo,
		EntryPrice:      entryPrice,
		ExpectedPayout:  1.0,
		MaxPositionPct:  maxPosition,
		RiskScore:       riskScore,
		RiskFlags:       riskFlags,
		Notes:           &notes,
	}
}

// ComputeScoresBatch scores every market that has a quote. Markets the
// engine rejects are debug-logged and dropped; the partial result is
// returned.
func (e *Engine) ComputeScoresBatch(markets []types.Market, quotes map[string]types.Quote, rules map[string]types.RuleSnapshot, now time.Time) []types.Score {
	scores := make([]types.Score, 0, len(markets))
	for i := range markets {
		market := &markets[i]
		quote, ok := quotes[market.MarketID]
		if !ok {
			continue
		}
		var rule *types.RuleSnapshot
		if r, ok := rules[market.MarketID]; ok {
			rule = &r
		}
		score, err := e.ComputeScore(market, &quote, rule, now)
		if err != nil {
			e.logger.Debug("market-skipped-in-scoring",
				zap.String("market-id", market.MarketID),
				zap.Error(err))
			continue
		}
		scores = append(scores, score)
	}
	return scores
}

// GenerateRecommendationsBatch sizes every market that has both a score
// and a quote. Rules remain optional.
func (e *Engine) GenerateRecommendationsBatch(markets []types.Market, scores map[string]types.Score, quotes map[string]types.Quote, rules map[string]types.RuleSnapshot) []types.Recommendation {
	recs := make([]types.Recommendation, 0, len(markets))
	for i := range markets {
		market := &markets[i]
		score, ok := scores[market.MarketID]
		if !ok {
			continue
		}
		quote, ok := quotes[market.MarketID]
		if !ok {
			continue
		}
		var rule *types.RuleSnapshot
		if r, ok := rules[market.MarketID]; ok {
			rule = &r
		}
		recs = append(recs, e.GenerateRecommendation(market, &score, &quote, rule))
	}
	return recs
}

func (e *Engine) stalenessPenalty(stalenessSec int64) float64 {
	ratio := float64(stalenessSec) / float64(e.params.Bounds.QuoteStaleMaxSec)
	return clamp(ratio, 0, 1)
}

func (e *Engine) liquidityScore(noBid, noAsk, stalenessPenalty float64) float64 {
	spreadNo := noAsk - noBid
	raw := clamp(1-spreadNo/e.params.Bounds.SpreadTarget, 0, 1)
	return raw * (1 - stalenessPenalty)
}

func (e *Engine) overallScore(yieldVelocity, netYield, liquidityScore, definitionRisk, stalenessPenalty float64) float64 {
	w := e.params.Weights
	normVelocity := clamp(yieldVelocity/velocityNorm, 0, 1)
	normNetYield := clamp(netYield/netYieldNorm, 0, 1)

	score := w.Velocity*normVelocity + w.NetYield*normNetYield + w.Liquidity*liquidityScore -
		w.DefinitionRisk*definitionRisk - w.Staleness*stalenessPenalty
	return clamp(score, 0, 1)
}

func (e *Engine) positionSize(score *types.Score) float64 {
	riskHaircut := 1 - score.DefinitionRiskScore
	liqHaircut := 0.5 + 0.5*score.LiquidityScore
	return clamp(e.params.Sizing.BasePositionPct*riskHaircut*liqHaircut, minPositionPct, maxPositionPct)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
