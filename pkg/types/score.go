package types

import (
	"encoding/json"
	"time"
)

// SideNo is the only side this system recommends.
const SideNo = "NO"

// Score is the computed opportunity snapshot for one market.
// LiquidityScore, StalenessPenalty, DefinitionRiskScore and OverallScore
// are clamped to [0,1]; ScoreBreakdown echoes the raw inputs for
// auditability.
type Score struct {
	MarketID            string          `json:"market_id"`
	AsOf                time.Time       `json:"as_of"`
	TRemainingSec       int64           `json:"t_remaining_sec"`
	GrossYield          float64         `json:"gross_yield"`
	FeeBps              float64         `json:"fee_bps"`
	NetYield            float64         `json:"net_yield"`
	YieldVelocity       float64         `json:"yield_velocity"`
	LiquidityScore      float64         `json:"liquidity_score"`
	StalenessSec        int64           `json:"staleness_sec"`
	StalenessPenalty    float64         `json:"staleness_penalty"`
	DefinitionRiskScore float64         `json:"definition_risk_score"`
	OverallScore        float64         `json:"overall_score"`
	ScoreBreakdown      json.RawMessage `json:"score_breakdown"`
}

// Recommendation is the sized NO-side suggestion derived from a score.
// RiskScore is definition risk plus staleness penalty and is deliberately
// not clamped, so downstream filters can observe values above 1.0.
type Recommendation struct {
	MarketID        string     `json:"market_id"`
	AsOf            time.Time  `json:"as_of"`
	RecommendedSide string     `json:"recommended_side"`
	EntryPrice      float64    `json:"entry_price"`
	ExpectedPayout  float64    `json:"expected_payout"`
	MaxPositionPct  float64    `json:"max_position_pct"`
	RiskScore       float64    `json:"risk_score"`
	RiskFlags       []RiskFlag `json:"risk_flags"`
	Notes           *string    `json:"notes,omitempty"`
}
