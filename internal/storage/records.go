package storage

import (
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/pm-endgame/pkg/types"
	"github.com/shopspring/decimal"
)

func marshalRiskFlags(flags []types.RiskFlag) ([]byte, error) {
	if flags == nil {
		flags = []types.RiskFlag{}
	}
	b, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("marshal risk flags: %w", err)
	}
	return b, nil
}

func unmarshalRiskFlags(b []byte) ([]types.RiskFlag, error) {
	flags := []types.RiskFlag{}
	if len(b) == 0 {
		return flags, nil
	}
	if err := json.Unmarshal(b, &flags); err != nil {
		return nil, fmt.Errorf("unmarshal risk flags: %w", err)
	}
	return flags, nil
}

// Row types mirror the table columns one to one. Prices and scores are
// NUMERIC in Postgres and cross the driver as decimals; they are
// converted to float64 at the domain boundary.

type marketRow struct {
	MarketID     string         `db:"market_id"`
	Venue        string         `db:"venue"`
	Title        string         `db:"title"`
	Slug         sql.NullString `db:"slug"`
	Category     sql.NullString `db:"category"`
	Status       string         `db:"status"`
	OpenTime     sql.NullTime   `db:"open_time"`
	CloseTime    sql.NullTime   `db:"close_time"`
	ResolvedTime sql.NullTime   `db:"resolved_time"`
	URL          sql.NullString `db:"url"`
}

func (r marketRow) toDomain() types.Market {
	return types.Market{
		MarketID:     r.MarketID,
		Venue:        r.Venue,
		Title:        r.Title,
		Slug:         stringPtr(r.Slug),
		Category:     stringPtr(r.Category),
		Status:       types.MarketStatus(r.Status),
		OpenTime:     timePtr(r.OpenTime),
		CloseTime:    timePtr(r.CloseTime),
		ResolvedTime: timePtr(r.ResolvedTime),
		URL:          stringPtr(r.URL),
	}
}

type outcomeRow struct {
	MarketID string         `db:"market_id"`
	Outcome  string         `db:"outcome"`
	TokenID  sql.NullString `db:"token_id"`
}

func (r outcomeRow) toDomain() types.Outcome {
	return types.Outcome{
		MarketID: r.MarketID,
		Outcome:  r.Outcome,
		TokenID:  stringPtr(r.TokenID),
	}
}

type quoteRow struct {
	MarketID    string              `db:"market_id"`
	AsOf        time.Time           `db:"as_of"`
	YesBid      decimal.NullDecimal `db:"yes_bid"`
	YesAsk      decimal.NullDecimal `db:"yes_ask"`
	NoBid       decimal.NullDecimal `db:"no_bid"`
	NoAsk       decimal.NullDecimal `db:"no_ask"`
	SpreadYes   decimal.NullDecimal `db:"spread_yes"`
	SpreadNo    decimal.NullDecimal `db:"spread_no"`
	MidYes      decimal.NullDecimal `db:"mid_yes"`
	MidNo       decimal.NullDecimal `db:"mid_no"`
	QuoteSource string              `db:"quote_source"`
}

func (r quoteRow) toDomain() types.Quote {
	return types.Quote{
		MarketID:    r.MarketID,
		AsOf:        r.AsOf.UTC(),
		YesBid:      floatPtr(r.YesBid),
		YesAsk:      floatPtr(r.YesAsk),
		NoBid:       floatPtr(r.NoBid),
		NoAsk:       floatPtr(r.NoAsk),
		SpreadYes:   floatPtr(r.SpreadYes),
		SpreadNo:    floatPtr(r.SpreadNo),
		MidYes:      floatPtr(r.MidYes),
		MidNo:       floatPtr(r.MidNo),
		QuoteSource: r.QuoteSource,
	}
}

// quotes_5m rows carry no spreads, mids or source.
type quote5mRow struct {
	MarketID    string              `db:"market_id"`
	BucketStart time.Time           `db:"bucket_start"`
	AsOf        time.Time           `db:"as_of"`
	YesBid      decimal.NullDecimal `db:"yes_bid"`
	YesAsk      decimal.NullDecimal `db:"yes_ask"`
	NoBid       decimal.NullDecimal `db:"no_bid"`
	NoAsk       decimal.NullDecimal `db:"no_ask"`
}

func (r quote5mRow) toDomain() types.Quote {
	return types.Quote{
		MarketID:    r.MarketID,
		AsOf:        r.AsOf.UTC(),
		YesBid:      floatPtr(r.YesBid),
		YesAsk:      floatPtr(r.YesAsk),
		NoBid:       floatPtr(r.NoBid),
		NoAsk:       floatPtr(r.NoAsk),
		QuoteSource: types.VenuePolymarket,
	}
}

type ruleRow struct {
	MarketID            string          `db:"market_id"`
	AsOf                time.Time       `db:"as_of"`
	RuleText            string          `db:"rule_text"`
	RuleHash            string          `db:"rule_hash"`
	SettlementSource    sql.NullString  `db:"settlement_source"`
	SettlementWindow    sql.NullString  `db:"settlement_window"`
	DefinitionRiskScore decimal.Decimal `db:"definition_risk_score"`
	RiskFlags           []byte          `db:"risk_flags"`
}

func (r ruleRow) toDomain() (types.RuleSnapshot, error) {
	flags, err := unmarshalRiskFlags(r.RiskFlags)
	if err != nil {
		return types.RuleSnapshot{}, err
	}
	return types.RuleSnapshot{
		MarketID:            r.MarketID,
		AsOf:                r.AsOf.UTC(),
		RuleText:            r.RuleText,
		RuleHash:            r.RuleHash,
		SettlementSource:    stringPtr(r.SettlementSource),
		SettlementWindow:    stringPtr(r.SettlementWindow),
		DefinitionRiskScore: r.DefinitionRiskScore.InexactFloat64(),
		RiskFlags:           flags,
	}, nil
}

type scoreRow struct {
	MarketID            string          `db:"market_id"`
	AsOf                time.Time       `db:"as_of"`
	TRemainingSec       int64           `db:"t_remaining_sec"`
	GrossYield          decimal.Decimal `db:"gross_yield"`
	FeeBps              decimal.Decimal `db:"fee_bps"`
	NetYield            decimal.Decimal `db:"net_yield"`
	YieldVelocity       decimal.Decimal `db:"yield_velocity"`
	LiquidityScore      decimal.Decimal `db:"liquidity_score"`
	StalenessSec        int64           `db:"staleness_sec"`
	StalenessPenalty    decimal.Decimal `db:"staleness_penalty"`
	DefinitionRiskScore decimal.Decimal `db:"definition_risk_score"`
	OverallScore        decimal.Decimal `db:"overall_score"`
	ScoreBreakdown      []byte          `db:"score_breakdown"`
}

func (r scoreRow) toDomain() types.Score {
	return types.Score{
		MarketID:            r.MarketID,
		AsOf:                r.AsOf.UTC(),
		TRemainingSec:       r.TRemainingSec,
		GrossYield:          r.GrossYield.InexactFloat64(),
		FeeBps:              r.FeeBps.InexactFloat64(),
		NetYield:            r.NetYield.InexactFloat64(),
		YieldVelocity:       r.YieldVelocity.InexactFloat64(),
		LiquidityScore:      r.LiquidityScore.InexactFloat64(),
		StalenessSec:        r.StalenessSec,
		StalenessPenalty:    r.StalenessPenalty.InexactFloat64(),
		DefinitionRiskScore: r.DefinitionRiskScore.InexactFloat64(),
		OverallScore:        r.OverallScore.InexactFloat64(),
		ScoreBreakdown:      r.ScoreBreakdown,
	}
}

type recRow struct {
	MarketID        string          `db:"market_id"`
	AsOf            time.Time       `db:"as_of"`
	RecommendedSide string          `db:"recommended_side"`
	EntryPrice      decimal.Decimal `db:"entry_price"`
	ExpectedPayout  decimal.Decimal `db:"expected_payout"`
	MaxPositionPct  decimal.Decimal `db:"max_position_pct"`
	RiskScore       decimal.Decimal `db:"risk_score"`
	RiskFlags       []byte          `db:"risk_flags"`
	Notes           sql.NullString  `db:"notes"`
}

func (r recRow) toDomain() (types.Recommendation, error) {
	flags, err := unmarshalRiskFlags(r.RiskFlags)
	if err != nil {
		return types.Recommendation{}, err
	}
	return types.Recommendation{
		MarketID:        r.MarketID,
		AsOf:            r.AsOf.UTC(),
		RecommendedSide: r.RecommendedSide,
		EntryPrice:      r.EntryPrice.InexactFloat64(),
		ExpectedPayout:  r.ExpectedPayout.InexactFloat64(),
		MaxPositionPct:  r.MaxPositionPct.InexactFloat64(),
		RiskScore:       r.RiskScore.InexactFloat64(),
		RiskFlags:       flags,
		Notes:           stringPtr(r.Notes),
	}, nil
}

// Null conversion helpers between domain pointers and driver values.

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullDecimal(p *float64) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(*p), Valid: true}
}

func floatPtr(nd decimal.NullDecimal) *float64 {
	if !nd.Valid {
		return nil
	}
	f := nd.Decimal.InexactFloat64()
	return &f
}
