// Package storage persists markets, quotes, rules, scores and
// recommendations in PostgreSQL.
package storage

import (
	"context"
	"time"

	"github.com/mselser95/pm-endgame/pkg/types"
)

// MarketFilter narrows ListMarkets. Nil fields match everything.
type MarketFilter struct {
	Venue  *string
	Status *types.MarketStatus
	Limit  int
	Offset int
}

// ScoreFilter narrows ListTopScores. Nil fields match everything.
type ScoreFilter struct {
	MinScore         *float64
	MaxTRemainingSec *int64
	Limit            int
	Offset           int
}

// RecFilter narrows ListRecs and CountRecs. Nil fields match everything.
// MinScore and MaxTRemainingSec apply to the joined score row, so a rec
// whose score row is missing only matches when both are nil.
type RecFilter struct {
	MinScore         *float64
	MaxTRemainingSec *int64
	MaxRiskScore     *float64
	HasFlags         *bool
	Limit            int
	Offset           int
}

// MarketStore persists venue markets and their outcome legs.
type MarketStore interface {
	UpsertMarket(ctx context.Context, m *types.Market) error
	UpsertMarketsBatch(ctx context.Context, markets []types.Market) error
	GetMarket(ctx context.Context, marketID string) (*types.Market, error)
	ListMarkets(ctx context.Context, f MarketFilter) ([]types.Market, error)
	ListActiveMarkets(ctx context.Context, minRemainingSec, maxRemainingSec int64, limit int) ([]types.Market, error)
	UpsertOutcomes(ctx context.Context, outcomes []types.Outcome) error
	GetOutcomes(ctx context.Context, marketID string) ([]types.Outcome, error)
}

// QuoteStore persists the latest quote per market plus 5-minute samples.
type QuoteStore interface {
	UpsertQuoteLatest(ctx context.Context, q *types.Quote) error
	UpsertQuotesLatestBatch(ctx context.Context, quotes []types.Quote) error
	GetQuoteLatest(ctx context.Context, marketID string) (*types.Quote, error)
	GetQuotesLatestBatch(ctx context.Context, marketIDs []string) ([]types.Quote, error)
	InsertQuote5m(ctx context.Context, q *types.Quote) error
	GetQuotes5m(ctx context.Context, marketID string, start, end time.Time) ([]types.Quote, error)
	DeleteOldQuotes5m(ctx context.Context, retentionDays int) (int64, error)
}

// RuleStore persists resolution-rule snapshots.
type RuleStore interface {
	UpsertRule(ctx context.Context, r *types.RuleSnapshot) error
	GetRule(ctx context.Context, marketID string) (*types.RuleSnapshot, error)
	GetRulesBatch(ctx context.Context, marketIDs []string) ([]types.RuleSnapshot, error)
	HasRuleChanged(ctx context.Context, marketID, newHash string) (bool, error)
}

// ScoreStore persists the latest score per market.
type ScoreStore interface {
	UpsertScore(ctx context.Context, s *types.Score) error
	UpsertScoresBatch(ctx context.Context, scores []types.Score) error
	GetScore(ctx context.Context, marketID string) (*types.Score, error)
	ListTopScores(ctx context.Context, f ScoreFilter) ([]types.Score, error)
}

// RecStore persists the latest recommendation per market.
type RecStore interface {
	UpsertRec(ctx context.Context, r *types.Recommendation) error
	UpsertRecsBatch(ctx context.Context, recs []types.Recommendation) error
	GetRec(ctx context.Context, marketID string) (*types.Recommendation, error)
	ListRecs(ctx context.Context, f RecFilter) ([]types.Recommendation, error)
	CountRecs(ctx context.Context, f RecFilter) (int64, error)
}

// Storage is the full persistence surface shared by ingest, scoring and
// the read API.
type Storage interface {
	MarketStore
	QuoteStore
	RuleStore
	ScoreStore
	RecStore

	Ping(ctx context.Context) error
	InitSchema(ctx context.Context) error
	Close() error
}
