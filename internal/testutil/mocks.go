// Package testutil provides in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/pm-endgame/internal/storage"
	"github.com/mselser95/pm-endgame/internal/venue"
	"github.com/mselser95/pm-endgame/pkg/types"
)

// MockVenue is a scriptable venue client. Unset hooks return empty
// results, except RulesFunc which reports not-found so callers skip the
// market instead of dereferencing a nil snapshot.
type MockVenue struct {
	DiscoverFunc func(ctx context.Context, limit, offset int) ([]venue.DiscoveredMarket, error)
	QuotesFunc   func(ctx context.Context, marketIDs []string) ([]types.Quote, error)
	RulesFunc    func(ctx context.Context, marketID string) (*types.RuleSnapshot, error)
	OutcomesFunc func(ctx context.Context, marketID string) ([]types.Outcome, error)

	mu            sync.Mutex
	discoverCalls int
	quoteCalls    int
	ruleCalls     int
	outcomeCalls  int
}

var _ venue.Client = (*MockVenue)(nil)

// DiscoverMarkets invokes DiscoverFunc and counts the call.
func (m *MockVenue) DiscoverMarkets(ctx context.Context, limit, offset int) ([]venue.DiscoveredMarket, error) {
	m.mu.Lock()
	m.discoverCalls++
	m.mu.Unlock()

	if m.DiscoverFunc == nil {
		return nil, nil
	}
	return m.DiscoverFunc(ctx, limit, offset)
}

// GetQuotes invokes QuotesFunc and counts the call.
func (m *MockVenue) GetQuotes(ctx context.Context, marketIDs []string) ([]types.Quote, error) {
	m.mu.Lock()
	m.quoteCalls++
	m.mu.Unlock()

	if m.QuotesFunc == nil {
		return nil, nil
	}
	return m.QuotesFunc(ctx, marketIDs)
}

// GetRules invokes RulesFunc and counts the call.
func (m *MockVenue) GetRules(ctx context.Context, marketID string) (*types.RuleSnapshot, error) {
	m.mu.Lock()
	m.ruleCalls++
	m.mu.Unlock()

	if m.RulesFunc == nil {
		return nil, fmt.Errorf("rule %s: %w", marketID, types.ErrNotFound)
	}
	return m.RulesFunc(ctx, marketID)
}

// GetOutcomes invokes OutcomesFunc and counts the call.
func (m *MockVenue) GetOutcomes(ctx context.Context, marketID string) ([]types.Outcome, error) {
	m.mu.Lock()
	m.outcomeCalls++
	m.mu.Unlock()

	if m.OutcomesFunc == nil {
		return nil, nil
	}
	return m.OutcomesFunc(ctx, marketID)
}

// DiscoverCalls returns how many times DiscoverMarkets was invoked.
func (m *MockVenue) DiscoverCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discoverCalls
}

// QuoteCalls returns how many times GetQuotes was invoked.
func (m *MockVenue) QuoteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quoteCalls
}

// RuleCalls returns how many times GetRules was invoked.
func (m *MockVenue) RuleCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ruleCalls
}

// MockStorage is an in-memory storage.Storage. Error fields, when set,
// make the corresponding call fail; set them before handing the mock to
// the code under test.
type MockStorage struct {
	PingErr                    error
	GetMarketErr               error
	ListActiveMarketsErr       error
	HasRuleChangedErr          error
	UpsertMarketsBatchErr      error
	UpsertQuotesLatestBatchErr error
	UpsertRuleErr              error
	GetQuotesLatestBatchErr    error
	GetRulesBatchErr           error
	UpsertScoresBatchErr       error
	UpsertRecsBatchErr         error
	ListRecsErr                error
	CountRecsErr               error

	mu           sync.Mutex
	markets      map[string]types.Market
	outcomes     map[string][]types.Outcome
	quotesLatest map[string]types.Quote
	quotes5m     []types.Quote
	rules        map[string]types.RuleSnapshot
	scores       map[string]types.Score
	recs         map[string]types.Recommendation

	active []types.Market

	marketUpserts []types.Market
	marketBatches [][]types.Market
	quoteBatches  [][]types.Quote
	ruleUpserts   []types.RuleSnapshot
	activeLimits  []int
}

var _ storage.Storage = (*MockStorage)(nil)

// NewMockStorage creates an empty mock storage.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		markets:      make(map[string]types.Market),
		outcomes:     make(map[string][]types.Outcome),
		quotesLatest: make(map[string]types.Quote),
		rules:        make(map[string]types.RuleSnapshot),
		scores:       make(map[string]types.Score),
		recs:         make(map[string]types.Recommendation),
	}
}

// SetActiveMarkets fixes what ListActiveMarkets returns.
func (s *MockStorage) SetActiveMarkets(markets []types.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = append([]types.Market(nil), markets...)
}

// SeedRule stores a rule snapshot without counting it as an upsert.
func (s *MockStorage) SeedRule(r types.RuleSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.MarketID] = r
}

// SeedScore stores a score without counting it as an upsert.
func (s *MockStorage) SeedScore(sc types.Score) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[sc.MarketID] = sc
}

// SeedRec stores a recommendation without counting it as an upsert.
func (s *MockStorage) SeedRec(r types.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[r.MarketID] = r
}

// SeedQuoteLatest stores a latest quote without counting it as an upsert.
func (s *MockStorage) SeedQuoteLatest(q types.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotesLatest[q.MarketID] = q
}

// SeedMarket stores a market without counting it as an upsert.
func (s *MockStorage) SeedMarket(m types.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.MarketID] = m
}

// MarketsUpserted returns every market written, singles and batch
// members alike, in write order.
func (s *MockStorage) MarketsUpserted() []types.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Market(nil), s.marketUpserts...)
}

// MarketBatches returns the slices passed to UpsertMarketsBatch.
func (s *MockStorage) MarketBatches() [][]types.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]types.Market, len(s.marketBatches))
	for i, b := range s.marketBatches {
		out[i] = append([]types.Market(nil), b...)
	}
	return out
}

// QuoteBatches returns the slices passed to UpsertQuotesLatestBatch.
func (s *MockStorage) QuoteBatches() [][]types.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]types.Quote, len(s.quoteBatches))
	for i, b := range s.quoteBatches {
		out[i] = append([]types.Quote(nil), b...)
	}
	return out
}

// RuleUpserts returns every rule passed to UpsertRule, in write order.
func (s *MockStorage) RuleUpserts() []types.RuleSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.RuleSnapshot(nil), s.ruleUpserts...)
}

// ActiveLimits returns the limit argument of each ListActiveMarkets call.
func (s *MockStorage) ActiveLimits() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.activeLimits...)
}

// Quotes5m returns all stored 5-minute samples.
func (s *MockStorage) Quotes5m() []types.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Quote(nil), s.quotes5m...)
}

// OutcomesFor returns the stored outcome legs for a market.
func (s *MockStorage) OutcomesFor(marketID string) []types.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Outcome(nil), s.outcomes[marketID]...)
}

// UpsertMarket stores one market.
func (s *MockStorage) UpsertMarket(ctx context.Context, m *types.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.MarketID] = *m
	s.marketUpserts = append(s.marketUpserts, *m)
	return nil
}

// UpsertMarketsBatch stores markets and records the batch.
func (s *MockStorage) UpsertMarketsBatch(ctx context.Context, markets []types.Market) error {
	if s.UpsertMarketsBatchErr != nil {
		return s.UpsertMarketsBatchErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.marketBatches = append(s.marketBatches, append([]types.Market(nil), markets...))
	for i := range markets {
		s.markets[markets[i].MarketID] = markets[i]
		s.marketUpserts = append(s.marketUpserts, markets[i])
	}
	return nil
}

// GetMarket returns a stored market or types.ErrNotFound.
func (s *MockStorage) GetMarket(ctx context.Context, marketID string) (*types.Market, error) {
	if s.GetMarketErr != nil {
		return nil, s.GetMarketErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[marketID]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", marketID, types.ErrNotFound)
	}
	return &m, nil
}

// ListMarkets filters stored markets by venue and status.
func (s *MockStorage) ListMarkets(ctx context.Context, f storage.MarketFilter) ([]types.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Market
	for _, m := range s.markets {
		if f.Venue != nil && m.Venue != *f.Venue {
			continue
		}
		if f.Status != nil && m.Status != *f.Status {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].CloseTime, out[j].CloseTime
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
	return paginateMarkets(out, f.Limit, f.Offset), nil
}

// ListActiveMarkets returns the explicitly configured active set,
// truncated to limit, and records the limit argument.
func (s *MockStorage) ListActiveMarkets(ctx context.Context, minRemainingSec, maxRemainingSec int64, limit int) ([]types.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeLimits = append(s.activeLimits, limit)
	if s.ListActiveMarketsErr != nil {
		return nil, s.ListActiveMarketsErr
	}

	out := append([]types.Market(nil), s.active...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertOutcomes stores outcome legs keyed by market and label.
func (s *MockStorage) UpsertOutcomes(ctx context.Context, outcomes []types.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range outcomes {
		legs := s.outcomes[o.MarketID]
		replaced := false
		for i := range legs {
			if legs[i].Outcome == o.Outcome {
				legs[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			legs = append(legs, o)
		}
		s.outcomes[o.MarketID] = legs
	}
	return nil
}

// GetOutcomes returns outcome legs sorted by label.
func (s *MockStorage) GetOutcomes(ctx context.Context, marketID string) ([]types.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]types.Outcome(nil), s.outcomes[marketID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Outcome < out[j].Outcome })
	return out, nil
}

// UpsertQuoteLatest stores one latest quote.
func (s *MockStorage) UpsertQuoteLatest(ctx context.Context, q *types.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotesLatest[q.MarketID] = *q
	return nil
}

// UpsertQuotesLatestBatch stores quotes and records the batch.
func (s *MockStorage) UpsertQuotesLatestBatch(ctx context.Context, quotes []types.Quote) error {
	if s.UpsertQuotesLatestBatchErr != nil {
		return s.UpsertQuotesLatestBatchErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.quoteBatches = append(s.quoteBatches, append([]types.Quote(nil), quotes...))
	for i := range quotes {
		s.quotesLatest[quotes[i].MarketID] = quotes[i]
	}
	return nil
}

// GetQuoteLatest returns the latest quote or types.ErrNotFound.
func (s *MockStorage) GetQuoteLatest(ctx context.Context, marketID string) (*types.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotesLatest[marketID]
	if !ok {
		return nil, fmt.Errorf("quote %s: %w", marketID, types.ErrNotFound)
	}
	return &q, nil
}

// GetQuotesLatestBatch returns the quotes found, in request order.
func (s *MockStorage) GetQuotesLatestBatch(ctx context.Context, marketIDs []string) ([]types.Quote, error) {
	if s.GetQuotesLatestBatchErr != nil {
		return nil, s.GetQuotesLatestBatchErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Quote, 0, len(marketIDs))
	for _, id := range marketIDs {
		if q, ok := s.quotesLatest[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// InsertQuote5m stores a sample unless its 5-minute bucket already has one.
func (s *MockStorage) InsertQuote5m(ctx context.Context, q *types.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := types.BucketTo5m(q.AsOf)
	for i := range s.quotes5m {
		if s.quotes5m[i].MarketID == q.MarketID && types.BucketTo5m(s.quotes5m[i].AsOf).Equal(bucket) {
			return nil
		}
	}
	s.quotes5m = append(s.quotes5m, *q)
	return nil
}

// GetQuotes5m returns samples for a market with buckets in [start, end].
func (s *MockStorage) GetQuotes5m(ctx context.Context, marketID string, start, end time.Time) ([]types.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Quote
	for _, q := range s.quotes5m {
		bucket := types.BucketTo5m(q.AsOf)
		if q.MarketID == marketID && !bucket.Before(start) && !bucket.After(end) {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AsOf.Before(out[j].AsOf) })
	return out, nil
}

// DeleteOldQuotes5m drops samples older than the retention window.
func (s *MockStorage) DeleteOldQuotes5m(ctx context.Context, retentionDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	kept := s.quotes5m[:0]
	var deleted int64
	for _, q := range s.quotes5m {
		if q.AsOf.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, q)
	}
	s.quotes5m = kept
	return deleted, nil
}

// UpsertRule stores a rule snapshot and records the call.
func (s *MockStorage) UpsertRule(ctx context.Context, r *types.RuleSnapshot) error {
	if s.UpsertRuleErr != nil {
		return s.UpsertRuleErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.MarketID] = *r
	s.ruleUpserts = append(s.ruleUpserts, *r)
	return nil
}

// GetRule returns a stored rule or types.ErrNotFound.
func (s *MockStorage) GetRule(ctx context.Context, marketID string) (*types.RuleSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[marketID]
	if !ok {
		return nil, fmt.Errorf("rule %s: %w", marketID, types.ErrNotFound)
	}
	return &r, nil
}

// GetRulesBatch returns the rules found, in request order.
func (s *MockStorage) GetRulesBatch(ctx context.Context, marketIDs []string) ([]types.RuleSnapshot, error) {
	if s.GetRulesBatchErr != nil {
		return nil, s.GetRulesBatchErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.RuleSnapshot, 0, len(marketIDs))
	for _, id := range marketIDs {
		if r, ok := s.rules[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// HasRuleChanged mirrors the production semantics: no stored rule counts
// as changed.
func (s *MockStorage) HasRuleChanged(ctx context.Context, marketID, newHash string) (bool, error) {
	if s.HasRuleChangedErr != nil {
		return false, s.HasRuleChangedErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[marketID]
	if !ok {
		return true, nil
	}
	return r.RuleHash != newHash, nil
}

// UpsertScore stores one score.
func (s *MockStorage) UpsertScore(ctx context.Context, sc *types.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[sc.MarketID] = *sc
	return nil
}

// UpsertScoresBatch stores scores.
func (s *MockStorage) UpsertScoresBatch(ctx context.Context, scores []types.Score) error {
	if s.UpsertScoresBatchErr != nil {
		return s.UpsertScoresBatchErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range scores {
		s.scores[scores[i].MarketID] = scores[i]
	}
	return nil
}

// GetScore returns a stored score or types.ErrNotFound.
func (s *MockStorage) GetScore(ctx context.Context, marketID string) (*types.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.scores[marketID]
	if !ok {
		return nil, fmt.Errorf("score %s: %w", marketID, types.ErrNotFound)
	}
	return &sc, nil
}

// ListTopScores returns scores matching the filter, best first.
func (s *MockStorage) ListTopScores(ctx context.Context, f storage.ScoreFilter) ([]types.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Score
	for _, sc := range s.scores {
		if f.MinScore != nil && sc.OverallScore < *f.MinScore {
			continue
		}
		if f.MaxTRemainingSec != nil && sc.TRemainingSec > *f.MaxTRemainingSec {
			continue
		}
		out = append(out, sc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OverallScore > out[j].OverallScore })
	return paginateScores(out, f.Limit, f.Offset), nil
}

// UpsertRec stores one recommendation.
func (s *MockStorage) UpsertRec(ctx context.Context, r *types.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[r.MarketID] = *r
	return nil
}

// UpsertRecsBatch stores recommendations.
func (s *MockStorage) UpsertRecsBatch(ctx context.Context, recs []types.Recommendation) error {
	if s.UpsertRecsBatchErr != nil {
		return s.UpsertRecsBatchErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range recs {
		s.recs[recs[i].MarketID] = recs[i]
	}
	return nil
}

// GetRec returns a stored recommendation or types.ErrNotFound.
func (s *MockStorage) GetRec(ctx context.Context, marketID string) (*types.Recommendation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[marketID]
	if !ok {
		return nil, fmt.Errorf("rec %s: %w", marketID, types.ErrNotFound)
	}
	return &r, nil
}

// ListRecs returns recommendations matching the filter, ordered by the
// joined overall score, best first.
func (s *MockStorage) ListRecs(ctx context.Context, f storage.RecFilter) ([]types.Recommendation, error) {
	if s.ListRecsErr != nil {
		return nil, s.ListRecsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.filterRecsLocked(f)
	return paginateRecs(out, f.Limit, f.Offset), nil
}

// CountRecs counts recommendations matching the filter.
func (s *MockStorage) CountRecs(ctx context.Context, f storage.RecFilter) (int64, error) {
	if s.CountRecsErr != nil {
		return 0, s.CountRecsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.filterRecsLocked(f))), nil
}

func (s *MockStorage) filterRecsLocked(f storage.RecFilter) []types.Recommendation {
	var out []types.Recommendation
	for _, r := range s.recs {
		score, hasScore := s.scores[r.MarketID]
		if f.MinScore != nil && (!hasScore || score.OverallScore < *f.MinScore) {
			continue
		}
		if f.MaxTRemainingSec != nil && (!hasScore || score.TRemainingSec > *f.MaxTRemainingSec) {
			continue
		}
		if f.MaxRiskScore != nil && r.RiskScore > *f.MaxRiskScore {
			continue
		}
		if f.HasFlags != nil && *f.HasFlags != (len(r.RiskFlags) > 0) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, iOK := s.scores[out[i].MarketID]
		sj, jOK := s.scores[out[j].MarketID]
		if iOK != jOK {
			return iOK
		}
		return si.OverallScore > sj.OverallScore
	})
	return out
}

// Ping reports the injected error, if any.
func (s *MockStorage) Ping(ctx context.Context) error {
	return s.PingErr
}

// InitSchema is a no-op for mock storage.
func (s *MockStorage) InitSchema(ctx context.Context) error {
	return nil
}

// Close is a no-op for mock storage.
func (s *MockStorage) Close() error {
	return nil
}

func paginateMarkets(in []types.Market, limit, offset int) []types.Market {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

func paginateScores(in []types.Score, limit, offset int) []types.Score {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}

func paginateRecs(in []types.Recommendation, limit, offset int) []types.Recommendation {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}
