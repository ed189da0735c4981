package venue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mselser95/pm-endgame/internal/circuitbreaker"
	"github.com/mselser95/pm-endgame/pkg/cache"
	"github.com/mselser95/pm-endgame/pkg/retry"
	"github.com/mselser95/pm-endgame/pkg/types"
	"go.uber.org/zap"
)

var _ Client = (*PolymarketClient)(nil)

func newTestClient(t *testing.T, baseURL string) *PolymarketClient {
	t.Helper()

	logger, _ := zap.NewDevelopment()

	client, err := NewPolymarketClient(&Config{
		BaseURL: baseURL,
		Retry:   retry.Config{MaxAttempts: 1},
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	return client
}

func TestNewPolymarketClient(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid-config",
			config: &Config{
				BaseURL: "https://gamma-api.polymarket.com",
				Logger:  logger,
			},
			wantErr: false,
		},
		{
			name:    "nil-config",
			config:  nil,
			wantErr: true,
			errMsg:  "config cannot be nil",
		},
		{
			name: "nil-logger",
			config: &Config{
				BaseURL: "https://gamma-api.polymarket.com",
			},
			wantErr: true,
			errMsg:  "logger cannot be nil",
		},
		{
			name: "empty-base-url",
			config: &Config{
				Logger: logger,
			},
			wantErr: true,
			errMsg:  "base url cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewPolymarketClient(tt.config)

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error %q, got nil", tt.errMsg)
					return
				}
				if err.Error() != tt.errMsg {
					t.Errorf("expected error %q, got %q", tt.errMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}

			// Unset timeouts fall back to defaults
			if client.httpClient.Timeout != defaultHTTPTimeout {
				t.Errorf("expected default timeout %v, got %v", defaultHTTPTimeout, client.httpClient.Timeout)
			}
			if client.cacheTTL != defaultDetailTTL {
				t.Errorf("expected default detail ttl %v, got %v", defaultDetailTTL, client.cacheTTL)
			}
		})
	}
}

func TestPolymarketClient_DiscoverMarkets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("expected path /markets, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("active") != "true" {
			t.Error("expected active=true")
		}
		if r.URL.Query().Get("limit") != "100" {
			t.Error("expected limit=100")
		}
		if r.URL.Query().Get("offset") != "200" {
			t.Error("expected offset=200")
		}
		if r.Header.Get("User-Agent") != "pm-endgame/1.0" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("unexpected accept header %q", r.Header.Get("Accept"))
		}

		// Gamma returns a direct array, not wrapped in an object
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"conditionId": "0xaaa",
				"question": "Will X happen?",
				"slug": "will-x-happen",
				"category": "Politics",
				"closed": false,
				"startDate": "2025-01-01T00:00:00Z",
				"endDate": "2025-12-31T00:00:00Z",
				"outcomes": "[\"Yes\", \"No\"]",
				"clobTokenIds": "[\"token-yes\", \"token-no\"]"
			},
			{
				"conditionId": "0xbbb",
				"question": "Already closed",
				"slug": "already-closed",
				"closed": true
			}
		]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	discovered, err := client.DiscoverMarkets(context.Background(), 100, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(discovered) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(discovered))
	}

	first := discovered[0].Market
	if first.MarketID != "0xaaa" {
		t.Errorf("expected market id 0xaaa, got %s", first.MarketID)
	}
	if first.Venue != types.VenuePolymarket {
		t.Errorf("expected venue polymarket, got %s", first.Venue)
	}
	if first.Title != "Will X happen?" {
		t.Errorf("unexpected title %q", first.Title)
	}
	if first.Slug == nil || *first.Slug != "will-x-happen" {
		t.Errorf("expected slug will-x-happen, got %v", first.Slug)
	}
	if first.Category == nil || *first.Category != "Politics" {
		t.Errorf("expected category Politics, got %v", first.Category)
	}
	if first.Status != types.StatusActive {
		t.Errorf("expected status active, got %s", first.Status)
	}
	if first.URL == nil || *first.URL != "https://polymarket.com/event/will-x-happen" {
		t.Errorf("unexpected url %v", first.URL)
	}
	if first.CloseTime == nil || !first.CloseTime.Equal(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected close time %v", first.CloseTime)
	}
	if first.ResolvedTime != nil {
		t.Error("expected nil resolved time")
	}

	outcomes := discovered[0].Outcomes
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Outcome != "Yes" || outcomes[0].TokenID == nil || *outcomes[0].TokenID != "token-yes" {
		t.Errorf("unexpected first outcome %+v", outcomes[0])
	}
	if outcomes[1].Outcome != "No" || outcomes[1].TokenID == nil || *outcomes[1].TokenID != "token-no" {
		t.Errorf("unexpected second outcome %+v", outcomes[1])
	}

	second := discovered[1].Market
	if second.Status != types.StatusClosed {
		t.Errorf("expected status closed, got %s", second.Status)
	}
	if second.Category != nil {
		t.Error("expected nil category")
	}
	if second.CloseTime != nil {
		t.Error("expected nil close time")
	}
	if len(discovered[1].Outcomes) != 0 {
		t.Errorf("expected no outcomes, got %d", len(discovered[1].Outcomes))
	}
}

func TestPolymarketClient_DiscoverMarkets_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.DiscoverMarkets(context.Background(), 10, 0)
	if err == nil {
		t.Fatal("expected error for 500 status")
	}

	var venueErr *types.VenueError
	if !errors.As(err, &venueErr) {
		t.Fatalf("expected a venue error, got %v", err)
	}
	if venueErr.Kind != types.VenueErrHTTP {
		t.Errorf("expected HTTP kind, got %s", venueErr.Kind)
	}
	if venueErr.Status != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", venueErr.Status)
	}
}

func TestPolymarketClient_DiscoverMarkets_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.DiscoverMarkets(context.Background(), 10, 0)
	if err == nil {
		t.Fatal("expected error for malformed body")
	}

	var venueErr *types.VenueError
	if !errors.As(err, &venueErr) {
		t.Fatalf("expected a venue error, got %v", err)
	}
	if venueErr.Kind != types.VenueErrDecode {
		t.Errorf("expected DECODE kind, got %s", venueErr.Kind)
	}
}

func TestPolymarketClient_RetriesTransientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()

	client, err := NewPolymarketClient(&Config{
		BaseURL: server.URL,
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	discovered, err := client.DiscoverMarkets(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(discovered) != 0 {
		t.Errorf("expected empty page, got %d markets", len(discovered))
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestPolymarketClient_GetQuotes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/m1/book":
			w.Write([]byte(`{"bids": [{"price": 0.25, "size": 100.0}], "asks": [{"price": 0.75, "size": 50.0}]}`))
		case "/markets/m2/book":
			w.WriteHeader(http.StatusInternalServerError)
		case "/markets/m3/book":
			w.Write([]byte(`{"bids": [], "asks": []}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	quotes, err := client.GetQuotes(context.Background(), []string{"m1", "m2", "m3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// m2 failed and is skipped
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}

	q1 := quotes[0]
	if q1.MarketID != "m1" {
		t.Errorf("expected market m1, got %s", q1.MarketID)
	}
	if q1.YesBid == nil || *q1.YesBid != 0.25 {
		t.Errorf("expected yes_bid 0.25, got %v", q1.YesBid)
	}
	if q1.YesAsk == nil || *q1.YesAsk != 0.75 {
		t.Errorf("expected yes_ask 0.75, got %v", q1.YesAsk)
	}
	if q1.NoBid == nil || *q1.NoBid != 0.25 {
		t.Errorf("expected no_bid 0.25, got %v", q1.NoBid)
	}
	if q1.NoAsk == nil || *q1.NoAsk != 0.75 {
		t.Errorf("expected no_ask 0.75, got %v", q1.NoAsk)
	}
	if q1.SpreadNo == nil || *q1.SpreadNo != 0.5 {
		t.Errorf("expected spread_no 0.5, got %v", q1.SpreadNo)
	}
	if q1.MidNo == nil || *q1.MidNo != 0.5 {
		t.Errorf("expected mid_no 0.5, got %v", q1.MidNo)
	}
	if q1.QuoteSource != types.VenuePolymarket {
		t.Errorf("expected quote source polymarket, got %s", q1.QuoteSource)
	}

	// Empty book still yields a quote with absent prices
	q3 := quotes[1]
	if q3.MarketID != "m3" {
		t.Errorf("expected market m3, got %s", q3.MarketID)
	}
	if q3.YesBid != nil || q3.YesAsk != nil || q3.NoBid != nil || q3.NoAsk != nil {
		t.Errorf("expected all prices absent, got %+v", q3)
	}

	// The whole batch shares one as_of
	if !q1.AsOf.Equal(q3.AsOf) {
		t.Errorf("expected shared as_of, got %v and %v", q1.AsOf, q3.AsOf)
	}
}

func TestPolymarketClient_GetRules(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/0xabc" {
			t.Errorf("expected path /markets/0xabc, got %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"description": "Resolution is at the sole discretion of the committee.",
			"resolutionSource": "Associated Press"
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	rule, err := client.GetRules(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rule.MarketID != "0xabc" {
		t.Errorf("expected market id 0xabc, got %s", rule.MarketID)
	}
	if rule.RuleText != "Resolution is at the sole discretion of the committee." {
		t.Errorf("unexpected rule text %q", rule.RuleText)
	}
	if rule.RuleHash != computeRuleHash(rule.RuleText) {
		t.Errorf("rule hash does not match text, got %s", rule.RuleHash)
	}
	if rule.SettlementSource == nil || *rule.SettlementSource != "Associated Press" {
		t.Errorf("unexpected settlement source %v", rule.SettlementSource)
	}
	if rule.SettlementWindow != nil {
		t.Error("expected nil settlement window")
	}
	if len(rule.RiskFlags) != 1 || rule.RiskFlags[0].Code != types.FlagSubjectiveResolution {
		t.Fatalf("expected single SUBJECTIVE_RESOLUTION flag, got %+v", rule.RiskFlags)
	}
	if rule.DefinitionRiskScore != 0.3 {
		t.Errorf("expected definition risk score 0.3, got %f", rule.DefinitionRiskScore)
	}
	if rule.AsOf.IsZero() {
		t.Error("expected as_of to be set")
	}
}

func TestPolymarketClient_GetRules_NoDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	rule, err := client.GetRules(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rule.RuleText != types.DefaultRuleText {
		t.Errorf("expected default rule text, got %q", rule.RuleText)
	}
	if rule.RuleHash != "e00ad11279e9bf34560453d049e90b9a485b78b73e911e46acee4a4b6ab45ade" {
		t.Errorf("unexpected rule hash %s", rule.RuleHash)
	}
	if len(rule.RiskFlags) != 0 {
		t.Errorf("expected no flags, got %+v", rule.RiskFlags)
	}
	if rule.SettlementSource != nil {
		t.Error("expected nil settlement source")
	}
}

func TestPolymarketClient_GetRules_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("market not found"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.GetRules(context.Background(), "0xmissing")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !types.IsVenueNotFound(err) {
		t.Errorf("expected a venue not-found error, got %v", err)
	}
}

func TestPolymarketClient_GetOutcomes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/0xfull":
			w.Write([]byte(`{"outcomes": "[\"Yes\", \"No\"]", "clobTokenIds": "[\"t-yes\", \"t-no\"]"}`))
		case "/markets/0xshort":
			w.Write([]byte(`{"outcomes": "[\"A\", \"B\", \"C\"]", "clobTokenIds": "[\"t-a\"]"}`))
		case "/markets/0xbare":
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	full, err := client.GetOutcomes(ctx, "0xfull")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(full) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(full))
	}
	if full[0].MarketID != "0xfull" || full[0].Outcome != "Yes" || full[0].TokenID == nil || *full[0].TokenID != "t-yes" {
		t.Errorf("unexpected outcome %+v", full[0])
	}
	if full[1].Outcome != "No" || full[1].TokenID == nil || *full[1].TokenID != "t-no" {
		t.Errorf("unexpected outcome %+v", full[1])
	}

	// Labels beyond the token list keep a nil token
	short, err := client.GetOutcomes(ctx, "0xshort")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(short) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(short))
	}
	if short[0].TokenID == nil || *short[0].TokenID != "t-a" {
		t.Errorf("unexpected outcome %+v", short[0])
	}
	if short[1].TokenID != nil || short[2].TokenID != nil {
		t.Error("expected nil tokens for unmatched labels")
	}

	// No outcome fields at all falls back to YES/NO
	bare, err := client.GetOutcomes(ctx, "0xbare")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bare) != 2 || bare[0].Outcome != "YES" || bare[1].Outcome != "NO" {
		t.Fatalf("expected YES/NO fallback, got %+v", bare)
	}
	if bare[0].TokenID != nil || bare[1].TokenID != nil {
		t.Error("expected nil token ids in fallback")
	}
}

func TestPolymarketClient_DetailCacheSharedAcrossCalls(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Write([]byte(`{"description": "Plain rules.", "outcomes": "[\"Yes\", \"No\"]", "clobTokenIds": "[\"t1\", \"t2\"]"}`))
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()

	detailCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer detailCache.Close()

	client, err := NewPolymarketClient(&Config{
		BaseURL:  server.URL,
		Retry:    retry.Config{MaxAttempts: 1},
		Cache:    detailCache,
		CacheTTL: time.Minute,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()

	if _, err := client.GetRules(ctx, "0xabc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Ristretto applies sets asynchronously
	detailCache.(*cache.RistrettoCache).Wait()

	outcomes, err := client.GetOutcomes(ctx, "0xabc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Errorf("expected 2 outcomes, got %d", len(outcomes))
	}

	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("expected 1 venue request for both calls, got %d", n)
	}
}

func TestPolymarketClient_BreakerRecordsOutcomes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	logger, _ := zap.NewDevelopment()

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		FailureThreshold: 2,
		Cooldown:         time.Minute,
		Logger:           logger,
	})
	if err != nil {
		t.Fatalf("failed to create breaker: %v", err)
	}

	client, err := NewPolymarketClient(&Config{
		BaseURL: server.URL,
		Retry:   retry.Config{MaxAttempts: 1},
		Breaker: breaker,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	ctx := context.Background()

	if _, err := client.DiscoverMarkets(ctx, 10, 0); err == nil {
		t.Fatal("expected error")
	}
	if !breaker.Allow() {
		t.Error("expected breaker to stay closed after one failure")
	}

	if _, err := client.DiscoverMarkets(ctx, 10, 0); err == nil {
		t.Fatal("expected error")
	}
	if breaker.Allow() {
		t.Error("expected breaker to trip after two consecutive failures")
	}
}
