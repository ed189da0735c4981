package venue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/pm-endgame/internal/circuitbreaker"
	"github.com/mselser95/pm-endgame/pkg/cache"
	"github.com/mselser95/pm-endgame/pkg/retry"
	"github.com/mselser95/pm-endgame/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Operation labels for logs and metrics.
const (
	opDiscoverMarkets = "discover-markets"
	opGetBook         = "get-book"
	opGetMarketDetail = "get-market-detail"
)

const defaultHTTPTimeout = 30 * time.Second

const defaultDetailTTL = 5 * time.Minute

// PolymarketClient reads markets, books and rule text from the Polymarket
// Gamma API.
type PolymarketClient struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.Config
	cache      cache.Cache
	cacheTTL   time.Duration
	breaker    *circuitbreaker.FailureBreaker
	logger     *zap.Logger
}

// Config holds Polymarket client configuration. Cache and Breaker are
// optional: without a cache every detail lookup hits the venue, without a
// breaker request outcomes are not tracked.
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	Retry       retry.Config
	Cache       cache.Cache
	CacheTTL    time.Duration
	Breaker     *circuitbreaker.FailureBreaker
	Logger      *zap.Logger
}

// NewPolymarketClient creates a new Gamma API client.
func NewPolymarketClient(cfg *Config) (*PolymarketClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url cannot be empty")
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultDetailTTL
	}

	return &PolymarketClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retryCfg: cfg.Retry,
		cache:    cfg.Cache,
		cacheTTL: ttl,
		breaker:  cfg.Breaker,
		logger:   cfg.Logger,
	}, nil
}

// DiscoverMarkets fetches one page of active markets.
func (c *PolymarketClient) DiscoverMarkets(ctx context.Context, limit, offset int) ([]DiscoveredMarket, error) {
	endpoint := fmt.Sprintf("%s/markets", c.baseURL)

	params := url.Values{}
	params.Add("limit", strconv.Itoa(limit))
	params.Add("offset", strconv.Itoa(offset))
	params.Add("active", "true")

	requestURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())

	c.logger.Debug("fetching-markets",
		zap.String("url", requestURL),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	body, err := c.doGet(ctx, opDiscoverMarkets, requestURL)
	if err != nil {
		return nil, err
	}

	// Gamma API returns a direct array, not wrapped in an object
	var docs []marketDoc
	err = json.Unmarshal(body, &docs)
	if err != nil {
		return nil, &types.VenueError{Kind: types.VenueErrDecode, Op: opDiscoverMarkets, Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	discovered := make([]DiscoveredMarket, 0, len(docs))
	for i := range docs {
		discovered = append(discovered, docs[i].toDomain())
	}

	MarketsDiscoveredTotal.Add(float64(len(discovered)))

	c.logger.Debug("fetched-markets",
		zap.Int("count", len(discovered)))

	return discovered, nil
}

// GetQuotes polls the top of book for each market. A market whose book
// request fails is logged and skipped; the rest of the batch survives. All
// quotes share one as_of timestamp.
func (c *PolymarketClient) GetQuotes(ctx context.Context, marketIDs []string) ([]types.Quote, error) {
	quotes := make([]types.Quote, 0, len(marketIDs))
	now := time.Now().UTC()

	for _, marketID := range marketIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		requestURL := fmt.Sprintf("%s/markets/%s/book", c.baseURL, marketID)

		body, err := c.doGet(ctx, opGetBook, requestURL)
		if err != nil {
			QuoteFetchSkipsTotal.Inc()
			c.logger.Warn("quote-fetch-failed",
				zap.String("market-id", marketID),
				zap.Error(err))
			continue
		}

		var book bookDoc
		err = json.Unmarshal(body, &book)
		if err != nil {
			return nil, &types.VenueError{Kind: types.VenueErrDecode, Op: opGetBook, Err: fmt.Errorf("unmarshal response: %w", err)}
		}

		quotes = append(quotes, types.NewQuoteFromBook(marketID, book.topBid(), book.topAsk(), now, types.VenuePolymarket))
	}

	QuotesFetchedTotal.Add(float64(len(quotes)))

	return quotes, nil
}

// GetRules fetches the market detail and extracts a rule snapshot from its
// description.
func (c *PolymarketClient) GetRules(ctx context.Context, marketID string) (*types.RuleSnapshot, error) {
	detail, err := c.getMarketDetail(ctx, marketID)
	if err != nil {
		return nil, err
	}

	ruleText := types.DefaultRuleText
	if detail.Description != nil {
		ruleText = *detail.Description
	}

	snapshot := buildRuleSnapshot(marketID, ruleText, detail.ResolutionSource, time.Now().UTC())

	return &snapshot, nil
}

// GetOutcomes fetches the market detail and returns its outcome tokens.
// Markets without parseable outcome fields fall back to plain YES/NO rows.
func (c *PolymarketClient) GetOutcomes(ctx context.Context, marketID string) ([]types.Outcome, error) {
	detail, err := c.getMarketDetail(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if len(detail.outcomeLabels) == 0 {
		return []types.Outcome{
			{MarketID: marketID, Outcome: "YES"},
			{MarketID: marketID, Outcome: "NO"},
		}, nil
	}

	return pairOutcomes(marketID, detail.outcomeLabels, detail.tokenIDs), nil
}

// getMarketDetail fetches GET /markets/{id}, serving repeat lookups within
// the TTL from cache so GetRules and GetOutcomes for one market share a
// single request.
func (c *PolymarketClient) getMarketDetail(ctx context.Context, marketID string) (*marketDetailDoc, error) {
	cacheKey := fmt.Sprintf("market-detail:%s", marketID)

	if c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			if detail, ok := cached.(*marketDetailDoc); ok {
				return detail, nil
			}
		}
	}

	requestURL := fmt.Sprintf("%s/markets/%s", c.baseURL, marketID)

	body, err := c.doGet(ctx, opGetMarketDetail, requestURL)
	if err != nil {
		return nil, err
	}

	var detail marketDetailDoc
	err = json.Unmarshal(body, &detail)
	if err != nil {
		return nil, &types.VenueError{Kind: types.VenueErrDecode, Op: opGetMarketDetail, Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	if c.cache != nil {
		c.cache.Set(cacheKey, &detail, c.cacheTTL)
	}

	return &detail, nil
}

// doGet performs one GET with retries around the request and body read;
// decoding stays with the caller. The breaker records the outcome of the
// whole attempt group, not individual attempts.
func (c *PolymarketClient) doGet(ctx context.Context, op, requestURL string) ([]byte, error) {
	timer := prometheus.NewTimer(RequestDurationSeconds.WithLabelValues(op))
	defer timer.ObserveDuration()

	RequestsTotal.WithLabelValues(op).Inc()

	var body []byte

	err := retry.Do(ctx, c.retryCfg, c.logger, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "pm-endgame/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &types.VenueError{Kind: types.VenueErrHTTP, Op: op, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errBody, _ := io.ReadAll(resp.Body)
			kind := types.VenueErrHTTP
			if resp.StatusCode == http.StatusNotFound {
				kind = types.VenueErrNotFound
			}

			return &types.VenueError{
				Kind:   kind,
				Op:     op,
				Status: resp.StatusCode,
				Err:    fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(errBody)),
			}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return &types.VenueError{Kind: types.VenueErrHTTP, Op: op, Err: fmt.Errorf("read response body: %w", err)}
		}

		return nil
	})
	if err != nil {
		RequestFailuresTotal.WithLabelValues(op).Inc()
		if c.breaker != nil {
			c.breaker.RecordFailure()
		}

		return nil, err
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}

	return body, nil
}

// marketDoc is the wire shape of one entry in GET /markets. Outcomes and
// ClobTokens are JSON-encoded arrays carried inside string fields.
type marketDoc struct {
	ConditionID string     `json:"conditionId"`
	Question    string     `json:"question"`
	Slug        string     `json:"slug"`
	Category    *string    `json:"category"`
	Closed      bool       `json:"closed"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	Outcomes    string     `json:"outcomes"`     // JSON string: "[\"Yes\", \"No\"]"
	ClobTokens  string     `json:"clobTokenIds"` // JSON string: "[\"token1\", \"token2\"]"

	outcomeLabels []string
	tokenIDs      []string
}

// UnmarshalJSON custom unmarshaler to parse outcomes and clobTokenIds.
func (d *marketDoc) UnmarshalJSON(data []byte) error {
	type Alias marketDoc
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(d),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	d.outcomeLabels = decodeStringList(d.Outcomes)
	d.tokenIDs = decodeStringList(d.ClobTokens)

	return nil
}

// toDomain maps a wire document to a market plus its outcome rows.
func (d *marketDoc) toDomain() DiscoveredMarket {
	status := types.StatusActive
	if d.Closed {
		status = types.StatusClosed
	}

	slug := d.Slug
	marketURL := fmt.Sprintf("https://polymarket.com/event/%s", slug)

	market := types.Market{
		MarketID:  d.ConditionID,
		Venue:     types.VenuePolymarket,
		Title:     d.Question,
		Slug:      &slug,
		Category:  d.Category,
		Status:    status,
		OpenTime:  d.StartDate,
		CloseTime: d.EndDate,
		URL:       &marketURL,
	}

	return DiscoveredMarket{
		Market:   market,
		Outcomes: pairOutcomes(d.ConditionID, d.outcomeLabels, d.tokenIDs),
	}
}

// marketDetailDoc is the wire shape of GET /markets/{id}. Only the fields
// the rule and outcome paths consume are decoded.
type marketDetailDoc struct {
	Description      *string `json:"description"`
	ResolutionSource *string `json:"resolutionSource"`
	Outcomes         string  `json:"outcomes"`
	ClobTokens       string  `json:"clobTokenIds"`

	outcomeLabels []string
	tokenIDs      []string
}

// UnmarshalJSON custom unmarshaler to parse outcomes and clobTokenIds.
func (d *marketDetailDoc) UnmarshalJSON(data []byte) error {
	type Alias marketDetailDoc
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(d),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	d.outcomeLabels = decodeStringList(d.Outcomes)
	d.tokenIDs = decodeStringList(d.ClobTokens)

	return nil
}

// decodeStringList parses a JSON-encoded string array carried inside a
// string field. Malformed payloads yield nil.
func decodeStringList(raw string) []string {
	if raw == "" {
		return nil
	}

	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}

	return items
}

// pairOutcomes zips outcome labels with their venue token ids. Labels
// without a matching token id keep a nil token.
func pairOutcomes(marketID string, labels, tokenIDs []string) []types.Outcome {
	rows := make([]types.Outcome, 0, len(labels))
	for i, label := range labels {
		row := types.Outcome{
			MarketID: marketID,
			Outcome:  label,
		}
		if i < len(tokenIDs) {
			tokenID := tokenIDs[i]
			row.TokenID = &tokenID
		}
		rows = append(rows, row)
	}

	return rows
}

// bookDoc is the wire shape of GET /markets/{id}/book.
type bookDoc struct {
	Bids []bookLevel `json:"bids"`
	Asks []bookLevel `json:"asks"`
}

// bookLevel is one price level of a book side.
type bookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// topBid returns the best bid price, nil when the side is empty.
func (b *bookDoc) topBid() *float64 {
	if len(b.Bids) == 0 {
		return nil
	}

	price := b.Bids[0].Price

	return &price
}

// topAsk returns the best ask price, nil when the side is empty.
func (b *bookDoc) topAsk() *float64 {
	if len(b.Asks) == 0 {
		return nil
	}

	price := b.Asks[0].Price

	return &price
}
