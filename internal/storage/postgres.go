package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mselser95/pm-endgame/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          *zap.Logger
}

// NewPostgresStorage opens a connection pool and verifies it with a ping.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	db, err := sqlx.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.Int("max-open-conns", cfg.MaxOpenConns),
		zap.Int("max-idle-conns", cfg.MaxIdleConns))

	return &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// NewPostgresStorageFromDB wraps an existing connection pool. Used in tests.
func NewPostgresStorageFromDB(db *sqlx.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger}
}

// InitSchema creates the table set if it does not exist yet.
func (p *PostgresStorage) InitSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	p.logger.Info("schema-initialized")
	return nil
}

// Ping verifies the database connection.
func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

const upsertMarketQuery = `
	INSERT INTO markets (
		market_id, venue, title, slug, category, status,
		open_time, close_time, resolved_time, url
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (market_id) DO UPDATE SET
		title = EXCLUDED.title,
		slug = EXCLUDED.slug,
		category = EXCLUDED.category,
		status = EXCLUDED.status,
		open_time = EXCLUDED.open_time,
		close_time = EXCLUDED.close_time,
		resolved_time = EXCLUDED.resolved_time,
		url = EXCLUDED.url,
		updated_at = NOW()`

// UpsertMarket inserts or refreshes a single market row.
func (p *PostgresStorage) UpsertMarket(ctx context.Context, m *types.Market) error {
	_, err := p.db.ExecContext(ctx, upsertMarketQuery,
		m.MarketID, m.Venue, m.Title,
		nullString(m.Slug), nullString(m.Category), string(m.Status),
		nullTime(m.OpenTime), nullTime(m.CloseTime), nullTime(m.ResolvedTime),
		nullString(m.URL),
	)
	if err != nil {
		WriteErrorsTotal.WithLabelValues("markets").Inc()
		return fmt.Errorf("upsert market %s: %w", m.MarketID, err)
	}

	RowsWrittenTotal.WithLabelValues("markets").Inc()
	return nil
}

// UpsertMarketsBatch upserts markets in one transaction.
func (p *PostgresStorage) UpsertMarketsBatch(ctx context.Context, markets []types.Market) error {
	if len(markets) == 0 {
		return nil
	}

	timer := prometheus.NewTimer(QueryDurationSeconds.WithLabelValues("upsert-markets-batch"))
	defer timer.ObserveDuration()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin markets tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for i := range markets {
		m := &markets[i]
		_, err := tx.ExecContext(ctx, upsertMarketQuery,
			m.MarketID, m.Venue, m.Title,
			nullString(m.Slug), nullString(m.Category), string(m.Status),
			nullTime(m.OpenTime), nullTime(m.CloseTime), nullTime(m.ResolvedTime),
			nullString(m.URL),
		)
		if err != nil {
			WriteErrorsTotal.WithLabelValues("markets").Inc()
			return fmt.Errorf("upsert market %s in batch: %w", m.MarketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		WriteErrorsTotal.WithLabelValues("markets").Inc()
		return fmt.Errorf("commit markets tx: %w", err)
	}

	RowsWrittenTotal.WithLabelValues("markets").Add(float64(len(markets)))
	p.logger.Debug("markets-batch-stored", zap.Int("count", len(markets)))
	return nil
}

const selectMarketColumns = `
	SELECT market_id, venue, title, slug, category, status,
	       open_time, close_time, resolved_time, url
	FROM markets`

// GetMarket returns a market by ID.
func (p *PostgresStorage) GetMarket(ctx context.Context, marketID string) (*types.Market, error) {
	var row marketRow
	err := p.db.GetContext(ctx, &row, selectMarketColumns+` WHERE market_id = $1`, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("market %s: %w", marketID, types.ErrNotFound)
		}
		ReadErrorsTotal.WithLabelValues("markets").Inc()
		return nil, fmt.Errorf("get market %s: %w", marketID, err)
	}

	m := row.toDomain()
	return &m, nil
}

// ListMarkets returns markets matching the filter, most recent close first.
func (p *PostgresStorage) ListMarkets(ctx context.Context, f MarketFilter) ([]types.Market, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	query := selectMarketColumns + `
	WHERE ($1::text IS NULL OR venue = $1)
	  AND ($2::text IS NULL OR status = $2)
	ORDER BY close_time DESC NULLS LAST
	LIMIT $3 OFFSET $4`

	var rows []marketRow
	err := p.db.SelectContext(ctx, &rows, query, f.Venue, status, f.Limit, f.Offset)
	if err != nil {
		ReadErrorsTotal.WithLabelValues("markets").Inc()
		return nil, fmt.Errorf("list markets: %w", err)
	}

	markets := make([]types.Market, 0, len(rows))
	for _, row := range rows {
		markets = append(markets, row.toDomain())
	}
	return markets, nil
}

// ListActiveMarkets returns active markets whose close time falls inside
// [now+min, now+max], soonest close first.
func (p *PostgresStorage) ListActiveMarkets(ctx context.Context, minRemainingSec, maxRemainingSec int64, limit int) ([]types.Market, error) {
	now := time.Now().UTC()
	minClose := now.Add(time.Duration(minRemainingSec) * time.Second)
	maxClose := now.Add(time.Duration(maxRemainingSec) * time.Second)

	query := selectMarketColumns + `
	WHERE status = 'active'
	  AND close_time IS NOT NULL
	  AND close_time >= $1
	  AND close_time <= $2
	ORDER BY close_time ASC
	LIMIT $3`

	var rows []marketRow
	err := p.db.SelectContext(ctx, &rows, query, minClose, maxClose, limit)
	if err != nil {
		ReadErrorsTotal.WithLabelValues("markets").Inc()
		return nil, fmt.Errorf("list active markets: %w", err)
	}

	markets := make([]types.Market, 0, len(rows))
	for _, row := range rows {
		markets = append(markets, row.toDomain())
	}
	return markets, nil
}

// UpsertOutcomes upserts market outcome legs in one transaction.
func (p *PostgresStorage) UpsertOutcomes(ctx context.Context, outcomes []types.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outcomes tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	query := `
	INSERT INTO market_outcomes (market_id, outcome, token_id)
	VALUES ($1, $2, $3)
	ON CONFLICT (market_id, outcome) DO UPDATE SET
		token_id = EXCLUDED.token_id`

	for i := range outcomes {
		o := &outcomes[i]
		if _, err := tx.ExecContext(ctx, query, o.MarketID, o.Outcome, nullString(o.TokenID)); err != nil {
			WriteErrorsTotal.WithLabelValues("market_outcomes").Inc()
			return fmt.Errorf("upsert outcome %s/%s: %w", o.MarketID, o.Outcome, err)
		}
	}

	if err := tx.Commit(); err != nil {
		WriteErrorsTotal.WithLabelValues("market_outcomes").Inc()
		return fmt.Errorf("commit outcomes tx: %w", err)
	}

	RowsWrittenTotal.WithLabelValues("market_outcomes").Add(float64(len(outcomes)))
	return nil
}

// GetOutcomes returns the outcome legs of a market.
func (p *PostgresStorage) GetOutcomes(ctx context.Context, marketID string) ([]types.Outcome, error) {
	query := `
	SELECT market_id, outcome, token_id
	FROM market_outcomes
	WHERE market_id = $1
	ORDER BY outcome`

	var rows []outcomeRow
	if err := p.db.SelectContext(ctx, &rows, query, marketID); err != nil {
		ReadErrorsTotal.WithLabelValues("market_outcomes").Inc()
		return nil, fmt.Errorf("get outcomes %s: %w", marketID, err)
	}

	outcomes := make([]types.Outcome, 0, len(rows))
	for _, row := range rows {
		outcomes = append(outcomes, row.toDomain())
	}
	return outcomes, nil
}

const upsertQuoteLatestQuery = `
	INSERT INTO quotes_latest (
		market_id, as_of, yes_bid, yes_ask, no_bid, no_ask,
		spread_yes, spread_no, mid_yes, mid_no, quote_source
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (market_id) DO UPDATE SET
		as_of = EXCLUDED.as_of,
		yes_bid = EXCLUDED.yes_bid,
		yes_ask = EXCLUDED.yes_ask,
		no_bid = EXCLUDED.no_bid,
		no_ask = EXCLUDED.no_ask,
		spread_yes = EXCLUDED.spread_yes,
		spread_no = EXCLUDED.spread_no,
		mid_yes = EXCLUDED.mid_yes,
		mid_no = EXCLUDED.mid_no,
		quote_source = EXCLUDED.quote_source,
		updated_at = NOW()`

// UpsertQuoteLatest inserts or refreshes the latest quote for a market.
func (p *PostgresStorage) UpsertQuoteLatest(ctx context.Context, q *types.Quote) error {
	_, err := p.db.ExecContext(ctx, upsertQuoteLatestQuery,
		q.MarketID, q.AsOf,
		nullDecimal(q.YesBid), nullDecimal(q.YesAsk),
		nullDecimal(q.NoBid), nullDecimal(q.NoAsk),
		nullDecimal(q.SpreadYes), nullDecimal(q.SpreadNo),
		nullDecimal(q.MidYes), nullDecimal(q.MidNo),
		q.QuoteSource,
	)
	if err != nil {
		WriteErrorsTotal.WithLabelValues("quotes_latest").Inc()
		return fmt.Errorf("upsert quote %s: %w", q.MarketID, err)
	}

	RowsWrittenTotal.WithLabelValues("quotes_latest").Inc()
	return nil
}

// UpsertQuotesLatestBatch upserts latest quotes in one transaction.
func (p *PostgresStorage) UpsertQuotesLatestBatch(ctx context.Context, quotes []types.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	timer := prometheus.NewTimer(QueryDurationSeconds.WithLabelValues("upsert-quotes-batch"))
	defer timer.ObserveDuration()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin quotes tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for i := range quotes {
		q := &quotes[i]
		_, err := tx.ExecContext(ctx, upsertQuoteLatestQuery,
			q.MarketID, q.AsOf,
			nullDecimal(q.YesBid), nullDecimal(q.YesAsk),
			nullDecimal(q.NoBid), nullDecimal(q.NoAsk),
			nullDecimal(q.SpreadYes), nullDecimal(q.SpreadNo),
			nullDecimal(q.MidYes), nullDecimal(q.MidNo),
			q.QuoteSource,
		)
		if err != nil {
			WriteErrorsTotal.WithLabelValues("quotes_latest").Inc()
			return fmt.Errorf("upsert quote %s in batch: %w", q.MarketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		WriteErrorsTotal.WithLabelValues("quotes_latest").Inc()
		return fmt.Errorf("commit quotes tx: %w", err)
	}

	RowsWrittenTotal.WithLabelValues("quotes_latest").Add(float64(len(quotes)))
	p.logger.Debug("quotes-batch-stored", zap.Int("count", len(quotes)))
	return nil
}

const selectQuoteLatestColumns = `
	SELECT market_id, as_of, yes_bid, yes_ask, no_bid, no_ask,
	       spread_yes, spread_no, mid_yes, mid_no, quote_source
	FROM quotes_latest`

// GetQuoteLatest returns the latest quote for a market.
func (p *PostgresStorage) GetQuoteLatest(ctx context.Context, marketID string) (*types.Quote, error) {
	var row quoteRow
	err := p.db.GetContext(ctx, &row, selectQuoteLatestColumns+` WHERE market_id = $1`, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("quote %s: %w", marketID, types.ErrNotFound)
		}
		ReadErrorsTotal.WithLabelValues("quotes_latest").Inc()
		return nil, fmt.Errorf("get quote %s: %w", marketID, err)
	}

	q := row.toDomain()
	return &q, nil
}

// GetQuotesLatestBatch returns the latest quotes for the given markets.
// Markets without a quote row are simply absent from the result.
func (p *PostgresStorage) GetQuotesLatestBatch(ctx context.Context, marketIDs []string) ([]types.Quote, error) {
	if len(marketIDs) == 0 {
		return []types.Quote{}, nil
	}

	var rows []quoteRow
	err := p.db.SelectContext(ctx, &rows, selectQuoteLatestColumns+` WHERE market_id = ANY($1)`, pq.Array(marketIDs))
	if err != nil {
		ReadErrorsTotal.WithLabelValues("quotes_latest").Inc()
		return nil, fmt.Errorf("get quotes batch: %w", err)
	}

	quotes := make([]types.Quote, 0, len(rows))
	for _, row := range rows {
		quotes = append(quotes, row.toDomain())
	}
	return quotes, nil
}

// InsertQuote5m records a 5-minute sample for the quote's bucket. Inserting
// into an occupied bucket is a no-op, so the first sample per bucket wins.
func (p *PostgresStorage) InsertQuote5m(ctx context.Context, q *types.Quote) error {
	query := `
	INSERT INTO quotes_5m (
		market_id, bucket_start, as_of, yes_bid, yes_ask, no_bid, no_ask
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (market_id, bucket_start) DO NOTHING`

	_, err := p.db.ExecContext(ctx, query,
		q.MarketID, types.BucketTo5m(q.AsOf), q.AsOf,
		nullDecimal(q.YesBid), nullDecimal(q.YesAsk),
		nullDecimal(q.NoBid), nullDecimal(q.NoAsk),
	)
	if err != nil {
		WriteErrorsTotal.WithLabelValues("quotes_5m").Inc()
		return fmt.Errorf("insert quote 5m %s: %w", q.MarketID, err)
	}

	RowsWrittenTotal.WithLabelValues("quotes_5m").Inc()
	return nil
}

// GetQuotes5m returns the 5-minute samples of a market between start and
// end inclusive, oldest bucket first.
func (p *PostgresStorage) GetQuotes5m(ctx context.Context, marketID string, start, end time.Time) ([]types.Quote, error) {
	query := `
	SELECT market_id, bucket_start, as_of, yes_bid, yes_ask, no_bid, no_ask
	FROM quotes_5m
	WHERE market_id = $1
	  AND bucket_start >= $2
	  AND bucket_start <= $3
	ORDER BY bucket_start ASC`

	var rows []quote5mRow
	if err := p.db.SelectContext(ctx, &rows, query, marketID, start, end); err != nil {
		ReadErrorsTotal.WithLabelValues("quotes_5m").Inc()
		return nil, fmt.Errorf("get quotes 5m %s: %w", marketID, err)
	}

	quotes := make([]types.Quote, 0, len(rows))
	for _, row := range rows {
		quotes = append(quotes, row.toDomain())
	}
	return quotes, nil
}

// DeleteOldQuotes5m drops samples older than the retention window and
// returns the number of rows removed.
func (p *PostgresStorage) DeleteOldQuotes5m(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	res, err := p.db.ExecContext(ctx, `DELETE FROM quotes_5m WHERE bucket_start < $1`, cutoff)
	if err != nil {
		WriteErrorsTotal.WithLabelValues("quotes_5m").Inc()
		return 0, fmt.Errorf("delete old quotes 5m: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	p.logger.Info("quotes-5m-retention-applied",
		zap.Int64("rows-deleted", deleted),
		zap.Int("retention-days", retentionDays))
	return deleted, nil
}

// UpsertRule inserts or refreshes the rule snapshot for a market.
func (p *PostgresStorage) UpsertRule(ctx context.Context, r *types.RuleSnapshot) error {
	flags, err := marshalRiskFlags(r.RiskFlags)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO rules_latest (
		market_id, as_of, rule_text, rule_hash,
		settlement_source, settlement_window,
		definition_risk_score, risk_flags
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (market_id) DO UPDATE SET
		as_of = EXCLUDED.as_of,
		rule_text = EXCLUDED.rule_text,
		rule_hash = EXCLUDED.rule_hash,
		settlement_source = EXCLUDED.settlement_source,
		settlement_window = EXCLUDED.settlement_window,
		definition_risk_score = EXCLUDED.definition_risk_score,
		risk_flags = EXCLUDED.risk_flags,
		updated_at = NOW()`

	_, err = p.db.ExecContext(ctx, query,
		r.MarketID, r.AsOf, r.RuleText, r.RuleHash,
		nullString(r.SettlementSource), nullString(r.SettlementWindow),
		decimal.NewFromFloat(r.DefinitionRiskScore), flags,
	)
	if err != nil {
		WriteErrorsTotal.WithLabelValues("rules_latest").Inc()
		return fmt.Errorf("upsert rule %s: %w", r.MarketID, err)
	}

	RowsWrittenTotal.WithLabelValues("rules_latest").Inc()
	return nil
}

const selectRuleColumns = `
	SELECT market_id, as_of, rule_text, rule_hash,
	       settlement_source, settlement_window,
	       definition_risk_score, risk_flags
	FROM rules_latest`

// GetRule returns the rule snapshot for a market.
func (p *PostgresStorage) GetRule(ctx context.Context, marketID string) (*types.RuleSnapshot, error) {
	var row ruleRow
	err := p.db.GetContext(ctx, &row, selectRuleColumns+` WHERE market_id = $1`, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rule %s: %w", marketID, types.ErrNotFound)
		}
		ReadErrorsTotal.WithLabelValues("rules_latest").Inc()
		return nil, fmt.Errorf("get rule %s: %w", marketID, err)
	}

	rule, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("decode rule %s: %w", marketID, err)
	}
	return &rule, nil
}

// GetRulesBatch returns rule snapshots for the given markets.
func (p *PostgresStorage) GetRulesBatch(ctx context.Context, marketIDs []string) ([]types.RuleSnapshot, error) {
	if len(marketIDs) == 0 {
		return []types.RuleSnapshot{}, nil
	}

	var rows []ruleRow
	err := p.db.SelectContext(ctx, &rows, selectRuleColumns+` WHERE market_id = ANY($1)`, pq.Array(marketIDs))
	if err != nil {
		ReadErrorsTotal.WithLabelValues("rules_latest").Inc()
		return nil, fmt.Errorf("get rules batch: %w", err)
	}

	rules := make([]types.RuleSnapshot, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("decode rule %s: %w", row.MarketID, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// HasRuleChanged reports whether the stored hash differs from newHash.
// A market with no stored rule counts as changed.
func (p *PostgresStorage) HasRuleChanged(ctx context.Context, marketID, newHash string) (bool, error) {
	var hash string
	err := p.db.GetContext(ctx, &hash, `SELECT rule_hash FROM rules_latest WHERE market_id = $1`, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return true, nil
		}
		ReadErrorsTotal.WithLabelValues("rules_latest").Inc()
		return false, fmt.Errorf("check rule hash %s: %w", marketID, err)
	}

	return hash != newHash, nil
}

const upsertScoreQuery = `
	INSERT INTO scores_latest (
		market_id, as_of, t_remaining_sec, gross_yield, fee_bps,
		net_yield, yield_velocity, liquidity_score,
		staleness_sec, staleness_penalty, definition_risk_score,
		overall_score, score_breakdown
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (market_id) DO UPDATE SET
		as_of = EXCLUDED.as_of,
		t_remaining_sec = EXCLUDED.t_remaining_sec,
		gross_yield = EXCLUDED.gross_yield,
		fee_bps = EXCLUDED.fee_bps,
		net_yield = EXCLUDED.net_yield,
		yield_velocity = EXCLUDED.yield_velocity,
		liquidity_score = EXCLUDED.liquidity_score,
		staleness_sec = EXCLUDED.staleness_sec,
		staleness_penalty = EXCLUDED.staleness_penalty,
		definition_risk_score = EXCLUDED.definition_risk_score,
		overall_score = EXCLUDED.overall_score,
		score_breakdown = EXCLUDED.score_breakdown,
		updated_at = NOW()`

func scoreArgs(s *types.Score) []interface{} {
	breakdown := []byte(s.ScoreBreakdown)
	if len(breakdown) == 0 {
		breakdown = []byte("{}")
	}
	return []interface{}{
		s.MarketID, s.AsOf, s.TRemainingSec,
		decimal.NewFromFloat(s.GrossYield), decimal.NewFromFloat(s.FeeBps),
		decimal.NewFromFloat(s.NetYield), decimal.NewFromFloat(s.YieldVelocity),
		decimal.NewFromFloat(s.LiquidityScore),
		s.StalenessSec, decimal.NewFromFloat(s.StalenessPenalty),
		decimal.NewFromFloat(s.DefinitionRiskScore),
		decimal.NewFromFloat(s.OverallScore), breakdown,
	}
}

// UpsertScore inserts or refreshes the score for a market.
func (p *PostgresStorage) UpsertScore(ctx context.Context, s *types.Score) error {
	if _, err := p.db.ExecContext(ctx, upsertScoreQuery, scoreArgs(s)...); err != nil {
		WriteErrorsTotal.WithLabelValues("scores_latest").Inc()
		return fmt.Errorf("upsert score %s: %w", s.MarketID, err)
	}

	RowsWrittenTotal.WithLabelValues("scores_latest").Inc()
	return nil
}

// UpsertScoresBatch upserts scores in one transaction.
func (p *PostgresStorage) UpsertScoresBatch(ctx context.Context, scores []types.Score) error {
	if len(scores) == 0 {
		return nil
	}

	timer := prometheus.NewTimer(QueryDurationSeconds.WithLabelValues("upsert-scores-batch"))
	defer timer.ObserveDuration()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scores tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for i := range scores {
		s := &scores[i]
		if _, err := tx.ExecContext(ctx, upsertScoreQuery, scoreArgs(s)...); err != nil {
			WriteErrorsTotal.WithLabelValues("scores_latest").Inc()
			return fmt.Errorf("upsert score %s in batch: %w", s.MarketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		WriteErrorsTotal.WithLabelValues("scores_latest").Inc()
		return fmt.Errorf("commit scores tx: %w", err)
	}

	RowsWrittenTotal.WithLabelValues("scores_latest").Add(float64(len(scores)))
	p.logger.Debug("scores-batch-stored", zap.Int("count", len(scores)))
	return nil
}

const selectScoreColumns = `
	SELECT market_id, as_of, t_remaining_sec, gross_yield, fee_bps,
	       net_yield, yield_velocity, liquidity_score,
	       staleness_sec, staleness_penalty, definition_risk_score,
	       overall_score, score_breakdown
	FROM scores_latest`

// GetScore returns the score for a market.
func (p *PostgresStorage) GetScore(ctx context.Context, marketID string) (*types.Score, error) {
	var row scoreRow
	err := p.db.GetContext(ctx, &row, selectScoreColumns+` WHERE market_id = $1`, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("score %s: %w", marketID, types.ErrNotFound)
		}
		ReadErrorsTotal.WithLabelValues("scores_latest").Inc()
		return nil, fmt.Errorf("get score %s: %w", marketID, err)
	}

	s := row.toDomain()
	return &s, nil
}

// ListTopScores returns scores matching the filter, best first.
func (p *PostgresStorage) ListTopScores(ctx context.Context, f ScoreFilter) ([]types.Score, error) {
	query := selectScoreColumns + `
	WHERE ($1::numeric IS NULL OR overall_score >= $1)
	  AND ($2::bigint IS NULL OR t_remaining_sec <= $2)
	ORDER BY overall_score DESC
	LIMIT $3 OFFSET $4`

	var rows []scoreRow
	err := p.db.SelectContext(ctx, &rows, query, f.MinScore, f.MaxTRemainingSec, f.Limit, f.Offset)
	if err != nil {
		ReadErrorsTotal.WithLabelValues("scores_latest").Inc()
		return nil, fmt.Errorf("list top scores: %w", err)
	}

	scores := make([]types.Score, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, row.toDomain())
	}
	return scores, nil
}

const upsertRecQuery = `
	INSERT INTO recs_latest (
		market_id, as_of, recommended_side, entry_price,
		expected_payout, max_position_pct, risk_score,
		risk_flags, notes
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (market_id) DO UPDATE SET
		as_of = EXCLUDED.as_of,
		recommended_side = EXCLUDED.recommended_side,
		entry_price = EXCLUDED.entry_price,
		expected_payout = EXCLUDED.expected_payout,
		max_position_pct = EXCLUDED.max_position_pct,
		risk_score = EXCLUDED.risk_score,
		risk_flags = EXCLUDED.risk_flags,
		notes = EXCLUDED.notes,
		updated_at = NOW()`

// UpsertRec inserts or refreshes the recommendation for a market.
func (p *PostgresStorage) UpsertRec(ctx context.Context, r *types.Recommendation) error {
	flags, err := marshalRiskFlags(r.RiskFlags)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, upsertRecQuery,
		r.MarketID, r.AsOf, r.RecommendedSide,
		decimal.NewFromFloat(r.EntryPrice), decimal.NewFromFloat(r.ExpectedPayout),
		decimal.NewFromFloat(r.MaxPositionPct), decimal.NewFromFloat(r.RiskScore),
		flags, nullString(r.Notes),
	)
	if err != nil {
		WriteErrorsTotal.WithLabelValues("recs_latest").Inc()
		return fmt.Errorf("upsert rec %s: %w", r.MarketID, err)
	}

	RowsWrittenTotal.WithLabelValues("recs_latest").Inc()
	return nil
}

// UpsertRecsBatch upserts recommendations in one transaction.
func (p *PostgresStorage) UpsertRecsBatch(ctx context.Context, recs []types.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}

	timer := prometheus.NewTimer(QueryDurationSeconds.WithLabelValues("upsert-recs-batch"))
	defer timer.ObserveDuration()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recs tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	for i := range recs {
		r := &recs[i]
		flags, err := marshalRiskFlags(r.RiskFlags)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, upsertRecQuery,
			r.MarketID, r.AsOf, r.RecommendedSide,
			decimal.NewFromFloat(r.EntryPrice), decimal.NewFromFloat(r.ExpectedPayout),
			decimal.NewFromFloat(r.MaxPositionPct), decimal.NewFromFloat(r.RiskScore),
			flags, nullString(r.Notes),
		)
		if err != nil {
			WriteErrorsTotal.WithLabelValues("recs_latest").Inc()
			return fmt.Errorf("upsert rec %s in batch: %w", r.MarketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		WriteErrorsTotal.WithLabelValues("recs_latest").Inc()
		return fmt.Errorf("commit recs tx: %w", err)
	}

	RowsWrittenTotal.WithLabelValues("recs_latest").Add(float64(len(recs)))
	p.logger.Debug("recs-batch-stored", zap.Int("count", len(recs)))
	return nil
}

// GetRec returns the recommendation for a market.
func (p *PostgresStorage) GetRec(ctx context.Context, marketID string) (*types.Recommendation, error) {
	query := `
	SELECT market_id, as_of, recommended_side, entry_price,
	       expected_payout, max_position_pct, risk_score,
	       risk_flags, notes
	FROM recs_latest
	WHERE market_id = $1`

	var row recRow
	err := p.db.GetContext(ctx, &row, query, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rec %s: %w", marketID, types.ErrNotFound)
		}
		ReadErrorsTotal.WithLabelValues("recs_latest").Inc()
		return nil, fmt.Errorf("get rec %s: %w", marketID, err)
	}

	rec, err := row.toDomain()
	if err != nil {
		return nil, fmt.Errorf("decode rec %s: %w", marketID, err)
	}
	return &rec, nil
}

// recFilterPredicates is shared by ListRecs and CountRecs so both see the
// same rows.
const recFilterPredicates = `
	WHERE ($1::numeric IS NULL OR s.overall_score >= $1)
	  AND ($2::bigint IS NULL OR s.t_remaining_sec <= $2)
	  AND ($3::numeric IS NULL OR r.risk_score <= $3)
	  AND ($4::boolean IS NULL OR
	       ($4 = true AND jsonb_array_length(r.risk_flags) > 0) OR
	       ($4 = false AND jsonb_array_length(r.risk_flags) = 0))`

// ListRecs returns recommendations matching the filter, ordered by the
// joined overall score, best first.
func (p *PostgresStorage) ListRecs(ctx context.Context, f RecFilter) ([]types.Recommendation, error) {
	timer := prometheus.NewTimer(QueryDurationSeconds.WithLabelValues("list-recs"))
	defer timer.ObserveDuration()

	query := `
	SELECT r.market_id, r.as_of, r.recommended_side, r.entry_price,
	       r.expected_payout, r.max_position_pct, r.risk_score,
	       r.risk_flags, r.notes
	FROM recs_latest r
	LEFT JOIN scores_latest s ON r.market_id = s.market_id` +
		recFilterPredicates + `
	ORDER BY s.overall_score DESC NULLS LAST
	LIMIT $5 OFFSET $6`

	var rows []recRow
	err := p.db.SelectContext(ctx, &rows, query,
		f.MinScore, f.MaxTRemainingSec, f.MaxRiskScore, f.HasFlags,
		f.Limit, f.Offset,
	)
	if err != nil {
		ReadErrorsTotal.WithLabelValues("recs_latest").Inc()
		return nil, fmt.Errorf("list recs: %w", err)
	}

	recs := make([]types.Recommendation, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("decode rec %s: %w", row.MarketID, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// CountRecs counts recommendations matching the filter.
func (p *PostgresStorage) CountRecs(ctx context.Context, f RecFilter) (int64, error) {
	query := `
	SELECT COUNT(*)
	FROM recs_latest r
	LEFT JOIN scores_latest s ON r.market_id = s.market_id` +
		recFilterPredicates

	var count int64
	err := p.db.GetContext(ctx, &count, query,
		f.MinScore, f.MaxTRemainingSec, f.MaxRiskScore, f.HasFlags,
	)
	if err != nil {
		ReadErrorsTotal.WithLabelValues("recs_latest").Inc()
		return 0, fmt.Errorf("count recs: %w", err)
	}

	return count, nil
}
