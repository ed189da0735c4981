package storage

// Idempotent DDL for the full table set. Latest-value tables key on
// market_id; history tables key on (market_id, bucket_start).
const schemaDDL = `
CREATE TABLE IF NOT EXISTS markets (
	market_id     TEXT PRIMARY KEY,
	venue         TEXT NOT NULL,
	title         TEXT NOT NULL,
	slug          TEXT,
	category      TEXT,
	status        TEXT NOT NULL,
	open_time     TIMESTAMPTZ,
	close_time    TIMESTAMPTZ,
	resolved_time TIMESTAMPTZ,
	url           TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_markets_status_close_time
	ON markets (status, close_time);

CREATE TABLE IF NOT EXISTS market_outcomes (
	market_id TEXT NOT NULL,
	outcome   TEXT NOT NULL,
	token_id  TEXT,
	PRIMARY KEY (market_id, outcome)
);

CREATE TABLE IF NOT EXISTS quotes_latest (
	market_id    TEXT PRIMARY KEY,
	as_of        TIMESTAMPTZ NOT NULL,
	yes_bid      NUMERIC,
	yes_ask      NUMERIC,
	no_bid       NUMERIC,
	no_ask       NUMERIC,
	spread_yes   NUMERIC,
	spread_no    NUMERIC,
	mid_yes      NUMERIC,
	mid_no       NUMERIC,
	quote_source TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS quotes_5m (
	market_id    TEXT NOT NULL,
	bucket_start TIMESTAMPTZ NOT NULL,
	as_of        TIMESTAMPTZ NOT NULL,
	yes_bid      NUMERIC,
	yes_ask      NUMERIC,
	no_bid       NUMERIC,
	no_ask       NUMERIC,
	PRIMARY KEY (market_id, bucket_start)
);

CREATE INDEX IF NOT EXISTS idx_quotes_5m_bucket_start
	ON quotes_5m (bucket_start);

CREATE TABLE IF NOT EXISTS rules_latest (
	market_id             TEXT PRIMARY KEY,
	as_of                 TIMESTAMPTZ NOT NULL,
	rule_text             TEXT NOT NULL,
	rule_hash             TEXT NOT NULL,
	settlement_source     TEXT,
	settlement_window     TEXT,
	definition_risk_score NUMERIC NOT NULL,
	risk_flags            JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS scores_latest (
	market_id             TEXT PRIMARY KEY,
	as_of                 TIMESTAMPTZ NOT NULL,
	t_remaining_sec       BIGINT NOT NULL,
	gross_yield           NUMERIC NOT NULL,
	fee_bps               NUMERIC NOT NULL,
	net_yield             NUMERIC NOT NULL,
	yield_velocity        NUMERIC NOT NULL,
	liquidity_score       NUMERIC NOT NULL,
	staleness_sec         BIGINT NOT NULL,
	staleness_penalty     NUMERIC NOT NULL,
	definition_risk_score NUMERIC NOT NULL,
	overall_score         NUMERIC NOT NULL,
	score_breakdown       JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_scores_latest_overall_score
	ON scores_latest (overall_score DESC);

CREATE TABLE IF NOT EXISTS recs_latest (
	market_id        TEXT PRIMARY KEY,
	as_of            TIMESTAMPTZ NOT NULL,
	recommended_side TEXT NOT NULL,
	entry_price      NUMERIC NOT NULL,
	expected_payout  NUMERIC NOT NULL,
	max_position_pct NUMERIC NOT NULL,
	risk_score       NUMERIC NOT NULL,
	risk_flags       JSONB NOT NULL DEFAULT '[]'::jsonb,
	notes            TEXT,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
