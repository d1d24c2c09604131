package repository

import "fmt"

// Table names inside the configured ClickHouse database.
const (
	TableBars      = "snapshots_bars"
	TableMarket    = "snapshots_market"
	TableDecisions = "decisions"
	TableOutcomes  = "outcomes"
)

// SchemaStatements returns idempotent DDL for every table the service reads
// or writes. The snapshot tables are filled by an external collector.
func SchemaStatements(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    symbol           LowCardinality(String),
    timeframe        LowCardinality(String),
    open_time        DateTime64(3, 'UTC'),
    open             Float64,
    high             Float64,
    low              Float64,
    close            Float64,
    volume           Float64,
    quote_volume     Float64,
    taker_buy_volume Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, timeframe, open_time)`, database, TableBars),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    symbol        LowCardinality(String),
    ts            DateTime64(3, 'UTC'),
    funding_rate  Float64,
    open_interest Float64,
    bid_notional  Float64,
    ask_notional  Float64,
    liq_long_usd  Float64,
    liq_short_usd Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, ts)`, database, TableMarket),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    id                     UUID,
    scan_id                String,
    scanned_at             DateTime64(3, 'UTC'),
    symbol                 LowCardinality(String),
    side                   LowCardinality(String),
    publish                Bool,
    soft_pass              Bool,
    weighted_score         Float64,
    confidence_index       Float64,
    calibrated_probability Float64,
    trend_stage            LowCardinality(String),
    entry_low              Float64,
    entry_high             Float64,
    stop_loss              Float64,
    take_profit_1          Float64,
    take_profit_2          Float64,
    reward_risk            Float64,
    reject_reasons         String,
    payload                String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(scanned_at)
ORDER BY (symbol, scanned_at)
TTL toDateTime(scanned_at) + INTERVAL 180 DAY`, database, TableDecisions),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    decision_id String,
    symbol      LowCardinality(String),
    side        LowCardinality(String),
    score       Float64,
    win         Bool,
    closed_at   DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree
ORDER BY (closed_at, symbol, decision_id)`, database, TableOutcomes),
	}
}
