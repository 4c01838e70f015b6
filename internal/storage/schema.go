package storage

import (
	"context"
	"fmt"

	"pump-radar/internal/timeframe"
)

const createRollupTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    symbol TEXT NOT NULL,
    price DOUBLE PRECISION NOT NULL,
    volume DOUBLE PRECISION NOT NULL,
    cumulative_value DOUBLE PRECISION NOT NULL DEFAULT 0,
    cumulative_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
    vwap DOUBLE PRECISION NOT NULL DEFAULT 0,
    ts TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_%s_symbol_ts ON %s (symbol, ts);`

const createOrderBooksSQL = `CREATE TABLE IF NOT EXISTS order_books (
    symbol TEXT PRIMARY KEY,
    bids JSONB NOT NULL,
    asks JSONB NOT NULL,
    imbalance DOUBLE PRECISION NOT NULL,
    best_bid DOUBLE PRECISION NOT NULL,
    best_ask DOUBLE PRECISION NOT NULL,
    spread DOUBLE PRECISION NOT NULL,
    ts TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const createWhaleTradesSQL = `CREATE TABLE IF NOT EXISTS whale_trades (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
    amount DOUBLE PRECISION NOT NULL,
    ts TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_whale_trades_symbol_ts ON whale_trades (symbol, ts);`

const createFundingRatesSQL = `CREATE TABLE IF NOT EXISTS funding_rates (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    symbol TEXT NOT NULL,
    rate DOUBLE PRECISION NOT NULL,
    ts TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_funding_rates_symbol_ts ON funding_rates (symbol, ts);`

// InitSchema creates the rollup, order-book, whale and funding tables when
// missing. Safe to run on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, tf := range timeframe.All() {
		table := tf.Table()
		stmt := fmt.Sprintf(createRollupTableSQL, table, table, table)
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}

	for _, stmt := range []string{createOrderBooksSQL, createWhaleTradesSQL, createFundingRatesSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create auxiliary table: %w", err)
		}
	}
	return nil
}
