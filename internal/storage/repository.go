package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pump-radar/internal/timeframe"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
)

const (
	insertSampleSQL = `INSERT INTO %s (symbol, price, volume, cumulative_value, cumulative_volume, vwap, ts)
    VALUES ($1, $2, $3, $4, $5, $6, $7);`

	latestSampleSQL = `SELECT id, symbol, price, volume, cumulative_value, cumulative_volume, vwap, ts
    FROM %s WHERE symbol = $1 ORDER BY ts DESC LIMIT 1;`

	recentSamplesSQL = `SELECT id, symbol, price, volume, cumulative_value, cumulative_volume, vwap, ts
    FROM %s WHERE symbol = $1 ORDER BY ts DESC LIMIT $2;`

	samplesAscendingSQL = `SELECT id, symbol, price, volume, cumulative_value, cumulative_volume, vwap, ts
    FROM %s WHERE symbol = $1 ORDER BY ts ASC;`

	samplesBetweenSQL = `SELECT id, symbol, price, volume, cumulative_value, cumulative_volume, vwap, ts
    FROM %s WHERE symbol = $1 AND ts >= $2 AND ts < $3 ORDER BY ts ASC;`

	averagePriceSQL = `SELECT AVG(price) FROM %s WHERE symbol = $1 AND ts >= $2;`

	averageVolumeSQL = `SELECT AVG(volume) FROM %s WHERE symbol = $1 AND ts >= $2;`

	deleteExpiredSQL = `DELETE FROM %s WHERE ts < $1;`

	upsertOrderBookSQL = `INSERT INTO order_books (symbol, bids, asks, imbalance, best_bid, best_ask, spread, ts)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    ON CONFLICT (symbol) DO UPDATE
    SET bids      = EXCLUDED.bids,
        asks      = EXCLUDED.asks,
        imbalance = EXCLUDED.imbalance,
        best_bid  = EXCLUDED.best_bid,
        best_ask  = EXCLUDED.best_ask,
        spread    = EXCLUDED.spread,
        ts        = EXCLUDED.ts;`

	getOrderBookSQL = `SELECT symbol, bids, asks, imbalance, best_bid, best_ask, spread, ts
    FROM order_books WHERE symbol = $1;`

	insertWhaleTradeSQL = `INSERT INTO whale_trades (symbol, side, amount, ts) VALUES ($1, $2, $3, $4);`

	recentWhaleTradesSQL = `SELECT id, symbol, side, amount, ts
    FROM whale_trades WHERE symbol = $1 AND ts >= $2 ORDER BY ts DESC LIMIT $3;`

	insertFundingRateSQL = `INSERT INTO funding_rates (symbol, rate, ts) VALUES ($1, $2, $3);`

	latestFundingRateSQL = `SELECT rate FROM funding_rates WHERE symbol = $1 ORDER BY ts DESC LIMIT 1;`
)

// Auxiliary table retention horizons applied by the sweep.
const (
	orderBookRetention   = 10 * time.Minute
	whaleTradeRetention  = 7 * 24 * time.Hour
	fundingRateRetention = 24 * time.Hour
)

// SampleStore defines rollup-series persistence. Reads are time-bounded or
// row-limited; the series itself is append-only.
type SampleStore interface {
	InsertSample(ctx context.Context, tf timeframe.TimeFrame, sample Sample) error
	LatestSample(ctx context.Context, symbol string, tf timeframe.TimeFrame) (Sample, error)
	RecentSamples(ctx context.Context, symbol string, tf timeframe.TimeFrame, limit int) ([]Sample, error)
	SamplesAscending(ctx context.Context, symbol string, tf timeframe.TimeFrame) ([]Sample, error)
	SamplesBetween(ctx context.Context, symbol string, tf timeframe.TimeFrame, from, to time.Time) ([]Sample, error)
	AveragePrice(ctx context.Context, symbol string, tf timeframe.TimeFrame, since time.Time) (float64, error)
	AverageVolume(ctx context.Context, symbol string, tf timeframe.TimeFrame, since time.Time) (float64, error)
}

// OrderBookStore holds one live snapshot per symbol.
type OrderBookStore interface {
	UpsertOrderBook(ctx context.Context, snapshot OrderBookSnapshot) error
	GetOrderBook(ctx context.Context, symbol string) (OrderBookSnapshot, error)
}

// WhaleStore defines whale-trade persistence.
type WhaleStore interface {
	InsertWhaleTrades(ctx context.Context, trades []WhaleTrade) error
	RecentWhaleTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]WhaleTrade, error)
}

// FundingStore defines funding-rate persistence.
type FundingStore interface {
	InsertFundingRate(ctx context.Context, symbol string, rate float64, ts time.Time) error
	LatestFundingRate(ctx context.Context, symbol string) (float64, bool, error)
}

// Sweeper deletes rows past their retention horizon.
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) error
}

// Store aggregates access to all pipeline tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertSample appends one rollup row for symbol+timeframe.
func (s *Store) InsertSample(ctx context.Context, tf timeframe.TimeFrame, sample Sample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf(insertSampleSQL, tf.Table())
	_, execErr := pool.Exec(ctx, stmt,
		sample.Symbol,
		sample.Price,
		sample.Volume,
		sample.CumulativeValue,
		sample.CumulativeVolume,
		sample.VWAP,
		sample.Timestamp,
	)
	if execErr != nil {
		return fmt.Errorf("insert %s sample: %w", tf, execErr)
	}
	return nil
}

// LatestSample returns the most recent row for symbol+timeframe.
func (s *Store) LatestSample(ctx context.Context, symbol string, tf timeframe.TimeFrame) (Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return Sample{}, err
	}
	row := pool.QueryRow(ctx, fmt.Sprintf(latestSampleSQL, tf.Table()), symbol)
	sample, scanErr := scanSample(row)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return Sample{}, ErrNotFound
		}
		return Sample{}, fmt.Errorf("latest %s sample: %w", tf, scanErr)
	}
	return sample, nil
}

// RecentSamples lists up to limit rows, newest first.
func (s *Store) RecentSamples(ctx context.Context, symbol string, tf timeframe.TimeFrame, limit int) ([]Sample, error) {
	return s.querySamples(ctx, fmt.Sprintf(recentSamplesSQL, tf.Table()), symbol, limit)
}

// SamplesAscending lists the full retained series, oldest first.
func (s *Store) SamplesAscending(ctx context.Context, symbol string, tf timeframe.TimeFrame) ([]Sample, error) {
	return s.querySamples(ctx, fmt.Sprintf(samplesAscendingSQL, tf.Table()), symbol)
}

// SamplesBetween lists rows within [from, to), oldest first.
func (s *Store) SamplesBetween(ctx context.Context, symbol string, tf timeframe.TimeFrame, from, to time.Time) ([]Sample, error) {
	return s.querySamples(ctx, fmt.Sprintf(samplesBetweenSQL, tf.Table()), symbol, from, to)
}

func (s *Store) querySamples(ctx context.Context, stmt string, args ...any) ([]Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, stmt, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("query samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]Sample, 0)
	for rows.Next() {
		sample, scanErr := scanSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// AveragePrice returns the mean price over rows at or after since, or zero
// when no rows qualify.
func (s *Store) AveragePrice(ctx context.Context, symbol string, tf timeframe.TimeFrame, since time.Time) (float64, error) {
	return s.queryAverage(ctx, fmt.Sprintf(averagePriceSQL, tf.Table()), symbol, since)
}

// AverageVolume returns the mean volume over rows at or after since, or zero
// when no rows qualify.
func (s *Store) AverageVolume(ctx context.Context, symbol string, tf timeframe.TimeFrame, since time.Time) (float64, error) {
	return s.queryAverage(ctx, fmt.Sprintf(averageVolumeSQL, tf.Table()), symbol, since)
}

func (s *Store) queryAverage(ctx context.Context, stmt, symbol string, since time.Time) (float64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var avg *float64
	if scanErr := pool.QueryRow(ctx, stmt, symbol, since).Scan(&avg); scanErr != nil {
		return 0, fmt.Errorf("query average: %w", scanErr)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// UpsertOrderBook replaces the live snapshot for the symbol.
func (s *Store) UpsertOrderBook(ctx context.Context, snapshot OrderBookSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertOrderBookSQL,
		snapshot.Symbol,
		[]byte(snapshot.Bids),
		[]byte(snapshot.Asks),
		snapshot.Imbalance,
		snapshot.BestBid,
		snapshot.BestAsk,
		snapshot.Spread,
		snapshot.Timestamp,
	)
	if execErr != nil {
		return fmt.Errorf("upsert order book: %w", execErr)
	}
	return nil
}

// GetOrderBook returns the live snapshot for the symbol.
func (s *Store) GetOrderBook(ctx context.Context, symbol string) (OrderBookSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return OrderBookSnapshot{}, err
	}

	var snap OrderBookSnapshot
	scanErr := pool.QueryRow(ctx, getOrderBookSQL, symbol).Scan(
		&snap.Symbol,
		&snap.Bids,
		&snap.Asks,
		&snap.Imbalance,
		&snap.BestBid,
		&snap.BestAsk,
		&snap.Spread,
		&snap.Timestamp,
	)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return OrderBookSnapshot{}, ErrNotFound
		}
		return OrderBookSnapshot{}, fmt.Errorf("get order book: %w", scanErr)
	}
	return snap, nil
}

// InsertWhaleTrades appends all qualifying trades in one batch.
func (s *Store) InsertWhaleTrades(ctx context.Context, trades []WhaleTrade) error {
	if len(trades) == 0 {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, trade := range trades {
		batch.Queue(insertWhaleTradeSQL, trade.Symbol, trade.Side, trade.Amount, trade.Timestamp)
	}
	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for range trades {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert whale trades: %w", execErr)
		}
	}
	return nil
}

// RecentWhaleTrades lists whale trades at or after since, newest first.
func (s *Store) RecentWhaleTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]WhaleTrade, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, queryErr := pool.Query(ctx, recentWhaleTradesSQL, symbol, since, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("recent whale trades: %w", queryErr)
	}
	defer rows.Close()

	trades := make([]WhaleTrade, 0, limit)
	for rows.Next() {
		var trade WhaleTrade
		if err := rows.Scan(&trade.ID, &trade.Symbol, &trade.Side, &trade.Amount, &trade.Timestamp); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return trades, nil
}

// InsertFundingRate appends one funding-rate observation.
func (s *Store) InsertFundingRate(ctx context.Context, symbol string, rate float64, ts time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertFundingRateSQL, symbol, rate, ts); execErr != nil {
		return fmt.Errorf("insert funding rate: %w", execErr)
	}
	return nil
}

// LatestFundingRate returns the most recent stored rate. The boolean is false
// when no row exists; absence is not an error.
func (s *Store) LatestFundingRate(ctx context.Context, symbol string) (float64, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, false, err
	}
	var rate float64
	scanErr := pool.QueryRow(ctx, latestFundingRateSQL, symbol).Scan(&rate)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("latest funding rate: %w", scanErr)
	}
	return rate, true, nil
}

// DeleteExpired removes rows past each table's retention horizon. It runs on
// its own timer and holds no lock ingestion needs.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, tf := range timeframe.All() {
		cutoff := now.Add(-tf.Retention())
		stmt := fmt.Sprintf(deleteExpiredSQL, tf.Table())
		if _, execErr := pool.Exec(ctx, stmt, cutoff); execErr != nil {
			return fmt.Errorf("sweep %s: %w", tf.Table(), execErr)
		}
	}

	aux := []struct {
		table     string
		retention time.Duration
	}{
		{"order_books", orderBookRetention},
		{"whale_trades", whaleTradeRetention},
		{"funding_rates", fundingRateRetention},
	}
	for _, entry := range aux {
		stmt := fmt.Sprintf(deleteExpiredSQL, entry.table)
		if _, execErr := pool.Exec(ctx, stmt, now.Add(-entry.retention)); execErr != nil {
			return fmt.Errorf("sweep %s: %w", entry.table, execErr)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner) (Sample, error) {
	var sample Sample
	if err := row.Scan(
		&sample.ID,
		&sample.Symbol,
		&sample.Price,
		&sample.Volume,
		&sample.CumulativeValue,
		&sample.CumulativeVolume,
		&sample.VWAP,
		&sample.Timestamp,
	); err != nil {
		return Sample{}, err
	}
	return sample, nil
}

var (
	_ SampleStore    = (*Store)(nil)
	_ OrderBookStore = (*Store)(nil)
	_ WhaleStore     = (*Store)(nil)
	_ FundingStore   = (*Store)(nil)
	_ Sweeper        = (*Store)(nil)
)
