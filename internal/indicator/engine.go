// Package indicator computes technical indicators over bounded slices of
// rollup history.
package indicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pump-radar/internal/storage"
	"pump-radar/internal/timeframe"
)

var (
	// ErrInsufficientData means too few samples exist for the requested
	// indicator. Expected in steady state while a window fills; callers skip
	// the symbol for the cycle.
	ErrInsufficientData = errors.New("indicator: insufficient data")
	// ErrNoData means the series is empty.
	ErrNoData = errors.New("indicator: no data")
)

// DefaultRSIPeriod is the lookback used for trend classification.
const DefaultRSIPeriod = 14

// SampleReader is the read-only slice of the repository the engine uses.
type SampleReader interface {
	LatestSample(ctx context.Context, symbol string, tf timeframe.TimeFrame) (storage.Sample, error)
	RecentSamples(ctx context.Context, symbol string, tf timeframe.TimeFrame, limit int) ([]storage.Sample, error)
	SamplesAscending(ctx context.Context, symbol string, tf timeframe.TimeFrame) ([]storage.Sample, error)
}

// FundingReader exposes the latest stored funding rate.
type FundingReader interface {
	LatestFundingRate(ctx context.Context, symbol string) (float64, bool, error)
}

// Engine derives indicators from stored rollup series.
type Engine struct {
	samples SampleReader
	funding FundingReader
	now     func() time.Time
}

// NewEngine constructs an Engine.
func NewEngine(samples SampleReader, funding FundingReader) *Engine {
	return &Engine{samples: samples, funding: funding, now: time.Now}
}

// VWAP returns the stored running VWAP of the newest sample, provided that
// sample falls within the timeframe's own duration.
func (e *Engine) VWAP(ctx context.Context, symbol string, tf timeframe.TimeFrame) (float64, error) {
	latest, err := e.samples.LatestSample(ctx, symbol, tf)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("%w: no %s sample for %s", ErrInsufficientData, tf, symbol)
		}
		return 0, err
	}
	cutoff := e.now().UTC().Add(-tf.Duration())
	if latest.Timestamp.Before(cutoff) {
		return 0, fmt.Errorf("%w: stale %s vwap for %s", ErrInsufficientData, tf, symbol)
	}
	return latest.VWAP, nil
}

// RSI computes the relative strength index over the period+1 newest samples.
// The loss denominator is floored at 1 to avoid division by zero; this is not
// Wilder smoothing.
func (e *Engine) RSI(ctx context.Context, symbol string, tf timeframe.TimeFrame, period int) (float64, error) {
	if period <= 0 {
		period = DefaultRSIPeriod
	}

	rows, err := e.samples.RecentSamples(ctx, symbol, tf, period+1)
	if err != nil {
		return 0, err
	}
	if len(rows) < period+1 {
		return 0, fmt.Errorf("%w: rsi needs %d samples, have %d", ErrInsufficientData, period+1, len(rows))
	}

	var gains, losses float64
	for i := 1; i < len(rows); i++ {
		// Rows are newest-first, so a positive difference is a gain.
		diff := rows[i-1].Price - rows[i].Price
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	denominator := avgLoss
	if denominator < 1 {
		denominator = 1
	}
	rs := avgGain / denominator
	return 100 - 100/(1+rs), nil
}

// EMA approximates an exponential moving average over a short newest-first
// window: seeded with the newest price, multiplier 2/(period+1), applied
// across period-1 further points moving toward older samples.
func (e *Engine) EMA(ctx context.Context, symbol string, tf timeframe.TimeFrame, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("ema period must be positive, got %d", period)
	}

	rows, err := e.samples.RecentSamples(ctx, symbol, tf, period*2)
	if err != nil {
		return 0, err
	}
	if len(rows) < period {
		return 0, fmt.Errorf("%w: ema needs %d samples, have %d", ErrInsufficientData, period, len(rows))
	}

	multiplier := 2 / float64(period+1)
	ema := rows[0].Price
	for i := 1; i < period; i++ {
		ema = (rows[i].Price-ema)*multiplier + ema
	}
	return ema, nil
}

// OBV accumulates signed volume across the full retained series, oldest
// first: +volume on an up-tick, -volume on a down-tick.
func (e *Engine) OBV(ctx context.Context, symbol string, tf timeframe.TimeFrame) (float64, error) {
	rows, err := e.samples.SamplesAscending(ctx, symbol, tf)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("%w: no %s series for %s", ErrNoData, tf, symbol)
	}

	var obv float64
	for i := 1; i < len(rows); i++ {
		switch {
		case rows[i].Price > rows[i-1].Price:
			obv += rows[i].Volume
		case rows[i].Price < rows[i-1].Price:
			obv -= rows[i].Volume
		}
	}
	return obv, nil
}

// FundingRate returns the latest stored rate, or zero when none exists.
// Absence never blocks trend classification.
func (e *Engine) FundingRate(ctx context.Context, symbol string) (float64, error) {
	rate, found, err := e.funding.LatestFundingRate(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return rate, nil
}
