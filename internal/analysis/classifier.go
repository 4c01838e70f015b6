// Package analysis classifies per-symbol trend and breakout state from
// multi-timeframe indicators.
package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pump-radar/internal/indicator"
	"pump-radar/internal/storage"
	"pump-radar/internal/timeframe"
)

// Trend labels.
const (
	TrendBullish           = "Bullish"
	TrendBullishOverheated = "Bullish (Overheated)"
	TrendBearish           = "Bearish"
	TrendBearishOverheated = "Bearish (Overheated)"
	TrendNeutral           = "Neutral"
)

// Breakout labels.
const (
	BreakoutBullish = "Bullish Breakout"
	BreakoutBearish = "Bearish Breakout"
	BreakoutNone    = "No Breakout"
)

// Indicators is the slice of the indicator engine the classifier consumes.
type Indicators interface {
	RSI(ctx context.Context, symbol string, tf timeframe.TimeFrame, period int) (float64, error)
	EMA(ctx context.Context, symbol string, tf timeframe.TimeFrame, period int) (float64, error)
	OBV(ctx context.Context, symbol string, tf timeframe.TimeFrame) (float64, error)
	FundingRate(ctx context.Context, symbol string) (float64, error)
}

// SampleReader provides the 1h price rows breakout detection reads.
type SampleReader interface {
	RecentSamples(ctx context.Context, symbol string, tf timeframe.TimeFrame, limit int) ([]storage.Sample, error)
}

// Config holds classification thresholds.
type Config struct {
	RSIBullish       float64 // RSI above this is strong bullish
	RSIBearish       float64 // RSI below this is strong bearish
	FundingThreshold float64 // |funding| above this marks an overheated trend
	BreakoutLookback int     // candles consulted by DetectBreakout
}

// TrendResult carries the trend label plus the inputs the alert payload
// reuses.
type TrendResult struct {
	Label       string
	RSI1H       float64
	FundingRate float64
}

// Bullish reports a strong bullish trend (overheated included).
func (r TrendResult) Bullish() bool { return strings.HasPrefix(r.Label, TrendBullish) }

// Bearish reports a strong bearish trend (overheated included).
func (r TrendResult) Bearish() bool { return strings.HasPrefix(r.Label, TrendBearish) }

// Neutral reports the absence of a strong trend.
func (r TrendResult) Neutral() bool { return r.Label == TrendNeutral }

// Classifier combines indicators across timeframes into discrete labels.
type Classifier struct {
	indicators Indicators
	samples    SampleReader
	cfg        Config
	logger     zerolog.Logger
}

// NewClassifier constructs a Classifier.
func NewClassifier(indicators Indicators, samples SampleReader, cfg Config, logger zerolog.Logger) *Classifier {
	if cfg.RSIBullish == 0 {
		cfg.RSIBullish = 60
	}
	if cfg.RSIBearish == 0 {
		cfg.RSIBearish = 40
	}
	if cfg.FundingThreshold == 0 {
		cfg.FundingThreshold = 0.001
	}
	if cfg.BreakoutLookback == 0 {
		cfg.BreakoutLookback = 3
	}
	return &Classifier{
		indicators: indicators,
		samples:    samples,
		cfg:        cfg,
		logger:     logger.With().Str("component", "classifier").Logger(),
	}
}

// DetectTrend classifies the symbol from RSI(1h), the EMA9/EMA12 cross and
// OBV on 4h, and the latest funding rate, all gathered concurrently.
func (c *Classifier) DetectTrend(ctx context.Context, symbol string) (TrendResult, error) {
	var (
		rsi1h, ema9, ema12, obv, funding float64
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		rsi1h, err = c.indicators.RSI(groupCtx, symbol, timeframe.H1, indicator.DefaultRSIPeriod)
		return err
	})
	group.Go(func() (err error) {
		ema9, err = c.indicators.EMA(groupCtx, symbol, timeframe.H4, 9)
		return err
	})
	group.Go(func() (err error) {
		ema12, err = c.indicators.EMA(groupCtx, symbol, timeframe.H4, 12)
		return err
	})
	group.Go(func() (err error) {
		obv, err = c.indicators.OBV(groupCtx, symbol, timeframe.H4)
		return err
	})
	group.Go(func() (err error) {
		funding, err = c.indicators.FundingRate(groupCtx, symbol)
		return err
	})
	if err := group.Wait(); err != nil {
		return TrendResult{}, fmt.Errorf("detect trend for %s: %w", symbol, err)
	}

	result := TrendResult{Label: TrendNeutral, RSI1H: rsi1h, FundingRate: funding}
	switch {
	case rsi1h > c.cfg.RSIBullish && ema9 > ema12 && obv > 0:
		result.Label = TrendBullish
		if funding > c.cfg.FundingThreshold {
			result.Label = TrendBullishOverheated
		}
	case rsi1h < c.cfg.RSIBearish && ema9 < ema12 && obv < 0:
		result.Label = TrendBearish
		if funding < -c.cfg.FundingThreshold {
			result.Label = TrendBearishOverheated
		}
	}
	return result, nil
}

// DetectBreakout compares the newest 1h price against the high/low of the
// prior candles.
func (c *Classifier) DetectBreakout(ctx context.Context, symbol string) (string, error) {
	lookback := c.cfg.BreakoutLookback
	rows, err := c.samples.RecentSamples(ctx, symbol, timeframe.H1, lookback)
	if err != nil {
		return "", err
	}
	if len(rows) < lookback {
		return "", fmt.Errorf("%w: breakout needs %d 1h samples, have %d", indicator.ErrInsufficientData, lookback, len(rows))
	}

	latest := rows[0].Price
	recentHigh := rows[1].Price
	recentLow := rows[1].Price
	for _, row := range rows[2:] {
		if row.Price > recentHigh {
			recentHigh = row.Price
		}
		if row.Price < recentLow {
			recentLow = row.Price
		}
	}

	switch {
	case latest > recentHigh:
		return BreakoutBullish, nil
	case latest < recentLow:
		return BreakoutBearish, nil
	}
	return BreakoutNone, nil
}
