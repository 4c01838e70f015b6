// Package engine gates multi-signal alert decisions per symbol.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pump-radar/internal/alerting"
	"pump-radar/internal/analysis"
	"pump-radar/internal/feed"
	"pump-radar/internal/storage"
	"pump-radar/internal/timeframe"
)

// Thresholds gate one regime's alert conditions.
type Thresholds struct {
	PricePct       float64
	VolumeMultiple float64
	Imbalance      float64
}

// Config holds the decision parameters.
type Config struct {
	Neutral          Thresholds // no strong trend: breakout must confirm
	Strong           Thresholds // strong trend regime
	FundingThreshold float64    // |funding| above this invalidates the signal
	WhaleLookback    time.Duration
	WhaleLimit       int
	EvalTimeframe    timeframe.TimeFrame
}

// DefaultConfig mirrors the production thresholds.
func DefaultConfig() Config {
	return Config{
		Neutral:          Thresholds{PricePct: 4, VolumeMultiple: 3, Imbalance: 1.5},
		Strong:           Thresholds{PricePct: 6, VolumeMultiple: 5, Imbalance: 2},
		FundingThreshold: 0.001,
		WhaleLookback:    10 * time.Minute,
		WhaleLimit:       5,
		EvalTimeframe:    timeframe.M5,
	}
}

// MarketReader is the rollup read surface the engine needs.
type MarketReader interface {
	LatestSample(ctx context.Context, symbol string, tf timeframe.TimeFrame) (storage.Sample, error)
	AveragePrice(ctx context.Context, symbol string, tf timeframe.TimeFrame, since time.Time) (float64, error)
	AverageVolume(ctx context.Context, symbol string, tf timeframe.TimeFrame, since time.Time) (float64, error)
}

// BookProvider supplies order-book strength and live whale candidates.
type BookProvider interface {
	Strength(ctx context.Context, symbol string) (storage.OrderBookSnapshot, error)
	DetectWhales(ctx context.Context, symbol string, lastPrice float64) ([]storage.WhaleTrade, error)
}

// TrendSource classifies trend and breakout state.
type TrendSource interface {
	DetectTrend(ctx context.Context, symbol string) (analysis.TrendResult, error)
	DetectBreakout(ctx context.Context, symbol string) (string, error)
}

// WhaleReader lists recently persisted whale trades.
type WhaleReader interface {
	RecentWhaleTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]storage.WhaleTrade, error)
}

// FundingReader returns the latest stored funding rate.
type FundingReader interface {
	LatestFundingRate(ctx context.Context, symbol string) (float64, bool, error)
}

// Engine evaluates the alert gate for each live tick.
type Engine struct {
	market   MarketReader
	books    BookProvider
	trends   TrendSource
	whales   WhaleReader
	funding  FundingReader
	notifier alerting.Notifier
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs an Engine.
func New(market MarketReader, books BookProvider, trends TrendSource, whales WhaleReader, funding FundingReader, notifier alerting.Notifier, cfg Config, logger zerolog.Logger) *Engine {
	if cfg.WhaleLookback <= 0 {
		cfg.WhaleLookback = 10 * time.Minute
	}
	if cfg.WhaleLimit <= 0 {
		cfg.WhaleLimit = 5
	}
	if !cfg.EvalTimeframe.Valid() {
		cfg.EvalTimeframe = timeframe.M5
	}
	return &Engine{
		market:   market,
		books:    books,
		trends:   trends,
		whales:   whales,
		funding:  funding,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "alert_engine").Logger(),
		now:      time.Now,
	}
}

// gathered holds the settled outcome of the concurrent input fetch. Each
// input fails independently; a failed slot never aborts its siblings.
type gathered struct {
	priceAvg     float64
	priceAvgErr  error
	volumeAvg    float64
	volumeAvgErr error
	book         storage.OrderBookSnapshot
	bookErr      error
	candidates   []storage.WhaleTrade
	candErr      error
	fundingRate  float64
	fundingOK    bool
	fundingErr   error
}

// Evaluate runs the full decision for one live tick. A nil return with no
// dispatched alert is the common case; indicator shortfalls surface as
// errors the caller logs and skips.
func (e *Engine) Evaluate(ctx context.Context, tick feed.Tick) error {
	var (
		trend    analysis.TrendResult
		breakout string
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		trend, err = e.trends.DetectTrend(groupCtx, tick.Symbol)
		return err
	})
	group.Go(func() (err error) {
		breakout, err = e.trends.DetectBreakout(groupCtx, tick.Symbol)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	inputs := e.gather(ctx, tick)

	// A missing core input aborts quietly: no alert, no error.
	if inputs.priceAvgErr != nil || inputs.priceAvg == 0 ||
		inputs.volumeAvgErr != nil || inputs.volumeAvg == 0 ||
		inputs.bookErr != nil ||
		inputs.fundingErr != nil || !inputs.fundingOK {
		return nil
	}

	// Live whale scan failures degrade to stored-trade confirmation only.
	if inputs.candErr != nil {
		e.logger.Debug().Err(inputs.candErr).Str("symbol", tick.Symbol).Msg("live whale scan failed")
		inputs.candidates = nil
	}

	// Extreme funding invalidates the signal entirely.
	if abs(inputs.fundingRate) > e.cfg.FundingThreshold {
		e.logger.Debug().Str("symbol", tick.Symbol).Float64("funding", inputs.fundingRate).Msg("skipping alert due to extreme funding")
		return nil
	}

	latest, err := e.market.LatestSample(ctx, tick.Symbol, e.cfg.EvalTimeframe)
	if err != nil {
		return nil
	}

	priceChangePct := (latest.Price - inputs.priceAvg) / inputs.priceAvg * 100
	volumeMultiple := latest.Volume / inputs.volumeAvg
	priceAboveVWAP := latest.Price > latest.VWAP
	imbalance := inputs.book.Imbalance

	thresholds := e.cfg.Neutral
	if trend.Bullish() || trend.Bearish() {
		thresholds = e.cfg.Strong
	}

	bullishWhale, bearishWhale := e.whaleConfirmation(ctx, tick.Symbol, inputs.candidates)

	bullish := (trend.Bullish() || (trend.Neutral() && breakout == analysis.BreakoutBullish)) &&
		priceChangePct >= thresholds.PricePct &&
		volumeMultiple >= thresholds.VolumeMultiple &&
		imbalance > thresholds.Imbalance &&
		priceAboveVWAP &&
		bullishWhale != nil

	bearish := (trend.Bearish() || (trend.Neutral() && breakout == analysis.BreakoutBearish)) &&
		priceChangePct <= -thresholds.PricePct &&
		volumeMultiple >= thresholds.VolumeMultiple &&
		imbalance < 1/thresholds.Imbalance &&
		!priceAboveVWAP &&
		bearishWhale != nil

	var whale *alerting.WhaleActivity
	switch {
	case bullish:
		whale = bullishWhale
	case bearish:
		whale = bearishWhale
	default:
		return nil
	}

	alert := alerting.Alert{
		Symbol:             tick.Symbol,
		CurrentPrice:       latest.Price,
		PriceChangePct:     priceChangePct,
		VolumeMultiple:     volumeMultiple,
		OrderBookImbalance: imbalance,
		VWAP:               latest.VWAP,
		FundingRate:        inputs.fundingRate,
		RSI1H:              trend.RSI1H,
		Breakout:           breakout,
		Whale:              whale,
	}

	e.logger.Info().
		Str("symbol", tick.Symbol).
		Str("trend", trend.Label).
		Str("breakout", breakout).
		Float64("price_change_pct", priceChangePct).
		Float64("volume_multiple", volumeMultiple).
		Float64("imbalance", imbalance).
		Msg("alert conditions met")

	if err := e.notifier.Notify(ctx, alert); err != nil {
		return fmt.Errorf("dispatch alert for %s: %w", tick.Symbol, err)
	}
	return nil
}

// gather collects the five decision inputs concurrently with settled
// semantics.
func (e *Engine) gather(ctx context.Context, tick feed.Tick) gathered {
	since := e.now().UTC().Add(-e.cfg.EvalTimeframe.Duration())

	var g gathered
	var wg sync.WaitGroup
	wg.Add(5)
	go func() {
		defer wg.Done()
		g.priceAvg, g.priceAvgErr = e.market.AveragePrice(ctx, tick.Symbol, e.cfg.EvalTimeframe, since)
	}()
	go func() {
		defer wg.Done()
		g.volumeAvg, g.volumeAvgErr = e.market.AverageVolume(ctx, tick.Symbol, e.cfg.EvalTimeframe, since)
	}()
	go func() {
		defer wg.Done()
		g.book, g.bookErr = e.books.Strength(ctx, tick.Symbol)
	}()
	go func() {
		defer wg.Done()
		g.candidates, g.candErr = e.books.DetectWhales(ctx, tick.Symbol, tick.Price)
	}()
	go func() {
		defer wg.Done()
		g.fundingRate, g.fundingOK, g.fundingErr = e.funding.LatestFundingRate(ctx, tick.Symbol)
	}()
	wg.Wait()
	return g
}

// whaleConfirmation checks for a recently stored whale trade or a live
// order-book candidate on each side.
func (e *Engine) whaleConfirmation(ctx context.Context, symbol string, candidates []storage.WhaleTrade) (bullish, bearish *alerting.WhaleActivity) {
	since := e.now().UTC().Add(-e.cfg.WhaleLookback)
	stored, err := e.whales.RecentWhaleTrades(ctx, symbol, since, e.cfg.WhaleLimit)
	if err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("whale lookup failed")
		stored = nil
	}

	pick := func(trades []storage.WhaleTrade, side string) *alerting.WhaleActivity {
		for _, trade := range trades {
			if trade.Side == side {
				return &alerting.WhaleActivity{Side: trade.Side, Amount: trade.Amount}
			}
		}
		return nil
	}

	if bullish = pick(stored, "buy"); bullish == nil {
		bullish = pick(candidates, "buy")
	}
	if bearish = pick(stored, "sell"); bearish == nil {
		bearish = pick(candidates, "sell")
	}
	return bullish, bearish
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
