// Package orderbook maintains per-symbol order-book snapshots and detects
// whale-sized orders.
package orderbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pump-radar/internal/alerting"
	"pump-radar/internal/feed"
	"pump-radar/internal/retry"
	"pump-radar/internal/storage"
)

const (
	// DefaultDepth bounds the levels fetched per side.
	DefaultDepth = 10
	// DefaultFreshness is how long a stored snapshot stays current.
	DefaultFreshness = 5 * time.Minute
	// whaleCooldown throttles the whale notification side-channel per symbol.
	whaleCooldown = time.Minute
)

// DepthSource is the slice of the feed the provider consumes.
type DepthSource interface {
	FetchOrderBook(ctx context.Context, symbol string, depth int) (feed.Depth, error)
}

// TradeSource exposes the public trade tape.
type TradeSource interface {
	FetchTrades(ctx context.Context, symbol string) ([]feed.Trade, error)
}

// Options parameterise the provider.
type Options struct {
	Depth             int
	Freshness         time.Duration
	WhaleThresholdUSD float64
}

// Provider fetches, analyses, and persists order-book state.
type Provider struct {
	source   DepthSource
	tape     TradeSource
	books    storage.OrderBookStore
	whales   storage.WhaleStore
	notifier alerting.Notifier
	cooldown *alerting.Cooldown
	policy   retry.Policy

	depth     int
	freshness time.Duration
	threshold decimal.Decimal

	logger zerolog.Logger
	now    func() time.Time
}

// NewProvider constructs a Provider. The notifier may be nil, disabling the
// whale side-channel; tape may be nil, restricting whale detection to resting
// order-book levels.
func NewProvider(source DepthSource, tape TradeSource, books storage.OrderBookStore, whales storage.WhaleStore, notifier alerting.Notifier, opts Options, logger zerolog.Logger) *Provider {
	if opts.Depth <= 0 {
		opts.Depth = DefaultDepth
	}
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.WhaleThresholdUSD <= 0 {
		opts.WhaleThresholdUSD = 50_000
	}
	return &Provider{
		source:    source,
		tape:      tape,
		books:     books,
		whales:    whales,
		notifier:  notifier,
		cooldown:  alerting.NewCooldown(whaleCooldown),
		policy:    retry.DefaultPolicy(feed.IsRateLimited),
		depth:     opts.Depth,
		freshness: opts.Freshness,
		threshold: decimal.NewFromFloat(opts.WhaleThresholdUSD),
		logger:    logger.With().Str("component", "orderbook").Logger(),
		now:       time.Now,
	}
}

// Refresh fetches a fresh depth snapshot, analyses it, and replaces the
// symbol's live row.
func (p *Provider) Refresh(ctx context.Context, symbol string) (storage.OrderBookSnapshot, error) {
	book, err := retry.Do(ctx, p.policy, p.logger, "order book "+symbol, func(ctx context.Context) (feed.Depth, error) {
		return p.source.FetchOrderBook(ctx, symbol, p.depth)
	})
	if err != nil {
		return storage.OrderBookSnapshot{}, err
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return storage.OrderBookSnapshot{}, fmt.Errorf("%w: empty order book side for %s", feed.ErrInvalidData, symbol)
	}

	snapshot := analyze(symbol, book, p.now().UTC())
	if err := p.books.UpsertOrderBook(ctx, snapshot); err != nil {
		return storage.OrderBookSnapshot{}, err
	}
	return snapshot, nil
}

// Strength returns the stored snapshot when it is fresh, refreshing it
// otherwise.
func (p *Provider) Strength(ctx context.Context, symbol string) (storage.OrderBookSnapshot, error) {
	snapshot, err := p.books.GetOrderBook(ctx, symbol)
	if err == nil && p.now().UTC().Sub(snapshot.Timestamp) < p.freshness {
		return snapshot, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storage.OrderBookSnapshot{}, err
	}
	return p.Refresh(ctx, symbol)
}

// DetectWhales scans current order-book levels, and the recent trade tape
// when a tape source is wired, for orders whose notional reaches the USD
// threshold. Qualifying entries are persisted in one batch; each also
// triggers an immediate notification subject to the provider's own 60s
// per-symbol cooldown.
func (p *Provider) DetectWhales(ctx context.Context, symbol string, lastPrice float64) ([]storage.WhaleTrade, error) {
	book, err := retry.Do(ctx, p.policy, p.logger, "whale depth "+symbol, func(ctx context.Context) (feed.Depth, error) {
		return p.source.FetchOrderBook(ctx, symbol, p.depth)
	})
	if err != nil {
		return nil, err
	}

	price := decimal.NewFromFloat(lastPrice)
	now := p.now().UTC()

	var trades []storage.WhaleTrade
	for _, level := range book.Bids {
		if p.qualifies(level, price) {
			trades = append(trades, storage.WhaleTrade{Symbol: symbol, Side: "buy", Amount: level.Size, Timestamp: now})
		}
	}
	for _, level := range book.Asks {
		if p.qualifies(level, price) {
			trades = append(trades, storage.WhaleTrade{Symbol: symbol, Side: "sell", Amount: level.Size, Timestamp: now})
		}
	}

	trades = append(trades, p.tapeWhales(ctx, symbol)...)
	if len(trades) == 0 {
		return nil, nil
	}

	for _, trade := range trades {
		p.announce(ctx, trade, lastPrice)
	}

	if err := p.whales.InsertWhaleTrades(ctx, trades); err != nil {
		return nil, err
	}
	p.logger.Debug().Str("symbol", symbol).Int("count", len(trades)).Msg("whale orders logged")
	return trades, nil
}

func (p *Provider) qualifies(level feed.Level, price decimal.Decimal) bool {
	notional := decimal.NewFromFloat(level.Size).Mul(price)
	return notional.GreaterThanOrEqual(p.threshold)
}

// tapeWhales scans the recent trade tape at each trade's executed price.
// Tape errors degrade to book-only detection.
func (p *Provider) tapeWhales(ctx context.Context, symbol string) []storage.WhaleTrade {
	if p.tape == nil {
		return nil
	}
	recent, err := retry.Do(ctx, p.policy, p.logger, "whale tape "+symbol, func(ctx context.Context) ([]feed.Trade, error) {
		return p.tape.FetchTrades(ctx, symbol)
	})
	if err != nil {
		p.logger.Debug().Err(err).Str("symbol", symbol).Msg("trade tape scan failed")
		return nil
	}

	var trades []storage.WhaleTrade
	for _, trade := range recent {
		notional := decimal.NewFromFloat(trade.Amount).Mul(decimal.NewFromFloat(trade.Price))
		if notional.GreaterThanOrEqual(p.threshold) {
			trades = append(trades, storage.WhaleTrade{Symbol: symbol, Side: trade.Side, Amount: trade.Amount, Timestamp: trade.Time.UTC()})
		}
	}
	return trades
}

func (p *Provider) announce(ctx context.Context, trade storage.WhaleTrade, lastPrice float64) {
	if p.notifier == nil {
		return
	}
	if !p.cooldown.ShouldAlert(trade.Symbol, p.now()) {
		return
	}
	alert := alerting.Alert{
		Symbol:       trade.Symbol,
		CurrentPrice: lastPrice,
		Whale:        &alerting.WhaleActivity{Side: trade.Side, Amount: trade.Amount},
	}
	if err := p.notifier.Notify(ctx, alert); err != nil {
		p.logger.Warn().Err(err).Str("symbol", trade.Symbol).Msg("whale notification failed")
	}
}

func analyze(symbol string, book feed.Depth, ts time.Time) storage.OrderBookSnapshot {
	var bidSize, askSize float64
	for _, level := range book.Bids {
		bidSize += level.Size
	}
	for _, level := range book.Asks {
		askSize += level.Size
	}
	denominator := askSize
	if denominator < 1 {
		denominator = 1
	}

	bestBid := book.Bids[0].Price
	bestAsk := book.Asks[0].Price

	return storage.OrderBookSnapshot{
		Symbol:    symbol,
		Bids:      marshalLevels(book.Bids),
		Asks:      marshalLevels(book.Asks),
		Imbalance: bidSize / denominator,
		BestBid:   bestBid,
		BestAsk:   bestAsk,
		Spread:    bestAsk - bestBid,
		Timestamp: ts,
	}
}

func marshalLevels(levels []feed.Level) json.RawMessage {
	pairs := make([][2]float64, len(levels))
	for i, level := range levels {
		pairs[i] = [2]float64{level.Price, level.Size}
	}
	raw, _ := json.Marshal(pairs)
	return raw
}
