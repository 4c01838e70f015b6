// Package feed defines the market-data feed surface consumed by the pipeline
// and its Binance-backed implementation.
package feed

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimited marks a transient upstream throttle; the retry wrapper
	// recognises it specifically.
	ErrRateLimited = errors.New("feed: rate limited")
	// ErrInvalidData marks a malformed or empty upstream payload.
	ErrInvalidData = errors.New("feed: invalid data")
)

// Ticker is one symbol's latest price and rolling quote volume.
type Ticker struct {
	Symbol string
	Price  float64
	Volume float64
}

// Level is a single order-book price level.
type Level struct {
	Price float64
	Size  float64
}

// Depth holds a bounded-depth order book, best levels first.
type Depth struct {
	Bids []Level
	Asks []Level
}

// Trade is one public trade-tape entry.
type Trade struct {
	Price  float64
	Amount float64
	Side   string // "buy" or "sell"
	Time   time.Time
}

// Client is the REST surface of the market-data feed. Every call may fail
// with ErrRateLimited.
type Client interface {
	FetchTickers(ctx context.Context) (map[string]Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (Depth, error)
	FetchTrades(ctx context.Context, symbol string) ([]Trade, error)
	FetchFundingRate(ctx context.Context, symbol string) (float64, error)
}

// IsRateLimited reports whether err is (or wraps) a rate-limit signal.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
