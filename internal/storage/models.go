package storage

import (
	"encoding/json"
	"time"
)

// Sample is one rollup row: the tick plus running cumulative sums used to
// derive VWAP. Rows are immutable once written; a series is append-only.
type Sample struct {
	ID               int64
	Symbol           string
	Price            float64
	Volume           float64
	CumulativeValue  float64
	CumulativeVolume float64
	VWAP             float64
	Timestamp        time.Time
}

// OrderBookSnapshot is the single live order-book row per symbol.
type OrderBookSnapshot struct {
	Symbol    string
	Bids      json.RawMessage
	Asks      json.RawMessage
	Imbalance float64
	BestBid   float64
	BestAsk   float64
	Spread    float64
	Timestamp time.Time
}

// WhaleTrade is one detected large order or trade, in base-asset units.
type WhaleTrade struct {
	ID        int64
	Symbol    string
	Side      string // "buy" or "sell"
	Amount    float64
	Timestamp time.Time
}

// FundingRateSample is one stored funding-rate observation; the latest row
// per symbol is authoritative.
type FundingRateSample struct {
	Symbol    string
	Rate      float64
	Timestamp time.Time
}
