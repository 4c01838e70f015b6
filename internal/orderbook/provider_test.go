package orderbook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pump-radar/internal/alerting"
	"pump-radar/internal/feed"
	"pump-radar/internal/storage"
)

type fakeDepthSource struct {
	depth   feed.Depth
	err     error
	fetches int
}

func (f *fakeDepthSource) FetchOrderBook(context.Context, string, int) (feed.Depth, error) {
	f.fetches++
	return f.depth, f.err
}

type fakeBookStore struct {
	mu       sync.Mutex
	snapshot storage.OrderBookSnapshot
	stored   bool
}

func (f *fakeBookStore) UpsertOrderBook(_ context.Context, snapshot storage.OrderBookSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = snapshot
	f.stored = true
	return nil
}

func (f *fakeBookStore) GetOrderBook(context.Context, string) (storage.OrderBookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stored {
		return storage.OrderBookSnapshot{}, storage.ErrNotFound
	}
	return f.snapshot, nil
}

type fakeWhaleStore struct {
	inserted []storage.WhaleTrade
}

func (f *fakeWhaleStore) InsertWhaleTrades(_ context.Context, trades []storage.WhaleTrade) error {
	f.inserted = append(f.inserted, trades...)
	return nil
}

func (f *fakeWhaleStore) RecentWhaleTrades(context.Context, string, time.Time, int) ([]storage.WhaleTrade, error) {
	return f.inserted, nil
}

type captureNotifier struct {
	alerts []alerting.Alert
}

func (c *captureNotifier) Notify(_ context.Context, alert alerting.Alert) error {
	c.alerts = append(c.alerts, alert)
	return nil
}

func twoSidedBook() feed.Depth {
	return feed.Depth{
		Bids: []feed.Level{{Price: 100, Size: 30}, {Price: 99, Size: 10}},
		Asks: []feed.Level{{Price: 101, Size: 15}, {Price: 102, Size: 5}},
	}
}

type fakeTradeSource struct {
	trades []feed.Trade
}

func (f *fakeTradeSource) FetchTrades(context.Context, string) ([]feed.Trade, error) {
	return f.trades, nil
}

func newProvider(source DepthSource, books storage.OrderBookStore, whales storage.WhaleStore, notifier alerting.Notifier, opts Options) *Provider {
	return NewProvider(source, nil, books, whales, notifier, opts, zerolog.Nop())
}

func TestRefreshAnalyzesAndUpserts(t *testing.T) {
	source := &fakeDepthSource{depth: twoSidedBook()}
	books := &fakeBookStore{}
	p := newProvider(source, books, &fakeWhaleStore{}, nil, Options{})

	snapshot, err := p.Refresh(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if snapshot.Imbalance != 40.0/20.0 {
		t.Fatalf("imbalance = %v, want 2", snapshot.Imbalance)
	}
	if snapshot.BestBid != 100 || snapshot.BestAsk != 101 || snapshot.Spread != 1 {
		t.Fatalf("best levels wrong: %+v", snapshot)
	}
	if !books.stored {
		t.Fatal("snapshot was not persisted")
	}
}

func TestStrengthUsesFreshCache(t *testing.T) {
	source := &fakeDepthSource{depth: twoSidedBook()}
	books := &fakeBookStore{}
	p := newProvider(source, books, &fakeWhaleStore{}, nil, Options{})

	if _, err := p.Refresh(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	fetchesAfterRefresh := source.fetches

	if _, err := p.Strength(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("strength failed: %v", err)
	}
	if source.fetches != fetchesAfterRefresh {
		t.Fatal("fresh snapshot should not trigger a refetch")
	}
}

func TestStrengthRefreshesStaleSnapshot(t *testing.T) {
	source := &fakeDepthSource{depth: twoSidedBook()}
	books := &fakeBookStore{}
	p := newProvider(source, books, &fakeWhaleStore{}, nil, Options{})

	if _, err := p.Refresh(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	books.snapshot.Timestamp = time.Now().UTC().Add(-6 * time.Minute)
	fetchesBefore := source.fetches

	if _, err := p.Strength(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("strength failed: %v", err)
	}
	if source.fetches != fetchesBefore+1 {
		t.Fatal("stale snapshot should trigger a refetch")
	}
}

func TestDetectWhalesThresholdAndBatch(t *testing.T) {
	source := &fakeDepthSource{depth: feed.Depth{
		Bids: []feed.Level{{Price: 100, Size: 600}, {Price: 99, Size: 1}},
		Asks: []feed.Level{{Price: 101, Size: 700}, {Price: 102, Size: 2}},
	}}
	whales := &fakeWhaleStore{}
	notifier := &captureNotifier{}
	p := newProvider(source, &fakeBookStore{}, whales, notifier, Options{WhaleThresholdUSD: 50_000})

	trades, err := p.DetectWhales(context.Background(), "BTCUSDT", 100)
	if err != nil {
		t.Fatalf("detect whales failed: %v", err)
	}

	// 600*100 and 700*100 qualify; the 1- and 2-unit levels do not.
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if trades[0].Side != "buy" || trades[1].Side != "sell" {
		t.Fatalf("sides = %s/%s, want buy/sell", trades[0].Side, trades[1].Side)
	}
	if len(whales.inserted) != 2 {
		t.Fatalf("persisted = %d, want 2 in one batch", len(whales.inserted))
	}
	// Second qualifying level for the same symbol is inside the 60s cooldown.
	if len(notifier.alerts) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.alerts))
	}
	if notifier.alerts[0].Whale == nil || notifier.alerts[0].Whale.Side != "buy" {
		t.Fatalf("unexpected whale alert: %+v", notifier.alerts[0])
	}
}

func TestDetectWhalesIncludesTapeTrades(t *testing.T) {
	source := &fakeDepthSource{depth: twoSidedBook()}
	tape := &fakeTradeSource{trades: []feed.Trade{
		{Price: 100, Amount: 900, Side: "sell", Time: time.Now()},
		{Price: 100, Amount: 1, Side: "buy", Time: time.Now()},
	}}
	whales := &fakeWhaleStore{}
	p := NewProvider(source, tape, &fakeBookStore{}, whales, nil, Options{WhaleThresholdUSD: 50_000}, zerolog.Nop())

	trades, err := p.DetectWhales(context.Background(), "BTCUSDT", 100)
	if err != nil {
		t.Fatalf("detect whales failed: %v", err)
	}

	// No resting level qualifies; only the 900-unit executed sell does.
	if len(trades) != 1 || trades[0].Side != "sell" || trades[0].Amount != 900 {
		t.Fatalf("trades = %+v, want one 900-unit sell from the tape", trades)
	}
	if len(whales.inserted) != 1 {
		t.Fatalf("persisted = %d, want 1", len(whales.inserted))
	}
}

func TestDetectWhalesNothingQualifies(t *testing.T) {
	source := &fakeDepthSource{depth: twoSidedBook()}
	whales := &fakeWhaleStore{}
	p := newProvider(source, &fakeBookStore{}, whales, nil, Options{WhaleThresholdUSD: 50_000})

	trades, err := p.DetectWhales(context.Background(), "BTCUSDT", 100)
	if err != nil {
		t.Fatalf("detect whales failed: %v", err)
	}
	if len(trades) != 0 || len(whales.inserted) != 0 {
		t.Fatalf("expected no whale trades, got %d", len(trades))
	}
}
