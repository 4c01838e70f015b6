package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pump-radar/internal/alerting"
	"pump-radar/internal/analysis"
	"pump-radar/internal/feed"
	"pump-radar/internal/indicator"
	"pump-radar/internal/storage"
	"pump-radar/internal/timeframe"
)

type fakeMarket struct {
	latest    storage.Sample
	latestErr error
	priceAvg  float64
	volumeAvg float64
	avgErr    error
}

func (f *fakeMarket) LatestSample(context.Context, string, timeframe.TimeFrame) (storage.Sample, error) {
	return f.latest, f.latestErr
}

func (f *fakeMarket) AveragePrice(context.Context, string, timeframe.TimeFrame, time.Time) (float64, error) {
	return f.priceAvg, f.avgErr
}

func (f *fakeMarket) AverageVolume(context.Context, string, timeframe.TimeFrame, time.Time) (float64, error) {
	return f.volumeAvg, f.avgErr
}

type fakeBooks struct {
	snapshot   storage.OrderBookSnapshot
	candidates []storage.WhaleTrade
}

func (f *fakeBooks) Strength(context.Context, string) (storage.OrderBookSnapshot, error) {
	return f.snapshot, nil
}

func (f *fakeBooks) DetectWhales(context.Context, string, float64) ([]storage.WhaleTrade, error) {
	return f.candidates, nil
}

type fakeTrends struct {
	trend       analysis.TrendResult
	trendErr    error
	breakout    string
	breakoutErr error
}

func (f *fakeTrends) DetectTrend(context.Context, string) (analysis.TrendResult, error) {
	return f.trend, f.trendErr
}

func (f *fakeTrends) DetectBreakout(context.Context, string) (string, error) {
	return f.breakout, f.breakoutErr
}

type fakeWhales struct {
	trades []storage.WhaleTrade
}

func (f *fakeWhales) RecentWhaleTrades(context.Context, string, time.Time, int) ([]storage.WhaleTrade, error) {
	return f.trades, nil
}

type fakeFunding struct {
	rate  float64
	found bool
}

func (f *fakeFunding) LatestFundingRate(context.Context, string) (float64, bool, error) {
	return f.rate, f.found, nil
}

type captureNotifier struct {
	alerts []alerting.Alert
}

func (c *captureNotifier) Notify(_ context.Context, alert alerting.Alert) error {
	c.alerts = append(c.alerts, alert)
	return nil
}

// scenario bundles a fully passing bullish setup; tests mutate one input
// each to prove the corresponding gate.
type scenario struct {
	market   *fakeMarket
	books    *fakeBooks
	trends   *fakeTrends
	whales   *fakeWhales
	funding  *fakeFunding
	notifier *captureNotifier
}

func bullishScenario() *scenario {
	return &scenario{
		market: &fakeMarket{
			// +8% over the 5m average, 6x the average volume, above VWAP.
			latest:    storage.Sample{Symbol: "BTCUSDT", Price: 108, Volume: 60, VWAP: 104},
			priceAvg:  100,
			volumeAvg: 10,
		},
		books: &fakeBooks{snapshot: storage.OrderBookSnapshot{Imbalance: 2.5}},
		trends: &fakeTrends{
			trend:    analysis.TrendResult{Label: analysis.TrendBullish, RSI1H: 68},
			breakout: analysis.BreakoutNone,
		},
		whales:   &fakeWhales{trades: []storage.WhaleTrade{{Symbol: "BTCUSDT", Side: "buy", Amount: 12}}},
		funding:  &fakeFunding{rate: 0.0004, found: true},
		notifier: &captureNotifier{},
	}
}

func (s *scenario) engine() *Engine {
	return New(s.market, s.books, s.trends, s.whales, s.funding, s.notifier, DefaultConfig(), zerolog.Nop())
}

func (s *scenario) evaluate(t *testing.T) {
	t.Helper()
	if err := s.engine().Evaluate(context.Background(), feed.Tick{Symbol: "BTCUSDT", Price: 108}); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
}

func TestBullishAlertFires(t *testing.T) {
	s := bullishScenario()
	s.evaluate(t)

	if len(s.notifier.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(s.notifier.alerts))
	}
	alert := s.notifier.alerts[0]
	if alert.Symbol != "BTCUSDT" || alert.PriceChangePct != 8 || alert.VolumeMultiple != 6 {
		t.Fatalf("unexpected payload: %+v", alert)
	}
	if alert.Whale == nil || alert.Whale.Side != "buy" {
		t.Fatalf("whale confirmation missing: %+v", alert.Whale)
	}
}

func TestStrongTrendRaisesThresholds(t *testing.T) {
	s := bullishScenario()
	// +5% clears the neutral bar but not the strong-trend bar of 6%.
	s.market.latest.Price = 105

	s.evaluate(t)
	if len(s.notifier.alerts) != 0 {
		t.Fatal("5% move must not alert under strong-trend thresholds")
	}
}

func TestNeutralTrendNeedsBreakout(t *testing.T) {
	s := bullishScenario()
	s.trends.trend = analysis.TrendResult{Label: analysis.TrendNeutral, RSI1H: 55}
	s.trends.breakout = analysis.BreakoutNone

	s.evaluate(t)
	if len(s.notifier.alerts) != 0 {
		t.Fatal("neutral trend without breakout must not alert")
	}

	s.trends.breakout = analysis.BreakoutBullish
	s.evaluate(t)
	if len(s.notifier.alerts) != 1 {
		t.Fatal("neutral trend with bullish breakout should alert")
	}
}

func TestExtremeFundingSuppressesAlert(t *testing.T) {
	s := bullishScenario()
	s.funding.rate = 0.002

	s.evaluate(t)
	if len(s.notifier.alerts) != 0 {
		t.Fatal("extreme funding must suppress the alert")
	}
}

func TestMissingFundingAborts(t *testing.T) {
	s := bullishScenario()
	s.funding.found = false

	s.evaluate(t)
	if len(s.notifier.alerts) != 0 {
		t.Fatal("absent funding rate must abort the evaluation")
	}
}

func TestWhaleConfirmationRequired(t *testing.T) {
	s := bullishScenario()
	s.whales.trades = nil
	s.books.candidates = nil

	s.evaluate(t)
	if len(s.notifier.alerts) != 0 {
		t.Fatal("no whale confirmation must mean no alert")
	}

	// A live order-book candidate substitutes for a stored trade.
	s.books.candidates = []storage.WhaleTrade{{Symbol: "BTCUSDT", Side: "buy", Amount: 8}}
	s.evaluate(t)
	if len(s.notifier.alerts) != 1 {
		t.Fatal("live whale candidate should confirm the alert")
	}
}

func TestWrongSideWhaleDoesNotConfirm(t *testing.T) {
	s := bullishScenario()
	s.whales.trades = []storage.WhaleTrade{{Symbol: "BTCUSDT", Side: "sell", Amount: 12}}
	s.books.candidates = nil

	s.evaluate(t)
	if len(s.notifier.alerts) != 0 {
		t.Fatal("a sell-side whale must not confirm a bullish alert")
	}
}

func TestPriceBelowVWAPBlocksBullish(t *testing.T) {
	s := bullishScenario()
	s.market.latest.VWAP = 120

	s.evaluate(t)
	if len(s.notifier.alerts) != 0 {
		t.Fatal("price below VWAP must block a bullish alert")
	}
}

func TestBearishAlertFires(t *testing.T) {
	s := bullishScenario()
	// -8% under the average, below VWAP, ask-heavy book, sell whale.
	s.market.latest = storage.Sample{Symbol: "BTCUSDT", Price: 92, Volume: 60, VWAP: 96}
	s.books.snapshot.Imbalance = 0.4
	s.trends.trend = analysis.TrendResult{Label: analysis.TrendBearish, RSI1H: 32}
	s.whales.trades = []storage.WhaleTrade{{Symbol: "BTCUSDT", Side: "sell", Amount: 20}}

	s.evaluate(t)
	if len(s.notifier.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(s.notifier.alerts))
	}
	alert := s.notifier.alerts[0]
	if alert.PriceChangePct != -8 || alert.Whale.Side != "sell" {
		t.Fatalf("unexpected bearish payload: %+v", alert)
	}
}

func TestBalancedBookBlocksBearish(t *testing.T) {
	s := bullishScenario()
	s.market.latest = storage.Sample{Symbol: "BTCUSDT", Price: 92, Volume: 60, VWAP: 96}
	s.trends.trend = analysis.TrendResult{Label: analysis.TrendBearish, RSI1H: 32}
	s.whales.trades = []storage.WhaleTrade{{Symbol: "BTCUSDT", Side: "sell", Amount: 20}}
	// 1/2 = 0.5 is the bearish bar under strong-trend thresholds.
	s.books.snapshot.Imbalance = 0.8

	s.evaluate(t)
	if len(s.notifier.alerts) != 0 {
		t.Fatal("balanced book must block a bearish alert")
	}
}

func TestEmptyAveragesAbortQuietly(t *testing.T) {
	s := bullishScenario()
	s.market.priceAvg = 0

	s.evaluate(t)
	if len(s.notifier.alerts) != 0 {
		t.Fatal("zero price average must abort without alerting")
	}
}

func TestTrendErrorPropagates(t *testing.T) {
	s := bullishScenario()
	s.trends.trendErr = indicator.ErrInsufficientData

	err := s.engine().Evaluate(context.Background(), feed.Tick{Symbol: "BTCUSDT", Price: 108})
	if !errors.Is(err, indicator.ErrInsufficientData) {
		t.Fatalf("expected insufficient-data error, got %v", err)
	}
	if len(s.notifier.alerts) != 0 {
		t.Fatal("no alert may be sent when trend detection fails")
	}
}
