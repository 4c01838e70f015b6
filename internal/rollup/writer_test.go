package rollup

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"pump-radar/internal/storage"
	"pump-radar/internal/timeframe"
)

type memorySampleStore struct {
	mu     sync.Mutex
	series map[timeframe.TimeFrame]map[string][]storage.Sample
}

func newMemorySampleStore() *memorySampleStore {
	return &memorySampleStore{series: make(map[timeframe.TimeFrame]map[string][]storage.Sample)}
}

func (m *memorySampleStore) InsertSample(_ context.Context, tf timeframe.TimeFrame, sample storage.Sample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.series[tf] == nil {
		m.series[tf] = make(map[string][]storage.Sample)
	}
	m.series[tf][sample.Symbol] = append(m.series[tf][sample.Symbol], sample)
	return nil
}

func (m *memorySampleStore) LatestSample(_ context.Context, symbol string, tf timeframe.TimeFrame) (storage.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.series[tf][symbol]
	if len(rows) == 0 {
		return storage.Sample{}, storage.ErrNotFound
	}
	return rows[len(rows)-1], nil
}

func TestAppendWritesEveryTimeframe(t *testing.T) {
	store := newMemorySampleStore()
	writer := NewWriter(store, zerolog.Nop())

	if err := writer.Append(context.Background(), "BTCUSDT", 65000, 2); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	for _, tf := range timeframe.All() {
		rows := store.series[tf]["BTCUSDT"]
		if len(rows) != 1 {
			t.Fatalf("%s: expected 1 row, got %d", tf, len(rows))
		}
	}
}

func TestCumulativeSumsAndVWAP(t *testing.T) {
	store := newMemorySampleStore()
	writer := NewWriter(store, zerolog.Nop())
	ctx := context.Background()

	ticks := []struct{ price, volume float64 }{
		{100, 10},
		{110, 5},
		{90, 20},
	}
	for _, tick := range ticks {
		if err := writer.Append(ctx, "ETHUSDT", tick.price, tick.volume); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	rows := store.series[timeframe.M5]["ETHUSDT"]
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	for i, row := range rows {
		if row.VWAP != row.CumulativeValue/row.CumulativeVolume {
			t.Errorf("row %d: vwap %v != cumulativeValue/cumulativeVolume %v", i, row.VWAP, row.CumulativeValue/row.CumulativeVolume)
		}
		if i > 0 && row.CumulativeVolume < rows[i-1].CumulativeVolume {
			t.Errorf("row %d: cumulative volume decreased", i)
		}
	}

	wantValue := 100.0*10 + 110.0*5 + 90.0*20
	wantVolume := 35.0
	last := rows[2]
	if last.CumulativeValue != wantValue || last.CumulativeVolume != wantVolume {
		t.Fatalf("cumulative sums = (%v, %v), want (%v, %v)", last.CumulativeValue, last.CumulativeVolume, wantValue, wantVolume)
	}
	if math.Abs(last.VWAP-wantValue/wantVolume) > 1e-9 {
		t.Fatalf("vwap = %v, want %v", last.VWAP, wantValue/wantVolume)
	}
}

func TestZeroVolumeSeedFallsBackToPrice(t *testing.T) {
	store := newMemorySampleStore()
	writer := NewWriter(store, zerolog.Nop())

	if err := writer.Append(context.Background(), "XRPUSDT", 0.5, 0); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	row := store.series[timeframe.H1]["XRPUSDT"][0]
	if row.VWAP != 0.5 {
		t.Fatalf("vwap = %v, want price fallback 0.5", row.VWAP)
	}
}
