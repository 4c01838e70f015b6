// Package rollup appends per-tick samples across every timeframe, carrying
// the running cumulative sums that back VWAP.
package rollup

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pump-radar/internal/storage"
	"pump-radar/internal/timeframe"
)

// SampleStore is the slice of the repository the writer needs.
type SampleStore interface {
	InsertSample(ctx context.Context, tf timeframe.TimeFrame, sample storage.Sample) error
	LatestSample(ctx context.Context, symbol string, tf timeframe.TimeFrame) (storage.Sample, error)
}

// Writer fans one tick out into one new rollup row per timeframe.
type Writer struct {
	store  SampleStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewWriter constructs a Writer.
func NewWriter(store SampleStore, logger zerolog.Logger) *Writer {
	return &Writer{
		store:  store,
		logger: logger.With().Str("component", "rollup").Logger(),
		now:    time.Now,
	}
}

// Append writes one sample per timeframe for the tick. Cumulative sums are
// seeded from the most recent prior row of that symbol+timeframe (zero when
// the series is empty); the running sums only reset when retention has
// removed the whole series. The six timeframe writes are independent and run
// concurrently.
func (w *Writer) Append(ctx context.Context, symbol string, price, volume float64) error {
	ts := w.now().UTC()

	var group errgroup.Group
	for _, tf := range timeframe.All() {
		group.Go(func() error {
			return w.appendOne(ctx, tf, symbol, price, volume, ts)
		})
	}
	return group.Wait()
}

func (w *Writer) appendOne(ctx context.Context, tf timeframe.TimeFrame, symbol string, price, volume float64, ts time.Time) error {
	var prevValue, prevVolume float64
	prev, err := w.store.LatestSample(ctx, symbol, tf)
	switch {
	case err == nil:
		prevValue = prev.CumulativeValue
		prevVolume = prev.CumulativeVolume
	case errors.Is(err, storage.ErrNotFound):
		// Empty series seeds at zero.
	default:
		return err
	}

	cumulativeValue := prevValue + price*volume
	cumulativeVolume := prevVolume + volume
	vwap := price
	if cumulativeVolume > 0 {
		vwap = cumulativeValue / cumulativeVolume
	}

	return w.store.InsertSample(ctx, tf, storage.Sample{
		Symbol:           symbol,
		Price:            price,
		Volume:           volume,
		CumulativeValue:  cumulativeValue,
		CumulativeVolume: cumulativeVolume,
		VWAP:             vwap,
		Timestamp:        ts,
	})
}
