package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints the most recent rollup rows for a symbol and timeframe.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show samples")
	}
	defer closeStore()

	samples, err := store.RecentSamples(ctx, opts.Symbol, opts.Timeframe, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice\tVolume\tVWAP\tCumValue\tCumVolume")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%.6f\t%.4f\t%.6f\t%.2f\t%.2f\n",
			sample.Timestamp.UTC().Format(time.RFC3339),
			sample.Price,
			sample.Volume,
			sample.VWAP,
			sample.CumulativeValue,
			sample.CumulativeVolume,
		)
	}

	writer.Flush()
	return nil
}
