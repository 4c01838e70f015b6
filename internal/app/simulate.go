package app

import (
	"context"
	"errors"
	"fmt"

	"pump-radar/internal/alerting"
	"pump-radar/internal/analysis"
)

// SimulateAlert dispatches a synthetic alert through the configured webhook
// to verify delivery end to end. When no price is given, the current price is
// looked up from the live feed.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("alerting.discord_webhook_url is not configured")
	}

	if opts.CurrentPrice <= 0 {
		tickers, err := a.newFeed().FetchTickers(ctx)
		if err != nil {
			return fmt.Errorf("look up live price: %w", err)
		}
		ticker, ok := tickers[opts.Symbol]
		if !ok {
			return fmt.Errorf("no live ticker for %s", opts.Symbol)
		}
		opts.CurrentPrice = ticker.Price
	}

	breakout := analysis.BreakoutBullish
	if opts.PriceChangePct < 0 {
		breakout = analysis.BreakoutBearish
	}

	alert := alerting.Alert{
		Symbol:             opts.Symbol,
		CurrentPrice:       opts.CurrentPrice,
		PriceChangePct:     opts.PriceChangePct,
		VolumeMultiple:     4.0,
		OrderBookImbalance: 2.0,
		VWAP:               opts.CurrentPrice,
		Breakout:           breakout,
	}
	if opts.WhaleSide != "" {
		alert.Whale = &alerting.WhaleActivity{Side: opts.WhaleSide, Amount: opts.WhaleAmount}
	}

	return notifier.Notify(ctx, alert)
}
