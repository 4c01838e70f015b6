// Package app wires configuration into runnable commands.
package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pump-radar/internal/alerting"
	"pump-radar/internal/analysis"
	"pump-radar/internal/config"
	"pump-radar/internal/engine"
	"pump-radar/internal/feed"
	"pump-radar/internal/indicator"
	"pump-radar/internal/orderbook"
	"pump-radar/internal/rollup"
	"pump-radar/internal/scheduler"
	"pump-radar/internal/service"
	"pump-radar/internal/storage"
	"pump-radar/internal/timeframe"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFeed() *feed.Binance {
	return feed.NewBinance(feed.BinanceOptions{
		APIKey:    a.Config.Feed.APIKey,
		SecretKey: a.Config.Feed.APISecret,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.DiscordWebhookURL == "" {
		return nil
	}
	return alerting.NewDiscordNotifier(a.Config.Alerting.DiscordWebhookURL, a.Config.Alerting.RequestTimeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running ingestion and alerting pipeline.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the pipeline")
	}
	defer closeStore()

	if err := store.InitSchema(ctx); err != nil {
		return err
	}

	client := a.newFeed()
	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("alerting.discord_webhook_url not configured; alerts disabled")
	}

	writer := rollup.NewWriter(store, a.Logger)
	indicators := indicator.NewEngine(store, store)
	classifier := analysis.NewClassifier(indicators, store, analysis.Config{
		RSIBullish:       a.Config.Analysis.RSIBullish,
		RSIBearish:       a.Config.Analysis.RSIBearish,
		FundingThreshold: a.Config.Analysis.FundingThreshold,
		BreakoutLookback: a.Config.Analysis.BreakoutLookback,
	}, a.Logger)

	books := orderbook.NewProvider(client, client, store, store, notifier, orderbook.Options{
		Depth:             a.Config.Feed.OrderBookDepth,
		WhaleThresholdUSD: a.Config.Alerting.WhaleThresholdUSD,
	}, a.Logger)

	engineCfg := engine.DefaultConfig()
	engineCfg.Neutral = engine.Thresholds(a.Config.Alerting.Neutral)
	engineCfg.Strong = engine.Thresholds(a.Config.Alerting.Strong)
	engineCfg.FundingThreshold = a.Config.Analysis.FundingThreshold
	engineCfg.WhaleLookback = a.Config.Alerting.WhaleLookback

	var sink alerting.Notifier = notifier
	if notifier == nil {
		sink = logNotifier{logger: a.Logger}
	}
	decider := engine.New(store, books, classifier, store, store, sink, engineCfg, a.Logger)

	stream := feed.NewStream(feed.StreamOptions{URL: a.Config.Feed.StreamURL}, a.Logger)
	sweep := scheduler.New(scheduler.Options{
		Interval:     a.Config.Retention.SweepInterval,
		AlignToStart: true,
	}, a.Logger)

	pipeline := service.New(stream, writer, decider, client, store, store, sweep, service.Options{
		ThrottleInterval: a.Config.Pipeline.ThrottleInterval,
		QuoteSuffix:      a.Config.Pipeline.QuoteSuffix,
		MaxSymbols:       a.Config.Pipeline.MaxSymbols,
		Concurrency:      a.Config.Pipeline.Concurrency,
	}, a.Logger)

	a.Logger.Info().Msg("starting market pipeline")
	err = pipeline.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("pipeline terminated with error")
		return err
	}

	a.Logger.Info().Msg("market pipeline stopped")
	return nil
}

// logNotifier records alerts in the log when no delivery channel is set.
type logNotifier struct {
	logger zerolog.Logger
}

func (n logNotifier) Notify(_ context.Context, alert alerting.Alert) error {
	n.logger.Info().
		Str("symbol", alert.Symbol).
		Float64("price_change_pct", alert.PriceChangePct).
		Float64("volume_multiple", alert.VolumeMultiple).
		Str("breakout", alert.Breakout).
		Msg("alert (no webhook configured)")
	return nil
}

// ExportOptions hold parameters for exporting a symbol's rollup series.
type ExportOptions struct {
	Symbol    string
	Timeframe timeframe.TimeFrame
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Symbol    string
	Timeframe timeframe.TimeFrame
	Limit     int
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	Symbol         string
	PriceChangePct float64
	CurrentPrice   float64
	WhaleSide      string
	WhaleAmount    float64
}
