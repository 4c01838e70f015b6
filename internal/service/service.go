// Package service orchestrates the live pipeline: stream admission, rollup
// writes, funding refresh, analysis fan-out, and the retention sweep.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pump-radar/internal/feed"
	"pump-radar/internal/indicator"
	"pump-radar/internal/retry"
	"pump-radar/internal/scheduler"
	"pump-radar/internal/storage"
)

// SampleWriter appends one tick across every rollup series.
type SampleWriter interface {
	Append(ctx context.Context, symbol string, price, volume float64) error
}

// Evaluator runs the alert decision for one tick.
type Evaluator interface {
	Evaluate(ctx context.Context, tick feed.Tick) error
}

// FundingSource fetches the live perpetual funding rate.
type FundingSource interface {
	FetchFundingRate(ctx context.Context, symbol string) (float64, error)
}

// TickerStream delivers ticker batches until its context ends.
type TickerStream interface {
	Run(ctx context.Context, handler feed.BatchHandler) error
}

// Options tune batch admission and fan-out.
type Options struct {
	ThrottleInterval time.Duration
	QuoteSuffix      string
	MaxSymbols       int
	Concurrency      int
}

// Pipeline wires the streamed feed into storage and the decision engine.
type Pipeline struct {
	stream  TickerStream
	writer  SampleWriter
	engine  Evaluator
	funding FundingSource
	rates   storage.FundingStore
	sweeper storage.Sweeper
	sched   *scheduler.Scheduler
	policy  retry.Policy
	opts    Options
	logger  zerolog.Logger

	lastBatch time.Time
	now       func() time.Time
}

// New constructs the Pipeline.
func New(stream TickerStream, writer SampleWriter, eval Evaluator, funding FundingSource, rates storage.FundingStore, sweeper storage.Sweeper, sched *scheduler.Scheduler, opts Options, logger zerolog.Logger) *Pipeline {
	if opts.ThrottleInterval <= 0 {
		opts.ThrottleInterval = 5 * time.Second
	}
	if opts.QuoteSuffix == "" {
		opts.QuoteSuffix = "USDT"
	}
	if opts.MaxSymbols <= 0 {
		opts.MaxSymbols = 400
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Pipeline{
		stream:  stream,
		writer:  writer,
		engine:  eval,
		funding: funding,
		rates:   rates,
		sweeper: sweeper,
		sched:   sched,
		policy:  retry.DefaultPolicy(feed.IsRateLimited),
		opts:    opts,
		logger:  logger.With().Str("component", "pipeline").Logger(),
		now:     time.Now,
	}
}

// Run blocks on the stream and the retention sweep until ctx is cancelled.
// A stream failure tears the whole pipeline down.
func (p *Pipeline) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return p.stream.Run(groupCtx, p.HandleBatch)
	})

	if p.sweeper != nil && p.sched != nil {
		group.Go(func() error {
			err := p.sched.Run(groupCtx, func(ctx context.Context, _ time.Time) error {
				return p.sweeper.DeleteExpired(ctx, p.now().UTC())
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return group.Wait()
}

// HandleBatch admits at most one batch per throttle interval. Batches that
// arrive inside the interval are dropped, never queued.
func (p *Pipeline) HandleBatch(ctx context.Context, ticks []feed.Tick) {
	now := p.now()
	if !p.lastBatch.IsZero() && now.Sub(p.lastBatch) < p.opts.ThrottleInterval {
		p.logger.Debug().Int("ticks", len(ticks)).Msg("batch dropped by throttle")
		return
	}
	p.lastBatch = now

	admitted := p.admit(ticks)
	if len(admitted) == 0 {
		return
	}
	p.logger.Debug().Int("symbols", len(admitted)).Msg("processing ticker batch")

	// Rollup writes run sequentially; each symbol fans out across its
	// timeframes internally.
	for _, tick := range admitted {
		if err := p.writer.Append(ctx, tick.Symbol, tick.Price, tick.Volume); err != nil {
			p.logger.Error().Err(err).Str("symbol", tick.Symbol).Msg("rollup append failed")
		}
	}

	p.refreshFunding(ctx, admitted)
	p.analyze(ctx, admitted)
}

// admit filters the batch to quote-suffix symbols and caps its size.
func (p *Pipeline) admit(ticks []feed.Tick) []feed.Tick {
	admitted := make([]feed.Tick, 0, len(ticks))
	for _, tick := range ticks {
		if !strings.HasSuffix(tick.Symbol, p.opts.QuoteSuffix) {
			continue
		}
		admitted = append(admitted, tick)
		if len(admitted) == p.opts.MaxSymbols {
			break
		}
	}
	return admitted
}

// refreshFunding snapshots the perpetual funding rate for each admitted
// symbol. Symbols without a perpetual market are skipped quietly.
func (p *Pipeline) refreshFunding(ctx context.Context, ticks []feed.Tick) {
	if p.funding == nil || p.rates == nil {
		return
	}

	var group errgroup.Group
	group.SetLimit(p.opts.Concurrency)
	for _, tick := range ticks {
		symbol := tick.Symbol
		group.Go(func() error {
			rate, err := retry.Do(ctx, p.policy, p.logger, "funding "+symbol, func(ctx context.Context) (float64, error) {
				return p.funding.FetchFundingRate(ctx, symbol)
			})
			if err != nil {
				p.logger.Debug().Err(err).Str("symbol", symbol).Msg("funding refresh failed")
				return nil
			}
			if err := p.rates.InsertFundingRate(ctx, symbol, rate, p.now().UTC()); err != nil {
				p.logger.Error().Err(err).Str("symbol", symbol).Msg("funding persist failed")
			}
			return nil
		})
	}
	group.Wait()
}

// analyze runs the alert decision per symbol. One symbol's failure never
// aborts its siblings.
func (p *Pipeline) analyze(ctx context.Context, ticks []feed.Tick) {
	var group errgroup.Group
	group.SetLimit(p.opts.Concurrency)
	for _, tick := range ticks {
		tick := tick
		group.Go(func() error {
			if err := p.engine.Evaluate(ctx, tick); err != nil {
				if errors.Is(err, indicator.ErrInsufficientData) || errors.Is(err, indicator.ErrNoData) {
					p.logger.Debug().Str("symbol", tick.Symbol).Msg("analysis skipped, series too short")
					return nil
				}
				p.logger.Error().Err(err).Str("symbol", tick.Symbol).Msg("analysis failed")
			}
			return nil
		})
	}
	group.Wait()
}
