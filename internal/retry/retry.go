// Package retry provides a bounded retry loop with linearly increasing delay
// for rate-limited external calls.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxRetries bounds retries after the initial attempt.
const DefaultMaxRetries = 3

// Policy describes how an external call is retried. Classify decides whether
// a failure is retryable; anything else propagates immediately.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Classify   func(error) bool
}

// DefaultPolicy retries rate-limited failures up to three times, waiting
// BaseDelay, 2×BaseDelay, 3×BaseDelay between attempts.
func DefaultPolicy(classify func(error) bool) Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  time.Second,
		Classify:   classify,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	return p
}

// Do executes op under the policy and returns its result. The delay before
// the nth retry is BaseDelay × n; retry state is local to this call, so
// concurrent callers back off independently.
func Do[T any](ctx context.Context, p Policy, logger zerolog.Logger, label string, op func(context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if p.Classify == nil || !p.Classify(err) || attempt >= p.MaxRetries {
			return zero, err
		}

		delay := p.BaseDelay * time.Duration(attempt+1)
		logger.Warn().
			Str("call", label).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("rate limited, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
