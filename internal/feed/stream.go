package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultStreamURL is the combined all-market ticker stream.
const DefaultStreamURL = "wss://stream.binance.com:9443/ws/!ticker@arr"

// ErrConnectivityExhausted signals that the stream hit its reconnect ceiling.
// It is fatal: the process terminates.
var ErrConnectivityExhausted = errors.New("feed: websocket reconnect attempts exhausted")

// Tick is one symbol's update from a streamed ticker batch.
type Tick struct {
	Symbol string
	Price  float64
	Volume float64
}

// BatchHandler consumes one streamed ticker batch.
type BatchHandler func(ctx context.Context, ticks []Tick)

// StreamOptions tune the websocket consumer.
type StreamOptions struct {
	URL            string
	MaxReconnects  int
	ReconnectDelay time.Duration
}

// Stream maintains a persistent websocket subscription to the all-market
// ticker feed, reconnecting with linearly increasing delay on drop.
type Stream struct {
	opts   StreamOptions
	logger zerolog.Logger
}

// NewStream constructs a Stream.
func NewStream(opts StreamOptions, logger zerolog.Logger) *Stream {
	if opts.URL == "" {
		opts.URL = DefaultStreamURL
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 10
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	return &Stream{opts: opts, logger: logger.With().Str("component", "stream").Logger()}
}

// Run blocks, delivering ticker batches to handler until ctx is cancelled or
// the reconnect ceiling is reached.
func (s *Stream) Run(ctx context.Context, handler BatchHandler) error {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempts >= s.opts.MaxReconnects {
			return fmt.Errorf("%w after %d attempts", ErrConnectivityExhausted, attempts)
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.opts.URL, nil)
		if err != nil {
			attempts++
			s.logger.Warn().Err(err).Int("attempt", attempts).Msg("websocket dial failed")
			if err := s.waitReconnect(ctx, attempts); err != nil {
				return err
			}
			continue
		}

		s.logger.Info().Str("url", s.opts.URL).Msg("websocket connected")
		attempts = 0

		if err := s.consume(ctx, conn, handler); err != nil {
			conn.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempts++
			s.logger.Warn().Err(err).Int("attempt", attempts).Msg("websocket disconnected, reconnecting")
			if err := s.waitReconnect(ctx, attempts); err != nil {
				return err
			}
			continue
		}
	}
}

func (s *Stream) consume(ctx context.Context, conn *websocket.Conn, handler BatchHandler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		ticks, err := parseTickerBatch(message)
		if err != nil {
			s.logger.Debug().Err(err).Msg("skipping unparseable stream message")
			continue
		}
		if len(ticks) == 0 {
			continue
		}
		handler(ctx, ticks)
	}
}

// waitReconnect sleeps 5s × attempt (linear, not exponential).
func (s *Stream) waitReconnect(ctx context.Context, attempt int) error {
	delay := s.opts.ReconnectDelay * time.Duration(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type streamTicker struct {
	Symbol      string `json:"s"`
	LastPrice   string `json:"c"`
	QuoteVolume string `json:"q"`
}

func parseTickerBatch(message []byte) ([]Tick, error) {
	var events []streamTicker
	if err := json.Unmarshal(message, &events); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	ticks := make([]Tick, 0, len(events))
	for _, ev := range events {
		price, perr := strconv.ParseFloat(ev.LastPrice, 64)
		volume, verr := strconv.ParseFloat(ev.QuoteVolume, 64)
		if ev.Symbol == "" || perr != nil || verr != nil {
			continue
		}
		ticks = append(ticks, Tick{Symbol: ev.Symbol, Price: price, Volume: volume})
	}
	return ticks, nil
}
