// Package alerting renders and delivers directional alerts, and owns the
// per-symbol cooldown state.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrDeliveryFailed marks a notification that exhausted its delivery
// attempts. Never fatal to the pipeline.
var ErrDeliveryFailed = errors.New("alerting: delivery failed")

const (
	deliveryAttempts = 3
	deliveryPause    = 2 * time.Second
)

// WhaleActivity describes the confirming large order attached to an alert.
type WhaleActivity struct {
	Side   string
	Amount float64
}

// Alert is the structured payload dispatched to the notification channel.
type Alert struct {
	Symbol             string
	CurrentPrice       float64
	PriceChangePct     float64
	VolumeMultiple     float64
	OrderBookImbalance float64
	VWAP               float64
	FundingRate        float64
	RSI1H              float64
	Breakout           string
	Whale              *WhaleActivity
}

// Notifier delivers alert payloads.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// DiscordNotifier posts alerts to a Discord webhook as rich embeds.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	pause      time.Duration
	logger     zerolog.Logger
}

// NewDiscordNotifier constructs a webhook notifier.
func NewDiscordNotifier(webhookURL string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		pause:      deliveryPause,
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Notify posts the alert, retrying up to three times with a fixed pause.
// Exhausting attempts returns ErrDeliveryFailed wrapping the last error.
func (n *DiscordNotifier) Notify(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(map[string]any{"embeds": []any{renderEmbed(alert)}})
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(n.pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		lastErr = n.post(ctx, body)
		if lastErr == nil {
			n.logger.Info().Str("symbol", alert.Symbol).Str("breakout", alert.Breakout).Msg("alert delivered")
			return nil
		}
		n.logger.Warn().Err(lastErr).Str("symbol", alert.Symbol).Int("attempt", attempt).Msg("alert delivery failed")
	}
	return fmt.Errorf("%w for %s: %v", ErrDeliveryFailed, alert.Symbol, lastErr)
}

func (n *DiscordNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func renderEmbed(alert Alert) map[string]any {
	movement := "Pump"
	color := 0x00FF00
	if alert.PriceChangePct < 0 {
		movement = "Dump"
		color = 0xFF0000
	}

	whaleField := "No whale activity detected"
	if alert.Whale != nil {
		whaleField = fmt.Sprintf("%s of %.2f %s", strings.ToUpper(alert.Whale.Side), alert.Whale.Amount, baseAsset(alert.Symbol))
	}

	fields := []map[string]any{
		{"name": "Symbol", "value": alert.Symbol, "inline": true},
		{"name": "Current Price", "value": fmt.Sprintf("$%.4f", alert.CurrentPrice), "inline": true},
		{"name": "Price Change", "value": fmt.Sprintf("%.2f%%", alert.PriceChangePct), "inline": true},
		{"name": "Volume Spike", "value": fmt.Sprintf("%.1fx", alert.VolumeMultiple), "inline": true},
		{"name": "Order Book Imbalance", "value": fmt.Sprintf("%.2fx", alert.OrderBookImbalance), "inline": true},
		{"name": "VWAP", "value": fmt.Sprintf("$%.4f", alert.VWAP), "inline": true},
		{"name": "Funding Rate", "value": fmt.Sprintf("%.4f%%", alert.FundingRate*100), "inline": true},
		{"name": "RSI (1h)", "value": fmt.Sprintf("%.1f", alert.RSI1H), "inline": true},
		{"name": "Breakout", "value": alert.Breakout, "inline": true},
		{"name": "Whale Activity", "value": whaleField, "inline": false},
		{"name": "Charts", "value": chartLinks(alert.Symbol), "inline": false},
	}

	return map[string]any{
		"title":       fmt.Sprintf("%s Detected", movement),
		"description": fmt.Sprintf("Significant %s detected on %s", strings.ToLower(movement), alert.Symbol),
		"color":       color,
		"fields":      fields,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
}

func chartLinks(symbol string) string {
	return fmt.Sprintf("[Binance](https://www.binance.com/en/trade/%s_USDT) | [TradingView](https://www.tradingview.com/chart/?symbol=BINANCE:%s)",
		baseAsset(symbol), symbol)
}

func baseAsset(symbol string) string {
	return strings.TrimSuffix(symbol, "USDT")
}

var _ Notifier = (*DiscordNotifier)(nil)
