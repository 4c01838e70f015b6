package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Pipeline.ThrottleInterval != 5*time.Second {
		t.Fatalf("throttle_interval = %v, want 5s", cfg.Pipeline.ThrottleInterval)
	}
	if cfg.Pipeline.MaxSymbols != 400 || cfg.Pipeline.QuoteSuffix != "USDT" {
		t.Fatalf("pipeline defaults wrong: %+v", cfg.Pipeline)
	}
	if cfg.Alerting.Neutral.PricePct != 4 || cfg.Alerting.Strong.PricePct != 6 {
		t.Fatalf("threshold defaults wrong: %+v", cfg.Alerting)
	}
	if cfg.Alerting.WhaleThresholdUSD != 50000 {
		t.Fatalf("whale_threshold_usd = %v", cfg.Alerting.WhaleThresholdUSD)
	}
	if cfg.Retention.SweepInterval != 5*time.Minute {
		t.Fatalf("sweep_interval = %v", cfg.Retention.SweepInterval)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PUMPRADAR_PIPELINE_MAX_SYMBOLS", "50")
	t.Setenv("PUMPRADAR_ALERTING_WHALE_THRESHOLD_USD", "100000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Pipeline.MaxSymbols != 50 {
		t.Fatalf("max_symbols = %d, want env override 50", cfg.Pipeline.MaxSymbols)
	}
	if cfg.Alerting.WhaleThresholdUSD != 100000 {
		t.Fatalf("whale_threshold_usd = %v, want env override", cfg.Alerting.WhaleThresholdUSD)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	cfg.Pipeline.ThrottleInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero throttle interval should fail validation")
	}

	cfg, _ = Load("")
	cfg.Alerting.Strong.Imbalance = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero imbalance threshold should fail validation")
	}
}
