package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"pump-radar/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Retention RetentionConfig `mapstructure:"retention"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// FeedConfig covers exchange connectivity.
type FeedConfig struct {
	APIKey         string `mapstructure:"api_key"`
	APISecret      string `mapstructure:"api_secret"`
	StreamURL      string `mapstructure:"stream_url"`
	OrderBookDepth int    `mapstructure:"order_book_depth"`
}

// PipelineConfig governs tick admission and fan-out.
type PipelineConfig struct {
	ThrottleInterval time.Duration `mapstructure:"throttle_interval"`
	QuoteSuffix      string        `mapstructure:"quote_suffix"`
	MaxSymbols       int           `mapstructure:"max_symbols"`
	Concurrency      int           `mapstructure:"concurrency"`
}

// AnalysisConfig holds classification thresholds.
type AnalysisConfig struct {
	RSIBullish       float64 `mapstructure:"rsi_bullish"`
	RSIBearish       float64 `mapstructure:"rsi_bearish"`
	FundingThreshold float64 `mapstructure:"funding_threshold"`
	BreakoutLookback int     `mapstructure:"breakout_lookback"`
}

// ThresholdConfig is one alert regime's gate.
type ThresholdConfig struct {
	PricePct       float64 `mapstructure:"price_pct"`
	VolumeMultiple float64 `mapstructure:"volume_multiple"`
	Imbalance      float64 `mapstructure:"imbalance"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	DiscordWebhookURL string          `mapstructure:"discord_webhook_url"`
	RequestTimeout    time.Duration   `mapstructure:"request_timeout"`
	Neutral           ThresholdConfig `mapstructure:"neutral"`
	Strong            ThresholdConfig `mapstructure:"strong"`
	WhaleThresholdUSD float64         `mapstructure:"whale_threshold_usd"`
	WhaleLookback     time.Duration   `mapstructure:"whale_lookback"`
}

// RetentionConfig governs the sweep of expired rows.
type RetentionConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PUMPRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pump-radar")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("feed.stream_url", "wss://stream.binance.com:9443/ws/!ticker@arr")
	v.SetDefault("feed.order_book_depth", 10)

	v.SetDefault("pipeline.throttle_interval", "5s")
	v.SetDefault("pipeline.quote_suffix", "USDT")
	v.SetDefault("pipeline.max_symbols", 400)
	v.SetDefault("pipeline.concurrency", 8)

	v.SetDefault("analysis.rsi_bullish", 60.0)
	v.SetDefault("analysis.rsi_bearish", 40.0)
	v.SetDefault("analysis.funding_threshold", 0.001)
	v.SetDefault("analysis.breakout_lookback", 3)

	v.SetDefault("alerting.request_timeout", "10s")
	v.SetDefault("alerting.neutral.price_pct", 4.0)
	v.SetDefault("alerting.neutral.volume_multiple", 3.0)
	v.SetDefault("alerting.neutral.imbalance", 1.5)
	v.SetDefault("alerting.strong.price_pct", 6.0)
	v.SetDefault("alerting.strong.volume_multiple", 5.0)
	v.SetDefault("alerting.strong.imbalance", 2.0)
	v.SetDefault("alerting.whale_threshold_usd", 50000.0)
	v.SetDefault("alerting.whale_lookback", "10m")

	v.SetDefault("retention.sweep_interval", "5m")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Pipeline.ThrottleInterval <= 0 {
		return fmt.Errorf("pipeline.throttle_interval must be greater than zero")
	}
	if c.Pipeline.MaxSymbols <= 0 {
		return fmt.Errorf("pipeline.max_symbols must be greater than zero")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be greater than zero")
	}
	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("retention.sweep_interval must be greater than zero")
	}
	if c.Alerting.WhaleThresholdUSD <= 0 {
		return fmt.Errorf("alerting.whale_threshold_usd must be greater than zero")
	}
	if c.Alerting.Neutral.Imbalance <= 0 || c.Alerting.Strong.Imbalance <= 0 {
		return fmt.Errorf("alerting imbalance thresholds must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
