package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Coinquest  AppConfig        `yaml:"coinquest"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Feed       FeedConfig       `yaml:"feed"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	Trading    TradingConfig    `yaml:"trading"`
	Mining     MiningConfig     `yaml:"mining"`
	Sentinel   SentinelConfig   `yaml:"sentinel"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type MetricsConfig struct {
	CloudWatch  bool `yaml:"cloudwatch"`
	ChannelSize bool `yaml:"channel_size"`
}

type ChannelsConfig struct {
	TickerBuffer  int `yaml:"ticker_buffer"`
	TradeBuffer   int `yaml:"trade_buffer"`
	ArchiveBuffer int `yaml:"archive_buffer"`
}

type FeedConfig struct {
	URL            string          `yaml:"url"`
	QuoteAsset     string          `yaml:"quote_asset"`
	ReconnectDelay time.Duration   `yaml:"reconnect_delay"`
	PingInterval   time.Duration   `yaml:"ping_interval"`
	TradeSymbols   []string        `yaml:"trade_symbols"`
	Control        RateLimitConfig `yaml:"control_rate"`
	Seed           SeedConfig      `yaml:"seed"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

// SeedConfig controls the one-shot REST fetch of 24h ticker statistics that
// primes consumers before the first websocket flush.
type SeedConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

type AggregatorConfig struct {
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
}

type TradingConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
	MaxLeverage    float64 `yaml:"max_leverage"`
}

type MiningConfig struct {
	RatePerSecond  float64       `yaml:"rate_per_second"`
	CapacityHours  float64       `yaml:"capacity_hours"`
	RateUpgrade    UpgradeConfig `yaml:"rate_upgrade"`
	StorageUpgrade UpgradeConfig `yaml:"storage_upgrade"`
}

type UpgradeConfig struct {
	Cost      float64 `yaml:"cost"`
	Increment float64 `yaml:"increment"`
}

type SentinelConfig struct {
	Active            bool          `yaml:"active"`
	WhaleThresholdUSD float64       `yaml:"whale_threshold_usd"`
	TrackWhales       bool          `yaml:"track_whales"`
	TrackVolatility   bool          `yaml:"track_volatility"`
	TrackSentiment    bool          `yaml:"track_sentiment"`
	QuietHoursStart   int           `yaml:"quiet_hours_start"`
	QuietHoursEnd     int           `yaml:"quiet_hours_end"`
	TickInterval      time.Duration `yaml:"tick_interval"`
	WhaleProbability  float64       `yaml:"whale_probability"`
	NotionalMinUSD    float64       `yaml:"notional_min_usd"`
	NotionalMaxUSD    float64       `yaml:"notional_max_usd"`
	HistoryLimit      int           `yaml:"history_limit"`
	PassiveXPAmount   int           `yaml:"passive_xp_amount"`
	PassiveXPInterval time.Duration `yaml:"passive_xp_interval"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Region          string        `yaml:"region"`
	Prefix          string        `yaml:"prefix"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	BatchSize       int           `yaml:"batch_size"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Metrics: MetricsConfig{
			ChannelSize: true,
		},
	}
	applyDefaults(&config)

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	cfg.Feed.QuoteAsset = "USDT"
	cfg.Feed.ReconnectDelay = 5 * time.Second
	cfg.Feed.PingInterval = 20 * time.Second
	cfg.Feed.Control = RateLimitConfig{RequestsPerSecond: 5, BurstSize: 10}
	cfg.Aggregator.ThrottleInterval = time.Second
	cfg.Trading.MaxLeverage = 100
	cfg.Sentinel.TickInterval = 10 * time.Second
	cfg.Sentinel.WhaleProbability = 0.10
	cfg.Sentinel.NotionalMinUSD = 500_000
	cfg.Sentinel.NotionalMaxUSD = 5_000_000
	cfg.Sentinel.HistoryLimit = 50
	cfg.Sentinel.PassiveXPAmount = 5
	cfg.Sentinel.PassiveXPInterval = 30 * time.Second
	cfg.Storage.S3.BatchSize = 500
	cfg.Storage.S3.FlushInterval = time.Minute
}

func validateConfig(cfg *Config) error {
	if cfg.Coinquest.Name == "" {
		return fmt.Errorf("coinquest.name is required")
	}

	if cfg.Coinquest.Version == "" {
		return fmt.Errorf("coinquest.version is required")
	}

	if cfg.Channels.TickerBuffer <= 0 {
		return fmt.Errorf("channels.ticker_buffer must be greater than 0")
	}
	if cfg.Channels.TradeBuffer <= 0 {
		return fmt.Errorf("channels.trade_buffer must be greater than 0")
	}

	if cfg.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if cfg.Feed.QuoteAsset == "" {
		return fmt.Errorf("feed.quote_asset is required")
	}
	if cfg.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("feed.reconnect_delay must be greater than 0")
	}

	if cfg.Aggregator.ThrottleInterval <= 0 {
		return fmt.Errorf("aggregator.throttle_interval must be greater than 0")
	}

	if cfg.Trading.InitialBalance < 0 {
		return fmt.Errorf("trading.initial_balance must not be negative")
	}
	if cfg.Trading.MaxLeverage < 1 {
		return fmt.Errorf("trading.max_leverage must be at least 1")
	}

	if cfg.Mining.RatePerSecond < 0 {
		return fmt.Errorf("mining.rate_per_second must not be negative")
	}
	if cfg.Mining.CapacityHours <= 0 {
		return fmt.Errorf("mining.capacity_hours must be greater than 0")
	}

	if cfg.Sentinel.QuietHoursStart < 0 || cfg.Sentinel.QuietHoursStart > 23 {
		return fmt.Errorf("sentinel.quiet_hours_start must be between 0 and 23")
	}
	if cfg.Sentinel.QuietHoursEnd < 0 || cfg.Sentinel.QuietHoursEnd > 23 {
		return fmt.Errorf("sentinel.quiet_hours_end must be between 0 and 23")
	}
	if cfg.Sentinel.TickInterval <= 0 {
		return fmt.Errorf("sentinel.tick_interval must be greater than 0")
	}
	if cfg.Sentinel.WhaleProbability < 0 || cfg.Sentinel.WhaleProbability > 1 {
		return fmt.Errorf("sentinel.whale_probability must be between 0 and 1")
	}
	if cfg.Sentinel.NotionalMinUSD > cfg.Sentinel.NotionalMaxUSD {
		return fmt.Errorf("sentinel.notional_min_usd must not exceed sentinel.notional_max_usd")
	}
	if cfg.Sentinel.HistoryLimit <= 0 {
		return fmt.Errorf("sentinel.history_limit must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
	}

	return nil
}
