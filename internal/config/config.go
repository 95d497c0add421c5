package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Quote       QuoteConfig       `mapstructure:"quote"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	MarketHours MarketHoursConfig `mapstructure:"market_hours"`
	Backfill    BackfillConfig    `mapstructure:"backfill"`
	Rate        RateConfig        `mapstructure:"rate"`
	Volume      VolumeConfig      `mapstructure:"volume"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// QuoteConfig holds Naver Finance endpoint configuration
type QuoteConfig struct {
	PollingURL string        `mapstructure:"polling_url"`
	FinanceURL string        `mapstructure:"finance_url"`
	MobileURL  string        `mapstructure:"mobile_url"`
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// MonitorConfig holds loop cadences and startup seeds
type MonitorConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	StateInterval  time.Duration `mapstructure:"state_interval"`
	RateInterval   time.Duration `mapstructure:"rate_interval"`
	VolumeInterval time.Duration `mapstructure:"volume_interval"`
	SeedIndices    []string      `mapstructure:"seed_indices"`
}

// MarketHoursConfig defines the window in which the poller fetches
type MarketHoursConfig struct {
	Timezone  string `mapstructure:"timezone"`
	OpenHour  int    `mapstructure:"open_hour"`
	CloseHour int    `mapstructure:"close_hour"`
}

// BackfillConfig controls incremental history loading
type BackfillConfig struct {
	MinDepth     int           `mapstructure:"min_depth"`
	MaxRollbacks int           `mapstructure:"max_rollbacks"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	ErrorPenalty int           `mapstructure:"error_penalty"`
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
}

// RateConfig holds the change-rate breakout band width
type RateConfig struct {
	Range float64 `mapstructure:"range"`
}

// VolumeConfig holds volume spike detection parameters
type VolumeConfig struct {
	MinDelta       float64       `mapstructure:"min_delta"`
	Multiplier     float64       `mapstructure:"multiplier"`
	BaselineWindow int           `mapstructure:"baseline_window"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	WatchlistDir     string        `mapstructure:"watchlist_dir"`
	AlarmDir         string        `mapstructure:"alarm_dir"`
	DBPath           string        `mapstructure:"db_path"`
	MaxNotifications int           `mapstructure:"max_notifications"`
	Retention        time.Duration `mapstructure:"retention"`
}

// MetricsConfig holds the Prometheus listener address; empty disables it
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables.
// A missing file is not an error when path is empty; defaults and env apply.
func Load(path string) (*Config, error) {
	// Secrets usually live in .env next to the binary
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MARKETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("quote.polling_url", "https://polling.finance.naver.com")
	v.SetDefault("quote.finance_url", "https://finance.naver.com")
	v.SetDefault("quote.mobile_url", "https://m.stock.naver.com")
	v.SetDefault("quote.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_3)")
	v.SetDefault("quote.timeout", "10s")

	v.SetDefault("monitor.poll_interval", "3s")
	v.SetDefault("monitor.state_interval", "3s")
	v.SetDefault("monitor.rate_interval", "3s")
	v.SetDefault("monitor.volume_interval", "3s")
	v.SetDefault("monitor.seed_indices", []string{"KOSPI", "KOSDAQ"})

	v.SetDefault("market_hours.timezone", "Asia/Seoul")
	v.SetDefault("market_hours.open_hour", 8)
	v.SetDefault("market_hours.close_hour", 17)

	v.SetDefault("backfill.min_depth", 120)
	v.SetDefault("backfill.max_rollbacks", 10)
	v.SetDefault("backfill.request_delay", "200ms")
	v.SetDefault("backfill.error_penalty", 6)
	v.SetDefault("backfill.error_backoff", "1s")

	v.SetDefault("rate.range", 1.0)

	v.SetDefault("volume.min_delta", 10000.0)
	v.SetDefault("volume.multiplier", 5.0)
	v.SetDefault("volume.baseline_window", 20)
	v.SetDefault("volume.cooldown", "10m")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("storage.watchlist_dir", "./data")
	v.SetDefault("storage.alarm_dir", "./data/alarms")
	v.SetDefault("storage.db_path", "./data/marketwatch.db")
	v.SetDefault("storage.max_notifications", 1000)
	v.SetDefault("storage.retention", "720h")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Quote.PollingURL == "" || c.Quote.FinanceURL == "" || c.Quote.MobileURL == "" {
		return fmt.Errorf("quote.polling_url, quote.finance_url and quote.mobile_url are required")
	}
	if c.Quote.Timeout <= 0 {
		return fmt.Errorf("quote.timeout must be positive")
	}

	for name, d := range map[string]time.Duration{
		"monitor.poll_interval":   c.Monitor.PollInterval,
		"monitor.state_interval":  c.Monitor.StateInterval,
		"monitor.rate_interval":   c.Monitor.RateInterval,
		"monitor.volume_interval": c.Monitor.VolumeInterval,
	} {
		if d < 100*time.Millisecond {
			return fmt.Errorf("%s must be at least 100ms", name)
		}
	}

	if c.MarketHours.OpenHour < 0 || c.MarketHours.CloseHour > 24 || c.MarketHours.OpenHour >= c.MarketHours.CloseHour {
		return fmt.Errorf("market_hours must satisfy 0 <= open_hour < close_hour <= 24")
	}

	if c.Backfill.MinDepth < 1 {
		return fmt.Errorf("backfill.min_depth must be at least 1")
	}
	if c.Backfill.MaxRollbacks < 0 {
		return fmt.Errorf("backfill.max_rollbacks must not be negative")
	}
	if c.Backfill.ErrorPenalty < 1 {
		return fmt.Errorf("backfill.error_penalty must be at least 1")
	}

	if c.Rate.Range <= 0 {
		return fmt.Errorf("rate.range must be positive")
	}

	if c.Volume.Multiplier <= 0 {
		return fmt.Errorf("volume.multiplier must be positive")
	}
	if c.Volume.BaselineWindow < 1 {
		return fmt.Errorf("volume.baseline_window must be at least 1")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Storage.WatchlistDir == "" || c.Storage.AlarmDir == "" {
		return fmt.Errorf("storage.watchlist_dir and storage.alarm_dir are required")
	}
	if c.Storage.MaxNotifications < 1 {
		return fmt.Errorf("storage.max_notifications must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
