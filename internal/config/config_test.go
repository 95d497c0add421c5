package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
monitor:
  poll_interval: 5s
  seed_indices:
    - KOSPI
    - KOSDAQ
    - KPI200

rate:
  range: 0.5

volume:
  min_delta: 2500
  cooldown: 15m

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

storage:
  watchlist_dir: "./state"
  alarm_dir: "./state/alarms"
  db_path: "./state/test.db"
  max_notifications: 200

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Monitor.PollInterval != 5*time.Second {
		t.Errorf("Unexpected poll interval: %v", cfg.Monitor.PollInterval)
	}
	if len(cfg.Monitor.SeedIndices) != 3 {
		t.Errorf("Expected 3 seed indices, got %d", len(cfg.Monitor.SeedIndices))
	}
	if cfg.Rate.Range != 0.5 {
		t.Errorf("Unexpected rate range: %f", cfg.Rate.Range)
	}
	if cfg.Volume.Cooldown != 15*time.Minute {
		t.Errorf("Unexpected volume cooldown: %v", cfg.Volume.Cooldown)
	}
	if cfg.Storage.MaxNotifications != 200 {
		t.Errorf("Unexpected max notifications: %d", cfg.Storage.MaxNotifications)
	}
	// Untouched sections keep their defaults
	if cfg.Backfill.MinDepth != 120 {
		t.Errorf("Unexpected backfill depth: %d", cfg.Backfill.MinDepth)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MarketHours.Timezone != "Asia/Seoul" || cfg.MarketHours.OpenHour != 8 || cfg.MarketHours.CloseHour != 17 {
		t.Errorf("Unexpected market hours: %+v", cfg.MarketHours)
	}
	if cfg.Backfill.RequestDelay != 200*time.Millisecond {
		t.Errorf("Unexpected request delay: %v", cfg.Backfill.RequestDelay)
	}
	if cfg.Backfill.ErrorPenalty != 6 || cfg.Backfill.MaxRollbacks != 10 {
		t.Errorf("Unexpected backfill config: %+v", cfg.Backfill)
	}
	if cfg.Volume.Multiplier != 5 || cfg.Volume.Cooldown != 10*time.Minute {
		t.Errorf("Unexpected volume config: %+v", cfg.Volume)
	}
	if len(cfg.Monitor.SeedIndices) != 2 {
		t.Errorf("Expected default seeds, got %v", cfg.Monitor.SeedIndices)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed on defaults: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MARKETWATCH_TELEGRAM_BOT_TOKEN", "from_env")
	t.Setenv("MARKETWATCH_RATE_RANGE", "2.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Telegram.BotToken != "from_env" {
		t.Errorf("Unexpected bot token: %q", cfg.Telegram.BotToken)
	}
	if cfg.Rate.Range != 2.5 {
		t.Errorf("Unexpected rate range: %f", cfg.Rate.Range)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateErrors(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing telegram token when enabled", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.ChatID = "1"
		}},
		{"missing telegram chat when enabled", func(c *Config) {
			c.Telegram.Enabled = true
			c.Telegram.BotToken = "t"
		}},
		{"non-positive rate range", func(c *Config) { c.Rate.Range = 0 }},
		{"poll interval too short", func(c *Config) { c.Monitor.PollInterval = time.Millisecond }},
		{"inverted market hours", func(c *Config) { c.MarketHours.OpenHour = 18 }},
		{"zero backfill depth", func(c *Config) { c.Backfill.MinDepth = 0 }},
		{"zero error penalty", func(c *Config) { c.Backfill.ErrorPenalty = 0 }},
		{"zero baseline window", func(c *Config) { c.Volume.BaselineWindow = 0 }},
		{"missing alarm dir", func(c *Config) { c.Storage.AlarmDir = "" }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"missing polling url", func(c *Config) { c.Quote.PollingURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() expected error")
			}
		})
	}
}

func TestLoadMalformedDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("BAD-KEY=1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for malformed .env")
	}
}

func TestLoadWithoutDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	if _, err := Load(""); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}
