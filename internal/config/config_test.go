package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[rules.spread]
venue_pairs = [["mexc", "whales"]]
min_spread_percent = 0.5
debounce_seconds = 45
fee_bps = { mexc = 10.0, whales = 20.0 }

[rules.hedged_spread]
enabled = true
pairs = [{ order = "whales", perp = "bybit" }]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	// Defaults survive the merge.
	if cfg.Backoff.InitialSeconds != 1 || cfg.Backoff.MaxSeconds != 30 {
		t.Fatalf("backoff defaults lost: %+v", cfg.Backoff)
	}
	if cfg.Links["MEXC"] == "" {
		t.Fatalf("default venue links lost")
	}

	pairs := cfg.Rules.Spread.Pairs()
	if len(pairs) != 1 || pairs[0].A != "MEXC" || pairs[0].B != "WHALES" {
		t.Fatalf("pairs = %+v", pairs)
	}
	th := cfg.Rules.Spread.Thresholds()
	if th.DebounceWindow != 45*time.Second {
		t.Fatalf("debounce window = %v", th.DebounceWindow)
	}
	if th.FeeBps["MEXC"] != 10 || th.FeeBps["WHALES"] != 20 {
		t.Fatalf("fees = %+v", th.FeeBps)
	}

	hedged := cfg.Rules.Hedged.HedgedPairs()
	if len(hedged) != 1 || hedged[0].Order != "WHALES" || hedged[0].Perp != "BYBIT" {
		t.Fatalf("hedged pairs = %+v", hedged)
	}
}

func TestMalformedPairsDropped(t *testing.T) {
	cfg := SpreadRuleConfig{VenuePairs: [][]string{
		{"MEXC"},           // too short
		{"", "  "},         // blank entries
		{"mexc", "bybit"},  // valid
	}}
	pairs := cfg.Pairs()
	if len(pairs) != 1 {
		t.Fatalf("expected only the valid pair, got %+v", pairs)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SPREADBOT_TELEGRAM_BOT_TOKEN", "tok-123")
	t.Setenv("SPREADBOT_REDIS_ADDR", "redis:6379")
	t.Setenv("SPREADBOT_REDIS_DB", "3")

	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.BotToken != "tok-123" {
		t.Fatalf("token override missing: %q", cfg.Telegram.BotToken)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.DB != 3 {
		t.Fatalf("redis override missing: %+v", cfg.Redis)
	}
}

func TestValidateRejectsBrokenShapes(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"zero backoff", func(c *Config) { c.Backoff.InitialSeconds = 0 }},
		{"cap below initial", func(c *Config) { c.Backoff.MaxSeconds = 0.5 }},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	good := Defaults()
	if err := good.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
