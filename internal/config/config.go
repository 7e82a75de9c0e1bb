// Package config defines the bot configuration and provides loading and
// validation helpers. Values come from a TOML file merged over built-in
// defaults, then overridden by SPREADBOT_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/premarket-labs/spreadbot/internal/engine"
)

// Config is the root configuration structure.
type Config struct {
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	Venues   VenuesConfig      `toml:"venues"`
	Rules    RulesConfig       `toml:"rules"`
	Backoff  BackoffConfig     `toml:"backoff"`
	Telegram TelegramConfig    `toml:"telegram"`
	Redis    RedisConfig       `toml:"redis"`
	Server   ServerConfig      `toml:"server"`
	Links    map[string]string `toml:"links"`
}

// VenuesConfig enables and parameterizes the venue producers.
type VenuesConfig struct {
	Mexc        VenueConfig     `toml:"mexc"`
	MexcListing ListingConfig   `toml:"mexc_listings"`
	Whales      WhalesConfig    `toml:"whales_market"`
	Bybit       VenueConfig     `toml:"bybit"`
	Hyperliquid VenueConfig     `toml:"hyperliquid"`
	Binance     VenueConfig     `toml:"binance"`
	Synthetic   SyntheticConfig `toml:"synthetic"`
}

// VenueConfig is the common shape for symbol-subscribed streaming venues.
type VenueConfig struct {
	Enabled bool     `toml:"enabled"`
	Symbols []string `toml:"symbols"`
}

// ListingConfig parameterizes the MEXC listings poller.
type ListingConfig struct {
	Enabled      bool    `toml:"enabled"`
	PollInterval float64 `toml:"poll_interval_seconds"`
}

// WhalesConfig parameterizes the Whales Market socket stream.
type WhalesConfig struct {
	Enabled bool     `toml:"enabled"`
	Tokens  []string `toml:"tokens"`
	URL     string   `toml:"url"`
}

// SyntheticConfig drives the random-walk producer used for dry runs.
type SyntheticConfig struct {
	Enabled    bool     `toml:"enabled"`
	Tokens     []string `toml:"tokens"`
	Venues     []string `toml:"venues"`
	IntervalMs int      `toml:"interval_ms"`
}

// RulesConfig holds one independent threshold set per engine family.
type RulesConfig struct {
	Spread SpreadRuleConfig `toml:"spread"`
	Hedged HedgedRuleConfig `toml:"hedged_spread"`
}

// ThresholdConfig carries the gating parameters shared by both rule
// families. Fees and slippage are in basis points, spreads in percent.
type ThresholdConfig struct {
	MinSpreadPercent      float64            `toml:"min_spread_percent"`
	MinNotionalUSDT       float64            `toml:"min_notional_usdt"`
	MinImprovementPercent float64            `toml:"min_improvement_percent"`
	DebounceSeconds       float64            `toml:"debounce_seconds"`
	SlippageBps           float64            `toml:"slippage_bps"`
	FeeBps                map[string]float64 `toml:"fee_bps"`
}

// Thresholds converts the TOML shape into the engine's threshold set. Venue
// keys are normalized to upper case.
func (t ThresholdConfig) Thresholds() engine.Thresholds {
	fees := make(map[string]float64, len(t.FeeBps))
	for venue, bps := range t.FeeBps {
		fees[strings.ToUpper(venue)] = bps
	}
	return engine.Thresholds{
		MinSpreadPercent:      t.MinSpreadPercent,
		MinNotionalUSDT:       t.MinNotionalUSDT,
		MinImprovementPercent: t.MinImprovementPercent,
		DebounceWindow:        time.Duration(t.DebounceSeconds * float64(time.Second)),
		SlippageBps:           t.SlippageBps,
		FeeBps:                fees,
	}
}

// SpreadRuleConfig configures the direct cross-venue engine.
type SpreadRuleConfig struct {
	ThresholdConfig
	VenuePairs [][]string `toml:"venue_pairs"`
}

// Pairs returns the well-formed venue pairs, upper-cased. Malformed entries
// (fewer than two non-empty venues) are dropped; an empty result disables
// the direct engine at assembly time.
func (c SpreadRuleConfig) Pairs() []engine.VenuePair {
	var pairs []engine.VenuePair
	for _, raw := range c.VenuePairs {
		var venues []string
		for _, v := range raw {
			v = strings.ToUpper(strings.TrimSpace(v))
			if v != "" {
				venues = append(venues, v)
			}
		}
		if len(venues) >= 2 {
			pairs = append(pairs, engine.VenuePair{A: venues[0], B: venues[1]})
		}
	}
	return pairs
}

// HedgedPairConfig is one order-venue/perp-venue pairing.
type HedgedPairConfig struct {
	Order string `toml:"order"`
	Perp  string `toml:"perp"`
}

// HedgedRuleConfig configures the hedged order/perp engine.
type HedgedRuleConfig struct {
	ThresholdConfig
	Enabled bool               `toml:"enabled"`
	Pairs   []HedgedPairConfig `toml:"pairs"`
}

// HedgedPairs returns the well-formed order/perp pairs, upper-cased.
func (c HedgedRuleConfig) HedgedPairs() []engine.HedgedPair {
	var pairs []engine.HedgedPair
	for _, raw := range c.Pairs {
		order := strings.ToUpper(strings.TrimSpace(raw.Order))
		perp := strings.ToUpper(strings.TrimSpace(raw.Perp))
		if order != "" && perp != "" {
			pairs = append(pairs, engine.HedgedPair{Order: order, Perp: perp})
		}
	}
	return pairs
}

// BackoffConfig shapes producer reconnect delays.
type BackoffConfig struct {
	InitialSeconds float64 `toml:"initial_seconds"`
	MaxSeconds     float64 `toml:"max_seconds"`
	Multiplier     float64 `toml:"multiplier"`
}

// TelegramConfig holds Telegram delivery parameters.
type TelegramConfig struct {
	Enabled       bool    `toml:"enabled"`
	BotToken      string  `toml:"bot_token"`
	ChatID        string  `toml:"chat_id"`
	AlertPrefix   string  `toml:"alert_prefix"`
	RatePerMinute float64 `toml:"rate_per_minute"`
}

// RedisConfig holds the optional Redis alert-publishing parameters.
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Channel  string `toml:"channel"`
}

// ServerConfig holds the admin HTTP server parameters.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Defaults returns the built-in configuration the TOML file is merged over.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Backoff: BackoffConfig{
			InitialSeconds: 1,
			MaxSeconds:     30,
			Multiplier:     2,
		},
		Venues: VenuesConfig{
			MexcListing: ListingConfig{PollInterval: 60},
			Whales:      WhalesConfig{URL: "wss://ws.whales.market/socket.io/?EIO=4&transport=websocket"},
			Synthetic:   SyntheticConfig{IntervalMs: 500},
		},
		Telegram: TelegramConfig{RatePerMinute: 20},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "spreadbot:alerts",
		},
		Server: ServerConfig{Addr: ":8080"},
		Links: map[string]string{
			"MEXC":        "https://www.mexc.com/exchange",
			"WHALES":      "https://www.whales.market/",
			"BYBIT":       "https://www.bybit.com/trade/usdt",
			"HYPERLIQUID": "https://app.hyperliquid.xyz/",
			"BINANCE":     "https://www.binance.com/en/futures",
		},
	}
}

// Validate checks the configuration for shape errors that should stop the
// process at startup rather than surface per-update.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	if c.Backoff.InitialSeconds <= 0 {
		return fmt.Errorf("config: backoff initial_seconds must be positive")
	}
	if c.Backoff.MaxSeconds < c.Backoff.InitialSeconds {
		return fmt.Errorf("config: backoff max_seconds below initial_seconds")
	}
	if c.Backoff.Multiplier < 1 {
		return fmt.Errorf("config: backoff multiplier must be >= 1")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("config: telegram enabled without bot_token")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("config: telegram enabled without chat_id")
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis enabled without addr")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("config: server enabled without addr")
	}
	return nil
}
