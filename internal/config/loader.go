package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path, merges it over Defaults, applies
// SPREADBOT_* environment overrides, and returns the result. The caller
// should invoke Validate afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env if present; secrets are injected this way in deployments.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from well-known SPREADBOT_*
// variables when set, so operators can supply secrets without editing the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "SPREADBOT_LOG_LEVEL")
	setStr(&cfg.LogFile, "SPREADBOT_LOG_FILE")

	setBool(&cfg.Telegram.Enabled, "SPREADBOT_TELEGRAM_ENABLED")
	setStr(&cfg.Telegram.BotToken, "SPREADBOT_TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Telegram.ChatID, "SPREADBOT_TELEGRAM_CHAT_ID")
	setStr(&cfg.Telegram.AlertPrefix, "SPREADBOT_TELEGRAM_ALERT_PREFIX")
	setFloat64(&cfg.Telegram.RatePerMinute, "SPREADBOT_TELEGRAM_RATE_PER_MINUTE")

	setBool(&cfg.Redis.Enabled, "SPREADBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SPREADBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SPREADBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SPREADBOT_REDIS_DB")
	setStr(&cfg.Redis.Channel, "SPREADBOT_REDIS_CHANNEL")

	setBool(&cfg.Server.Enabled, "SPREADBOT_SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "SPREADBOT_SERVER_ADDR")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
