package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies NEXUS_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known NEXUS_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "NEXUS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "NEXUS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "NEXUS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "NEXUS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "NEXUS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "NEXUS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "NEXUS_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "NEXUS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "NEXUS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "NEXUS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "NEXUS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "NEXUS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "NEXUS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "NEXUS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "NEXUS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "NEXUS_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "NEXUS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "NEXUS_S3_REGION")
	setStr(&cfg.S3.Bucket, "NEXUS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "NEXUS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "NEXUS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "NEXUS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "NEXUS_S3_FORCE_PATH_STYLE")

	// ── Custody ──
	setStr(&cfg.Custody.BaseURL, "NEXUS_CUSTODY_BASE_URL")
	setStr(&cfg.Custody.APIKey, "NEXUS_CUSTODY_API_KEY")
	setDuration(&cfg.Custody.Timeout, "NEXUS_CUSTODY_TIMEOUT")

	// ── Trading ──
	setInt(&cfg.Trading.TradeLimit, "NEXUS_TRADING_TRADE_LIMIT")
	setDuration(&cfg.Trading.TradeWindow, "NEXUS_TRADING_TRADE_WINDOW")
	setDuration(&cfg.Trading.SweepInterval, "NEXUS_TRADING_SWEEP_INTERVAL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "NEXUS_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "NEXUS_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "NEXUS_ARCHIVE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NEXUS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NEXUS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NEXUS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NEXUS_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "NEXUS_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
