package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAPERDESK_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAPERDESK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Store, "PAPERDESK_STORE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PAPERDESK_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PAPERDESK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PAPERDESK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PAPERDESK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PAPERDESK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PAPERDESK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PAPERDESK_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PAPERDESK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PAPERDESK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PAPERDESK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PAPERDESK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PAPERDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAPERDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAPERDESK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAPERDESK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAPERDESK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAPERDESK_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PAPERDESK_REDIS_KEY_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PAPERDESK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAPERDESK_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAPERDESK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAPERDESK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAPERDESK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAPERDESK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAPERDESK_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PAPERDESK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PAPERDESK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PAPERDESK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminKeyHash, "PAPERDESK_SERVER_ADMIN_KEY_HASH")
	setInt(&cfg.Server.RateLimit, "PAPERDESK_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PAPERDESK_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.IdempotencyTTL, "PAPERDESK_SERVER_IDEMPOTENCY_TTL")

	// ── Trading ──
	setStr(&cfg.Trading.PnLModel, "PAPERDESK_TRADING_PNL_MODEL")
	setStr(&cfg.Trading.Pricing, "PAPERDESK_TRADING_PRICING")
	setFloat64(&cfg.Trading.DefaultStopLossPct, "PAPERDESK_TRADING_DEFAULT_STOP_LOSS_PCT")
	setFloat64(&cfg.Trading.DefaultTakeProfitPct, "PAPERDESK_TRADING_DEFAULT_TAKE_PROFIT_PCT")
	setFloat64(&cfg.Trading.LargeLossThreshold, "PAPERDESK_TRADING_LARGE_LOSS_THRESHOLD")

	// ── Bot ──
	setDuration(&cfg.Bot.MinInterval, "PAPERDESK_BOT_MIN_INTERVAL")
	setDuration(&cfg.Bot.MaxInterval, "PAPERDESK_BOT_MAX_INTERVAL")
	setFloat64(&cfg.Bot.MinTradeAmount, "PAPERDESK_BOT_MIN_TRADE_AMOUNT")
	setDuration(&cfg.Bot.LockTTL, "PAPERDESK_BOT_LOCK_TTL")
	setDuration(&cfg.Bot.TickTimeout, "PAPERDESK_BOT_TICK_TIMEOUT")
	setFloat64(&cfg.Bot.TradeAmount, "PAPERDESK_BOT_TRADE_AMOUNT")

	// ── Risk / oracle / feed ──
	setStr(&cfg.Risk.DefaultLevel, "PAPERDESK_RISK_DEFAULT_LEVEL")
	setDuration(&cfg.Oracle.Timeout, "PAPERDESK_ORACLE_TIMEOUT")
	setDuration(&cfg.Oracle.MaxAge, "PAPERDESK_ORACLE_MAX_AGE")
	setDuration(&cfg.Oracle.CacheTTL, "PAPERDESK_ORACLE_CACHE_TTL")
	setBool(&cfg.Feed.Enabled, "PAPERDESK_FEED_ENABLED")
	setDuration(&cfg.Feed.Interval, "PAPERDESK_FEED_INTERVAL")
	setFloat64(&cfg.Feed.MaxDriftPct, "PAPERDESK_FEED_MAX_DRIFT_PCT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PAPERDESK_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "PAPERDESK_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "PAPERDESK_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PAPERDESK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAPERDESK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAPERDESK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAPERDESK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PAPERDESK_MODE")
	setStr(&cfg.LogLevel, "PAPERDESK_LOG_LEVEL")
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
