// Package config defines the top-level configuration for the paper trading
// desk and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAPERDESK_* environment variables.
type Config struct {
	// Store selects the primary store: "postgres" or "memory".
	Store    string         `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Trading  TradingConfig  `toml:"trading"`
	Bot      BotConfig      `toml:"bot"`
	Risk     RiskConfig     `toml:"risk"`
	Oracle   OracleConfig   `toml:"oracle"`
	Feed     FeedConfig     `toml:"feed"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When disabled, prices, the
// event bus, locks and rate limits stay in process.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters for the archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// AdminKeyHash is the bcrypt hash of the admin key. Empty leaves admin
	// routes open, which Validate only allows outside postgres deployments.
	AdminKeyHash   string   `toml:"admin_key_hash"`
	RateLimit      int      `toml:"rate_limit"`
	RateWindow     duration `toml:"rate_window"`
	IdempotencyTTL duration `toml:"idempotency_ttl"`
}

// TradingConfig holds position pricing parameters.
type TradingConfig struct {
	// PnLModel is "units" or "return".
	PnLModel string `toml:"pnl_model"`
	// Pricing is "biased" or "market".
	Pricing              string  `toml:"pricing"`
	DefaultStopLossPct   float64 `toml:"default_stop_loss_pct"`
	DefaultTakeProfitPct float64 `toml:"default_take_profit_pct"`
	LargeLossThreshold   float64 `toml:"large_loss_threshold"`
}

// BotConfig holds the bot driver tunables.
type BotConfig struct {
	MinInterval    duration `toml:"min_interval"`
	MaxInterval    duration `toml:"max_interval"`
	MinTradeAmount float64  `toml:"min_trade_amount"`
	LockTTL        duration `toml:"lock_ttl"`
	TickTimeout    duration `toml:"tick_timeout"`
	StopLoss       float64  `toml:"stop_loss"`
	TakeProfit     float64  `toml:"take_profit"`
	TradeAmount    float64  `toml:"trade_amount"`
}

// Settings returns the default bot settings.
func (b BotConfig) Settings() domain.BotSettings {
	return domain.BotSettings{StopLoss: b.StopLoss, TakeProfit: b.TakeProfit, TradeAmount: b.TradeAmount}
}

// RiskConfig holds the risk evaluation defaults.
type RiskConfig struct {
	DefaultLevel string `toml:"default_level"`
}

// OracleConfig bounds price lookups.
type OracleConfig struct {
	Timeout duration `toml:"timeout"`
	// MaxAge rejects cached prices older than this. Zero accepts any age.
	MaxAge duration `toml:"max_age"`
	// CacheTTL expires prices in Redis.
	CacheTTL duration `toml:"cache_ttl"`
}

// FeedConfig holds the synthetic price feed parameters.
type FeedConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    duration `toml:"interval"`
	MaxDriftPct float64  `toml:"max_drift_pct"`
	Floor       float64  `toml:"floor"`
}

// ArchiveConfig holds the cold-storage export schedule.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. They
// run a single in-process desk: memory store, no Redis, no archive.
func Defaults() Config {
	return Config{
		Store: "memory",
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "paperdesk",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "paperdesk:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "paperdesk-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:      60,
			RateWindow:     duration{time.Minute},
			IdempotencyTTL: duration{10 * time.Minute},
		},
		Trading: TradingConfig{
			PnLModel:             "units",
			Pricing:              "biased",
			DefaultStopLossPct:   2,
			DefaultTakeProfitPct: 5,
		},
		Bot: BotConfig{
			MinInterval:    duration{5 * time.Second},
			MaxInterval:    duration{10 * time.Second},
			MinTradeAmount: 1,
			LockTTL:        duration{30 * time.Second},
			TickTimeout:    duration{15 * time.Second},
			StopLoss:       2,
			TakeProfit:     5,
			TradeAmount:    1000,
		},
		Risk: RiskConfig{
			DefaultLevel: string(domain.RiskModerate),
		},
		Oracle: OracleConfig{
			Timeout:  duration{2 * time.Second},
			CacheTTL: duration{time.Hour},
		},
		Feed: FeedConfig{
			Enabled:     true,
			Interval:    duration{2 * time.Second},
			MaxDriftPct: 0.5,
			Floor:       0.01,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 1 * *",
			RetentionDays: 90,
		},
		Notify: NotifyConfig{
			Events: []string{"large_loss", "payment_pending", "payment_resolved", "bot_error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"feed":    true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, feed, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Store
	switch c.Store {
	case "memory":
		if mode == "archive" {
			errs = append(errs, "store: archive mode needs the postgres store")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown store %q (valid: postgres, memory)", c.Store))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Archive and S3
	if c.Archive.Enabled || mode == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if strings.TrimSpace(c.Archive.Cron) == "" {
			errs = append(errs, "archive: cron must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
		if c.Server.IdempotencyTTL.Duration < 0 {
			errs = append(errs, "server: idempotency_ttl must be >= 0")
		}
		if c.Store == "postgres" && c.Server.AdminKeyHash == "" {
			errs = append(errs, "server: admin_key_hash is required with the postgres store")
		}
	}

	// Trading
	if c.Trading.PnLModel != "units" && c.Trading.PnLModel != "return" {
		errs = append(errs, fmt.Sprintf("trading: pnl_model must be units or return, got %q", c.Trading.PnLModel))
	}
	if c.Trading.Pricing != "biased" && c.Trading.Pricing != "market" {
		errs = append(errs, fmt.Sprintf("trading: pricing must be biased or market, got %q", c.Trading.Pricing))
	}
	if c.Trading.DefaultStopLossPct <= 0 || c.Trading.DefaultTakeProfitPct <= 0 {
		errs = append(errs, "trading: default_stop_loss_pct and default_take_profit_pct must be > 0")
	}
	if c.Trading.LargeLossThreshold < 0 {
		errs = append(errs, "trading: large_loss_threshold must be >= 0")
	}

	// Bot
	if c.Bot.MinInterval.Duration <= 0 {
		errs = append(errs, "bot: min_interval must be > 0")
	}
	if c.Bot.MaxInterval.Duration < c.Bot.MinInterval.Duration {
		errs = append(errs, "bot: max_interval must be >= min_interval")
	}
	if c.Bot.MinTradeAmount <= 0 {
		errs = append(errs, "bot: min_trade_amount must be > 0")
	}
	if c.Bot.TickTimeout.Duration <= 0 {
		errs = append(errs, "bot: tick_timeout must be > 0")
	}
	if c.Bot.LockTTL.Duration < c.Bot.TickTimeout.Duration {
		errs = append(errs, "bot: lock_ttl must be >= tick_timeout")
	}
	if err := c.Bot.Settings().Validate(c.Bot.MinTradeAmount); err != nil {
		errs = append(errs, "bot: "+err.Error())
	}

	// Risk
	if !domain.RiskLevel(c.Risk.DefaultLevel).Valid() {
		errs = append(errs, fmt.Sprintf("risk: unknown default_level %q (valid: Conservative, Moderate, Aggressive)", c.Risk.DefaultLevel))
	}

	// Oracle
	if c.Oracle.Timeout.Duration <= 0 {
		errs = append(errs, "oracle: timeout must be > 0")
	}
	if c.Oracle.MaxAge.Duration < 0 || c.Oracle.CacheTTL.Duration < 0 {
		errs = append(errs, "oracle: max_age and cache_ttl must be >= 0")
	}

	// Feed
	if c.Feed.Enabled {
		if c.Feed.Interval.Duration <= 0 {
			errs = append(errs, "feed: interval must be > 0")
		}
		if c.Feed.MaxDriftPct < 0 || c.Feed.MaxDriftPct >= 100 {
			errs = append(errs, "feed: max_drift_pct must be in [0, 100)")
		}
		if c.Feed.Floor <= 0 {
			errs = append(errs, "feed: floor must be > 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
