package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.Bot.MinInterval.Duration)
	assert.Equal(t, 1000.0, cfg.Bot.Settings().TradeAmount)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paperdesk.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
store = "postgres"
mode = "trade"

[postgres]
dsn = "postgres://desk:pw@db:5432/desk"

[server]
port = 9090
admin_key_hash = "$2a$10$abcdefghijklmnopqrstuv"
rate_window = "30s"

[bot]
min_interval = "1s"
max_interval = "2s"
tick_timeout = "1s"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, "trade", cfg.Mode)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
	assert.Equal(t, time.Second, cfg.Bot.MinInterval.Duration)
	// Untouched keys keep their defaults.
	assert.Equal(t, 60, cfg.Server.RateLimit)
	assert.Equal(t, "units", cfg.Trading.PnLModel)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("PAPERDESK_SERVER_PORT", "7070")
	t.Setenv("PAPERDESK_TRADING_PNL_MODEL", "return")
	t.Setenv("PAPERDESK_BOT_MAX_INTERVAL", "20s")
	t.Setenv("PAPERDESK_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("PAPERDESK_SERVER_RATE_LIMIT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "return", cfg.Trading.PnLModel)
	assert.Equal(t, 20*time.Second, cfg.Bot.MaxInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 60, cfg.Server.RateLimit, "unparsable values are ignored")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "scalp"
	cfg.Store = "postgres"
	cfg.Postgres.Host = ""
	cfg.Trading.PnLModel = "pips"
	cfg.Bot.MaxInterval.Duration = time.Second
	cfg.Risk.DefaultLevel = "reckless"
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "scalp"`,
		"postgres: host must not be empty",
		"admin_key_hash is required",
		"trading: pnl_model",
		"bot: max_interval",
		"risk: unknown default_level",
		"telegram_chat_id",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateArchiveNeedsBucketAndPostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive mode needs the postgres store")
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")
}

func TestValidateBotDefaults(t *testing.T) {
	cfg := Defaults()
	cfg.Bot.TradeAmount = 0.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trade_amount")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.Postgres.DSN = "postgres://u:pw@h/db"
	cfg.S3.SecretKey = "secret"
	cfg.Server.AdminKeyHash = "$2a$10$hash"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.Postgres.DSN)
	assert.Equal(t, redacted, out.S3.SecretKey)
	assert.Equal(t, redacted, out.Server.AdminKeyHash)
	assert.Equal(t, redacted, out.Notify.TelegramToken)
	assert.Empty(t, out.Redis.Password, "empty secrets stay empty")

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
	assert.Equal(t, "pw", cfg.Postgres.Password)
}
