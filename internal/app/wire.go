package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/paperdesk/internal/blob/s3"
	"github.com/alanyoungcy/paperdesk/internal/cache/redis"
	"github.com/alanyoungcy/paperdesk/internal/catalog"
	"github.com/alanyoungcy/paperdesk/internal/config"
	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/notify"
	"github.com/alanyoungcy/paperdesk/internal/server/handler"
	"github.com/alanyoungcy/paperdesk/internal/store/memory"
	"github.com/alanyoungcy/paperdesk/internal/store/postgres"
)

// Stores groups the primary store implementations. Both backends satisfy
// every interface, so a single value drives the whole desk.
type Stores struct {
	Accounts  domain.AccountStore
	Ledger    domain.AccountLedger
	Positions domain.PositionStore
	Stats     domain.BotStatsStore
	Payments  domain.PaymentStore
	Audit     domain.AuditStore
}

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Stores Stores

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Archiver is nil unless an archive run is possible.
	Archiver domain.Archiver

	Catalog  *catalog.Catalog
	Notifier *notify.Notifier

	// Health probes each external dependency that was wired.
	Health map[string]handler.HealthCheck
}

// needsS3 reports whether the archive exporter must be wired.
func needsS3(cfg *config.Config) bool {
	return cfg.Store == "postgres" && (cfg.Mode == "archive" || cfg.Archive.Enabled)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Catalog: catalog.Default(),
		Health:  make(map[string]handler.HealthCheck),
	}

	// --- Primary store ---
	switch cfg.Store {
	case "postgres":
		pgClient, err := NewPostgres(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		accounts := postgres.NewAccountStore(pool)
		deps.Stores = Stores{
			Accounts:  accounts,
			Ledger:    accounts,
			Positions: postgres.NewPositionStore(pool),
			Stats:     postgres.NewBotStatsStore(pool),
			Payments:  postgres.NewPaymentStore(pool),
			Audit:     postgres.NewAuditStore(pool),
		}
		deps.Health["postgres"] = pgClient.Ping
	default:
		b := memory.New()
		deps.Stores = Stores{
			Accounts:  b.Accounts,
			Ledger:    b.Accounts,
			Positions: b.Positions,
			Stats:     b.Stats,
			Payments:  b.Payments,
			Audit:     b.Audit,
		}
		logger.Warn("wire: using in-memory store, state is lost on restart")
	}

	// --- Redis (prices, bus, locks, rate limits) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Oracle.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Health["redis"] = redisClient.Ping
	} else {
		deps.PriceCache = memory.NewPriceCache()
		deps.RateLimiter = memory.NewRateLimiter()
		deps.LockManager = memory.NewLocks()
		deps.SignalBus = memory.NewBus()
	}

	// --- S3 archive ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Stores.Positions,
			deps.Stores.Audit,
		)
		deps.Health["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
			"",
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// NewPostgres connects to the configured database.
func NewPostgres(ctx context.Context, cfg *config.Config) (*postgres.Client, error) {
	c, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return c, nil
}
