package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/paperdesk/internal/archive"
	"github.com/alanyoungcy/paperdesk/internal/bot"
	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/feed"
	"github.com/alanyoungcy/paperdesk/internal/server"
	"github.com/alanyoungcy/paperdesk/internal/server/handler"
	"github.com/alanyoungcy/paperdesk/internal/server/ws"
	"github.com/alanyoungcy/paperdesk/internal/service"
)

// desk holds the services shared by the trade and feed goroutines.
type desk struct {
	prices    *service.PriceService
	stats     *service.StatsTracker
	positions *service.PositionService
	accounts  *service.AccountService
	payments  *service.PaymentService
	risk      *service.RiskService
	feed      *service.PositionFeed
	bots      *bot.Manager
}

func (a *App) buildDesk(deps *Dependencies) (*desk, error) {
	d := &desk{}
	d.prices = service.NewPriceService(deps.PriceCache, deps.SignalBus, a.cfg.Oracle.MaxAge.Duration, a.logger)

	pricing, err := service.NewPricingStrategy(a.cfg.Trading.Pricing, d.prices)
	if err != nil {
		return nil, err
	}

	d.stats = service.NewStatsTracker(deps.Stores.Stats, a.logger)
	d.positions = service.NewPositionService(service.PositionDeps{
		Ledger:    deps.Stores.Ledger,
		Positions: deps.Stores.Positions,
		Oracle:    d.prices,
		Pricing:   pricing,
		Stats:     d.stats,
		Bus:       deps.SignalBus,
		Audit:     deps.Stores.Audit,
		Catalog:   deps.Catalog,
		Notifier:  deps.Notifier,
	}, service.TradingConfig{
		PnLModel:             service.PnLModel(a.cfg.Trading.PnLModel),
		OracleTimeout:        a.cfg.Oracle.Timeout.Duration,
		DefaultStopLossPct:   a.cfg.Trading.DefaultStopLossPct,
		DefaultTakeProfitPct: a.cfg.Trading.DefaultTakeProfitPct,
		LargeLossThreshold:   a.cfg.Trading.LargeLossThreshold,
	}, a.logger)

	d.accounts = service.NewAccountService(deps.Stores.Accounts, deps.SignalBus, deps.Stores.Audit, a.logger)
	d.payments = service.NewPaymentService(deps.Stores.Payments, deps.SignalBus, deps.Stores.Audit, deps.Notifier, a.logger)

	d.risk, err = service.NewRiskService(deps.Stores.Ledger, deps.Stores.Positions, deps.PriceCache, a.logger).
		WithDefaultLevel(domain.RiskLevel(a.cfg.Risk.DefaultLevel))
	if err != nil {
		return nil, err
	}

	d.feed = service.NewPositionFeed(deps.Stores.Positions, deps.SignalBus, a.cfg.Feed.Interval.Duration, a.logger)
	d.bots = bot.NewManager(bot.ManagerDeps{
		Opener:  d.positions,
		Ledger:  deps.Stores.Ledger,
		Catalog: deps.Catalog,
		Locks:   deps.LockManager,
		Bus:     deps.SignalBus,
	}, bot.Config{
		MinInterval:    a.cfg.Bot.MinInterval.Duration,
		MaxInterval:    a.cfg.Bot.MaxInterval.Duration,
		MinTradeAmount: a.cfg.Bot.MinTradeAmount,
		LockTTL:        a.cfg.Bot.LockTTL.Duration,
		TickTimeout:    a.cfg.Bot.TickTimeout.Duration,
		Defaults:       a.cfg.Bot.Settings(),
	}, a.logger)
	a.bots = d.bots
	return d, nil
}

// TradeMode serves the HTTP API and WebSocket hub and runs the bot manager.
// Prices come from whatever the cache holds, seeded on first lookup.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	d, err := a.buildDesk(deps)
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startTrading(ctx, g, deps, d)
	return g.Wait()
}

// FeedMode runs only the synthetic price feed. Pair it with a trade-mode
// replica sharing the same Redis.
func (a *App) FeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting feed mode")

	prices := service.NewPriceService(deps.PriceCache, deps.SignalBus, a.cfg.Oracle.MaxAge.Duration, a.logger)
	g, ctx := errgroup.WithContext(ctx)
	a.startFeed(ctx, g, deps, prices)
	return g.Wait()
}

// ArchiveMode performs one archive export and returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver not configured")
	}
	res, err := archive.NewRunner(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete",
		slog.Int64("positions", res.Positions),
		slog.Int64("audit", res.Audit),
	)
	return nil
}

// FullMode runs trading, the synthetic feed and, when enabled, the archive
// schedule in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	d, err := a.buildDesk(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startTrading(ctx, g, deps, d)

	if a.cfg.Feed.Enabled {
		a.startFeed(ctx, g, deps, d.prices)
	}

	switch {
	case a.cfg.Archive.Enabled && deps.Archiver != nil:
		runner := archive.NewRunner(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
		g.Go(func() error {
			return runner.RunCron(ctx, a.cfg.Archive.Cron)
		})
	case a.cfg.Archive.Enabled:
		a.logger.WarnContext(ctx, "archive.enabled ignored without the postgres store")
	}

	return g.Wait()
}

// startTrading launches the bot manager and, when the server is enabled, the
// WebSocket hub and HTTP API.
func (a *App) startTrading(ctx context.Context, g *errgroup.Group, deps *Dependencies, d *desk) {
	g.Go(func() error {
		return d.bots.Run(ctx)
	})

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, bots can only be driven by a restart")
		return
	}

	hub := ws.NewHub(deps.SignalBus, d.feed, a.logger)
	a.hub = hub
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:           a.cfg.Server.Port,
		CORSOrigins:    a.cfg.Server.CORSOrigins,
		AdminKeyHash:   a.cfg.Server.AdminKeyHash,
		RateLimit:      a.cfg.Server.RateLimit,
		RateWindow:     a.cfg.Server.RateWindow.Duration,
		IdempotencyTTL: a.cfg.Server.IdempotencyTTL.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.Health, a.logger),
		Status: &handler.StatusHandler{
			Mode:        a.cfg.Mode,
			Driver:      a.cfg.Store,
			StartedAt:   time.Now().UTC(),
			Instruments: deps.Catalog.Len(),
			RunningBots: d.bots.Running,
			Clients:     hub.Clients,
		},
		Instruments: handler.NewInstrumentHandler(deps.Catalog),
		Accounts:    handler.NewAccountHandler(d.accounts, a.logger),
		Positions:   handler.NewPositionHandler(d.positions, a.logger),
		Bots:        handler.NewBotHandler(d.bots, d.stats, a.logger),
		Risk:        handler.NewRiskHandler(d.risk, a.logger),
		Payments:    handler.NewPaymentHandler(d.payments, a.logger),
	}, server.Guards{
		Limiter: deps.RateLimiter,
		Locks:   deps.LockManager,
	}, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startFeed launches the synthetic price walk writing through prices.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies, prices *service.PriceService) {
	synth := feed.NewSynthetic(deps.Catalog, deps.PriceCache, prices, feed.Config{
		Interval:    a.cfg.Feed.Interval.Duration,
		MaxDriftPct: a.cfg.Feed.MaxDriftPct,
		Floor:       a.cfg.Feed.Floor,
	}, a.logger)
	g.Go(func() error {
		return synth.Run(ctx)
	})
}
