// Package app provides the top-level application lifecycle management for the
// paper trading desk. It wires together all dependencies (stores, caches, blob
// storage, services, bots and notifications) and starts the appropriate
// goroutines based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/paperdesk/internal/bot"
	"github.com/alanyoungcy/paperdesk/internal/config"
	"github.com/alanyoungcy/paperdesk/internal/server/ws"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
// bots and hub are set once a trading mode has built the desk.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()

	bots *bot.Manager
	hub  *ws.Hub
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("store", a.cfg.Store),
		slog.Bool("redis", a.cfg.Redis.Enabled),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "trade":
		return a.TradeMode(ctx, deps)
	case "feed":
		return a.FeedMode(ctx, deps)
	case "archive":
		return a.ArchiveMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	if a.hub != nil {
		a.logger.Info("closing websocket hub", slog.Int("clients", a.hub.Clients()))
		a.hub = nil
	}
	if a.bots != nil {
		a.logger.Info("stopping bot manager", slog.Int("running_bots", a.bots.Running()))
		// Drivers must finish their in-flight ticks before the stores close.
		a.bots.StopAll()
		a.bots = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
