package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperdesk/internal/config"
	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/service"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Server.Port = 0
	cfg.Feed.Interval.Duration = 10 * time.Millisecond
	return &cfg
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireMemory(t *testing.T) {
	deps, cleanup, err := Wire(context.Background(), testConfig(), discard())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Stores.Positions)
	assert.NotNil(t, deps.SignalBus)
	assert.Nil(t, deps.Archiver, "archiver needs the postgres store")
	assert.Empty(t, deps.Health)
	assert.Empty(t, deps.Notifier.Senders())
}

func TestBuildDeskUsesDefaultRiskLevel(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.DefaultLevel = string(domain.RiskConservative)
	a := New(cfg, discard())
	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	d, err := a.buildDesk(deps)
	require.NoError(t, err)
	defer d.bots.StopAll()
	ev, err := d.risk.Evaluate(context.Background(), service.EvaluateRequest{Balance: 10000})
	require.NoError(t, err)
	assert.Equal(t, 10.0, ev.Settings.MaxPositionSize)
	assert.Equal(t, 1000.0, ev.Metrics.MaxPositionAmount)
}

func TestBuildDeskRejectsUnknownPricing(t *testing.T) {
	cfg := testConfig()
	cfg.Trading.Pricing = "oracle"
	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	defer cleanup()

	_, err = New(cfg, discard()).buildDesk(deps)
	assert.Error(t, err)
}

func TestFullModeStopsOnCancel(t *testing.T) {
	a := New(testConfig(), discard())
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := a.Run(ctx)
	if err != nil {
		assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled), err)
	}
}

func TestArchiveModeNeedsArchiver(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = "archive"
	err := New(cfg, discard()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archiver not configured")
}

func TestCloseStopsDeskBots(t *testing.T) {
	cfg := testConfig()
	a := New(cfg, discard())
	deps, cleanup, err := Wire(context.Background(), cfg, discard())
	require.NoError(t, err)
	a.closers = append(a.closers, cleanup)

	d, err := a.buildDesk(deps)
	require.NoError(t, err)
	require.NoError(t, deps.Stores.Accounts.Create(context.Background(), domain.Account{ID: "u1", Balance: 1000}))
	_, err = d.bots.Start(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.bots.Running())

	a.Close()
	assert.Equal(t, 0, d.bots.Running())
	_, err = d.bots.Start(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrShuttingDown)

	a.Close()
}
