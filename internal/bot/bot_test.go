package bot

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperdesk/internal/catalog"
	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/service"
	"github.com/alanyoungcy/paperdesk/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type constOracle float64

func (o constOracle) GetPrice(context.Context, string) (float64, error) { return float64(o), nil }

func newTrading(t *testing.T, balance float64) (*memory.Backend, *service.PositionService) {
	t.Helper()
	b := memory.New()
	require.NoError(t, b.Accounts.Create(context.Background(), domain.Account{ID: "u1", Balance: balance}))
	oracle := constOracle(100)
	svc := service.NewPositionService(service.PositionDeps{
		Ledger:    b.Accounts,
		Positions: b.Positions,
		Oracle:    oracle,
		Pricing:   service.NewMarketExit(oracle),
		Stats:     service.NewStatsTracker(b.Stats, discardLogger()),
		Bus:       memory.NewBus(),
		Audit:     b.Audit,
		Catalog:   catalog.Default(),
	}, service.DefaultTradingConfig(), discardLogger())
	return b, svc
}

func TestTickDrainsBalanceThenFails(t *testing.T) {
	ctx := context.Background()
	b, svc := newTrading(t, 2000)

	cfg := DefaultConfig()
	cfg.Defaults.TradeAmount = 500
	d := NewDriver("u1", svc, catalog.Default(), nil, nil, cfg, discardLogger())

	for i := 0; i < 4; i++ {
		pos, err := d.Tick(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 500.0, pos.Amount, 1e-9)
		assert.InDelta(t, 2.0, (pos.EntryPrice-pos.StopLoss)/pos.EntryPrice*100*pos.Type.Sign(), 1e-9)
	}
	bal, err := b.Accounts.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, bal, 1e-9)

	_, err = d.Tick(ctx)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	st := d.Status()
	assert.Equal(t, int64(5), st.Ticks)
	assert.NotEmpty(t, st.LastError)
	require.NotNil(t, st.LastTick)

	open, err := b.Positions.ListOpen(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, open, 4)
}

func TestTickPicksFromCatalogAndBothDirections(t *testing.T) {
	ctx := context.Background()
	_, svc := newTrading(t, 1e6)
	cat := catalog.Default()

	d := NewDriver("u1", svc, cat, nil, nil, DefaultConfig(), discardLogger())
	flips := 0
	d.intn = func(n int) int {
		if n == 2 {
			flips++
			return flips % 2
		}
		return n - 1
	}

	seen := map[domain.PositionType]bool{}
	for i := 0; i < 4; i++ {
		pos, err := d.Tick(ctx)
		require.NoError(t, err)
		_, ok := cat.Lookup(pos.Symbol)
		assert.True(t, ok)
		seen[pos.Type] = true
	}
	assert.True(t, seen[domain.PositionLong])
	assert.True(t, seen[domain.PositionShort])
}

func TestRunningBotKeepsGoingAfterFailures(t *testing.T) {
	b, svc := newTrading(t, 2000)

	cfg := DefaultConfig()
	cfg.Defaults.TradeAmount = 500
	d := NewDriver("u1", svc, catalog.Default(), memory.NewLocks(), memory.NewBus(), cfg, discardLogger())
	d.interval = func() time.Duration { return time.Millisecond }

	require.NoError(t, d.Start(context.Background()))
	assert.Equal(t, domain.BotRunning, d.Status().State)

	require.Eventually(t, func() bool { return d.Status().Ticks >= 6 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.BotRunning, d.Status().State)

	d.Stop()
	st := d.Status()
	assert.Equal(t, domain.BotStopped, st.State)
	assert.Contains(t, st.LastError, domain.ErrInsufficientBalance.Error())

	bal, err := b.Accounts.Balance(context.Background(), "u1")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, bal, 1e-9)

	// No tick starts after Stop returns.
	ticks := d.Status().Ticks
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ticks, d.Status().Ticks)
}

type blockingOpener struct {
	started chan struct{}
	release chan struct{}
	done    atomic.Bool
}

func (o *blockingOpener) OpenPosition(ctx context.Context, req domain.OpenRequest) (domain.Position, error) {
	o.started <- struct{}{}
	<-o.release
	o.done.Store(true)
	return domain.Position{ID: "p", UserID: req.UserID, Symbol: req.Symbol, Amount: req.Amount, Type: req.Type}, nil
}

func TestStopWaitsForInFlightTick(t *testing.T) {
	op := &blockingOpener{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := NewDriver("u1", op, catalog.Default(), nil, nil, DefaultConfig(), discardLogger())
	d.interval = func() time.Duration { return time.Millisecond }
	require.NoError(t, d.Start(context.Background()))

	<-op.started

	var stopped atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Stop()
		stopped.Store(true)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, stopped.Load())
	close(op.release)
	wg.Wait()
	assert.True(t, op.done.Load())
	assert.Equal(t, int64(1), d.Status().Ticks)
}

func TestSettingsApplyToNextTick(t *testing.T) {
	ctx := context.Background()
	_, svc := newTrading(t, 10000)
	d := NewDriver("u1", svc, catalog.Default(), nil, nil, DefaultConfig(), discardLogger())

	assert.ErrorIs(t, d.UpdateSettings(domain.BotSettings{StopLoss: 0, TakeProfit: 5, TradeAmount: 100}), domain.ErrInvalidSettings)
	assert.ErrorIs(t, d.UpdateSettings(domain.BotSettings{StopLoss: 2, TakeProfit: 5, TradeAmount: 0}), domain.ErrInvalidSettings)
	require.NoError(t, d.UpdateSettings(domain.BotSettings{StopLoss: 1, TakeProfit: 3, TradeAmount: 250}))

	pos, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 250.0, pos.Amount, 1e-9)

	assert.ErrorIs(t, d.SetRiskLevel("Reckless"), domain.ErrInvalidSettings)
	require.NoError(t, d.SetRiskLevel(domain.RiskAggressive))
	assert.Equal(t, domain.RiskAggressive, d.Status().RiskLevel)
}

func TestLockHeldSkipsTick(t *testing.T) {
	ctx := context.Background()
	_, svc := newTrading(t, 10000)
	locks := memory.NewLocks()
	unlock, err := locks.Acquire(ctx, "bot:u1", time.Minute)
	require.NoError(t, err)
	defer unlock()

	d := NewDriver("u1", svc, catalog.Default(), locks, nil, DefaultConfig(), discardLogger())
	_, err = d.Tick(ctx)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Equal(t, int64(0), d.Status().Ticks)
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	b, svc := newTrading(t, 10000)
	m := NewManager(ManagerDeps{Opener: svc, Ledger: b.Accounts, Catalog: catalog.Default()}, DefaultConfig(), discardLogger())

	_, err := m.Start(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUnknownUser)

	st, err := m.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.BotStopped, st.State)
	assert.Equal(t, domain.DefaultBotSettings(), st.Settings)
	assert.Equal(t, domain.RiskModerate, st.RiskLevel)

	st, err = m.Start(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.BotRunning, st.State)
	assert.Equal(t, 1, m.Running())

	st, err = m.UpdateSettings(ctx, "u1", domain.BotSettings{StopLoss: 1, TakeProfit: 2, TradeAmount: 10})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, st.Settings.TradeAmount, 1e-9)

	st, err = m.Stop(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.BotStopped, st.State)
	assert.Equal(t, 0, m.Running())

	_, err = m.Start(ctx, "u1")
	require.NoError(t, err)
	runCtx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() { errc <- m.Run(runCtx) }()
	cancel()
	require.NoError(t, <-errc)
	assert.Equal(t, 0, m.Running())
}

func TestStartAfterStopAllIsRefused(t *testing.T) {
	ctx := context.Background()
	b, svc := newTrading(t, 10000)
	m := NewManager(ManagerDeps{Opener: svc, Ledger: b.Accounts, Catalog: catalog.Default()}, DefaultConfig(), discardLogger())
	m.StopAll()

	_, err := m.Start(ctx, "u1")
	assert.ErrorIs(t, err, domain.ErrShuttingDown)

	st, err := m.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.BotStopped, st.State)
	assert.Equal(t, 0, m.Running())
}

func TestDriverStopsWithItsParent(t *testing.T) {
	_, svc := newTrading(t, 10000)
	d := NewDriver("u1", svc, catalog.Default(), nil, nil, DefaultConfig(), discardLogger())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Start(cancelled), domain.ErrShuttingDown)
	assert.Equal(t, domain.BotStopped, d.Status().State)

	parent, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Start(parent))
	assert.Equal(t, domain.BotRunning, d.Status().State)
	cancel()
	require.Eventually(t, func() bool { return d.Status().State == domain.BotStopped }, time.Second, 5*time.Millisecond)

	// The driver can be started again once the loop has exited.
	require.NoError(t, d.Start(context.Background()))
	assert.Equal(t, domain.BotRunning, d.Status().State)
	d.Stop()
	assert.Equal(t, domain.BotStopped, d.Status().State)
}
