package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperdesk/internal/catalog"
	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixedOracle struct {
	price float64
	err   error
}

func (o fixedOracle) GetPrice(context.Context, string) (float64, error) {
	return o.price, o.err
}

type fixedExit struct{ price float64 }

func (f fixedExit) ExitPrice(context.Context, domain.Position) (float64, error) {
	return f.price, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

type harness struct {
	backend  *memory.Backend
	bus      *memory.Bus
	svc      *PositionService
	notifier *recordingNotifier
}

func newHarness(t *testing.T, oracle domain.PriceOracle, pricing domain.PricingStrategy, cfg TradingConfig) *harness {
	t.Helper()
	b := memory.New()
	bus := memory.NewBus()
	n := &recordingNotifier{}
	svc := NewPositionService(PositionDeps{
		Ledger:    b.Accounts,
		Positions: b.Positions,
		Oracle:    oracle,
		Pricing:   pricing,
		Stats:     NewStatsTracker(b.Stats, discardLogger()),
		Bus:       bus,
		Audit:     b.Audit,
		Catalog:   catalog.Default(),
		Notifier:  n,
	}, cfg, discardLogger())
	return &harness{backend: b, bus: bus, svc: svc, notifier: n}
}

func (h *harness) account(t *testing.T, id string, balance float64) {
	t.Helper()
	require.NoError(t, h.backend.Accounts.Create(context.Background(), domain.Account{ID: id, Balance: balance}))
}

func (h *harness) balance(t *testing.T, id string) float64 {
	t.Helper()
	bal, err := h.backend.Accounts.Balance(context.Background(), id)
	require.NoError(t, err)
	return bal
}

func TestOpenAndLosingCloseScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fixedOracle{price: 100}, fixedExit{price: 98}, DefaultTradingConfig())
	h.account(t, "u1", 10000)

	pos, err := h.svc.OpenPosition(ctx, domain.OpenRequest{
		UserID: "u1", Symbol: "binance:btcusdt", Amount: 1000, Type: domain.PositionLong,
	})
	require.NoError(t, err)
	assert.Equal(t, "BINANCE:BTCUSDT", pos.Symbol)
	assert.Equal(t, domain.MarketCrypto, pos.Market)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 98.0, pos.StopLoss, 1e-9)
	assert.InDelta(t, 105.0, pos.TakeProfit, 1e-9)
	assert.InDelta(t, 9000.0, h.balance(t, "u1"), 1e-9)

	closed, err := h.svc.ClosePosition(ctx, pos.ID, "u1")
	require.NoError(t, err)
	require.NotNil(t, closed.ProfitLoss)
	assert.InDelta(t, -2000.0, *closed.ProfitLoss, 1e-9)
	assert.InDelta(t, 8000.0, h.balance(t, "u1"), 1e-9)

	_, err = h.svc.ClosePosition(ctx, pos.ID, "u1")
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)

	stats, err := h.svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalTrades)
	assert.Equal(t, int64(1), stats.LosingTrades)
	assert.Equal(t, domain.SuccessRateFloor, stats.SuccessRate)

	audit, err := h.backend.Audit.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, audit, 2)
	assert.Equal(t, []string{"position_closed"}, h.notifier.events)
}

func TestProfitLossSignFollowsDirection(t *testing.T) {
	tests := []struct {
		name  string
		typ   domain.PositionType
		exit  float64
		model PnLModel
		want  float64
	}{
		{"long up units", domain.PositionLong, 105, PnLUnits, 50},
		{"short up units", domain.PositionShort, 105, PnLUnits, -50},
		{"short down units", domain.PositionShort, 98, PnLUnits, 20},
		{"long up return", domain.PositionLong, 105, PnLReturn, 0.5},
		{"short down return", domain.PositionShort, 98, PnLReturn, 0.2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pos := domain.Position{EntryPrice: 100, Amount: 10, Type: tc.typ}
			assert.InDelta(t, tc.want, tc.model.ProfitLoss(pos, tc.exit), 1e-9)
		})
	}
}

func TestOpenValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fixedOracle{price: 100}, fixedExit{price: 100}, DefaultTradingConfig())
	h.account(t, "u1", 500)

	tests := []struct {
		name string
		req  domain.OpenRequest
		want error
	}{
		{"zero amount", domain.OpenRequest{UserID: "u1", Symbol: "BIST:THYAO", Amount: 0, Type: domain.PositionLong}, domain.ErrInvalidAmount},
		{"bad type", domain.OpenRequest{UserID: "u1", Symbol: "BIST:THYAO", Amount: 10, Type: "sideways"}, domain.ErrInvalidPosition},
		{"wrong market", domain.OpenRequest{UserID: "u1", Symbol: "BIST:THYAO", Amount: 10, Type: domain.PositionLong, Market: domain.MarketCrypto}, domain.ErrInvalidPosition},
		{"unknown symbol no market", domain.OpenRequest{UserID: "u1", Symbol: "XYZ", Amount: 10, Type: domain.PositionLong}, domain.ErrInvalidPosition},
		{"unknown user", domain.OpenRequest{UserID: "ghost", Symbol: "BIST:THYAO", Amount: 10, Type: domain.PositionLong}, domain.ErrUnknownUser},
		{"overdraft", domain.OpenRequest{UserID: "u1", Symbol: "BIST:THYAO", Amount: 501, Type: domain.PositionLong}, domain.ErrInsufficientBalance},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.OpenPosition(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.InDelta(t, 500.0, h.balance(t, "u1"), 1e-9)
	open, err := h.svc.ListOpen(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestOpenOracleFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fixedOracle{err: errors.New("redis down")}, fixedExit{price: 100}, DefaultTradingConfig())
	h.account(t, "u1", 500)

	_, err := h.svc.OpenPosition(ctx, domain.OpenRequest{UserID: "u1", Symbol: "BIST:THYAO", Amount: 10, Type: domain.PositionLong})
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
	assert.InDelta(t, 500.0, h.balance(t, "u1"), 1e-9)

	hist, err := h.svc.History(ctx, "u1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestCloseOwnership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fixedOracle{price: 100}, fixedExit{price: 105}, DefaultTradingConfig())
	h.account(t, "u1", 1000)
	h.account(t, "u2", 1000)

	pos, err := h.svc.OpenPosition(ctx, domain.OpenRequest{UserID: "u1", Symbol: "TVC:GOLD", Amount: 100, Type: domain.PositionShort})
	require.NoError(t, err)

	_, err = h.svc.ClosePosition(ctx, pos.ID, "u2")
	assert.ErrorIs(t, err, domain.ErrNotOwner)
	_, err = h.svc.ClosePosition(ctx, "missing", "u1")
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	// Short closed higher loses: (105-100)*100*-1 = -500.
	closed, err := h.svc.ClosePosition(ctx, pos.ID, "u1")
	require.NoError(t, err)
	assert.InDelta(t, -500.0, *closed.ProfitLoss, 1e-9)
	assert.InDelta(t, 1000-100+100-500, h.balance(t, "u1"), 1e-9)
}

func TestLargeLossAlert(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultTradingConfig()
	cfg.LargeLossThreshold = 1000
	h := newHarness(t, fixedOracle{price: 100}, fixedExit{price: 98}, cfg)
	h.account(t, "u1", 10000)

	pos, err := h.svc.OpenPosition(ctx, domain.OpenRequest{UserID: "u1", Symbol: "BIST:AKBNK", Amount: 1000, Type: domain.PositionLong})
	require.NoError(t, err)
	_, err = h.svc.ClosePosition(ctx, pos.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"large_loss"}, h.notifier.events)
}

func TestConcurrentClosesSettleOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fixedOracle{price: 100}, fixedExit{price: 105}, DefaultTradingConfig())
	h.account(t, "u1", 1000)

	pos, err := h.svc.OpenPosition(ctx, domain.OpenRequest{UserID: "u1", Symbol: "BIST:THYAO", Amount: 10, Type: domain.PositionLong})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, closedErr int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.ClosePosition(ctx, pos.ID, "u1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrAlreadyClosed):
				closedErr++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, closedErr)
	// 1000 - 10 + 10 + (105-100)*10
	assert.InDelta(t, 1050.0, h.balance(t, "u1"), 1e-9)
}

func TestOpenPublishesEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, fixedOracle{price: 100}, fixedExit{price: 100}, DefaultTradingConfig())
	h.account(t, "u1", 1000)

	events, err := h.bus.Subscribe(ctx, domain.ChannelPositions)
	require.NoError(t, err)

	pos, err := h.svc.OpenPosition(ctx, domain.OpenRequest{UserID: "u1", Symbol: "BIST:THYAO", Amount: 10, Type: domain.PositionLong})
	require.NoError(t, err)

	select {
	case msg := <-events:
		var evt domain.PositionEvent
		require.NoError(t, json.Unmarshal(msg, &evt))
		assert.Equal(t, domain.EventPositionOpened, evt.Event)
		assert.Equal(t, pos.ID, evt.Position.ID)
		assert.InDelta(t, 990.0, evt.Balance, 1e-9)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
}

func TestBiasedOutcome(t *testing.T) {
	pos := domain.Position{EntryPrice: 200}
	win := NewBiasedOutcome(func() float64 { return 0.9 })
	loss := NewBiasedOutcome(func() float64 { return 0.1 })

	p, err := win.ExitPrice(context.Background(), pos)
	require.NoError(t, err)
	assert.InDelta(t, 210.0, p, 1e-9)

	p, err = loss.ExitPrice(context.Background(), pos)
	require.NoError(t, err)
	assert.InDelta(t, 196.0, p, 1e-9)
}

func TestPriceServiceSeedsMissingSymbols(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewPriceCache()
	ps := NewPriceService(cache, memory.NewBus(), time.Minute, discardLogger())

	p1, err := ps.GetPrice(ctx, "BIST:THYAO")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, p1, 100.0)
	assert.Less(t, p1, 110.0)

	// Seeded price sticks.
	p2, err := ps.GetPrice(ctx, "BIST:THYAO")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	require.NoError(t, ps.SetPrice(ctx, "BIST:THYAO", 120))
	p3, err := ps.GetPrice(ctx, "BIST:THYAO")
	require.NoError(t, err)
	assert.InDelta(t, 120.0, p3, 1e-9)
}

func TestPositionFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, fixedOracle{price: 100}, fixedExit{price: 100}, DefaultTradingConfig())
	h.account(t, "u1", 1000)
	h.account(t, "u2", 1000)

	feed := NewPositionFeed(h.backend.Positions, h.bus, time.Hour, discardLogger())
	snaps, err := feed.Subscribe(ctx, "u1")
	require.NoError(t, err)

	first := <-snaps
	assert.Empty(t, first)

	// Another user's activity does not produce a snapshot.
	_, err = h.svc.OpenPosition(ctx, domain.OpenRequest{UserID: "u2", Symbol: "BIST:THYAO", Amount: 10, Type: domain.PositionLong})
	require.NoError(t, err)

	pos, err := h.svc.OpenPosition(ctx, domain.OpenRequest{UserID: "u1", Symbol: "BIST:THYAO", Amount: 10, Type: domain.PositionLong})
	require.NoError(t, err)

	select {
	case snap := <-snaps:
		require.Len(t, snap, 1)
		assert.Equal(t, pos.ID, snap[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after open")
	}

	_, err = h.svc.ClosePosition(ctx, pos.ID, "u1")
	require.NoError(t, err)
	select {
	case snap := <-snaps:
		assert.Empty(t, snap)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after close")
	}

	cancel()
	for range snaps {
	}
}

func TestPaymentFlow(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	bus := memory.NewBus()
	n := &recordingNotifier{}
	require.NoError(t, b.Accounts.Create(ctx, domain.Account{ID: "u1", Balance: 100}))
	svc := NewPaymentService(b.Payments, bus, b.Audit, n, discardLogger())

	_, err := svc.Submit(ctx, SubmitPaymentRequest{UserID: "u1", Amount: -5})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	p, err := svc.Submit(ctx, SubmitPaymentRequest{UserID: "u1", Amount: 250, BankName: "Garanti", SenderName: "U One", Reference: "INV-7"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)

	pending, err := svc.List(ctx, domain.PaymentPending, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	approved, err := svc.Approve(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentApproved, approved.Status)
	bal, err := b.Accounts.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 350.0, bal, 1e-9)

	_, err = svc.Reject(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentResolved)

	_, err = svc.List(ctx, "lost", domain.ListOpts{})
	assert.ErrorIs(t, err, domain.ErrInvalidSettings)

	assert.Equal(t, []string{"payment_pending", "payment_resolved"}, n.events)
}

func TestAccountService(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	svc := NewAccountService(b.Accounts, memory.NewBus(), b.Audit, discardLogger())

	acct, err := svc.Create(ctx, CreateAccountRequest{Email: "ayse@example.com", Name: "Ayse", Balance: 10000})
	require.NoError(t, err)
	assert.NotEmpty(t, acct.ID)

	_, err = svc.Create(ctx, CreateAccountRequest{Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
	_, err = svc.Create(ctx, CreateAccountRequest{Email: "AYSE@example.com"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = svc.SetBalance(ctx, acct.ID, -1, "admin")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	updated, err := svc.SetBalance(ctx, acct.ID, 42, "admin")
	require.NoError(t, err)
	assert.InDelta(t, 42.0, updated.Balance, 1e-9)

	_, err = svc.Get(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRiskServiceEvaluate(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	cache := memory.NewPriceCache()
	require.NoError(t, b.Accounts.Create(ctx, domain.Account{ID: "u1", Balance: 10000}))
	_, err := b.Positions.Open(ctx, domain.Position{
		ID: "p1", UserID: "u1", Symbol: "BIST:THYAO", Amount: 1000, EntryPrice: 100,
		CurrentPrice: 100, Type: domain.PositionLong, Status: domain.PositionStatusOpen,
		Market: domain.MarketStocks, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, cache.SetPrice(ctx, "BIST:THYAO", 110, time.Now()))

	svc := NewRiskService(b.Accounts, b.Positions, cache, discardLogger())

	ev, err := svc.Evaluate(ctx, EvaluateRequest{UserID: "u1", Amount: 5000})
	require.NoError(t, err)
	assert.InDelta(t, 9000.0, ev.Balance, 1e-9)
	assert.InDelta(t, 90.0, ev.Metrics.MaxLossAmount, 1e-9)
	assert.InDelta(t, 1800.0, ev.Metrics.MaxPositionAmount, 1e-9)
	assert.InDelta(t, 1100.0, ev.OpenExposure, 1e-9)
	assert.Equal(t, 1, ev.OpenPositions)
	require.NotNil(t, ev.AmountAllowed)
	assert.False(t, *ev.AmountAllowed)

	ev, err = svc.Evaluate(ctx, EvaluateRequest{Balance: 5000, RiskLevel: domain.RiskAggressive})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, ev.Metrics.MaxLossAmount, 1e-9)
	assert.InDelta(t, 2.0, ev.Metrics.RewardRatio, 1e-9)

	_, err = svc.Evaluate(ctx, EvaluateRequest{Balance: 5000, RiskLevel: "Reckless"})
	assert.ErrorIs(t, err, domain.ErrInvalidSettings)
}

func TestStatsTrackersSharingAStoreKeepEveryUpdate(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	a := NewStatsTracker(b.Stats, discardLogger())
	c := NewStatsTracker(b.Stats, discardLogger())

	_, err := a.RecordOpen(ctx, "u1")
	require.NoError(t, err)
	_, err = c.RecordOpen(ctx, "u1")
	require.NoError(t, err)
	_, err = a.RecordOpen(ctx, "u1")
	require.NoError(t, err)
	_, err = c.RecordClose(ctx, "u1", 40)
	require.NoError(t, err)
	_, err = a.RecordClose(ctx, "u1", -10)
	require.NoError(t, err)

	stored, err := b.Stats.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.TotalTrades)
	assert.Equal(t, int64(1), stored.WinningTrades)
	assert.Equal(t, int64(1), stored.LosingTrades)
	assert.InDelta(t, 30.0, stored.Profit, 1e-9)

	viaOther, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, stored.TotalTrades, viaOther.TotalTrades)
}

func TestStatsTrackerConcurrentOpens(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	trackers := []*StatsTracker{
		NewStatsTracker(b.Stats, discardLogger()),
		NewStatsTracker(b.Stats, discardLogger()),
	}

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := trackers[i%2].RecordOpen(ctx, "u1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := trackers[0].Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), st.TotalTrades)
}

func TestStatsTrackerGetUnknownUserStartsFresh(t *testing.T) {
	tr := NewStatsTracker(memory.New().Stats, discardLogger())
	st, err := tr.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, domain.SuccessRateInitial, st.SuccessRate)
	assert.Zero(t, st.TotalTrades)
}
