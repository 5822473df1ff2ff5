// Package bot runs the per-user auto-trader: a timer loop that opens a
// position on a random instrument at randomized intervals.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/catalog"
	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// Opener opens positions. *service.PositionService satisfies it.
type Opener interface {
	OpenPosition(ctx context.Context, req domain.OpenRequest) (domain.Position, error)
}

// Config holds the tunables shared by every driver.
type Config struct {
	MinInterval    time.Duration
	MaxInterval    time.Duration
	MinTradeAmount float64
	// LockTTL bounds how long one replica holds bot:{user} during a tick.
	LockTTL     time.Duration
	TickTimeout time.Duration
	Defaults    domain.BotSettings
}

// DefaultConfig returns the stock intervals and settings.
func DefaultConfig() Config {
	return Config{
		MinInterval:    5 * time.Second,
		MaxInterval:    10 * time.Second,
		MinTradeAmount: 1,
		LockTTL:        30 * time.Second,
		TickTimeout:    15 * time.Second,
		Defaults:       domain.DefaultBotSettings(),
	}
}

// Driver is one user's bot. The zero value is not usable; build one with
// NewDriver or through a Manager.
type Driver struct {
	userID  string
	opener  Opener
	catalog *catalog.Catalog
	locks   domain.LockManager
	bus     domain.SignalBus
	cfg     Config
	logger  *slog.Logger

	interval func() time.Duration
	intn     func(n int) int
	now      func() time.Time

	mu        sync.Mutex
	state     domain.BotState
	settings  domain.BotSettings
	riskLevel domain.RiskLevel
	ticks     int64
	lastTick  *time.Time
	lastErr   string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewDriver creates a stopped driver for userID. locks and bus may be nil.
func NewDriver(userID string, opener Opener, cat *catalog.Catalog, locks domain.LockManager, bus domain.SignalBus, cfg Config, logger *slog.Logger) *Driver {
	d := &Driver{
		userID:    userID,
		opener:    opener,
		catalog:   cat,
		locks:     locks,
		bus:       bus,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "bot"), slog.String("user_id", userID)),
		intn:      rand.IntN,
		now:       func() time.Time { return time.Now().UTC() },
		state:     domain.BotStopped,
		settings:  cfg.Defaults,
		riskLevel: domain.RiskModerate,
	}
	d.interval = d.randomInterval
	return d
}

// randomInterval draws from [MinInterval, MaxInterval).
func (d *Driver) randomInterval() time.Duration {
	lo, hi := d.cfg.MinInterval, d.cfg.MaxInterval
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

// Start moves the driver to Running. The loop lives until Stop or until
// parent is cancelled. Starting a running driver is a no-op; starting on a
// cancelled parent fails with domain.ErrShuttingDown.
func (d *Driver) Start(parent context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == domain.BotRunning {
		return nil
	}
	if parent.Err() != nil {
		return fmt.Errorf("bot: start %s: %w", d.userID, domain.ErrShuttingDown)
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	d.state = domain.BotRunning
	d.cancel = cancel
	d.done = done
	go d.run(ctx, done)

	d.logger.Info("bot: started",
		slog.Float64("trade_amount", d.settings.TradeAmount),
		slog.String("risk_level", string(d.riskLevel)),
	)
	d.publishLocked(context.WithoutCancel(ctx), "bot_started")
	return nil
}

// Stop moves the driver to Stopped. A tick already in flight finishes before
// Stop returns; no tick starts afterwards.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.state != domain.BotRunning {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.state = domain.BotStopped
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	cancel()
	<-done

	d.mu.Lock()
	d.publishLocked(context.Background(), "bot_stopped")
	d.mu.Unlock()
	d.logger.Info("bot: stopped")
}

func (d *Driver) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer d.exited(done)

	for {
		timer := time.NewTimer(d.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		// The tick outlives a concurrent Stop so a half-placed order is never
		// abandoned.
		tctx := context.WithoutCancel(ctx)
		var cancel context.CancelFunc = func() {}
		if d.cfg.TickTimeout > 0 {
			tctx, cancel = context.WithTimeout(tctx, d.cfg.TickTimeout)
		}
		_, err := d.Tick(tctx)
		cancel()

		switch {
		case err == nil:
		case errors.Is(err, domain.ErrLockHeld):
			d.logger.Debug("bot: another replica holds the lock, skipping tick")
		default:
			d.logger.Warn("bot: tick failed", slog.String("error", err.Error()))
		}
	}
}

// exited resets the driver when its loop ends on a cancelled parent rather
// than through Stop, which has already cleared done.
func (d *Driver) exited(done chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != done {
		return
	}
	d.cancel()
	d.state = domain.BotStopped
	d.cancel, d.done = nil, nil
	d.logger.Info("bot: stopped with its parent context")
}

// Tick places one bot trade with the current settings: a uniformly random
// catalog instrument in a uniformly random direction.
func (d *Driver) Tick(ctx context.Context) (domain.Position, error) {
	if d.locks != nil {
		unlock, err := d.locks.Acquire(ctx, "bot:"+d.userID, d.cfg.LockTTL)
		if err != nil {
			return domain.Position{}, fmt.Errorf("bot: lock %s: %w", d.userID, err)
		}
		defer unlock()
	}

	d.mu.Lock()
	settings := d.settings
	d.mu.Unlock()

	inst := d.catalog.Pick(d.intn)
	typ := domain.PositionLong
	if d.intn(2) == 1 {
		typ = domain.PositionShort
	}

	pos, err := d.opener.OpenPosition(ctx, domain.OpenRequest{
		UserID:        d.userID,
		Symbol:        inst.Symbol,
		Market:        inst.Market,
		Amount:        settings.TradeAmount,
		Type:          typ,
		StopLossPct:   settings.StopLoss,
		TakeProfitPct: settings.TakeProfit,
	})

	now := d.now()
	d.mu.Lock()
	d.ticks++
	d.lastTick = &now
	if err != nil {
		d.lastErr = err.Error()
	} else {
		d.lastErr = ""
	}
	d.mu.Unlock()

	if err != nil {
		return domain.Position{}, fmt.Errorf("bot: open %s %s: %w", typ, inst.Symbol, err)
	}
	d.logger.InfoContext(ctx, "bot: trade placed",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("type", string(pos.Type)),
		slog.Float64("amount", pos.Amount),
	)
	return pos, nil
}

// Status returns a point-in-time view.
func (d *Driver) Status() domain.BotStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statusLocked()
}

func (d *Driver) statusLocked() domain.BotStatus {
	st := domain.BotStatus{
		UserID:    d.userID,
		State:     d.state,
		Settings:  d.settings,
		RiskLevel: d.riskLevel,
		Ticks:     d.ticks,
		LastError: d.lastErr,
	}
	if d.lastTick != nil {
		t := *d.lastTick
		st.LastTick = &t
	}
	return st
}

// UpdateSettings replaces the settings used by subsequent ticks.
func (d *Driver) UpdateSettings(s domain.BotSettings) error {
	if err := s.Validate(d.cfg.MinTradeAmount); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = s
	d.logger.Info("bot: settings updated",
		slog.Float64("stop_loss", s.StopLoss),
		slog.Float64("take_profit", s.TakeProfit),
		slog.Float64("trade_amount", s.TradeAmount),
	)
	return nil
}

// SetRiskLevel records the user's declared risk appetite.
func (d *Driver) SetRiskLevel(l domain.RiskLevel) error {
	if !l.Valid() {
		return fmt.Errorf("%w: unknown risk level %q", domain.ErrInvalidSettings, l)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.riskLevel = l
	return nil
}

// publishLocked announces a state change on the bot channel. Caller holds mu.
func (d *Driver) publishLocked(ctx context.Context, event string) {
	if d.bus == nil {
		return
	}
	payload, _ := json.Marshal(struct {
		Event  string           `json:"event"`
		UserID string           `json:"user_id"`
		Status domain.BotStatus `json:"status"`
	}{event, d.userID, d.statusLocked()})
	if err := d.bus.Publish(ctx, domain.ChannelBot, payload); err != nil {
		d.logger.Warn("bot: publish failed", slog.String("error", err.Error()))
	}
}
