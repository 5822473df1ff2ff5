package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alanyoungcy/paperdesk/internal/catalog"
	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// Manager owns one Driver per user, created on first use.
type Manager struct {
	opener  Opener
	ledger  domain.AccountLedger
	catalog *catalog.Catalog
	locks   domain.LockManager
	bus     domain.SignalBus
	cfg     Config
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	drivers map[string]*Driver
}

// ManagerDeps are the collaborators handed to every driver. Locks and Bus are
// optional.
type ManagerDeps struct {
	Opener  Opener
	Ledger  domain.AccountLedger
	Catalog *catalog.Catalog
	Locks   domain.LockManager
	Bus     domain.SignalBus
}

// NewManager creates a Manager.
func NewManager(deps ManagerDeps, cfg Config, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opener:  deps.Opener,
		ledger:  deps.Ledger,
		catalog: deps.Catalog,
		locks:   deps.Locks,
		bus:     deps.Bus,
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		drivers: make(map[string]*Driver),
	}
}

func (m *Manager) driver(userID string) *Driver {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[userID]
	if !ok {
		d = NewDriver(userID, m.opener, m.catalog, m.locks, m.bus, m.cfg, m.logger)
		m.drivers[userID] = d
	}
	return d
}

func (m *Manager) checkUser(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrUnknownUser
	}
	if m.ledger == nil {
		return nil
	}
	if _, err := m.ledger.Balance(ctx, userID); err != nil {
		return fmt.Errorf("bot: check user %s: %w", userID, err)
	}
	return nil
}

// Start starts the user's bot. Drivers run on the manager's lifetime, not on
// ctx, which only scopes the account check. After StopAll it returns
// domain.ErrShuttingDown.
func (m *Manager) Start(ctx context.Context, userID string) (domain.BotStatus, error) {
	if err := m.checkUser(ctx, userID); err != nil {
		return domain.BotStatus{}, err
	}
	d := m.driver(userID)
	if err := d.Start(m.ctx); err != nil {
		return domain.BotStatus{}, err
	}
	return d.Status(), nil
}

// Stop stops the user's bot, waiting for an in-flight tick.
func (m *Manager) Stop(ctx context.Context, userID string) (domain.BotStatus, error) {
	if err := m.checkUser(ctx, userID); err != nil {
		return domain.BotStatus{}, err
	}
	d := m.driver(userID)
	d.Stop()
	return d.Status(), nil
}

// Status returns the user's bot status; a user without a driver reports a
// stopped bot with default settings.
func (m *Manager) Status(ctx context.Context, userID string) (domain.BotStatus, error) {
	if err := m.checkUser(ctx, userID); err != nil {
		return domain.BotStatus{}, err
	}
	return m.driver(userID).Status(), nil
}

// UpdateSettings replaces the user's bot settings.
func (m *Manager) UpdateSettings(ctx context.Context, userID string, s domain.BotSettings) (domain.BotStatus, error) {
	if err := m.checkUser(ctx, userID); err != nil {
		return domain.BotStatus{}, err
	}
	d := m.driver(userID)
	if err := d.UpdateSettings(s); err != nil {
		return domain.BotStatus{}, err
	}
	return d.Status(), nil
}

// SetRiskLevel records the user's risk level.
func (m *Manager) SetRiskLevel(ctx context.Context, userID string, l domain.RiskLevel) (domain.BotStatus, error) {
	if err := m.checkUser(ctx, userID); err != nil {
		return domain.BotStatus{}, err
	}
	d := m.driver(userID)
	if err := d.SetRiskLevel(l); err != nil {
		return domain.BotStatus{}, err
	}
	return d.Status(), nil
}

// List returns every known bot, ordered by user.
func (m *Manager) List() []domain.BotStatus {
	m.mu.Lock()
	drivers := make([]*Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		drivers = append(drivers, d)
	}
	m.mu.Unlock()

	out := make([]domain.BotStatus, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, d.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Running counts running bots.
func (m *Manager) Running() int {
	n := 0
	for _, st := range m.List() {
		if st.State == domain.BotRunning {
			n++
		}
	}
	return n
}

// Run blocks until ctx is cancelled, then stops every bot.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("bot manager started")
	<-ctx.Done()
	m.StopAll()
	m.logger.Info("bot manager stopped")
	return nil
}

// StopAll stops every driver and waits for in-flight ticks.
func (m *Manager) StopAll() {
	m.mu.Lock()
	drivers := make([]*Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		drivers = append(drivers, d)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, d := range drivers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Stop()
		}()
	}
	wg.Wait()
	m.cancel()
}
