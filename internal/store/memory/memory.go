// Package memory implements the domain stores in process memory. It backs the
// "memory" storage driver for local runs and the service tests. All stores
// returned by one Backend share a single lock, so Open and Settle are atomic
// with respect to balances exactly as the PostgreSQL stores are.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

type db struct {
	mu        sync.Mutex
	accounts  map[string]domain.Account
	positions map[string]domain.Position
	stats     map[string]domain.BotStats
	payments  map[string]domain.PaymentNotification
	audit     []domain.AuditEntry
	now       func() time.Time
}

// Backend groups the in-memory stores that share one dataset.
type Backend struct {
	Accounts  *AccountStore
	Positions *PositionStore
	Stats     *BotStatsStore
	Payments  *PaymentStore
	Audit     *AuditStore
}

// New returns an empty Backend.
func New() *Backend {
	d := &db{
		accounts:  make(map[string]domain.Account),
		positions: make(map[string]domain.Position),
		stats:     make(map[string]domain.BotStats),
		payments:  make(map[string]domain.PaymentNotification),
		now:       func() time.Time { return time.Now().UTC() },
	}
	return &Backend{
		Accounts:  &AccountStore{db: d},
		Positions: &PositionStore{db: d},
		Stats:     &BotStatsStore{db: d},
		Payments:  &PaymentStore{db: d},
		Audit:     &AuditStore{db: d},
	}
}

// page applies offset and limit to n items and returns the slice bounds.
func page(n int, opts domain.ListOpts) (int, int) {
	start := min(max(opts.Offset, 0), n)
	end := n
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return start, end
}

func inWindow(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && t.After(*opts.Until) {
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

// AccountStore implements domain.AccountStore and domain.AccountLedger.
type AccountStore struct {
	db *db
}

// Create inserts a new account.
func (s *AccountStore) Create(_ context.Context, a domain.Account) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.accounts[a.ID]; ok {
		return fmt.Errorf("memory: create account %s: %w", a.ID, domain.ErrAlreadyExists)
	}
	for _, existing := range s.db.accounts {
		if a.Email != "" && strings.EqualFold(existing.Email, a.Email) {
			return fmt.Errorf("memory: create account %s: email %w", a.ID, domain.ErrAlreadyExists)
		}
	}
	now := s.db.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	s.db.accounts[a.ID] = a
	return nil
}

// GetByID returns domain.ErrNotFound when the account does not exist.
func (s *AccountStore) GetByID(_ context.Context, id string) (domain.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a, ok := s.db.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

// List returns accounts ordered by creation time.
func (s *AccountStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []domain.Account
	for _, a := range s.db.accounts {
		if inWindow(a.CreatedAt, opts) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	start, end := page(len(out), opts)
	return out[start:end], nil
}

// SetBalance overwrites the balance.
func (s *AccountStore) SetBalance(_ context.Context, id string, balance float64) (domain.Account, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a, ok := s.db.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	a.Balance = balance
	a.UpdatedAt = s.db.now()
	s.db.accounts[id] = a
	return a, nil
}

// Balance returns the current balance.
func (s *AccountStore) Balance(_ context.Context, userID string) (float64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a, ok := s.db.accounts[userID]
	if !ok {
		return 0, domain.ErrUnknownUser
	}
	return a.Balance, nil
}

// Adjust applies delta unless it would make the balance negative.
func (s *AccountStore) Adjust(_ context.Context, userID string, delta float64) (float64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	return s.db.adjustLocked(userID, delta)
}

func (d *db) adjustLocked(userID string, delta float64) (float64, error) {
	a, ok := d.accounts[userID]
	if !ok {
		return 0, domain.ErrUnknownUser
	}
	if a.Balance+delta < 0 {
		return a.Balance, domain.ErrInsufficientBalance
	}
	a.Balance += delta
	a.UpdatedAt = d.now()
	d.accounts[userID] = a
	return a.Balance, nil
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// PositionStore implements domain.PositionStore.
type PositionStore struct {
	db *db
}

// Open records pos and debits its amount in one step.
func (s *PositionStore) Open(_ context.Context, pos domain.Position) (float64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.positions[pos.ID]; ok {
		return 0, fmt.Errorf("memory: open position %s: %w", pos.ID, domain.ErrAlreadyExists)
	}
	bal, err := s.db.adjustLocked(pos.UserID, -pos.Amount)
	if err != nil {
		return bal, err
	}
	s.db.positions[pos.ID] = pos
	return bal, nil
}

// Settle closes the position and credits amount plus profit/loss. The balance
// floors at zero.
func (s *PositionStore) Settle(_ context.Context, st domain.Settlement) (domain.Position, float64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	pos, ok := s.db.positions[st.PositionID]
	if !ok {
		return domain.Position{}, 0, domain.ErrPositionNotFound
	}
	if pos.UserID != st.UserID {
		return domain.Position{}, 0, domain.ErrNotOwner
	}
	if !pos.IsOpen() {
		return domain.Position{}, 0, domain.ErrAlreadyClosed
	}
	acct, ok := s.db.accounts[pos.UserID]
	if !ok {
		return domain.Position{}, 0, domain.ErrUnknownUser
	}

	exit, pl, closedAt := st.ExitPrice, st.ProfitLoss, st.ClosedAt
	pos.Status = domain.PositionStatusClosed
	pos.CurrentPrice = exit
	pos.ExitPrice = &exit
	pos.ProfitLoss = &pl
	pos.ClosedAt = &closedAt
	s.db.positions[pos.ID] = pos

	acct.Balance = max(0, acct.Balance+st.Credit(pos.Amount))
	acct.UpdatedAt = s.db.now()
	s.db.accounts[acct.ID] = acct

	return pos, acct.Balance, nil
}

// GetByID returns domain.ErrPositionNotFound when missing.
func (s *PositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	pos, ok := s.db.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	return pos, nil
}

func (d *db) sortedPositions(keep func(domain.Position) bool) []domain.Position {
	var out []domain.Position
	for _, p := range d.positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ListOpen returns the user's open positions, newest first.
func (s *PositionStore) ListOpen(_ context.Context, userID string) ([]domain.Position, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	return s.db.sortedPositions(func(p domain.Position) bool {
		return p.UserID == userID && p.IsOpen()
	}), nil
}

// ListHistory returns every position of the user, newest first.
func (s *PositionStore) ListHistory(_ context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := s.db.sortedPositions(func(p domain.Position) bool {
		return p.UserID == userID && inWindow(p.CreatedAt, opts)
	})
	start, end := page(len(out), opts)
	return out[start:end], nil
}

// ListClosedBefore returns positions closed strictly before the cutoff.
func (s *PositionStore) ListClosedBefore(_ context.Context, before time.Time) ([]domain.Position, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	return s.db.sortedPositions(func(p domain.Position) bool {
		return p.ClosedAt != nil && p.ClosedAt.Before(before)
	}), nil
}

// ---------------------------------------------------------------------------
// Bot stats
// ---------------------------------------------------------------------------

// BotStatsStore implements domain.BotStatsStore.
type BotStatsStore struct {
	db *db
}

// Get returns domain.ErrNotFound when no stats were saved for the user.
func (s *BotStatsStore) Get(_ context.Context, userID string) (domain.BotStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	st, ok := s.db.stats[userID]
	if !ok {
		return domain.BotStats{}, domain.ErrNotFound
	}
	return st, nil
}

// Save upserts the stats.
func (s *BotStatsStore) Save(_ context.Context, st domain.BotStats) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.stats[st.UserID] = st
	return nil
}

// Apply updates the user's stats under the store lock.
func (s *BotStatsStore) Apply(_ context.Context, userID string, now time.Time, fn func(*domain.BotStats)) (domain.BotStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	st, ok := s.db.stats[userID]
	if !ok {
		st = domain.NewBotStats(userID, now)
	}
	fn(&st)
	s.db.stats[userID] = st
	return st, nil
}

// ---------------------------------------------------------------------------
// Payments
// ---------------------------------------------------------------------------

// PaymentStore implements domain.PaymentStore.
type PaymentStore struct {
	db *db
}

// Create inserts a payment notification.
func (s *PaymentStore) Create(_ context.Context, p domain.PaymentNotification) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.accounts[p.UserID]; !ok {
		return domain.ErrUnknownUser
	}
	if _, ok := s.db.payments[p.ID]; ok {
		return fmt.Errorf("memory: create payment %s: %w", p.ID, domain.ErrAlreadyExists)
	}
	s.db.payments[p.ID] = p
	return nil
}

// GetByID returns domain.ErrNotFound when missing.
func (s *PaymentStore) GetByID(_ context.Context, id string) (domain.PaymentNotification, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.payments[id]
	if !ok {
		return domain.PaymentNotification{}, domain.ErrNotFound
	}
	return p, nil
}

// List returns notifications with the given status (all when empty), oldest
// first.
func (s *PaymentStore) List(_ context.Context, status domain.PaymentStatus, opts domain.ListOpts) ([]domain.PaymentNotification, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []domain.PaymentNotification
	for _, p := range s.db.payments {
		if (status == "" || p.Status == status) && inWindow(p.CreatedAt, opts) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	start, end := page(len(out), opts)
	return out[start:end], nil
}

// Resolve approves or rejects a pending notification.
func (s *PaymentStore) Resolve(_ context.Context, id string, approve bool, at time.Time) (domain.PaymentNotification, float64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.payments[id]
	if !ok {
		return domain.PaymentNotification{}, 0, domain.ErrNotFound
	}
	if p.Status != domain.PaymentPending {
		return domain.PaymentNotification{}, 0, domain.ErrPaymentResolved
	}
	acct, ok := s.db.accounts[p.UserID]
	if !ok {
		return domain.PaymentNotification{}, 0, domain.ErrUnknownUser
	}

	p.Status = domain.PaymentRejected
	if approve {
		p.Status = domain.PaymentApproved
		acct.Balance += p.Amount
		acct.UpdatedAt = s.db.now()
		s.db.accounts[acct.ID] = acct
	}
	p.ResolvedAt = &at
	s.db.payments[id] = p
	return p, acct.Balance, nil
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	db *db
}

// Log appends an entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	s.db.audit = append(s.db.audit, domain.AuditEntry{
		ID:        int64(len(s.db.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.db.now(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []domain.AuditEntry
	for i := len(s.db.audit) - 1; i >= 0; i-- {
		if e := s.db.audit[i]; inWindow(e.CreatedAt, opts) {
			out = append(out, e)
		}
	}
	start, end := page(len(out), opts)
	return out[start:end], nil
}

// Compile-time interface checks.
var (
	_ domain.AccountStore  = (*AccountStore)(nil)
	_ domain.AccountLedger = (*AccountStore)(nil)
	_ domain.PositionStore = (*PositionStore)(nil)
	_ domain.BotStatsStore = (*BotStatsStore)(nil)
	_ domain.PaymentStore  = (*PaymentStore)(nil)
	_ domain.AuditStore    = (*AuditStore)(nil)
)
