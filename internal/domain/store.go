package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists accounts.
type AccountStore interface {
	Create(ctx context.Context, acct Account) error
	GetByID(ctx context.Context, id string) (Account, error)
	List(ctx context.Context, opts ListOpts) ([]Account, error)
	SetBalance(ctx context.Context, id string, balance float64) (Account, error)
}

// AccountLedger reads and adjusts balances. Adjust is compare-and-set: it
// fails with ErrInsufficientBalance rather than letting the balance go
// negative, and with ErrUnknownUser when the account does not exist.
type AccountLedger interface {
	Balance(ctx context.Context, userID string) (float64, error)
	Adjust(ctx context.Context, userID string, delta float64) (float64, error)
}

// PositionStore persists positions. Open and Settle each apply the position
// write and the matching balance change as one atomic unit and return the
// resulting balance.
type PositionStore interface {
	Open(ctx context.Context, pos Position) (float64, error)
	Settle(ctx context.Context, s Settlement) (Position, float64, error)
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context, userID string) ([]Position, error)
	ListHistory(ctx context.Context, userID string, opts ListOpts) ([]Position, error)
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
}

// BotStatsStore persists per-user bot statistics. Apply is a locked
// read-modify-write: fn sees the stored stats, or NewBotStats(userID, now)
// when there are none, and its result is stored before the lock is released.
type BotStatsStore interface {
	Get(ctx context.Context, userID string) (BotStats, error)
	Save(ctx context.Context, stats BotStats) error
	Apply(ctx context.Context, userID string, now time.Time, fn func(*BotStats)) (BotStats, error)
}

// PaymentStore persists payment notifications. Resolve moves a pending
// notification to approved or rejected and, on approval, credits the amount
// in the same transaction. It returns the balance after resolution.
type PaymentStore interface {
	Create(ctx context.Context, p PaymentNotification) error
	GetByID(ctx context.Context, id string) (PaymentNotification, error)
	List(ctx context.Context, status PaymentStatus, opts ListOpts) ([]PaymentNotification, error)
	Resolve(ctx context.Context, id string, approve bool, at time.Time) (PaymentNotification, float64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
