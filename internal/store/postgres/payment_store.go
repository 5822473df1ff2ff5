package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// foreignKeyViolation is the SQLSTATE for foreign_key_violation.
const foreignKeyViolation = "23503"

// PaymentStore implements domain.PaymentStore.
type PaymentStore struct {
	pool *pgxpool.Pool
}

// NewPaymentStore creates a PaymentStore backed by pool.
func NewPaymentStore(pool *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{pool: pool}
}

const paymentSelectCols = `id, user_id, amount, bank_name, sender_name, reference,
	paid_at, status, created_at, resolved_at`

func scanPayment(row pgx.Row) (domain.PaymentNotification, error) {
	var p domain.PaymentNotification
	var status string
	err := row.Scan(&p.ID, &p.UserID, &p.Amount, &p.BankName, &p.SenderName, &p.Reference,
		&p.PaidAt, &status, &p.CreatedAt, &p.ResolvedAt)
	p.Status = domain.PaymentStatus(status)
	return p, err
}

// Create inserts a notification.
func (s *PaymentStore) Create(ctx context.Context, p domain.PaymentNotification) error {
	const query = `
		INSERT INTO payment_notifications (
			id, user_id, amount, bank_name, sender_name, reference, paid_at, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.UserID, p.Amount, p.BankName, p.SenderName, p.Reference,
		p.PaidAt, string(p.Status), p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case foreignKeyViolation:
				return domain.ErrUnknownUser
			case uniqueViolation:
				return fmt.Errorf("postgres: create payment %s: %w", p.ID, domain.ErrAlreadyExists)
			}
		}
		return fmt.Errorf("postgres: create payment %s: %w", p.ID, err)
	}
	return nil
}

// GetByID returns domain.ErrNotFound when missing.
func (s *PaymentStore) GetByID(ctx context.Context, id string) (domain.PaymentNotification, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx,
		`SELECT `+paymentSelectCols+` FROM payment_notifications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PaymentNotification{}, domain.ErrNotFound
		}
		return domain.PaymentNotification{}, fmt.Errorf("postgres: get payment %s: %w", id, err)
	}
	return p, nil
}

// List returns notifications with status (all when empty), oldest first.
func (s *PaymentStore) List(ctx context.Context, status domain.PaymentStatus, opts domain.ListOpts) ([]domain.PaymentNotification, error) {
	base := `SELECT ` + paymentSelectCols + ` FROM payment_notifications WHERE 1=1`
	var args []any
	if status != "" {
		base += ` AND status = $1`
		args = append(args, string(status))
	}
	query, args := listQuery(base, args, "created_at", "created_at, id", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payments: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentNotification
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Resolve moves a pending notification to approved or rejected; approval
// credits the account in the same transaction.
func (s *PaymentStore) Resolve(ctx context.Context, id string, approve bool, at time.Time) (domain.PaymentNotification, float64, error) {
	var (
		p   domain.PaymentNotification
		bal float64
	)
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var userID string
		var status string
		err := tx.QueryRow(ctx,
			`SELECT user_id, status FROM payment_notifications WHERE id = $1`, id).Scan(&userID, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		// Account first, then the notification row.
		if bal, err = lockBalance(ctx, tx, userID); err != nil {
			return err
		}
		cur, err := scanPayment(tx.QueryRow(ctx,
			`SELECT `+paymentSelectCols+` FROM payment_notifications WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if cur.Status != domain.PaymentPending {
			return domain.ErrPaymentResolved
		}

		next := domain.PaymentRejected
		if approve {
			next = domain.PaymentApproved
			if err := tx.QueryRow(ctx,
				`UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1 RETURNING balance`,
				userID, cur.Amount).Scan(&bal); err != nil {
				return err
			}
		}
		p, err = scanPayment(tx.QueryRow(ctx,
			`UPDATE payment_notifications SET status = $2, resolved_at = $3 WHERE id = $1
			 RETURNING `+paymentSelectCols, id, string(next), at))
		return err
	})
	if err != nil {
		return domain.PaymentNotification{}, 0, wrapLedger("resolve payment", id, err)
	}
	return p, bal, nil
}

// Compile-time interface check.
var _ domain.PaymentStore = (*PaymentStore)(nil)
