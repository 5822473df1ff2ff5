package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// AccountStore implements domain.AccountStore and domain.AccountLedger.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an AccountStore backed by pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

const accountSelectCols = `id, email, name, balance, is_admin, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Balance, &a.IsAdmin, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, a domain.Account) error {
	const query = `
		INSERT INTO accounts (id, email, name, balance, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), NOW())`

	var createdAt any
	if !a.CreatedAt.IsZero() {
		createdAt = a.CreatedAt
	}
	_, err := s.pool.Exec(ctx, query, a.ID, a.Email, a.Name, a.Balance, a.IsAdmin, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("postgres: create account %s: %w", a.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create account %s: %w", a.ID, err)
	}
	return nil
}

// GetByID returns domain.ErrNotFound when the account does not exist.
func (s *AccountStore) GetByID(ctx context.Context, id string) (domain.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %s: %w", id, err)
	}
	return a, nil
}

// List returns accounts ordered by creation time.
func (s *AccountStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Account, error) {
	query, args := listQuery(`SELECT `+accountSelectCols+` FROM accounts WHERE 1=1`, nil,
		"created_at", "created_at, id", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetBalance overwrites the balance. Used by the admin surface only.
func (s *AccountStore) SetBalance(ctx context.Context, id string, balance float64) (domain.Account, error) {
	a, err := scanAccount(s.pool.QueryRow(ctx,
		`UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1
		 RETURNING `+accountSelectCols, id, balance))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: set balance %s: %w", id, err)
	}
	return a, nil
}

// Balance returns the current balance.
func (s *AccountStore) Balance(ctx context.Context, userID string) (float64, error) {
	var bal float64
	err := s.pool.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, userID).Scan(&bal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUnknownUser
		}
		return 0, fmt.Errorf("postgres: balance %s: %w", userID, err)
	}
	return bal, nil
}

// Adjust applies delta under a row lock and refuses to go negative.
func (s *AccountStore) Adjust(ctx context.Context, userID string, delta float64) (float64, error) {
	var bal float64
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		bal, err = adjustTx(ctx, tx, userID, delta)
		return err
	})
	if err != nil {
		return bal, wrapLedger("adjust", userID, err)
	}
	return bal, nil
}

// lockBalance reads the balance with FOR UPDATE.
func lockBalance(ctx context.Context, tx pgx.Tx, userID string) (float64, error) {
	var bal float64
	err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, userID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrUnknownUser
	}
	return bal, err
}

func adjustTx(ctx context.Context, tx pgx.Tx, userID string, delta float64) (float64, error) {
	bal, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if bal+delta < 0 {
		return bal, domain.ErrInsufficientBalance
	}
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1 RETURNING balance`,
		userID, delta).Scan(&bal)
	return bal, err
}

// wrapLedger passes domain sentinels through untouched so callers can match
// them, and prefixes driver errors.
func wrapLedger(op, id string, err error) error {
	for _, sentinel := range []error{
		domain.ErrUnknownUser, domain.ErrInsufficientBalance, domain.ErrPositionNotFound,
		domain.ErrNotOwner, domain.ErrAlreadyClosed, domain.ErrNotFound, domain.ErrPaymentResolved,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("postgres: %s %s: %w", op, id, err)
}

// Compile-time interface checks.
var (
	_ domain.AccountStore  = (*AccountStore)(nil)
	_ domain.AccountLedger = (*AccountStore)(nil)
)
