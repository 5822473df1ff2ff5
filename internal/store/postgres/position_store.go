package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// PositionStore implements domain.PositionStore.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, user_id, symbol, amount, entry_price, current_price,
	stop_loss, take_profit, type, status, market,
	created_at, closed_at, exit_price, profit_loss`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var typ, status, market string
	err := row.Scan(
		&p.ID, &p.UserID, &p.Symbol, &p.Amount, &p.EntryPrice, &p.CurrentPrice,
		&p.StopLoss, &p.TakeProfit, &typ, &status, &market,
		&p.CreatedAt, &p.ClosedAt, &p.ExitPrice, &p.ProfitLoss,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Type = domain.PositionType(typ)
	p.Status = domain.PositionStatus(status)
	p.Market = domain.Market(market)
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Open debits the stake and inserts the position in one transaction.
func (s *PositionStore) Open(ctx context.Context, p domain.Position) (float64, error) {
	const insert = `
		INSERT INTO positions (
			id, user_id, symbol, amount, entry_price, current_price,
			stop_loss, take_profit, type, status, market, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())`

	var bal float64
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		bal, err = adjustTx(ctx, tx, p.UserID, -p.Amount)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, insert,
			p.ID, p.UserID, p.Symbol, p.Amount, p.EntryPrice, p.CurrentPrice,
			p.StopLoss, p.TakeProfit, string(p.Type), string(p.Status), string(p.Market), p.CreatedAt,
		)
		return err
	})
	if err != nil {
		return bal, wrapLedger("open position", p.ID, err)
	}
	return bal, nil
}

// Settle closes the position and credits amount plus profit/loss, flooring
// the balance at zero. The account row is locked before the position row,
// the same order Open uses.
func (s *PositionStore) Settle(ctx context.Context, st domain.Settlement) (domain.Position, float64, error) {
	var (
		pos domain.Position
		bal float64
	)
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := lockBalance(ctx, tx, st.UserID); err != nil {
			return err
		}

		cur, err := scanPosition(tx.QueryRow(ctx,
			`SELECT `+positionSelectCols+` FROM positions WHERE id = $1 FOR UPDATE`, st.PositionID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrPositionNotFound
		}
		if err != nil {
			return err
		}
		if cur.UserID != st.UserID {
			return domain.ErrNotOwner
		}
		if !cur.IsOpen() {
			return domain.ErrAlreadyClosed
		}

		pos, err = scanPosition(tx.QueryRow(ctx, `
			UPDATE positions SET
				status        = 'closed',
				current_price = $2,
				exit_price    = $2,
				profit_loss   = $3,
				closed_at     = $4,
				updated_at    = NOW()
			WHERE id = $1
			RETURNING `+positionSelectCols,
			st.PositionID, st.ExitPrice, st.ProfitLoss, st.ClosedAt))
		if err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
			UPDATE accounts SET balance = GREATEST(0, balance + $2), updated_at = NOW()
			WHERE id = $1 RETURNING balance`,
			st.UserID, st.Credit(cur.Amount)).Scan(&bal)
	})
	if err != nil {
		return domain.Position{}, 0, wrapLedger("settle position", st.PositionID, err)
	}
	return pos, bal, nil
}

// GetByID returns domain.ErrPositionNotFound when missing.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrPositionNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns the user's open positions, newest first.
func (s *PositionStore) ListOpen(ctx context.Context, userID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE user_id = $1 AND status = 'open'
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListHistory returns every position of the user, newest first.
func (s *PositionStore) ListHistory(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := listQuery(`SELECT `+positionSelectCols+` FROM positions WHERE user_id = $1`,
		[]any{userID}, "created_at", "created_at DESC, id DESC", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}

// ListClosedBefore returns positions closed before the cutoff, for archival.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE closed_at IS NOT NULL AND closed_at < $1
		 ORDER BY closed_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
