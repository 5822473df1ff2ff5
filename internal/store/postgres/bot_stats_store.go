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

// BotStatsStore implements domain.BotStatsStore.
type BotStatsStore struct {
	pool *pgxpool.Pool
}

// NewBotStatsStore creates a BotStatsStore backed by pool.
func NewBotStatsStore(pool *pgxpool.Pool) *BotStatsStore {
	return &BotStatsStore{pool: pool}
}

// Get returns domain.ErrNotFound when the user has no stats row yet.
func (s *BotStatsStore) Get(ctx context.Context, userID string) (domain.BotStats, error) {
	var st domain.BotStats
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, total_trades, daily_trades, winning_trades, losing_trades,
		       profit, success_rate, day, updated_at
		FROM bot_stats WHERE user_id = $1`, userID,
	).Scan(
		&st.UserID, &st.TotalTrades, &st.DailyTrades, &st.WinningTrades, &st.LosingTrades,
		&st.Profit, &st.SuccessRate, &st.Day, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BotStats{}, domain.ErrNotFound
		}
		return domain.BotStats{}, fmt.Errorf("postgres: get bot stats %s: %w", userID, err)
	}
	return st, nil
}

// Save upserts the stats row.
func (s *BotStatsStore) Save(ctx context.Context, st domain.BotStats) error {
	const query = `
		INSERT INTO bot_stats (
			user_id, total_trades, daily_trades, winning_trades, losing_trades,
			profit, success_rate, day, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			total_trades   = EXCLUDED.total_trades,
			daily_trades   = EXCLUDED.daily_trades,
			winning_trades = EXCLUDED.winning_trades,
			losing_trades  = EXCLUDED.losing_trades,
			profit         = EXCLUDED.profit,
			success_rate   = EXCLUDED.success_rate,
			day            = EXCLUDED.day,
			updated_at     = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		st.UserID, st.TotalTrades, st.DailyTrades, st.WinningTrades, st.LosingTrades,
		st.Profit, st.SuccessRate, st.Day, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save bot stats %s: %w", st.UserID, err)
	}
	return nil
}

// Apply locks the user's stats row, seeding it when absent, runs fn and
// writes the result back in one transaction. Concurrent replicas serialize on
// the row lock, so no increment is lost.
func (s *BotStatsStore) Apply(ctx context.Context, userID string, now time.Time, fn func(*domain.BotStats)) (domain.BotStats, error) {
	const seed = `
		INSERT INTO bot_stats (user_id, success_rate, day, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`
	const lock = `
		SELECT user_id, total_trades, daily_trades, winning_trades, losing_trades,
		       profit, success_rate, day, updated_at
		FROM bot_stats WHERE user_id = $1
		FOR UPDATE`
	const update = `
		UPDATE bot_stats SET
			total_trades   = $2,
			daily_trades   = $3,
			winning_trades = $4,
			losing_trades  = $5,
			profit         = $6,
			success_rate   = $7,
			day            = $8,
			updated_at     = $9
		WHERE user_id = $1`

	var st domain.BotStats
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		fresh := domain.NewBotStats(userID, now)
		if _, err := tx.Exec(ctx, seed, fresh.UserID, fresh.SuccessRate, fresh.Day, fresh.UpdatedAt); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
				return domain.ErrUnknownUser
			}
			return fmt.Errorf("seed: %w", err)
		}
		if err := tx.QueryRow(ctx, lock, userID).Scan(
			&st.UserID, &st.TotalTrades, &st.DailyTrades, &st.WinningTrades, &st.LosingTrades,
			&st.Profit, &st.SuccessRate, &st.Day, &st.UpdatedAt,
		); err != nil {
			return fmt.Errorf("lock: %w", err)
		}

		fn(&st)

		if _, err := tx.Exec(ctx, update,
			st.UserID, st.TotalTrades, st.DailyTrades, st.WinningTrades, st.LosingTrades,
			st.Profit, st.SuccessRate, st.Day, st.UpdatedAt,
		); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.BotStats{}, fmt.Errorf("postgres: apply bot stats %s: %w", userID, err)
	}
	return st, nil
}

// Compile-time interface check.
var _ domain.BotStatsStore = (*BotStatsStore)(nil)
