package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// StatsTracker maintains per-user BotStats. Every change is a locked
// read-modify-write in the store, so replicas sharing a database never
// overwrite each other's counts.
type StatsTracker struct {
	store  domain.BotStatsStore
	now    func() time.Time
	logger *slog.Logger
}

// NewStatsTracker creates a StatsTracker over store.
func NewStatsTracker(store domain.BotStatsStore, logger *slog.Logger) *StatsTracker {
	return &StatsTracker{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "stats_tracker")),
	}
}

func (t *StatsTracker) update(ctx context.Context, userID string, fn func(*domain.BotStats, time.Time)) (domain.BotStats, error) {
	now := t.now()
	st, err := t.store.Apply(ctx, userID, now, func(st *domain.BotStats) {
		fn(st, now)
	})
	if err != nil {
		return domain.BotStats{}, fmt.Errorf("stats_tracker: update %s: %w", userID, err)
	}
	return st, nil
}

// RecordOpen counts an opened position.
func (t *StatsTracker) RecordOpen(ctx context.Context, userID string) (domain.BotStats, error) {
	return t.update(ctx, userID, func(st *domain.BotStats, now time.Time) {
		st.RecordOpen(now)
	})
}

// RecordClose folds a realised profit/loss in.
func (t *StatsTracker) RecordClose(ctx context.Context, userID string, profitLoss float64) (domain.BotStats, error) {
	return t.update(ctx, userID, func(st *domain.BotStats, now time.Time) {
		st.RecordClose(profitLoss, now)
	})
}

// Get returns the user's stats with daily_trades rolled to today.
func (t *StatsTracker) Get(ctx context.Context, userID string) (domain.BotStats, error) {
	now := t.now()
	st, err := t.store.Get(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewBotStats(userID, now), nil
	case err != nil:
		return domain.BotStats{}, fmt.Errorf("stats_tracker: load %s: %w", userID, err)
	}
	st.RollDay(now)
	return st, nil
}
