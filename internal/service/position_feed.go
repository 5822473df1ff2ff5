package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// PositionFeed pushes open-position snapshots for one user. It re-queries on
// every position event for that user and polls when the bus cannot be
// subscribed.
type PositionFeed struct {
	positions domain.PositionStore
	bus       domain.SignalBus
	poll      time.Duration
	logger    *slog.Logger
}

// NewPositionFeed creates a PositionFeed. poll is the fallback interval.
func NewPositionFeed(positions domain.PositionStore, bus domain.SignalBus, poll time.Duration, logger *slog.Logger) *PositionFeed {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &PositionFeed{
		positions: positions,
		bus:       bus,
		poll:      poll,
		logger:    logger.With(slog.String("component", "position_feed")),
	}
}

// Subscribe emits the current open set immediately and again after each
// change. The channel holds only the newest snapshot: a slow reader skips
// intermediate ones. It closes when ctx is cancelled.
func (f *PositionFeed) Subscribe(ctx context.Context, userID string) (<-chan []domain.Position, error) {
	snap, err := f.positions.ListOpen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("position_feed: initial snapshot for %s: %w", userID, err)
	}

	events, err := f.bus.Subscribe(ctx, domain.ChannelPositions)
	if err != nil {
		f.logger.WarnContext(ctx, "position_feed: bus unavailable, polling",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		events = nil
	}

	out := make(chan []domain.Position, 1)
	out <- snap
	go f.run(ctx, userID, events, fingerprint(snap), out)
	return out, nil
}

func (f *PositionFeed) run(ctx context.Context, userID string, events <-chan []byte, last string, out chan []domain.Position) {
	defer close(out)

	ticker := time.NewTicker(f.poll)
	defer ticker.Stop()

	refresh := func() {
		snap, err := f.positions.ListOpen(ctx, userID)
		if err != nil {
			if ctx.Err() == nil {
				f.logger.WarnContext(ctx, "position_feed: refresh failed",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		fp := fingerprint(snap)
		if fp == last {
			return
		}
		last = fp
		offer(out, snap)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			var evt domain.PositionEvent
			if err := json.Unmarshal(msg, &evt); err != nil || evt.UserID != userID {
				continue
			}
			refresh()
		case <-ticker.C:
			if events == nil {
				refresh()
			}
		}
	}
}

// offer replaces any unread snapshot with snap.
func offer(out chan []domain.Position, snap []domain.Position) {
	select {
	case out <- snap:
		return
	default:
	}
	select {
	case <-out:
	default:
	}
	out <- snap
}

// fingerprint identifies an open set by its position IDs.
func fingerprint(positions []domain.Position) string {
	ids := make([]string, len(positions))
	for i, p := range positions {
		ids[i] = p.ID
	}
	return strings.Join(ids, ",")
}
