// Package archive schedules exports of settled history to cold storage.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// Result counts the records written by one run.
type Result struct {
	Cutoff    time.Time `json:"cutoff"`
	Positions int64     `json:"positions"`
	Audit     int64     `json:"audit"`
}

// Runner exports records older than the retention window.
type Runner struct {
	archiver  domain.Archiver
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewRunner creates a Runner keeping retentionDays of history in the
// primary store.
func NewRunner(archiver domain.Archiver, retentionDays int, logger *slog.Logger) *Runner {
	return &Runner{
		archiver:  archiver,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run performs one export.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{Cutoff: r.now().Add(-r.retention)}
	r.logger.InfoContext(ctx, "archiver: run started", slog.Time("cutoff", res.Cutoff))

	var err error
	if res.Positions, err = r.archiver.ArchivePositions(ctx, res.Cutoff); err != nil {
		return res, fmt.Errorf("archiver: positions before %s: %w", res.Cutoff.Format(time.RFC3339), err)
	}
	if res.Audit, err = r.archiver.ArchiveAudit(ctx, res.Cutoff); err != nil {
		return res, fmt.Errorf("archiver: audit before %s: %w", res.Cutoff.Format(time.RFC3339), err)
	}

	r.logger.InfoContext(ctx, "archiver: run complete",
		slog.Int64("positions", res.Positions),
		slog.Int64("audit", res.Audit),
	)
	return res, nil
}

// RunCron runs on schedule until ctx is cancelled. A failed run is logged
// and the next one still fires.
func (r *Runner) RunCron(ctx context.Context, expr string) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("archiver: %w", err)
	}
	r.logger.Info("archiver cron started", slog.String("cron", expr))

	for {
		next, err := sched.Next(r.now())
		if err != nil {
			return fmt.Errorf("archiver: %w", err)
		}
		wait := next.Sub(r.now())
		r.logger.Debug("archiver: waiting", slog.Time("next_run", next), slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := r.Run(ctx); err != nil {
				r.logger.Error("archiver: run failed", slog.String("error", err.Error()))
			}
		}
	}
}
