package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		after   time.Time
		want    time.Time
		wantErr bool
	}{
		{
			expr:  "0 3 1 * *",
			after: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 2, 1, 3, 0, 0, 0, time.UTC),
		},
		{
			expr:  "*/15 * * * *",
			after: time.Date(2026, 1, 15, 10, 7, 30, 0, time.UTC),
			want:  time.Date(2026, 1, 15, 10, 15, 0, 0, time.UTC),
		},
		{
			expr:  "30 2 * * 1-5",
			after: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC), // Saturday
			want:  time.Date(2026, 10, 19, 2, 30, 0, 0, time.UTC),
		},
		{
			expr:  "0 0,12 * * *",
			after: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		},
		{expr: "0 3 * *", wantErr: true},
		{expr: "61 * * * *", wantErr: true},
		{expr: "*/0 * * * *", wantErr: true},
		{expr: "a * * * *", wantErr: true},
		{expr: "0 5-2 * * *", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			s, err := ParseSchedule(tc.expr)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			next, err := s.Next(tc.after)
			require.NoError(t, err)
			assert.Equal(t, tc.want, next)
		})
	}
}

type fakeArchiver struct {
	positions, audit int64
	err              error
	cutoffs          []time.Time
}

func (f *fakeArchiver) ArchivePositions(_ context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	return f.positions, f.err
}

func (f *fakeArchiver) ArchiveAudit(_ context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	return f.audit, nil
}

func TestRunUsesRetentionCutoff(t *testing.T) {
	fa := &fakeArchiver{positions: 3, audit: 7}
	r := NewRunner(fa, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Positions)
	assert.Equal(t, int64(7), res.Audit)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), res.Cutoff)
	assert.Equal(t, []time.Time{res.Cutoff, res.Cutoff}, fa.cutoffs)
}

func TestRunStopsOnPositionError(t *testing.T) {
	fa := &fakeArchiver{err: errors.New("bucket gone")}
	r := NewRunner(fa, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, fa.cutoffs, 1)
}

func TestRunCronRejectsBadExpr(t *testing.T) {
	r := NewRunner(&fakeArchiver{}, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := r.RunCron(context.Background(), "every day")
	assert.Error(t, err)
}

func TestRunCronStopsOnCancel(t *testing.T) {
	r := NewRunner(&fakeArchiver{}, 30, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.RunCron(ctx, "0 3 1 * *")
	assert.ErrorIs(t, err, context.Canceled)
}
