package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/store/memory"
)

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (b *fakeBucket) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = raw
	b.puts++
	return nil
}

func (b *fakeBucket) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *fakeBucket) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.BlobInfo
	for k, v := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (b *fakeBucket) Exists(_ context.Context, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok, nil
}

func lines(raw []byte) int {
	return strings.Count(strings.TrimSpace(string(raw)), "\n") + 1
}

func closedPosition(t *testing.T, b *memory.Backend, id string, closedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	_, err := b.Positions.Open(ctx, domain.Position{
		ID: id, UserID: "u1", Symbol: "BIST:THYAO", Amount: 10, EntryPrice: 100, CurrentPrice: 100,
		Type: domain.PositionLong, Status: domain.PositionStatusOpen, Market: domain.MarketStocks,
		CreatedAt: closedAt.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, _, err = b.Positions.Settle(ctx, domain.Settlement{
		PositionID: id, UserID: "u1", ExitPrice: 105, ProfitLoss: 0.5, ClosedAt: closedAt,
	})
	require.NoError(t, err)
}

func TestArchivePositionsByMonthIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	require.NoError(t, b.Accounts.Create(ctx, domain.Account{ID: "u1", Balance: 1000}))

	jan := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)
	closedPosition(t, b, "p1", jan)
	closedPosition(t, b, "p2", jan.Add(24*time.Hour))
	closedPosition(t, b, "p3", feb)

	bucket := newFakeBucket()
	a := NewArchiver(bucket, bucket, b.Positions, b.Audit)

	n, err := a.ArchivePositions(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 2, lines(bucket.objects["archive/positions/2026-01.jsonl"]))
	assert.Equal(t, 1, lines(bucket.objects["archive/positions/2026-02.jsonl"]))

	puts := bucket.puts
	n, err = a.ArchivePositions(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, puts, bucket.puts)

	// A later close in January is appended to the existing object.
	closedPosition(t, b, "p4", jan.Add(48*time.Hour))
	n, err = a.ArchivePositions(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 3, lines(bucket.objects["archive/positions/2026-01.jsonl"]))
}

func TestArchiveSkipsRecentAndOpen(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	require.NoError(t, b.Accounts.Create(ctx, domain.Account{ID: "u1", Balance: 1000}))
	closedPosition(t, b, "old", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	closedPosition(t, b, "new", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	_, err := b.Positions.Open(ctx, domain.Position{
		ID: "open", UserID: "u1", Symbol: "BIST:THYAO", Amount: 10, EntryPrice: 100, CurrentPrice: 100,
		Type: domain.PositionLong, Status: domain.PositionStatusOpen, Market: domain.MarketStocks,
		CreatedAt: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	bucket := newFakeBucket()
	a := NewArchiver(bucket, bucket, b.Positions, b.Audit)
	n, err := a.ArchivePositions(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, string(bucket.objects["archive/positions/2026-01.jsonl"]), `"id":"old"`)
}

func TestArchiveAudit(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	require.NoError(t, b.Audit.Log(ctx, "position_opened", map[string]any{"position_id": "p1"}))
	require.NoError(t, b.Audit.Log(ctx, "position_closed", map[string]any{"position_id": "p1"}))

	bucket := newFakeBucket()
	a := NewArchiver(bucket, bucket, b.Positions, b.Audit)
	n, err := a.ArchiveAudit(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	infos, err := bucket.List(ctx, "archive/audit/")
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

func TestWithScheme(t *testing.T) {
	assert.Equal(t, "https://minio:9000", withScheme("minio:9000", true))
	assert.Equal(t, "http://minio:9000", withScheme("minio:9000", false))
	assert.Equal(t, "http://minio:9000", withScheme("http://minio:9000", true))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(io.ErrUnexpectedEOF))
}
