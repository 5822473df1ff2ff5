package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb, "pd:"), mr
}

func TestPriceCache(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	pc := NewPriceCache(c, time.Minute)

	_, _, err := pc.GetPrice(ctx, "BINANCE:BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pc.SetPrice(ctx, "BINANCE:BTCUSDT", 104.25, ts))
	require.NoError(t, pc.SetPrice(ctx, "BIST:THYAO", 101, ts))
	assert.True(t, mr.Exists("pd:price:BINANCE:BTCUSDT"))

	price, got, err := pc.GetPrice(ctx, "BINANCE:BTCUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 104.25, price, 1e-9)
	assert.True(t, ts.Equal(got))

	prices, err := pc.GetPrices(ctx, []string{"BINANCE:BTCUSDT", "BIST:THYAO", "NYMEX:CL1!"})
	require.NoError(t, err)
	assert.Len(t, prices, 2)
	assert.InDelta(t, 101.0, prices["BIST:THYAO"], 1e-9)

	mr.FastForward(2 * time.Minute)
	_, _, err = pc.GetPrice(ctx, "BINANCE:BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLockManager(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "bot:u1", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "bot:u1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	_, err = lm.Acquire(ctx, "bot:u2", time.Minute)
	assert.NoError(t, err)

	unlock()
	unlock()
	_, err = lm.Acquire(ctx, "bot:u1", time.Minute)
	assert.NoError(t, err)
}

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		now = now.Add(time.Millisecond)
		ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	now = now.Add(time.Millisecond)
	ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other keys have their own window.
	ok, err = rl.Allow(ctx, "5.6.7.8", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, err = rl.Allow(ctx, "1.2.3.4", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignalBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, _ := newTestClient(t)
	sb := NewSignalBus(c)

	ch, err := sb.Subscribe(ctx, domain.ChannelPositions)
	require.NoError(t, err)
	require.NoError(t, sb.Publish(ctx, domain.ChannelPositions, []byte(`{"user_id":"u1"}`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"user_id":"u1"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
	}

	require.NoError(t, sb.StreamAppend(ctx, "events:positions", []byte("a")))
	require.NoError(t, sb.StreamAppend(ctx, "events:positions", []byte("b")))
	msgs, err := sb.StreamRead(ctx, "events:positions", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Payload))

	empty, err := sb.StreamRead(ctx, "events:nothing", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
