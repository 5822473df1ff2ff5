package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/service"
	"github.com/alanyoungcy/paperdesk/internal/store/memory"
)

func startHub(t *testing.T) (*Hub, *memory.Backend, *memory.Bus, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := memory.New()
	bus := memory.NewBus()
	feed := service.NewPositionFeed(b.Positions, bus, time.Second, logger)
	hub := NewHub(bus, feed, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.ctx != nil
	}, time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, b, bus, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestClientReceivesInitialSnapshot(t *testing.T) {
	hub, b, _, srv := startHub(t)
	ctx := context.Background()
	require.NoError(t, b.Accounts.Create(ctx, domain.Account{ID: "u1", Balance: 1000}))
	_, err := b.Positions.Open(ctx, domain.Position{
		ID: "p1", UserID: "u1", Symbol: "BIST:THYAO", Amount: 100, EntryPrice: 10,
		Type: domain.PositionLong, Status: domain.PositionStatusOpen, Market: domain.MarketStocks,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	conn := dial(t, srv, "u1")
	env := readFrame(t, conn)
	assert.Equal(t, TopicPositions, env.Type)

	var snap []domain.Position
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	require.Len(t, snap, 1)
	assert.Equal(t, "p1", snap[0].ID)

	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
}

func TestUserScopedEventsOnlyReachOwner(t *testing.T) {
	_, _, bus, srv := startHub(t)
	conn := dial(t, srv, "u1")
	require.Equal(t, TopicPositions, readFrame(t, conn).Type)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				bus.Publish(context.Background(), domain.ChannelBot, []byte(`{"event":"bot_started","user_id":"u2"}`))
				bus.Publish(context.Background(), domain.ChannelBot, []byte(`{"event":"bot_started","user_id":"u1"}`))
			}
		}
	}()

	env := readFrame(t, conn)
	require.Equal(t, TopicBot, env.Type)
	var evt struct {
		UserID string `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &evt))
	assert.Equal(t, "u1", evt.UserID)
}

func TestMissingUserIDRejected(t *testing.T) {
	_, _, _, srv := startHub(t)
	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEncodeWrapsNonJSON(t *testing.T) {
	var env envelope
	require.NoError(t, json.Unmarshal(encode(TopicPrices, []byte("not json")), &env))
	assert.Equal(t, TopicPrices, env.Type)
	assert.JSONEq(t, `"not json"`, string(env.Payload))
}
