// Package ws streams desk events to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Channel names a client can follow. "positions" is the per-user open-set
// changefeed; the others relay bus channels.
const (
	TopicPositions = "positions"
	TopicPrices    = domain.ChannelPrices
	TopicBot       = domain.ChannelBot
	TopicAccounts  = domain.ChannelAccounts
)

// relayed are bus channels forwarded to clients. Events on user-scoped
// channels only reach that user's clients.
var relayed = map[string]bool{
	TopicPrices:   false,
	TopicBot:      true,
	TopicAccounts: true,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PositionSubscriber yields open-position snapshots for one user.
// *service.PositionFeed satisfies it.
type PositionSubscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan []domain.Position, error)
}

// envelope is every frame sent to a client.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type busMsg struct {
	channel string
	userID  string
	data    []byte
}

// Hub relays bus events and position snapshots to connected clients.
type Hub struct {
	bus    domain.SignalBus
	feed   PositionSubscriber
	logger *slog.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan busMsg

	mu      sync.RWMutex
	ctx     context.Context
	clients map[*client]bool
}

// NewHub creates a Hub. Call Run before serving HandleWS.
func NewHub(bus domain.SignalBus, feed PositionSubscriber, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		feed:       feed,
		logger:     logger.With(slog.String("component", "ws")),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan busMsg, 256),
		clients:    make(map[*client]bool),
	}
}

// Run relays until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	for ch := range relayed {
		go h.relay(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.cancel()
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.String("user_id", c.userID), slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				c.cancel()
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.String("user_id", c.userID), slog.Int("total_clients", n))

		case msg := <-h.broadcast:
			frame := encode(msg.channel, msg.data)
			h.mu.RLock()
			for c := range h.clients {
				if msg.userID != "" && msg.userID != c.userID {
					continue
				}
				if c.isSubscribed(msg.channel) {
					c.offer(frame)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay forwards one bus channel into the broadcast loop.
func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: subscribe failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	scoped := relayed[channel]
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: bus subscription closed", slog.String("channel", channel))
				return
			}
			msg := busMsg{channel: channel, data: data}
			if scoped {
				var envelope struct {
					UserID string `json:"user_id"`
				}
				if json.Unmarshal(data, &envelope) != nil || envelope.UserID == "" {
					continue
				}
				msg.userID = envelope.UserID
			}
			select {
			case h.broadcast <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Clients counts connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and streams the user's events.
// GET /ws?user_id=
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id query parameter required"}`, http.StatusBadRequest)
		return
	}
	h.mu.RLock()
	base := h.ctx
	h.mu.RUnlock()
	if base == nil || base.Err() != nil {
		http.Error(w, `{"error":"websocket hub not running"}`, http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(base)
	c := &client{
		hub:     h,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBufferSize),
		subs:    map[string]bool{TopicPositions: true, TopicPrices: true, TopicBot: true, TopicAccounts: true},
		cancel:  cancel,
		hubDone: base.Done(),
	}

	select {
	case h.register <- c:
	case <-base.Done():
		cancel()
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
	go c.followPositions(ctx)
}

func encode(typ string, payload []byte) []byte {
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(payload))
	}
	frame, _ := json.Marshal(envelope{Type: typ, Payload: payload})
	return frame
}
