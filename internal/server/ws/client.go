package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one WebSocket connection bound to a user.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	cancel  context.CancelFunc
	// hubDone closes when the hub stops.
	hubDone <-chan struct{}

	mu   sync.RWMutex
	subs map[string]bool
}

// subscribeMsg toggles topics:
// {"action":"unsubscribe","channels":["prices"]}
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

func (c *client) isSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[topic]
}

// offer queues frame, dropping it when the client is too slow. Callers hold
// the hub's read lock so send is not closed underneath.
func (c *client) offer(frame []byte) {
	select {
	case c.send <- frame:
	default:
		c.hub.logger.Warn("ws: dropping message for slow client", slog.String("user_id", c.userID))
	}
}

// followPositions pushes the user's open-position snapshots until ctx ends.
func (c *client) followPositions(ctx context.Context) {
	if c.hub.feed == nil {
		return
	}
	snaps, err := c.hub.feed.Subscribe(ctx, c.userID)
	if err != nil {
		c.hub.logger.Warn("ws: position feed unavailable",
			slog.String("user_id", c.userID),
			slog.String("error", err.Error()),
		)
		return
	}
	for snap := range snaps {
		if !c.isSubscribed(TopicPositions) {
			continue
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		frame := encode(TopicPositions, payload)
		c.hub.mu.RLock()
		if c.hub.clients[c] {
			c.offer(frame)
		}
		c.hub.mu.RUnlock()
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hubDone:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var sub subscribeMsg
		if json.Unmarshal(message, &sub) == nil {
			c.apply(sub)
		}
	}
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Channels {
		switch msg.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
