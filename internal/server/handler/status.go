package handler

import (
	"net/http"
	"time"
)

// StatusHandler reports runtime metadata.
type StatusHandler struct {
	Mode        string
	Driver      string
	StartedAt   time.Time
	Instruments int
	// RunningBots, when set, counts running bots.
	RunningBots func() int
	// Clients, when set, counts WebSocket clients.
	Clients func() int
}

// GetStatus responds with mode, uptime and live counters.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.Mode,
		"store":          h.Driver,
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"instruments":    h.Instruments,
	}
	if h.RunningBots != nil {
		resp["running_bots"] = h.RunningBots()
	}
	if h.Clients != nil {
		resp["ws_clients"] = h.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}
