package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// BotManager defines the methods that the bot handler requires.
type BotManager interface {
	Status(ctx context.Context, userID string) (domain.BotStatus, error)
	Start(ctx context.Context, userID string) (domain.BotStatus, error)
	Stop(ctx context.Context, userID string) (domain.BotStatus, error)
	UpdateSettings(ctx context.Context, userID string, s domain.BotSettings) (domain.BotStatus, error)
	SetRiskLevel(ctx context.Context, userID string, l domain.RiskLevel) (domain.BotStatus, error)
}

// StatsReader returns a user's trading statistics.
type StatsReader interface {
	Get(ctx context.Context, userID string) (domain.BotStats, error)
}

// BotHandler serves the bot control endpoints.
type BotHandler struct {
	bots   BotManager
	stats  StatsReader
	logger *slog.Logger
}

// NewBotHandler creates a BotHandler.
func NewBotHandler(bots BotManager, stats StatsReader, logger *slog.Logger) *BotHandler {
	return &BotHandler{bots: bots, stats: stats, logger: logger}
}

type botResponse struct {
	domain.BotStatus
	Stats *domain.BotStats `json:"stats,omitempty"`
}

func (h *BotHandler) respond(w http.ResponseWriter, r *http.Request, op string, st domain.BotStatus, err error) {
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	resp := botResponse{BotStatus: st}
	if h.stats != nil {
		stats, err := h.stats.Get(r.Context(), st.UserID)
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: bot stats unavailable",
				slog.String("user_id", st.UserID),
				slog.String("error", err.Error()),
			)
		} else {
			resp.Stats = &stats
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns the bot status and stats.
// GET /api/bot/{user_id}
func (h *BotHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.bots.Status(r.Context(), r.PathValue("user_id"))
	h.respond(w, r, "bot status", st, err)
}

// Start starts the bot.
// POST /api/bot/{user_id}/start
func (h *BotHandler) Start(w http.ResponseWriter, r *http.Request) {
	st, err := h.bots.Start(r.Context(), r.PathValue("user_id"))
	h.respond(w, r, "start bot", st, err)
}

// Stop stops the bot after any in-flight trade.
// POST /api/bot/{user_id}/stop
func (h *BotHandler) Stop(w http.ResponseWriter, r *http.Request) {
	st, err := h.bots.Stop(r.Context(), r.PathValue("user_id"))
	h.respond(w, r, "stop bot", st, err)
}

// UpdateSettings replaces the bot settings.
// PUT /api/bot/{user_id}/settings
func (h *BotHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s domain.BotSettings
	if err := decodeJSON(r, &s); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.bots.UpdateSettings(r.Context(), r.PathValue("user_id"), s)
	h.respond(w, r, "update bot settings", st, err)
}

type riskLevelRequest struct {
	RiskLevel domain.RiskLevel `json:"risk_level"`
}

// SetRiskLevel records the declared risk level.
// PUT /api/bot/{user_id}/risk-level
func (h *BotHandler) SetRiskLevel(w http.ResponseWriter, r *http.Request) {
	var req riskLevelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.bots.SetRiskLevel(r.Context(), r.PathValue("user_id"), req.RiskLevel)
	h.respond(w, r, "set risk level", st, err)
}
