package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	OpenPosition(ctx context.Context, req domain.OpenRequest) (domain.Position, error)
	ClosePosition(ctx context.Context, positionID, userID string) (domain.Position, error)
	ListOpen(ctx context.Context, userID string) ([]domain.Position, error)
	History(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error)
}

// PositionHandler serves the trading endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{positions: positions, logger: logger}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// Open opens a position.
// POST /api/positions
func (h *PositionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pos, err := h.positions.OpenPosition(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "open position", err)
		return
	}
	writeJSON(w, http.StatusCreated, pos)
}

type closeRequest struct {
	UserID string `json:"user_id"`
}

// Close settles a position at the strategy's exit price.
// POST /api/positions/{id}/close
func (h *PositionHandler) Close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	pos, err := h.positions.ClosePosition(r.Context(), r.PathValue("id"), req.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, "close position", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// ListOpen returns the user's open positions.
// GET /api/positions?user_id=
func (h *PositionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	positions, err := h.positions.ListOpen(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, "list positions", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// History returns every position of the user, newest first.
// GET /api/positions/history?user_id=&limit=&offset=
func (h *PositionHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	positions, err := h.positions.History(r.Context(), userID, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "position history", err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}
