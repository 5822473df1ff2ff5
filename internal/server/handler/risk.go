package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/paperdesk/internal/service"
)

// RiskEvaluator defines the methods that the risk handler requires.
type RiskEvaluator interface {
	Evaluate(ctx context.Context, req service.EvaluateRequest) (service.Evaluation, error)
}

// RiskHandler serves the risk calculator.
type RiskHandler struct {
	risk   RiskEvaluator
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(risk RiskEvaluator, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{risk: risk, logger: logger}
}

// Evaluate validates risk settings and returns the derived limits.
// POST /api/risk/evaluate
func (h *RiskHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req service.EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := h.risk.Evaluate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "evaluate risk", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
