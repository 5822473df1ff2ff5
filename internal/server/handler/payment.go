package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/service"
)

// PaymentService defines the methods that the payment handler requires.
type PaymentService interface {
	Submit(ctx context.Context, req service.SubmitPaymentRequest) (domain.PaymentNotification, error)
	List(ctx context.Context, status domain.PaymentStatus, opts domain.ListOpts) ([]domain.PaymentNotification, error)
	Approve(ctx context.Context, id string) (domain.PaymentNotification, error)
	Reject(ctx context.Context, id string) (domain.PaymentNotification, error)
}

// PaymentHandler serves deposit notification endpoints.
type PaymentHandler struct {
	payments PaymentService
	logger   *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(payments PaymentService, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// Submit records a user's deposit notification.
// POST /api/payments
func (h *PaymentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := h.payments.Submit(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "submit payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// List returns notifications, optionally by status. Admin only.
// GET /api/admin/payments?status=
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.PaymentStatus(r.URL.Query().Get("status"))
	out, err := h.payments.List(r.Context(), status, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list payments", err)
		return
	}
	if out == nil {
		out = []domain.PaymentNotification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out})
}

// Approve credits the payment. Admin only.
// POST /api/admin/payments/{id}/approve
func (h *PaymentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "approve payment", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Reject declines the payment. Admin only.
// POST /api/admin/payments/{id}/reject
func (h *PaymentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Reject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "reject payment", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
