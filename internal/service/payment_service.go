package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/notify"
)

// PaymentService handles deposit notifications: users report a transfer,
// an admin approves (crediting the balance) or rejects it.
type PaymentService struct {
	payments domain.PaymentStore
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	newID    func() string
	now      func() time.Time
	logger   *slog.Logger
}

// NewPaymentService creates a PaymentService. notifier may be nil.
func NewPaymentService(payments domain.PaymentStore, bus domain.SignalBus, audit domain.AuditStore, notifier Notifier, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		payments: payments,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "payment_service")),
	}
}

// SubmitPaymentRequest is what a user reports about a transfer.
type SubmitPaymentRequest struct {
	UserID     string    `json:"user_id"`
	Amount     float64   `json:"amount"`
	BankName   string    `json:"bank_name"`
	SenderName string    `json:"sender_name"`
	Reference  string    `json:"reference"`
	PaidAt     time.Time `json:"paid_at"`
}

// Submit records a pending notification.
func (s *PaymentService) Submit(ctx context.Context, req SubmitPaymentRequest) (domain.PaymentNotification, error) {
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return domain.PaymentNotification{}, fmt.Errorf("%w: amount must be > 0, got %v", domain.ErrInvalidAmount, req.Amount)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return domain.PaymentNotification{}, domain.ErrUnknownUser
	}
	now := s.now()
	if req.PaidAt.IsZero() {
		req.PaidAt = now
	}

	p := domain.PaymentNotification{
		ID:         s.newID(),
		UserID:     req.UserID,
		Amount:     req.Amount,
		BankName:   strings.TrimSpace(req.BankName),
		SenderName: strings.TrimSpace(req.SenderName),
		Reference:  strings.TrimSpace(req.Reference),
		PaidAt:     req.PaidAt.UTC(),
		Status:     domain.PaymentPending,
		CreatedAt:  now,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return domain.PaymentNotification{}, fmt.Errorf("payment_service: submit: %w", err)
	}

	s.log(ctx, "payment_submitted", p)
	s.notify(ctx, notify.EventPaymentPending, "Payment pending",
		fmt.Sprintf("%s reports %.2f from %s (%s) ref %q", p.UserID, p.Amount, p.SenderName, p.BankName, p.Reference))
	return p, nil
}

// List returns notifications filtered by status; empty means all.
func (s *PaymentService) List(ctx context.Context, status domain.PaymentStatus, opts domain.ListOpts) ([]domain.PaymentNotification, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", domain.ErrInvalidSettings, status)
	}
	out, err := s.payments.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("payment_service: list: %w", err)
	}
	return out, nil
}

// Approve credits the amount and marks the notification approved.
func (s *PaymentService) Approve(ctx context.Context, id string) (domain.PaymentNotification, error) {
	return s.resolve(ctx, id, true)
}

// Reject marks the notification rejected without touching the balance.
func (s *PaymentService) Reject(ctx context.Context, id string) (domain.PaymentNotification, error) {
	return s.resolve(ctx, id, false)
}

func (s *PaymentService) resolve(ctx context.Context, id string, approve bool) (domain.PaymentNotification, error) {
	p, bal, err := s.payments.Resolve(ctx, id, approve, s.now())
	if err != nil {
		return domain.PaymentNotification{}, fmt.Errorf("payment_service: resolve %s: %w", id, err)
	}

	s.log(ctx, "payment_"+string(p.Status), p)
	if approve {
		publishBalance(ctx, s.bus, s.logger, p.UserID, bal, "payment_approved")
	}
	s.notify(ctx, notify.EventPaymentResolve, "Payment "+string(p.Status),
		fmt.Sprintf("%s %.2f %s, balance %.2f", p.UserID, p.Amount, p.Status, bal))
	s.logger.InfoContext(ctx, "payment_service: payment resolved",
		slog.String("payment_id", p.ID),
		slog.String("user_id", p.UserID),
		slog.String("status", string(p.Status)),
		slog.Float64("balance", bal),
	)
	return p, nil
}

func (s *PaymentService) log(ctx context.Context, event string, p domain.PaymentNotification) {
	if err := s.audit.Log(ctx, event, map[string]any{
		"payment_id": p.ID,
		"user_id":    p.UserID,
		"amount":     p.Amount,
		"reference":  p.Reference,
	}); err != nil {
		s.logger.WarnContext(ctx, "payment_service: audit log failed", slog.String("error", err.Error()))
	}
}

func (s *PaymentService) notify(ctx context.Context, event, title, msg string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, msg); err != nil {
		s.logger.WarnContext(ctx, "payment_service: notify failed", slog.String("error", err.Error()))
	}
}
