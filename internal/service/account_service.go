package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// AccountService manages accounts and admin balance corrections.
type AccountService struct {
	accounts domain.AccountStore
	bus      domain.SignalBus
	audit    domain.AuditStore
	newID    func() string
	now      func() time.Time
	logger   *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(accounts domain.AccountStore, bus domain.SignalBus, audit domain.AuditStore, logger *slog.Logger) *AccountService {
	return &AccountService{
		accounts: accounts,
		bus:      bus,
		audit:    audit,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "account_service")),
	}
}

// CreateAccountRequest carries the fields of a new account.
type CreateAccountRequest struct {
	ID      string  `json:"id,omitempty"`
	Email   string  `json:"email"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
	IsAdmin bool    `json:"is_admin"`
}

// Create opens an account. An empty ID is assigned a uuid.
func (s *AccountService) Create(ctx context.Context, req CreateAccountRequest) (domain.Account, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return domain.Account{}, fmt.Errorf("%w: bad email %q", domain.ErrInvalidAccount, req.Email)
		}
	}
	if err := checkBalance(req.Balance); err != nil {
		return domain.Account{}, err
	}
	if req.ID == "" {
		req.ID = s.newID()
	}

	now := s.now()
	acct := domain.Account{
		ID:        req.ID,
		Email:     req.Email,
		Name:      strings.TrimSpace(req.Name),
		Balance:   req.Balance,
		IsAdmin:   req.IsAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return domain.Account{}, fmt.Errorf("account_service: create: %w", err)
	}

	if err := s.audit.Log(ctx, "account_created", map[string]any{
		"user_id": acct.ID,
		"email":   acct.Email,
		"balance": acct.Balance,
	}); err != nil {
		s.logger.WarnContext(ctx, "account_service: audit log failed", slog.String("error", err.Error()))
	}
	s.logger.InfoContext(ctx, "account_service: account created",
		slog.String("user_id", acct.ID),
		slog.Float64("balance", acct.Balance),
	)
	return acct, nil
}

// Get returns one account.
func (s *AccountService) Get(ctx context.Context, id string) (domain.Account, error) {
	acct, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account_service: get %s: %w", id, err)
	}
	return acct, nil
}

// List returns accounts ordered by creation.
func (s *AccountService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Account, error) {
	accts, err := s.accounts.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("account_service: list: %w", err)
	}
	return accts, nil
}

// SetBalance overwrites a balance. Admin only; the change is audited.
func (s *AccountService) SetBalance(ctx context.Context, id string, balance float64, actor string) (domain.Account, error) {
	if err := checkBalance(balance); err != nil {
		return domain.Account{}, err
	}
	before, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account_service: get %s: %w", id, err)
	}
	acct, err := s.accounts.SetBalance(ctx, id, balance)
	if err != nil {
		return domain.Account{}, fmt.Errorf("account_service: set balance %s: %w", id, err)
	}

	if err := s.audit.Log(ctx, "balance_set", map[string]any{
		"user_id": id,
		"before":  before.Balance,
		"after":   acct.Balance,
		"actor":   actor,
	}); err != nil {
		s.logger.WarnContext(ctx, "account_service: audit log failed", slog.String("error", err.Error()))
	}
	s.publishBalance(ctx, acct.ID, acct.Balance, "balance_set")
	s.logger.InfoContext(ctx, "account_service: balance set",
		slog.String("user_id", id),
		slog.Float64("before", before.Balance),
		slog.Float64("after", acct.Balance),
	)
	return acct, nil
}

func (s *AccountService) publishBalance(ctx context.Context, userID string, balance float64, reason string) {
	publishBalance(ctx, s.bus, s.logger, userID, balance, reason)
}

func publishBalance(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, userID string, balance float64, reason string) {
	evt, _ := json.Marshal(map[string]any{
		"event":   "balance_changed",
		"user_id": userID,
		"balance": balance,
		"reason":  reason,
	})
	if err := bus.Publish(ctx, domain.ChannelAccounts, evt); err != nil {
		logger.WarnContext(ctx, "publish balance event failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func checkBalance(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: balance must be >= 0, got %v", domain.ErrInvalidAmount, v)
	}
	return nil
}
