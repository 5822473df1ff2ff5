package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/service"
)

// AccountService defines the methods that the account handler requires.
type AccountService interface {
	Create(ctx context.Context, req service.CreateAccountRequest) (domain.Account, error)
	Get(ctx context.Context, id string) (domain.Account, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Account, error)
	SetBalance(ctx context.Context, id string, balance float64, actor string) (domain.Account, error)
}

// AccountHandler serves account endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// Create opens an account. Admin only.
// POST /api/accounts
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := h.accounts.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// Get returns one account.
// GET /api/accounts/{id}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	acct, err := h.accounts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get account", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// List returns accounts. Admin only.
// GET /api/admin/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	accts, err := h.accounts.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list accounts", err)
		return
	}
	if accts == nil {
		accts = []domain.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accts})
}

type setBalanceRequest struct {
	Balance *float64 `json:"balance"`
	Actor   string   `json:"actor"`
}

// SetBalance overwrites an account balance. Admin only.
// PUT /api/admin/accounts/{id}/balance
func (h *AccountHandler) SetBalance(w http.ResponseWriter, r *http.Request) {
	var req setBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Balance == nil {
		writeError(w, http.StatusBadRequest, "balance is required")
		return
	}
	if req.Actor == "" {
		req.Actor = "admin"
	}
	acct, err := h.accounts.SetBalance(r.Context(), r.PathValue("id"), *req.Balance, req.Actor)
	if err != nil {
		writeServiceError(w, r, h.logger, "set balance", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}
