package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/risk"
)

// RiskService evaluates risk settings against a user's account: the advisory
// limits for their balance and their current open exposure.
type RiskService struct {
	ledger    domain.AccountLedger
	positions domain.PositionStore
	prices    domain.PriceCache
	defaults  risk.Settings
	logger    *slog.Logger
}

// NewRiskService creates a RiskService.
func NewRiskService(ledger domain.AccountLedger, positions domain.PositionStore, prices domain.PriceCache, logger *slog.Logger) *RiskService {
	return &RiskService{
		ledger:    ledger,
		positions: positions,
		prices:    prices,
		defaults:  risk.Defaults(),
		logger:    logger.With(slog.String("component", "risk_service")),
	}
}

// WithDefaultLevel evaluates requests that name neither a level nor settings
// against the preset for level.
func (s *RiskService) WithDefaultLevel(level domain.RiskLevel) (*RiskService, error) {
	preset, err := risk.Preset(level)
	if err != nil {
		return nil, err
	}
	s.defaults = preset
	return s, nil
}

// EvaluateRequest selects the settings and balance to evaluate. RiskLevel,
// when set, replaces Settings with its preset. UserID, when set, replaces
// Balance with the account balance and adds the open exposure.
type EvaluateRequest struct {
	UserID    string           `json:"user_id,omitempty"`
	Balance   float64          `json:"balance,omitempty"`
	RiskLevel domain.RiskLevel `json:"risk_level,omitempty"`
	Settings  *risk.Settings   `json:"settings,omitempty"`
	// Amount, when positive, is checked against the max position amount.
	Amount float64 `json:"amount,omitempty"`
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	Settings      risk.Settings `json:"settings"`
	Metrics       risk.Metrics  `json:"metrics"`
	Balance       float64       `json:"balance"`
	OpenExposure  float64       `json:"open_exposure"`
	OpenPositions int           `json:"open_positions"`
	AmountAllowed *bool         `json:"amount_allowed,omitempty"`
	MaxAmount     float64       `json:"max_amount,omitempty"`
}

// Evaluate validates the settings and derives limits.
func (s *RiskService) Evaluate(ctx context.Context, req EvaluateRequest) (Evaluation, error) {
	settings := s.defaults
	switch {
	case req.RiskLevel != "":
		preset, err := risk.Preset(req.RiskLevel)
		if err != nil {
			return Evaluation{}, err
		}
		settings = preset
	case req.Settings != nil:
		settings = *req.Settings
	}

	ev := Evaluation{Settings: settings, Balance: req.Balance}
	if req.UserID != "" {
		bal, err := s.ledger.Balance(ctx, req.UserID)
		if err != nil {
			return Evaluation{}, fmt.Errorf("risk_service: balance %s: %w", req.UserID, err)
		}
		ev.Balance = bal

		exposure, n, err := s.Exposure(ctx, req.UserID)
		if err != nil {
			return Evaluation{}, err
		}
		ev.OpenExposure, ev.OpenPositions = exposure, n
	}

	metrics, err := risk.Evaluate(ev.Balance, settings)
	if err != nil {
		return Evaluation{}, err
	}
	ev.Metrics = metrics

	if req.Amount > 0 {
		ok, maxAmt := risk.CheckPosition(ev.Balance, req.Amount, settings)
		ev.AmountAllowed, ev.MaxAmount = &ok, maxAmt
		if !ok {
			s.logger.InfoContext(ctx, "risk_service: amount exceeds max position size",
				slog.String("user_id", req.UserID),
				slog.Float64("amount", req.Amount),
				slog.Float64("max", maxAmt),
			)
		}
	}
	return ev, nil
}

// Exposure marks the user's open positions to the cached price and returns
// the total notional and the number of open positions. A symbol without a
// cached price is valued at entry.
func (s *RiskService) Exposure(ctx context.Context, userID string) (float64, int, error) {
	open, err := s.positions.ListOpen(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("risk_service: list open for %s: %w", userID, err)
	}
	if len(open) == 0 {
		return 0, 0, nil
	}

	symbols := make([]string, 0, len(open))
	for _, p := range open {
		symbols = append(symbols, p.Symbol)
	}
	prices, err := s.prices.GetPrices(ctx, symbols)
	if err != nil {
		s.logger.WarnContext(ctx, "risk_service: price lookup failed, valuing at entry",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		prices = nil
	}

	var total float64
	for _, p := range open {
		price, ok := prices[p.Symbol]
		if !ok || p.EntryPrice <= 0 {
			total += p.Amount
			continue
		}
		total += p.Amount * price / p.EntryPrice
	}
	return total, len(open), nil
}
