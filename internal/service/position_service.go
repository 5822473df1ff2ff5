package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/paperdesk/internal/catalog"
	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/notify"
)

// Notifier delivers operator alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TradingConfig holds the tunables of PositionService.
type TradingConfig struct {
	PnLModel             PnLModel
	OracleTimeout        time.Duration
	DefaultStopLossPct   float64
	DefaultTakeProfitPct float64
	// LargeLossThreshold raises a large_loss alert when a close loses at
	// least this much. Zero disables the alert.
	LargeLossThreshold float64
}

// DefaultTradingConfig returns the settings used when none are configured.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		PnLModel:             PnLUnits,
		OracleTimeout:        2 * time.Second,
		DefaultStopLossPct:   2,
		DefaultTakeProfitPct: 5,
	}
}

// PositionDeps are the collaborators of PositionService. Catalog and Notifier
// are optional.
type PositionDeps struct {
	Ledger    domain.AccountLedger
	Positions domain.PositionStore
	Oracle    domain.PriceOracle
	Pricing   domain.PricingStrategy
	Stats     *StatsTracker
	Bus       domain.SignalBus
	Audit     domain.AuditStore
	Catalog   *catalog.Catalog
	Notifier  Notifier
}

// PositionService opens and closes positions. The balance change of each
// operation is applied by the store in the same transaction as the position
// write; events, audit, stats and alerts follow after commit and never fail
// the operation.
type PositionService struct {
	deps   PositionDeps
	cfg    TradingConfig
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(deps PositionDeps, cfg TradingConfig, logger *slog.Logger) *PositionService {
	if !cfg.PnLModel.Valid() {
		cfg.PnLModel = PnLUnits
	}
	return &PositionService{
		deps:   deps,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: logger.With(slog.String("component", "position_service")),
	}
}

// validate normalises req in place.
func (s *PositionService) validate(req *domain.OpenRequest) error {
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be > 0, got %v", domain.ErrInvalidAmount, req.Amount)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return domain.ErrUnknownUser
	}
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidPosition)
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidPosition, req.Type)
	}

	if s.deps.Catalog != nil {
		if inst, ok := s.deps.Catalog.Lookup(req.Symbol); ok {
			req.Symbol = inst.Symbol
			if req.Market == "" {
				req.Market = inst.Market
			} else if req.Market != inst.Market {
				return fmt.Errorf("%w: %s trades in %s, not %s", domain.ErrInvalidPosition, inst.Symbol, inst.Market, req.Market)
			}
		}
	}
	if !req.Market.Valid() {
		return fmt.Errorf("%w: unknown market %q", domain.ErrInvalidPosition, req.Market)
	}

	if req.StopLossPct == 0 {
		req.StopLossPct = s.cfg.DefaultStopLossPct
	}
	if req.TakeProfitPct == 0 {
		req.TakeProfitPct = s.cfg.DefaultTakeProfitPct
	}
	if req.StopLossPct < 0 || req.TakeProfitPct < 0 {
		return fmt.Errorf("%w: stop-loss and take-profit must be >= 0", domain.ErrInvalidPosition)
	}
	return nil
}

// OpenPosition prices req through the oracle and opens it, debiting amount.
func (s *PositionService) OpenPosition(ctx context.Context, req domain.OpenRequest) (domain.Position, error) {
	if err := s.validate(&req); err != nil {
		return domain.Position{}, err
	}

	// Cheap pre-check so an overdrawn user does not consume an oracle call.
	// The store re-checks under lock.
	bal, err := s.deps.Ledger.Balance(ctx, req.UserID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: balance %s: %w", req.UserID, err)
	}
	if bal < req.Amount {
		return domain.Position{}, fmt.Errorf("position_service: open for %s: %w (balance %.2f, amount %.2f)",
			req.UserID, domain.ErrInsufficientBalance, bal, req.Amount)
	}

	price, err := s.price(ctx, req.Symbol)
	if err != nil {
		return domain.Position{}, err
	}

	sl, tp := domain.ProtectiveLevels(price, req.Type, req.StopLossPct, req.TakeProfitPct)
	pos := domain.Position{
		ID:           s.newID(),
		UserID:       req.UserID,
		Symbol:       req.Symbol,
		Amount:       req.Amount,
		EntryPrice:   price,
		CurrentPrice: price,
		StopLoss:     sl,
		TakeProfit:   tp,
		Type:         req.Type,
		Status:       domain.PositionStatusOpen,
		Market:       req.Market,
		CreatedAt:    s.now(),
	}

	bal, err = s.deps.Positions.Open(ctx, pos)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: open %s: %w", pos.ID, err)
	}

	if _, err := s.deps.Stats.RecordOpen(ctx, pos.UserID); err != nil {
		s.logger.WarnContext(ctx, "position_service: stats update failed",
			slog.String("user_id", pos.UserID),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, domain.EventPositionOpened, pos, bal)
	s.audit(ctx, domain.EventPositionOpened, map[string]any{
		"position_id": pos.ID,
		"user_id":     pos.UserID,
		"symbol":      pos.Symbol,
		"type":        string(pos.Type),
		"amount":      pos.Amount,
		"entry_price": pos.EntryPrice,
		"balance":     bal,
	})

	s.logger.InfoContext(ctx, "position_service: position opened",
		slog.String("position_id", pos.ID),
		slog.String("user_id", pos.UserID),
		slog.String("symbol", pos.Symbol),
		slog.String("type", string(pos.Type)),
		slog.Float64("amount", pos.Amount),
		slog.Float64("entry_price", pos.EntryPrice),
	)
	return pos, nil
}

// price asks the oracle under the configured timeout. Every failure wraps
// domain.ErrOracleUnavailable.
func (s *PositionService) price(ctx context.Context, symbol string) (float64, error) {
	if s.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.OracleTimeout)
		defer cancel()
	}
	price, err := s.deps.Oracle.GetPrice(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrOracleUnavailable) {
			return 0, fmt.Errorf("position_service: price %s: %w", symbol, err)
		}
		return 0, fmt.Errorf("position_service: price %s: %w: %w", symbol, domain.ErrOracleUnavailable, err)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("position_service: price %s: %w: got %v", symbol, domain.ErrOracleUnavailable, price)
	}
	return price, nil
}

// ClosePosition settles positionID on behalf of userID.
func (s *PositionService) ClosePosition(ctx context.Context, positionID, userID string) (domain.Position, error) {
	pos, err := s.deps.Positions.GetByID(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get %s: %w", positionID, err)
	}
	// Early checks spare a pricing draw; Settle repeats them under lock.
	if pos.UserID != userID {
		return domain.Position{}, fmt.Errorf("position_service: close %s: %w", positionID, domain.ErrNotOwner)
	}
	if !pos.IsOpen() {
		return domain.Position{}, fmt.Errorf("position_service: close %s: %w", positionID, domain.ErrAlreadyClosed)
	}

	pctx := ctx
	if s.cfg.OracleTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.cfg.OracleTimeout)
		defer cancel()
	}
	exit, err := s.deps.Pricing.ExitPrice(pctx, pos)
	if err != nil {
		if !errors.Is(err, domain.ErrOracleUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, err)
		}
		return domain.Position{}, fmt.Errorf("position_service: exit price %s: %w", positionID, err)
	}

	pl := s.cfg.PnLModel.ProfitLoss(pos, exit)
	closed, bal, err := s.deps.Positions.Settle(ctx, domain.Settlement{
		PositionID: pos.ID,
		UserID:     userID,
		ExitPrice:  exit,
		ProfitLoss: pl,
		ClosedAt:   s.now(),
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: settle %s: %w", positionID, err)
	}

	if _, err := s.deps.Stats.RecordClose(ctx, userID, pl); err != nil {
		s.logger.WarnContext(ctx, "position_service: stats update failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	s.publish(ctx, domain.EventPositionClosed, closed, bal)
	s.audit(ctx, domain.EventPositionClosed, map[string]any{
		"position_id": closed.ID,
		"user_id":     userID,
		"symbol":      closed.Symbol,
		"entry_price": closed.EntryPrice,
		"exit_price":  exit,
		"profit_loss": pl,
		"balance":     bal,
	})
	s.alert(ctx, closed, exit, pl, bal)

	s.logger.InfoContext(ctx, "position_service: position closed",
		slog.String("position_id", closed.ID),
		slog.String("user_id", userID),
		slog.Float64("exit_price", exit),
		slog.Float64("profit_loss", pl),
		slog.Float64("balance", bal),
	)
	return closed, nil
}

// ListOpen returns the user's open positions, newest first.
func (s *PositionService) ListOpen(ctx context.Context, userID string) ([]domain.Position, error) {
	positions, err := s.deps.Positions.ListOpen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("position_service: list open for %s: %w", userID, err)
	}
	return positions, nil
}

// History returns every position of the user, newest first.
func (s *PositionService) History(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	positions, err := s.deps.Positions.ListHistory(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: history for %s: %w", userID, err)
	}
	return positions, nil
}

// Stats returns the user's trading statistics.
func (s *PositionService) Stats(ctx context.Context, userID string) (domain.BotStats, error) {
	return s.deps.Stats.Get(ctx, userID)
}

func (s *PositionService) publish(ctx context.Context, event string, pos domain.Position, bal float64) {
	evt, _ := json.Marshal(domain.PositionEvent{
		Event:    event,
		UserID:   pos.UserID,
		Position: pos,
		Balance:  bal,
		At:       s.now(),
	})
	if err := s.deps.Bus.Publish(ctx, domain.ChannelPositions, evt); err != nil {
		s.logger.WarnContext(ctx, "position_service: publish event failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) audit(ctx context.Context, event string, detail map[string]any) {
	if err := s.deps.Audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "position_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PositionService) alert(ctx context.Context, pos domain.Position, exit, pl, bal float64) {
	if s.deps.Notifier == nil {
		return
	}
	msg := fmt.Sprintf("%s %s %s\namount %.2f entry %.4f exit %.4f\nP/L %.2f balance %.2f",
		pos.UserID, pos.Type, pos.Symbol, pos.Amount, pos.EntryPrice, exit, pl, bal)
	event, title := notify.EventPositionClosed, "Position closed"
	if s.cfg.LargeLossThreshold > 0 && pl <= -s.cfg.LargeLossThreshold {
		event, title = notify.EventLargeLoss, "Large loss"
	}
	if err := s.deps.Notifier.Notify(ctx, event, title, msg); err != nil {
		s.logger.WarnContext(ctx, "position_service: notify failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}
}
