package service

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// PnLModel selects how profit/loss is derived from entry, exit and amount.
type PnLModel string

const (
	// PnLUnits treats amount as a unit count: (exit-entry) * amount.
	PnLUnits PnLModel = "units"
	// PnLReturn treats amount as notional: (exit/entry-1) * amount.
	PnLReturn PnLModel = "return"
)

// Valid reports whether m is a known model.
func (m PnLModel) Valid() bool {
	return m == PnLUnits || m == PnLReturn
}

// ProfitLoss computes the signed result of closing pos at exit.
func (m PnLModel) ProfitLoss(pos domain.Position, exit float64) float64 {
	sign := pos.Type.Sign()
	if m == PnLReturn {
		if pos.EntryPrice == 0 {
			return 0
		}
		return (exit/pos.EntryPrice - 1) * pos.Amount * sign
	}
	return (exit - pos.EntryPrice) * pos.Amount * sign
}

// BiasedOutcome draws a favourable exit most of the time: with probability
// WinProbability the exit is entry*WinMultiplier, otherwise
// entry*LossMultiplier. The multipliers apply regardless of direction.
type BiasedOutcome struct {
	WinProbability float64
	WinMultiplier  float64
	LossMultiplier float64

	float func() float64
}

// NewBiasedOutcome returns the default 85% / x1.05 / x0.98 strategy. A nil
// rng uses math/rand/v2.
func NewBiasedOutcome(rng func() float64) *BiasedOutcome {
	if rng == nil {
		rng = rand.Float64
	}
	return &BiasedOutcome{
		WinProbability: 0.85,
		WinMultiplier:  1.05,
		LossMultiplier: 0.98,
		float:          rng,
	}
}

// ExitPrice implements domain.PricingStrategy.
func (b *BiasedOutcome) ExitPrice(_ context.Context, pos domain.Position) (float64, error) {
	if b.float() > 1-b.WinProbability {
		return pos.EntryPrice * b.WinMultiplier, nil
	}
	return pos.EntryPrice * b.LossMultiplier, nil
}

// MarketExit closes at the oracle's current price.
type MarketExit struct {
	oracle domain.PriceOracle
}

// NewMarketExit creates a MarketExit over oracle.
func NewMarketExit(oracle domain.PriceOracle) *MarketExit {
	return &MarketExit{oracle: oracle}
}

// ExitPrice implements domain.PricingStrategy.
func (m *MarketExit) ExitPrice(ctx context.Context, pos domain.Position) (float64, error) {
	price, err := m.oracle.GetPrice(ctx, pos.Symbol)
	if err != nil {
		return 0, fmt.Errorf("market_exit: %s: %w", pos.Symbol, err)
	}
	return price, nil
}

// NewPricingStrategy builds the strategy named by the trading.pricing config
// key: "biased" (default) or "market".
func NewPricingStrategy(name string, oracle domain.PriceOracle) (domain.PricingStrategy, error) {
	switch name {
	case "", "biased":
		return NewBiasedOutcome(nil), nil
	case "market":
		return NewMarketExit(oracle), nil
	}
	return nil, fmt.Errorf("service: unknown pricing strategy %q", name)
}

// Compile-time interface checks.
var (
	_ domain.PricingStrategy = (*BiasedOutcome)(nil)
	_ domain.PricingStrategy = (*MarketExit)(nil)
)
