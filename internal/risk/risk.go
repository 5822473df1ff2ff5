// Package risk validates user-supplied risk settings and derives the
// advisory limits shown alongside them. Everything here is pure.
package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/paperdesk/internal/domain"
)

// Settings are percentages: StopLoss and TakeProfit of the entry price,
// MaxPositionSize and RiskPerTrade of the account balance.
type Settings struct {
	StopLoss        float64 `json:"stop_loss" toml:"stop_loss"`
	TakeProfit      float64 `json:"take_profit" toml:"take_profit"`
	MaxPositionSize float64 `json:"max_position_size" toml:"max_position_size"`
	RiskPerTrade    float64 `json:"risk_per_trade" toml:"risk_per_trade"`
}

// Metrics are the limits derived from Settings for a given balance.
type Metrics struct {
	MaxLossAmount     float64 `json:"max_loss_amount"`
	MaxPositionAmount float64 `json:"max_position_amount"`
	RewardRatio       float64 `json:"reward_ratio"`
}

// Defaults returns the Moderate preset.
func Defaults() Settings {
	return Settings{StopLoss: 2, TakeProfit: 5, MaxPositionSize: 20, RiskPerTrade: 1}
}

var presets = map[domain.RiskLevel]Settings{
	domain.RiskConservative: {StopLoss: 1, TakeProfit: 3, MaxPositionSize: 10, RiskPerTrade: 0.5},
	domain.RiskModerate:     Defaults(),
	domain.RiskAggressive:   {StopLoss: 5, TakeProfit: 10, MaxPositionSize: 40, RiskPerTrade: 2},
}

// Preset returns the settings associated with a risk level.
func Preset(level domain.RiskLevel) (Settings, error) {
	s, ok := presets[level]
	if !ok {
		return Settings{}, fmt.Errorf("%w: unknown risk level %q", domain.ErrInvalidSettings, level)
	}
	return s, nil
}

// Validate checks every bound and reports all violations at once.
func (s Settings) Validate() error {
	var errs []string
	if s.StopLoss < 0.1 {
		errs = append(errs, fmt.Sprintf("stop_loss must be >= 0.1, got %v", s.StopLoss))
	}
	if s.TakeProfit < 0.1 {
		errs = append(errs, fmt.Sprintf("take_profit must be >= 0.1, got %v", s.TakeProfit))
	}
	if s.MaxPositionSize < 1 || s.MaxPositionSize > 100 {
		errs = append(errs, fmt.Sprintf("max_position_size must be 1-100, got %v", s.MaxPositionSize))
	}
	if s.RiskPerTrade < 0.1 || s.RiskPerTrade > 10 {
		errs = append(errs, fmt.Sprintf("risk_per_trade must be 0.1-10, got %v", s.RiskPerTrade))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidSettings, strings.Join(errs, "; "))
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

// Evaluate validates s and derives the metrics for balance.
func Evaluate(balance float64, s Settings) (Metrics, error) {
	if balance < 0 {
		return Metrics{}, fmt.Errorf("%w: balance must be >= 0, got %v", domain.ErrInvalidAmount, balance)
	}
	if err := s.Validate(); err != nil {
		return Metrics{}, err
	}

	bal := decimal.NewFromFloat(balance)
	maxLoss := bal.Mul(decimal.NewFromFloat(s.RiskPerTrade)).Div(hundred).Round(2)
	maxPos := bal.Mul(decimal.NewFromFloat(s.MaxPositionSize)).Div(hundred).Round(2)
	ratio := decimal.NewFromFloat(s.TakeProfit).Div(decimal.NewFromFloat(s.StopLoss)).Round(4)

	return Metrics{
		MaxLossAmount:     maxLoss.InexactFloat64(),
		MaxPositionAmount: maxPos.InexactFloat64(),
		RewardRatio:       ratio.InexactFloat64(),
	}, nil
}

// CheckPosition reports whether amount fits inside the max position size for
// balance. It returns the allowed maximum alongside.
func CheckPosition(balance, amount float64, s Settings) (bool, float64) {
	maxPos := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(s.MaxPositionSize)).Div(hundred)
	return decimal.NewFromFloat(amount).LessThanOrEqual(maxPos), maxPos.InexactFloat64()
}
