package domain

import (
	"fmt"
	"time"
)

// Success-rate band reported for bot statistics.
const (
	SuccessRateFloor   = 85.0
	SuccessRateCeiling = 95.0
	SuccessRateInitial = 92.0
)

// BotStats is the per-user aggregate of trading activity.
type BotStats struct {
	UserID        string    `json:"user_id"`
	TotalTrades   int64     `json:"total_trades"`
	DailyTrades   int64     `json:"daily_trades"`
	WinningTrades int64     `json:"winning_trades"`
	LosingTrades  int64     `json:"losing_trades"`
	Profit        float64   `json:"profit"`
	SuccessRate   float64   `json:"success_rate"`
	Day           string    `json:"day"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewBotStats returns zeroed stats for userID starting at the initial rate.
func NewBotStats(userID string, now time.Time) BotStats {
	return BotStats{
		UserID:      userID,
		SuccessRate: SuccessRateInitial,
		Day:         statsDay(now),
		UpdatedAt:   now,
	}
}

func statsDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// RollDay resets DailyTrades when now falls on a later UTC day.
func (s *BotStats) RollDay(now time.Time) {
	if d := statsDay(now); d != s.Day {
		s.Day = d
		s.DailyTrades = 0
	}
}

// RecordOpen counts a newly opened position.
func (s *BotStats) RecordOpen(now time.Time) {
	s.RollDay(now)
	s.TotalTrades++
	s.DailyTrades++
	s.UpdatedAt = now
}

// RecordClose folds a realised profit or loss into the stats. A flat close
// counts as neither a win nor a loss but still recomputes the rate, so a
// first flat close lands on the floor.
func (s *BotStats) RecordClose(profitLoss float64, now time.Time) {
	s.RollDay(now)
	switch {
	case profitLoss > 0:
		s.WinningTrades++
	case profitLoss < 0:
		s.LosingTrades++
	}
	s.Profit += profitLoss
	decided := max(s.WinningTrades+s.LosingTrades, 1)
	s.SuccessRate = ClampSuccessRate(float64(s.WinningTrades) / float64(decided) * 100)
	s.UpdatedAt = now
}

// ClampSuccessRate bounds rate to the reported band.
func ClampSuccessRate(rate float64) float64 {
	return max(SuccessRateFloor, min(SuccessRateCeiling, rate))
}

// BotState is the lifecycle state of a user's bot.
type BotState string

const (
	BotStopped BotState = "stopped"
	BotRunning BotState = "running"
)

// BotSettings are the user-tunable bot parameters. StopLoss and TakeProfit
// are percentages of the entry price.
type BotSettings struct {
	StopLoss    float64 `json:"stop_loss"`
	TakeProfit  float64 `json:"take_profit"`
	TradeAmount float64 `json:"trade_amount"`
}

// DefaultBotSettings returns the settings a new bot starts with.
func DefaultBotSettings() BotSettings {
	return BotSettings{StopLoss: 2, TakeProfit: 5, TradeAmount: 1000}
}

// Validate checks the settings against minTradeAmount.
func (s BotSettings) Validate(minTradeAmount float64) error {
	if s.StopLoss < 0.1 {
		return fmt.Errorf("%w: stop_loss must be >= 0.1, got %v", ErrInvalidSettings, s.StopLoss)
	}
	if s.TakeProfit < 0.1 {
		return fmt.Errorf("%w: take_profit must be >= 0.1, got %v", ErrInvalidSettings, s.TakeProfit)
	}
	if s.TradeAmount <= 0 || s.TradeAmount < minTradeAmount {
		return fmt.Errorf("%w: trade_amount must be >= %v, got %v", ErrInvalidSettings, minTradeAmount, s.TradeAmount)
	}
	return nil
}

// RiskLevel is the user's self-declared appetite.
type RiskLevel string

const (
	RiskConservative RiskLevel = "Conservative"
	RiskModerate     RiskLevel = "Moderate"
	RiskAggressive   RiskLevel = "Aggressive"
)

// Valid reports whether l is a known risk level.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskConservative, RiskModerate, RiskAggressive:
		return true
	}
	return false
}

// BotStatus is a point-in-time view of one user's bot.
type BotStatus struct {
	UserID    string      `json:"user_id"`
	State     BotState    `json:"state"`
	Settings  BotSettings `json:"settings"`
	RiskLevel RiskLevel   `json:"risk_level"`
	Ticks     int64       `json:"ticks"`
	LastTick  *time.Time  `json:"last_tick,omitempty"`
	LastError string      `json:"last_error,omitempty"`
}

// Instrument is a tradable symbol in the catalog.
type Instrument struct {
	Symbol string `json:"symbol"`
	Label  string `json:"label"`
	Market Market `json:"market"`
}
