package domain

import (
	"fmt"
	"strings"
	"time"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// PositionType is the trade direction.
type PositionType string

const (
	PositionLong  PositionType = "long"
	PositionShort PositionType = "short"
)

// Valid reports whether t is a known direction.
func (t PositionType) Valid() bool {
	return t == PositionLong || t == PositionShort
}

// Sign returns +1 for long and -1 for short.
func (t PositionType) Sign() float64 {
	if t == PositionShort {
		return -1
	}
	return 1
}

// Market is the instrument category a position trades in.
type Market string

const (
	MarketStocks      Market = "stocks"
	MarketCrypto      Market = "crypto"
	MarketCommodities Market = "commodities"
)

// Markets lists every market in catalog order.
var Markets = []Market{MarketStocks, MarketCrypto, MarketCommodities}

// Valid reports whether m is a known market.
func (m Market) Valid() bool {
	switch m {
	case MarketStocks, MarketCrypto, MarketCommodities:
		return true
	}
	return false
}

// ParseMarket normalises s into a Market.
func ParseMarket(s string) (Market, error) {
	m := Market(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown market %q", ErrInvalidPosition, s)
	}
	return m, nil
}

// Position is a simulated trade held by one account on one instrument.
// Once Status is closed the record is immutable.
type Position struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Symbol       string         `json:"symbol"`
	Amount       float64        `json:"amount"`
	EntryPrice   float64        `json:"entry_price"`
	CurrentPrice float64        `json:"current_price"`
	StopLoss     float64        `json:"stop_loss"`
	TakeProfit   float64        `json:"take_profit"`
	Type         PositionType   `json:"type"`
	Status       PositionStatus `json:"status"`
	Market       Market         `json:"market"`
	CreatedAt    time.Time      `json:"created_at"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
	ExitPrice    *float64       `json:"exit_price,omitempty"`
	ProfitLoss   *float64       `json:"profit_loss,omitempty"`
}

// IsOpen reports whether the position can still be closed.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// OpenRequest carries the caller-supplied parameters for opening a position.
// StopLossPct and TakeProfitPct are percentages of the entry price; zero
// means "use the configured default".
type OpenRequest struct {
	UserID        string       `json:"user_id"`
	Symbol        string       `json:"symbol"`
	Amount        float64      `json:"amount"`
	Type          PositionType `json:"type"`
	Market        Market       `json:"market"`
	StopLossPct   float64      `json:"stop_loss_pct,omitempty"`
	TakeProfitPct float64      `json:"take_profit_pct,omitempty"`
}

// Settlement is the outcome of a close, applied atomically together with the
// balance credit.
type Settlement struct {
	PositionID string
	UserID     string
	ExitPrice  float64
	ProfitLoss float64
	ClosedAt   time.Time
}

// Credit is the amount returned to the account when the position settles.
func (s Settlement) Credit(amount float64) float64 {
	return amount + s.ProfitLoss
}

// ProtectiveLevels converts stop-loss and take-profit percentages into price
// levels around entry for the given direction.
func ProtectiveLevels(entry float64, t PositionType, stopLossPct, takeProfitPct float64) (stopLoss, takeProfit float64) {
	if t == PositionShort {
		return entry * (1 + stopLossPct/100), entry * (1 - takeProfitPct/100)
	}
	return entry * (1 - stopLossPct/100), entry * (1 + takeProfitPct/100)
}

// Position event names published on ChannelPositions.
const (
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
)

// PositionEvent is the bus payload for a position lifecycle change. Balance is
// the account balance after the change.
type PositionEvent struct {
	Event    string    `json:"event"`
	UserID   string    `json:"user_id"`
	Position Position  `json:"position"`
	Balance  float64   `json:"balance"`
	At       time.Time `json:"at"`
}
