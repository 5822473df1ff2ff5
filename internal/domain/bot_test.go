package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBotStatsSuccessRateStaysInBand(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sequences := map[string][]float64{
		"all wins":    {10, 20, 30, 40},
		"all losses":  {-10, -20, -30},
		"mixed":       {10, -5, 10, -5, -5, -5, 10},
		"flat only":   {0, 0},
		"single loss": {-1},
	}

	for name, pls := range sequences {
		t.Run(name, func(t *testing.T) {
			s := NewBotStats("u1", now)
			assert.Equal(t, SuccessRateInitial, s.SuccessRate)
			for _, pl := range pls {
				s.RecordClose(pl, now)
				assert.GreaterOrEqual(t, s.SuccessRate, SuccessRateFloor)
				assert.LessOrEqual(t, s.SuccessRate, SuccessRateCeiling)
			}
		})
	}
}

func TestBotStatsRecordClose(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewBotStats("u1", now)

	s.RecordClose(50, now)
	s.RecordClose(-20, now)
	s.RecordClose(0, now)

	assert.Equal(t, int64(1), s.WinningTrades)
	assert.Equal(t, int64(1), s.LosingTrades)
	assert.InDelta(t, 30.0, s.Profit, 1e-9)
	// 50% raw rate clamps to the floor.
	assert.Equal(t, SuccessRateFloor, s.SuccessRate)

	// A flat first close has no wins, so the rate drops to the floor.
	flat := NewBotStats("u2", now)
	flat.RecordClose(0, now)
	assert.Equal(t, int64(0), flat.WinningTrades+flat.LosingTrades)
	assert.Equal(t, SuccessRateFloor, flat.SuccessRate)
}

func TestBotStatsDailyRollover(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Minute)

	s := NewBotStats("u1", day1)
	s.RecordOpen(day1)
	s.RecordOpen(day1)
	assert.Equal(t, int64(2), s.DailyTrades)

	s.RecordOpen(day2)
	assert.Equal(t, int64(3), s.TotalTrades)
	assert.Equal(t, int64(1), s.DailyTrades)
	assert.Equal(t, "2025-03-02", s.Day)
}

func TestBotSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		s       BotSettings
		wantErr bool
	}{
		{"defaults", DefaultBotSettings(), false},
		{"tiny stop loss", BotSettings{StopLoss: 0.05, TakeProfit: 5, TradeAmount: 1000}, true},
		{"zero take profit", BotSettings{StopLoss: 2, TakeProfit: 0, TradeAmount: 1000}, true},
		{"below min amount", BotSettings{StopLoss: 2, TakeProfit: 5, TradeAmount: 50}, true},
		{"at min amount", BotSettings{StopLoss: 2, TakeProfit: 5, TradeAmount: 100}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.s.Validate(100)
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidSettings), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProtectiveLevels(t *testing.T) {
	sl, tp := ProtectiveLevels(100, PositionLong, 2, 5)
	assert.InDelta(t, 98.0, sl, 1e-9)
	assert.InDelta(t, 105.0, tp, 1e-9)

	sl, tp = ProtectiveLevels(100, PositionShort, 2, 5)
	assert.InDelta(t, 102.0, sl, 1e-9)
	assert.InDelta(t, 95.0, tp, 1e-9)
}

func TestParseMarket(t *testing.T) {
	m, err := ParseMarket(" Crypto ")
	assert.NoError(t, err)
	assert.Equal(t, MarketCrypto, m)

	_, err = ParseMarket("forex")
	assert.ErrorIs(t, err, ErrInvalidPosition)
}
