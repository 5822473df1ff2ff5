package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"risk", "--level", "Aggressive", "--balance", "10000", "--amount", "5000"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())

	var got struct {
		AmountAllowed bool    `json:"amount_allowed"`
		MaxAmount     float64 `json:"max_amount"`
		Metrics       struct {
			MaxPositionAmount float64 `json:"max_position_amount"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.False(t, got.AmountAllowed)
	assert.Equal(t, 4000.0, got.MaxAmount)
	assert.Equal(t, 4000.0, got.Metrics.MaxPositionAmount)
}

func TestRiskCommandUnknownLevel(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"risk", "--level", "reckless", "--amount", "0"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	assert.Error(t, rootCmd.Execute())
}
