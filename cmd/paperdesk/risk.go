package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/paperdesk/internal/domain"
	"github.com/alanyoungcy/paperdesk/internal/risk"
)

var (
	riskLevel   string
	riskBalance float64
	riskAmount  float64
)

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Evaluate a risk preset against a balance",
	Long: `Risk prints the limits a preset allows for a balance, and whether an
amount fits within the maximum position size.

Example:
  paperdesk risk --level Aggressive --balance 10000 --amount 3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := risk.Preset(domain.RiskLevel(riskLevel))
		if err != nil {
			return err
		}
		metrics, err := risk.Evaluate(riskBalance, settings)
		if err != nil {
			return err
		}

		out := map[string]any{
			"risk_level": riskLevel,
			"balance":    riskBalance,
			"settings":   settings,
			"metrics":    metrics,
		}
		if riskAmount > 0 {
			ok, maxAmt := risk.CheckPosition(riskBalance, riskAmount, settings)
			out["amount"] = riskAmount
			out["amount_allowed"] = ok
			out["max_amount"] = maxAmt
		}

		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return nil
	},
}

func init() {
	riskCmd.Flags().StringVarP(&riskLevel, "level", "l", string(domain.RiskModerate), "risk level (Conservative, Moderate, Aggressive)")
	riskCmd.Flags().Float64VarP(&riskBalance, "balance", "b", 10000, "account balance")
	riskCmd.Flags().Float64VarP(&riskAmount, "amount", "a", 0, "position amount to check")
	rootCmd.AddCommand(riskCmd)
}
