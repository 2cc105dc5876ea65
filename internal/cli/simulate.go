package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulatePrice  string
	simulateChange string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-risk",
	Short: "模拟一次 SOL 价格波动并触发 Guardian 通知",
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimal.NewFromString(simulatePrice)
		if err != nil || !price.IsPositive() {
			return errors.New("--price 必须大于 0")
		}
		change, err := decimal.NewFromString(simulateChange)
		if err != nil {
			return errors.New("--change 必须是数字，例如 -12.5")
		}
		return getApp().SimulateRisk(cmd.Context(), price, change)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "150", "SOL 价格 (USD)")
	simulateCmd.Flags().StringVar(&simulateChange, "change", "-12", "24h 涨跌幅 (%)")
}
