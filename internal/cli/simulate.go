package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"pump-radar/internal/app"
)

var (
	simulateSymbol      string
	simulateChangePct   float64
	simulatePrice       float64
	simulateWhaleSide   string
	simulateWhaleAmount float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic alert to verify webhook delivery",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateSymbol == "" {
			return errors.New("--symbol is required")
		}
		if simulateWhaleSide != "" && simulateWhaleSide != "buy" && simulateWhaleSide != "sell" {
			return errors.New("--whale-side must be buy or sell")
		}

		opts := app.SimulateOptions{
			Symbol:         strings.ToUpper(simulateSymbol),
			PriceChangePct: simulateChangePct,
			CurrentPrice:   simulatePrice,
			WhaleSide:      simulateWhaleSide,
			WhaleAmount:    simulateWhaleAmount,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSymbol, "symbol", "", "Trading pair, e.g. BTCUSDT")
	simulateCmd.Flags().Float64Var(&simulateChangePct, "change-pct", 5.0, "Simulated price change percent (negative for dump)")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Current price (0 looks up the live ticker)")
	simulateCmd.Flags().StringVar(&simulateWhaleSide, "whale-side", "", "Attach whale activity: buy or sell")
	simulateCmd.Flags().Float64Var(&simulateWhaleAmount, "whale-amount", 0, "Whale order size in base units")
}
