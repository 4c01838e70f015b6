package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pump-radar/internal/app"
	"pump-radar/internal/timeframe"
)

var (
	showSymbol    string
	showTimeframe string
	showLimit     int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent rollup rows for a symbol",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showSymbol == "" {
			return fmt.Errorf("--symbol is required")
		}
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		tf, err := timeframe.Parse(showTimeframe)
		if err != nil {
			return err
		}

		opts := app.ShowOptions{
			Symbol:    strings.ToUpper(showSymbol),
			Timeframe: tf,
			Limit:     showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showSymbol, "symbol", "", "Trading pair, e.g. BTCUSDT")
	showCmd.Flags().StringVar(&showTimeframe, "timeframe", "5m", "Rollup timeframe (5m, 15m, 30m, 1h, 4h, 1d)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
}
