package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	persist bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run portfolio backtests over CSV bar data",
		Long: `backtest replays a YAML scenario over historical bars with the RSI+MACD
strategy and risk parity allocation, then prints the report summary and
exports trades and the equity curve.

Base portfolio settings (commission, slippage, rebalance) come from the
BACKTEST_* environment variables and are overridden by the scenario file.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&persist, "persist", false, "Use the postgres report store (DB_* env vars)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
