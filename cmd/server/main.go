package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cryptotrader/pkg/crypto"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "cryptotrader",
		Short: "Risk control engine for leveraged futures positions",
		Long: `cryptotrader polls futures positions, evaluates margin, stop-loss and
trailing rules, closes positions that breach them and serves the HTTP API
with backtest runs, risk events and a WebSocket event stream.

Configuration is read from environment variables.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(genKeyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cryptotrader version %s\n", version)
		},
	}
}

// genKeyCmd печатает новый ключ API и его bcrypt хеш для API_KEY_HASH
func genKeyCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "gen-key",
		Short: "Generate an API key and its hash for API_KEY_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateAPIKey()
			if err != nil {
				return err
			}
			hash, err := crypto.HashAPIKeyWithCost(key, cost)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API key (shown once): %s\n", key)
			fmt.Fprintf(out, "API_KEY_HASH=%s\n", hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", crypto.DefaultCost, "bcrypt cost")
	return cmd
}
