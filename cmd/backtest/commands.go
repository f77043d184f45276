package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cryptotrader/internal/backtest"
	"cryptotrader/internal/config"
	"cryptotrader/internal/marketdata"
	"cryptotrader/internal/models"
	"cryptotrader/internal/repository"
	"cryptotrader/internal/service"
	"cryptotrader/pkg/utils"
)

func newLogger() *zap.Logger {
	level := "info"
	if verbose {
		level = "debug"
	}
	return utils.InitGlobalLogger(utils.LogConfig{Level: level, Format: "console"}).Logger
}

// openStore открывает хранилище отчетов при --persist
func openStore(cfg *config.Config) (*sql.DB, *repository.BacktestRepository, error) {
	if !persist {
		return nil, nil, nil
	}
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, repository.NewBacktestRepository(db), nil
}

func runCmd() *cobra.Command {
	var (
		scenarioPath string
		dataDir      string
		outputDir    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario file",
		Example: `  backtest run --scenario scenarios/majors.yaml
  backtest run -s majors.yaml --data ./data --out ./reports --persist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			defer func() { _ = logger.Sync() }()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			base, err := cfg.Backtest.Config()
			if err != nil {
				return err
			}

			file, err := config.LoadBacktestFile(scenarioPath)
			if err != nil {
				return err
			}
			if err := file.Validate(base); err != nil {
				return err
			}
			if dataDir != "" {
				file.DataDir = dataDir
			}
			if outputDir != "" {
				file.OutputDir = outputDir
			}

			db, store, err := openStore(cfg)
			if err != nil {
				return err
			}
			var reports service.BacktestRepositoryInterface
			if store != nil {
				defer db.Close()
				reports = store
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc := service.NewBacktestService(base, marketdata.NewCSVSource(file.DataDir), reports, logger)
			report, err := svc.Run(ctx, service.BacktestRequest{Scenario: file.Scenario})
			if err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), report)

			if file.OutputDir != "" {
				dir, err := backtest.ExportReport(file.OutputDir, report)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nreport written to %s\n", dir)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "Scenario YAML file")
	cmd.Flags().StringVar(&dataDir, "data", "", "CSV bar directory (overrides data_dir)")
	cmd.Flags().StringVar(&outputDir, "out", "", "Export directory (overrides output_dir)")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func listCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs (requires --persist)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := requireStore()
			if err != nil {
				return err
			}
			defer closeFn()

			runs, err := store.List(limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	return cmd
}

func showCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored report (requires --persist)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := requireStore()
			if err != nil {
				return err
			}
			defer closeFn()

			report, err := store.GetByID(args[0])
			if err != nil {
				if errors.Is(err, repository.ErrBacktestNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				return err
			}
			printReport(cmd.OutOrStdout(), report)

			if outputDir != "" {
				dir, err := backtest.ExportReport(outputDir, report)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nreport written to %s\n", dir)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outputDir, "out", "", "Export directory")
	return cmd
}

func requireStore() (*repository.BacktestRepository, func(), error) {
	if !persist {
		return nil, nil, errors.New("report store is disabled, pass --persist")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

// printReport печатает сводку отчета таблицей
func printReport(w io.Writer, r *models.BacktestReport) {
	fmt.Fprintf(w, "run:        %s (%s)\n", r.RunID, r.Status)
	fmt.Fprintf(w, "period:     %s .. %s\n", r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "capital:    %.2f -> %.2f (%+.2f%%)\n", r.Portfolio.InitialCapital, r.Portfolio.FinalValue, r.Portfolio.Return*100)
	fmt.Fprintf(w, "fees:       %.4f\n", r.Portfolio.Fees)
	fmt.Fprintf(w, "rebalances: %d, skipped trades: %d\n\n", r.Rebalances, r.SkippedTrades)

	symbols := make([]string, 0, len(r.Symbols))
	for s := range r.Symbols {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tWEIGHT\tTRADES\tRETURN\tWIN RATE")
	for _, s := range symbols {
		m := r.Symbols[s]
		fmt.Fprintf(tw, "%s\t%.3f\t%d\t%+.2f%%\t%.1f%%\n",
			s, r.Portfolio.SymbolWeights[s], m.Trades, m.TotalReturn*100, m.WinRate*100)
	}
	_ = tw.Flush()
}

func printRuns(w io.Writer, runs []models.BacktestSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tCREATED\tINITIAL\tFINAL\tRETURN")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.2f\t%+.2f%%\n",
			r.RunID, r.Status, r.CreatedAt.UTC().Format(time.RFC3339), r.InitialCapital, r.FinalValue, r.Return*100)
	}
	_ = tw.Flush()
}
