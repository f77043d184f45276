package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"cryptotrader/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Имена файлов экспорта в каталоге прогона
const (
	ReportFile = "report.json"
	TradesFile = "trades.csv"
	EquityFile = "equity.csv"
)

// WriteTradesCSV пишет сделки всех символов в хронологическом порядке
func WriteTradesCSV(w io.Writer, report *models.BacktestReport) error {
	var trades []models.TradeRecord
	for _, ts := range report.Trades {
		trades = append(trades, ts...)
	}
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Timestamp.Equal(trades[j].Timestamp) {
			return trades[i].Symbol < trades[j].Symbol
		}
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "symbol", "action", "price", "amount", "commission"}); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write([]string{
			t.Timestamp.UTC().Format(time.RFC3339),
			t.Symbol,
			string(t.Action),
			formatFloat(t.Price),
			formatFloat(t.Amount),
			formatFloat(t.Commission),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV пишет кривую капитала
func WriteEquityCSV(w io.Writer, report *models.BacktestReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "value"}); err != nil {
		return err
	}
	for _, p := range report.EquityCurve {
		if err := cw.Write([]string{p.Timestamp.UTC().Format(time.RFC3339), formatFloat(p.Value)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportReport сохраняет отчет в dir/<run_id>/ и возвращает путь каталога
func ExportReport(dir string, report *models.BacktestReport) (string, error) {
	if report == nil || report.RunID == "" {
		return "", fmt.Errorf("export: report without run id")
	}
	runDir := filepath.Join(dir, report.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}

	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, ReportFile), raw, 0o644); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}

	writers := []struct {
		name  string
		write func(io.Writer, *models.BacktestReport) error
	}{
		{TradesFile, WriteTradesCSV},
		{EquityFile, WriteEquityCSV},
	}
	for _, wr := range writers {
		if err := writeFile(filepath.Join(runDir, wr.name), report, wr.write); err != nil {
			return "", fmt.Errorf("export %s: %w", wr.name, err)
		}
	}
	return runDir, nil
}

func writeFile(path string, report *models.BacktestReport, write func(io.Writer, *models.BacktestReport) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
