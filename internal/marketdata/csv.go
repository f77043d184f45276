// Package marketdata - источники исторических свечей для бэктеста и мониторинга.
package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cryptotrader/internal/models"
)

// ErrNoData - файл свечей для символа не найден
var ErrNoData = errors.New("no bar data for symbol")

// CSVSource читает свечи из файлов <dir>/<BASEQUOTE>_<timeframe>.csv
//
// Формат строки: timestamp,open,high,low,close,volume. timestamp в миллисекундах
// unix или RFC3339. Первая строка может быть заголовком.
type CSVSource struct {
	dir string
}

// NewCSVSource создает источник над каталогом
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

// Path возвращает путь к файлу символа
func (s *CSVSource) Path(symbol, timeframe string) string {
	name := strings.ReplaceAll(symbol, "/", "") + "_" + timeframe + ".csv"
	return filepath.Join(s.dir, name)
}

// FetchBars реализует exchange.MarketData
//
// Нулевые start/end означают отсутствие границы.
func (s *CSVSource) FetchBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Bar, error) {
	path := s.Path(symbol, timeframe)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrNoData, symbol, path)
		}
		return nil, err
	}
	defer f.Close()

	return ReadBars(ctx, f, symbol, start, end)
}

// LoadAll читает свечи всех символов
func (s *CSVSource) LoadAll(ctx context.Context, symbols []string, timeframe string, start, end time.Time) (map[string][]models.Bar, error) {
	out := make(map[string][]models.Bar, len(symbols))
	for _, symbol := range symbols {
		bars, err := s.FetchBars(ctx, symbol, timeframe, start, end)
		if err != nil {
			return nil, err
		}
		out[symbol] = bars
	}
	return out, nil
}

// ReadBars разбирает CSV поток свечей одного символа
func ReadBars(ctx context.Context, r io.Reader, symbol string, start, end time.Time) ([]models.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var bars []models.Bar
	line := 0
	for {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", symbol, line+1, err)
		}
		line++

		if len(record) < 6 {
			return nil, fmt.Errorf("%s: line %d: expected 6 columns, got %d", symbol, line, len(record))
		}
		ts, err := parseTimestamp(record[0])
		if err != nil {
			if line == 1 {
				continue // заголовок
			}
			return nil, fmt.Errorf("%s: line %d: %w", symbol, line, err)
		}

		var vals [5]float64
		for i := range vals {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("%s: line %d: column %d: %w", symbol, line, i+2, err)
			}
			vals[i] = v
		}

		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return bars, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", raw)
	}
	return t.UTC(), nil
}

// WriteBars пишет свечи в CSV (timestamp в миллисекундах)
func WriteBars(w io.Writer, bars []models.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			strconv.FormatInt(b.Timestamp.UnixMilli(), 10),
			formatF(b.Open), formatF(b.High), formatF(b.Low), formatF(b.Close), formatF(b.Volume),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
