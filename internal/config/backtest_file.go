package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"cryptotrader/internal/backtest"
)

// DefaultDataDir - каталог CSV свечей по умолчанию
const DefaultDataDir = "./data"

// BacktestFile - YAML файл сценария для cmd/backtest
//
//	symbols: [BTC/USDT, ETH/USDT]
//	timeframe: 1d
//	start: 2024-01-01T00:00:00Z
//	end: 2024-06-01T00:00:00Z
//	initial_capital: 10000
//	commission: 0.0005
//	rebalance: weekly
//	data_dir: ./data
//	strategy:
//	  rsi_period: 14
type BacktestFile struct {
	backtest.Scenario `yaml:",inline"`

	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"` // CSV сделок и кривой капитала; пусто = не писать
}

// LoadBacktestFile читает и проверяет файл сценария
func LoadBacktestFile(path string) (*BacktestFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	return ParseBacktestFile(raw)
}

// ParseBacktestFile разбирает YAML сценария; неизвестные поля считаются ошибкой
func ParseBacktestFile(raw []byte) (*BacktestFile, error) {
	var f BacktestFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, configErr("scenario", "empty file")
		}
		return nil, configErr("scenario", "%v", err)
	}
	if f.DataDir == "" {
		f.DataDir = DefaultDataDir
	}
	if err := f.Validate(backtest.DefaultConfig()); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate проверяет сценарий поверх базовой конфигурации
func (f *BacktestFile) Validate(base backtest.Config) error {
	if err := f.Scenario.Validate(); err != nil {
		return configErr("scenario", "%v", err)
	}
	if _, err := f.Scenario.Config(base); err != nil {
		return configErr("scenario", "%v", err)
	}
	return nil
}
