package backtest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Scenario - описание прогона (YAML файл или HTTP запрос)
//
// Нулевые поля берутся из базовой конфигурации. Commission, Slippage и Seed
// заданы указателями: явный 0 отличается от отсутствия значения.
type Scenario struct {
	Symbols        []string       `json:"symbols" yaml:"symbols"`
	Timeframe      string         `json:"timeframe" yaml:"timeframe"`
	Start          time.Time      `json:"start" yaml:"start"`
	End            time.Time      `json:"end" yaml:"end"`
	InitialCapital float64        `json:"initial_capital" yaml:"initial_capital"`
	Commission     *float64       `json:"commission,omitempty" yaml:"commission"`
	Slippage       *float64       `json:"slippage,omitempty" yaml:"slippage"`
	Rebalance      string         `json:"rebalance" yaml:"rebalance"`
	Seed           *int64         `json:"seed,omitempty" yaml:"seed"`
	Strategy       *RSIMACDParams `json:"strategy,omitempty" yaml:"strategy"`
}

// DefaultTimeframe - таймфрейм свечей сценария по умолчанию
const DefaultTimeframe = "1h"

// Validate проверяет состав и интервал сценария
func (s *Scenario) Validate() error {
	if len(s.Symbols) == 0 {
		return errors.New("at least one symbol is required")
	}
	seen := make(map[string]bool, len(s.Symbols))
	for _, sym := range s.Symbols {
		if strings.TrimSpace(sym) == "" {
			return errors.New("empty symbol")
		}
		if seen[sym] {
			return fmt.Errorf("duplicate symbol %q", sym)
		}
		seen[sym] = true
	}
	if !s.Start.IsZero() && !s.End.IsZero() && !s.End.After(s.Start) {
		return fmt.Errorf("end %s must be after start %s", s.End.Format(time.RFC3339), s.Start.Format(time.RFC3339))
	}
	return nil
}

// Config накладывает сценарий на базовую конфигурацию и проверяет результат
func (s *Scenario) Config(base Config) (Config, error) {
	cfg := base
	if s.InitialCapital != 0 {
		cfg.InitialCapital = s.InitialCapital
	}
	if s.Commission != nil {
		cfg.Commission = *s.Commission
	}
	if s.Slippage != nil {
		cfg.Slippage = *s.Slippage
	}
	if s.Rebalance != "" {
		policy, err := ParseRebalancePolicy(s.Rebalance)
		if err != nil {
			return Config{}, err
		}
		cfg.Rebalance = policy
	}
	if s.Seed != nil {
		cfg.Seed = *s.Seed
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TimeframeOrDefault возвращает таймфрейм сценария
func (s *Scenario) TimeframeOrDefault() string {
	if s.Timeframe == "" {
		return DefaultTimeframe
	}
	return s.Timeframe
}

// NewSimulatorFor создает симулятор сценария с RSI+MACD и risk parity
func (s *Scenario) NewSimulatorFor(base Config, logger *zap.Logger) (*Simulator, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	cfg, err := s.Config(base)
	if err != nil {
		return nil, err
	}
	params := DefaultRSIMACDParams()
	if s.Strategy != nil {
		params = *s.Strategy
	}
	return NewSimulator(cfg, NewRSIMACDStrategy(params), NewRiskParityAllocator(), logger)
}
