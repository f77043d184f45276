package backtest

import (
	"cryptotrader/internal/indicators"
	"cryptotrader/internal/models"
)

// Signal - торговый сигнал стратегии
type Signal struct {
	Action models.TradeAction
	Price  float64 // 0 = цена закрытия свечи
}

// Strategy выдает сигнал по символу на шаге шкалы
//
// history содержит свечи символа до текущей включительно и не должен изменяться.
type Strategy interface {
	Signal(symbol string, bar models.Bar, history []models.Bar) (Signal, bool)
}

// StrategyFunc - адаптер функции к интерфейсу Strategy
type StrategyFunc func(symbol string, bar models.Bar, history []models.Bar) (Signal, bool)

// Signal вызывает f
func (f StrategyFunc) Signal(symbol string, bar models.Bar, history []models.Bar) (Signal, bool) {
	return f(symbol, bar, history)
}

// RSIMACDParams - параметры стратегии RSI+MACD
type RSIMACDParams struct {
	RSIPeriod  int     `json:"rsi_period" yaml:"rsi_period"`
	Oversold   float64 `json:"oversold" yaml:"oversold"`
	Overbought float64 `json:"overbought" yaml:"overbought"`
	FastPeriod int     `json:"fast_period" yaml:"fast_period"`
	SlowPeriod int     `json:"slow_period" yaml:"slow_period"`
}

// DefaultRSIMACDParams возвращает классические параметры 14 / 30-70 / 12-26
func DefaultRSIMACDParams() RSIMACDParams {
	return RSIMACDParams{
		RSIPeriod:  14,
		Oversold:   30,
		Overbought: 70,
		FastPeriod: 12,
		SlowPeriod: 26,
	}
}

// RSIMACDStrategy покупает при перепроданности с положительным MACD
// и продает при перекупленности с отрицательным MACD
type RSIMACDStrategy struct {
	params RSIMACDParams
}

// NewRSIMACDStrategy создает стратегию; нулевые поля заменяются значениями по умолчанию
func NewRSIMACDStrategy(params RSIMACDParams) *RSIMACDStrategy {
	def := DefaultRSIMACDParams()
	if params.RSIPeriod <= 0 {
		params.RSIPeriod = def.RSIPeriod
	}
	if params.Oversold <= 0 {
		params.Oversold = def.Oversold
	}
	if params.Overbought <= 0 {
		params.Overbought = def.Overbought
	}
	if params.FastPeriod <= 0 {
		params.FastPeriod = def.FastPeriod
	}
	if params.SlowPeriod <= 0 {
		params.SlowPeriod = def.SlowPeriod
	}
	return &RSIMACDStrategy{params: params}
}

// Params возвращает действующие параметры
func (s *RSIMACDStrategy) Params() RSIMACDParams {
	return s.params
}

// window - число последних свечей, от которых зависит сигнал
func (s *RSIMACDStrategy) window() int {
	need := s.params.SlowPeriod
	if s.params.FastPeriod > need {
		need = s.params.FastPeriod
	}
	if s.params.RSIPeriod+1 > need {
		need = s.params.RSIPeriod + 1
	}
	return need
}

// Signal реализует Strategy
func (s *RSIMACDStrategy) Signal(symbol string, bar models.Bar, history []models.Bar) (Signal, bool) {
	need := s.window()
	if len(history) < need {
		return Signal{}, false
	}

	// индикаторы читают только хвост ряда
	tail := history[len(history)-need:]
	closes := make([]float64, len(tail))
	for i, b := range tail {
		closes[i] = b.Close
	}

	rsi, ok := indicators.RSI(closes, s.params.RSIPeriod)
	if !ok {
		return Signal{}, false
	}
	macd, ok := indicators.MACDLine(closes, s.params.FastPeriod, s.params.SlowPeriod)
	if !ok {
		return Signal{}, false
	}

	switch {
	case rsi < s.params.Oversold && macd > 0:
		return Signal{Action: models.ActionBuy, Price: bar.Close}, true
	case rsi > s.params.Overbought && macd < 0:
		return Signal{Action: models.ActionSell, Price: bar.Close}, true
	}
	return Signal{}, false
}
