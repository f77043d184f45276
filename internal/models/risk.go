package models

import (
	"fmt"
	"math"
	"time"
)

// RiskThresholds - пороги риск-контроля
//
// Загружаются один раз при старте и не меняются во время работы
type RiskThresholds struct {
	MarginCallRatio         float64 `json:"margin_call_ratio" yaml:"margin_call_ratio"`
	AutoLiquidationRatio    float64 `json:"auto_liquidation_ratio" yaml:"auto_liquidation_ratio"`
	InitialStopRisk         float64 `json:"initial_stop_risk" yaml:"initial_stop_risk"`
	TrailingActivationRatio float64 `json:"trailing_activation_ratio" yaml:"trailing_activation_ratio"`
	MinTrailDistance        float64 `json:"min_trail_distance" yaml:"min_trail_distance"`
}

// DefaultRiskThresholds возвращает пороги по умолчанию
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{
		MarginCallRatio:         0.1,
		AutoLiquidationRatio:    0.05,
		InitialStopRisk:         0.02,
		TrailingActivationRatio: 0.5,
		MinTrailDistance:        0.01,
	}
}

// Validate проверяет согласованность порогов
func (t RiskThresholds) Validate() error {
	if !(t.AutoLiquidationRatio > 0) {
		return fmt.Errorf("auto liquidation ratio must be positive, got %v", t.AutoLiquidationRatio)
	}
	if !(t.AutoLiquidationRatio < t.MarginCallRatio) {
		return fmt.Errorf("auto liquidation ratio %v must be below margin call ratio %v",
			t.AutoLiquidationRatio, t.MarginCallRatio)
	}
	if !(t.MarginCallRatio < 1) {
		return fmt.Errorf("margin call ratio must be below 1, got %v", t.MarginCallRatio)
	}
	if !(t.InitialStopRisk > 0 && t.InitialStopRisk < 1) {
		return fmt.Errorf("initial stop risk must be in (0,1), got %v", t.InitialStopRisk)
	}
	if !(t.TrailingActivationRatio > 0) || math.IsInf(t.TrailingActivationRatio, 0) {
		return fmt.Errorf("trailing activation ratio must be positive, got %v", t.TrailingActivationRatio)
	}
	if !(t.MinTrailDistance >= 0 && t.MinTrailDistance < 1) {
		return fmt.Errorf("min trail distance must be in [0,1), got %v", t.MinTrailDistance)
	}
	return nil
}

// RiskVerdict - результат проверки позиции
type RiskVerdict string

// Вердикты риск-монитора
const (
	VerdictNone          RiskVerdict = "none"
	VerdictMarginCall    RiskVerdict = "margin_call"
	VerdictAutoLiquidate RiskVerdict = "auto_liquidate"
	VerdictStopLossHit   RiskVerdict = "stop_loss_hit"
)

// IsActionable возвращает true если вердикт требует закрытия позиции
func (v RiskVerdict) IsActionable() bool {
	return v == VerdictAutoLiquidate || v == VerdictStopLossHit
}

// RiskEvent - событие риск-контроля для доставки уведомлений
type RiskEvent struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Verdict     RiskVerdict `json:"verdict"`
	Position    Position    `json:"position"`
	MarginRatio float64     `json:"margin_ratio"`
	StopPrice   float64     `json:"stop_price"`
	Timestamp   time.Time   `json:"timestamp"`
	Error       string      `json:"error,omitempty"` // ошибка коллаборатора (биржи)
}

// Severity возвращает уровень важности события для уведомлений
func (e RiskEvent) Severity() string {
	switch {
	case e.Error != "":
		return SeverityError
	case e.Verdict == VerdictAutoLiquidate || e.Verdict == VerdictStopLossHit:
		return SeverityError
	case e.Verdict == VerdictMarginCall:
		return SeverityWarn
	default:
		return SeverityInfo
	}
}

// LeverageCommand - команда изменения плеча для исполнителя
type LeverageCommand struct {
	Symbol           string    `json:"symbol"`
	NewLeverage      int       `json:"new_leverage"`
	PreviousLeverage int       `json:"previous_leverage"`
	Volatility       float64   `json:"volatility"`
	IssuedAt         time.Time `json:"issued_at"`
}
