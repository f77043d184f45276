package models

import "time"

// Notification представляет уведомление о событии риск-контроля
type Notification struct {
	ID        int                    `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`         // MARGIN_CALL, AUTO_LIQUIDATE, STOP_LOSS, LEVERAGE, ERROR
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	Symbol    string                 `json:"symbol" db:"symbol"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeMarginCall    = "MARGIN_CALL"    // маржа ниже порога margin call
	NotificationTypeAutoLiquidate = "AUTO_LIQUIDATE" // маржа ниже порога авто-ликвидации
	NotificationTypeStopLoss      = "STOP_LOSS"      // цена пересекла трейлинг-стоп
	NotificationTypeLeverage      = "LEVERAGE"       // изменение плеча
	NotificationTypeError         = "ERROR"          // ошибка биржи/оценки
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// NotificationTypeForVerdict возвращает тип уведомления для вердикта
func NotificationTypeForVerdict(v RiskVerdict) string {
	switch v {
	case VerdictMarginCall:
		return NotificationTypeMarginCall
	case VerdictAutoLiquidate:
		return NotificationTypeAutoLiquidate
	case VerdictStopLossHit:
		return NotificationTypeStopLoss
	default:
		return NotificationTypeError
	}
}
