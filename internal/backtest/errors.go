package backtest

import (
	"errors"
	"fmt"
	"time"

	"cryptotrader/internal/models"
)

// ErrAlreadyRun возвращается при повторном запуске симулятора
var ErrAlreadyRun = errors.New("simulator already started")

// DataError - пустой или несогласованный ряд свечей; прерывает прогон
type DataError struct {
	Symbol    string
	Timestamp time.Time // нулевое значение, если ошибка не привязана ко времени
	Reason    string
}

func (e *DataError) Error() string {
	if e.Timestamp.IsZero() {
		return fmt.Sprintf("data error [%s]: %s", e.Symbol, e.Reason)
	}
	return fmt.Sprintf("data error [%s @ %s]: %s", e.Symbol, e.Timestamp.UTC().Format(time.RFC3339), e.Reason)
}

// AllocationError - вырожденный расчет весов; прерывает прогон
type AllocationError struct {
	Reason string
}

func (e *AllocationError) Error() string {
	return "allocation error: " + e.Reason
}

// TradeRejected - сделка увела бы баланс ниже допуска; пропускается
type TradeRejected struct {
	Symbol    string
	Timestamp time.Time
	Action    models.TradeAction
	Asset     string
	Balance   float64 // баланс актива после сделки
	Reason    string
}

func (e *TradeRejected) Error() string {
	return fmt.Sprintf("trade rejected [%s %s @ %s]: %s (%s balance would be %.8f)",
		e.Symbol, e.Action, e.Timestamp.UTC().Format(time.RFC3339), e.Reason, e.Asset, e.Balance)
}

// IsDataError проверяет, является ли ошибка DataError
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

// IsAllocationError проверяет, является ли ошибка AllocationError
func IsAllocationError(err error) bool {
	var ae *AllocationError
	return errors.As(err, &ae)
}
