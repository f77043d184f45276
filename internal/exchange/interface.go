package exchange

import (
	"context"
	"time"

	"cryptotrader/internal/models"
)

// MarketData - источник исторических свечей
type MarketData interface {
	// FetchBars возвращает упорядоченные по времени свечи в интервале [start, end]
	FetchBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Bar, error)
}

// Executor - исполнитель торговых команд на фьючерсном аккаунте
type Executor interface {
	// PlaceOrder размещает рыночный ордер; reduceOnly запрещает увеличение позиции
	PlaceOrder(ctx context.Context, symbol, side string, amount float64, reduceOnly bool) (*OrderResult, error)

	// FetchPositions возвращает позиции символа в hedge-режиме
	FetchPositions(ctx context.Context, symbol string) (*HedgePositions, error)

	// SetLeverage устанавливает плечо символа
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// Exchange объединяет рыночные данные и исполнение
type Exchange interface {
	MarketData
	Executor

	// GetName возвращает имя биржи
	GetName() string
}

// OrderResult - результат размещения ордера
type OrderResult struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"` // buy, sell
	Amount       float64   `json:"amount"`
	FilledAmount float64   `json:"filled_amount"`
	AvgPrice     float64   `json:"avg_price"`
	Fee          float64   `json:"fee"`
	ReduceOnly   bool      `json:"reduce_only"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// HedgePositions - позиции символа по направлениям (nil = нет позиции)
type HedgePositions struct {
	Long  *models.Position `json:"long,omitempty"`
	Short *models.Position `json:"short,omitempty"`
}

// All возвращает непустые позиции: сначала long, затем short
func (h *HedgePositions) All() []*models.Position {
	if h == nil {
		return nil
	}
	out := make([]*models.Position, 0, 2)
	if h.Long != nil {
		out = append(out, h.Long)
	}
	if h.Short != nil {
		out = append(out, h.Short)
	}
	return out
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange  string
	Code      string
	Message   string
	Original  error
	Permanent bool // отказ биржи, повтор не поможет
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return e.Exchange + ": [" + e.Code + "] " + e.Message
	}
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Retryable сообщает retry-логике, стоит ли повторять запрос
func (e *ExchangeError) Retryable() bool {
	return !e.Permanent
}

// Side constants for orders
const (
	SideBuy  = "buy"  // покупка (открытие long или закрытие short)
	SideSell = "sell" // продажа (открытие short или закрытие long)
)

// Order status constants
const (
	OrderStatusFilled    = "filled"
	OrderStatusPartial   = "partial"
	OrderStatusCancelled = "cancelled"
	OrderStatusRejected  = "rejected"
)

// CloseSide возвращает сторону ордера, закрывающего позицию
func CloseSide(side models.PositionSide) string {
	if side == models.SideShort {
		return SideBuy
	}
	return SideSell
}
