package models

import "time"

// OrderRecord представляет запись об ордере, выставленном риск-контролем
type OrderRecord struct {
	ID           int       `json:"id" db:"id"`
	ExternalID   string    `json:"external_id" db:"external_id"` // ID ордера на бирже
	Exchange     string    `json:"exchange" db:"exchange"`
	Symbol       string    `json:"symbol" db:"symbol"`
	Side         string    `json:"side" db:"side"` // buy, sell
	Amount       float64   `json:"amount" db:"amount"`
	FilledAmount float64   `json:"filled_amount" db:"filled_amount"`
	AvgPrice     float64   `json:"avg_price" db:"avg_price"`
	Fee          float64   `json:"fee" db:"fee"`
	ReduceOnly   bool      `json:"reduce_only" db:"reduce_only"`
	Reason       string    `json:"reason" db:"reason"` // вердикт, вызвавший ордер
	Status       string    `json:"status" db:"status"` // filled, partial, failed
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Статусы записи ордера
const (
	OrderStatusFilled  = "filled"
	OrderStatusPartial = "partial"
	OrderStatusFailed  = "failed"
)
