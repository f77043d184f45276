package models

import "time"

// TradeAction - направление сделки
type TradeAction string

// Направления сделки
const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// TradeRecord представляет исполненную (симулированную) сделку
//
// Журнал сделок append-only, по одному списку на символ
type TradeRecord struct {
	Timestamp  time.Time   `json:"timestamp"`
	Symbol     string      `json:"symbol"`
	Action     TradeAction `json:"action"`
	Price      float64     `json:"price"`      // цена исполнения с учетом проскальзывания
	Amount     float64     `json:"amount"`     // объем в базовой валюте
	Commission float64     `json:"commission"` // комиссия в котируемой валюте
}

// Notional возвращает объем сделки в котируемой валюте
func (t TradeRecord) Notional() float64 {
	return t.Price * t.Amount
}
