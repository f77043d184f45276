package models

import (
	"strings"
	"time"
)

// Bar представляет одну OHLCV свечу символа на таймфрейме
//
// Значение неизменяемо после создания, последовательности упорядочены по Timestamp
type Bar struct {
	Symbol    string    `json:"symbol"`    // BTC/USDT
	Timestamp time.Time `json:"timestamp"` // время открытия свечи (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// DefaultQuoteCurrency - котируемая валюта по умолчанию
const DefaultQuoteCurrency = "USDT"

// SplitSymbol разбивает символ на базовую и котируемую валюту
//
// Поддерживаются оба формата: "BTC/USDT" и "BTCUSDT" (с известной котируемой валютой)
func SplitSymbol(symbol, quote string) (base, q string) {
	if quote == "" {
		quote = DefaultQuoteCurrency
	}
	if i := strings.Index(symbol, "/"); i >= 0 {
		return symbol[:i], symbol[i+1:]
	}
	if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
		return strings.TrimSuffix(symbol, quote), quote
	}
	return symbol, quote
}
