package exchange

import (
	"fmt"
	"strings"
)

// SupportedExchanges - список поддерживаемых бирж
var SupportedExchanges = []string{
	"paper",
	"bybit",
}

// Credentials - ключи доступа к бирже
type Credentials struct {
	APIKey    string
	APISecret string
	BaseURL   string
	FeeRate   float64 // комиссия paper биржи
}

// NewExchange создает биржу по имени
//
// data используется только бумажной биржей как источник свечей.
func NewExchange(name string, creds Credentials, data MarketData) (Exchange, error) {
	switch strings.ToLower(name) {
	case "paper":
		return NewPaperExchange(data, creds.FeeRate), nil
	case "bybit":
		if creds.APIKey == "" || creds.APISecret == "" {
			return nil, fmt.Errorf("bybit requires api key and secret")
		}
		return NewBybit(BybitConfig{
			APIKey:    creds.APIKey,
			APISecret: creds.APISecret,
			BaseURL:   creds.BaseURL,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли биржа
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedExchanges {
		if name == supported {
			return true
		}
	}
	return false
}
