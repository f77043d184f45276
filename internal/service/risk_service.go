package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptotrader/internal/indicators"
	"cryptotrader/internal/models"
	"cryptotrader/internal/risk"
)

// ErrInvalidRequest - некорректные входные данные запроса
var ErrInvalidRequest = errors.New("invalid request")

// EvaluateRequest - оценка позиции по присланным данным
//
// ATRFraction можно не указывать, если переданы Bars: тогда он
// рассчитывается как ATR(14)/close последней свечи. Последняя свеча
// из Bars используется как текущая, если Bar не задан.
type EvaluateRequest struct {
	Position    models.Position `json:"position"`
	Bar         *models.Bar     `json:"bar,omitempty"`
	Bars        []models.Bar    `json:"bars,omitempty"`
	ATRFraction *float64        `json:"atr_fraction,omitempty"`
}

// EvaluateResponse - результат оценки
type EvaluateResponse struct {
	Verdict     models.RiskVerdict `json:"verdict"`
	MarginRatio float64            `json:"margin_ratio"`
	StopPrice   float64            `json:"stop_price"`
	Trailing    bool               `json:"trailing"`
	ATRFraction float64            `json:"atr_fraction"`
}

// LeverageRecommendation - рекомендация плеча
type LeverageRecommendation struct {
	Symbol     string  `json:"symbol,omitempty"`
	Volatility float64 `json:"volatility"`
	Max        int     `json:"max"`
	Leverage   int     `json:"leverage"`
}

// RiskService - чтение состояния live мониторинга и чистые расчеты для API
type RiskService struct {
	thresholds  models.RiskThresholds
	book        PositionSource
	orders      OrderRepositoryInterface
	maxLeverage int
	now         func() time.Time
}

// NewRiskService создает сервис; book и orders могут быть nil
func NewRiskService(thresholds models.RiskThresholds, maxLeverage int, book PositionSource, orders OrderRepositoryInterface) *RiskService {
	if maxLeverage < 1 {
		maxLeverage = 1
	}
	return &RiskService{
		thresholds:  thresholds,
		book:        book,
		orders:      orders,
		maxLeverage: maxLeverage,
		now:         time.Now,
	}
}

// Thresholds возвращает действующие пороги
func (s *RiskService) Thresholds() models.RiskThresholds {
	return s.thresholds
}

// Positions возвращает снимок книги, при symbol != "" только позиции символа
func (s *RiskService) Positions(symbol string) []models.Position {
	if s.book == nil {
		return []models.Position{}
	}
	all := s.book.Snapshot()
	out := make([]models.Position, 0, len(all))
	for _, p := range all {
		if symbol == "" || strings.EqualFold(p.Symbol, symbol) {
			out = append(out, p)
		}
	}
	return out
}

// Evaluate выполняет чистую оценку позиции
func (s *RiskService) Evaluate(req EvaluateRequest) (*EvaluateResponse, error) {
	bar := req.Bar
	if bar == nil && len(req.Bars) > 0 {
		last := req.Bars[len(req.Bars)-1]
		bar = &last
	}
	if bar == nil {
		return nil, fmt.Errorf("%w: bar or bars required", ErrInvalidRequest)
	}

	var atr float64
	switch {
	case req.ATRFraction != nil:
		atr = *req.ATRFraction
	case len(req.Bars) > 0:
		v, err := risk.VolatilityFraction(req.Bars, indicators.DefaultATRPeriod)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		atr = v
	}

	pos := req.Position
	if pos.Symbol == "" {
		pos.Symbol = bar.Symbol
	}
	if pos.Status == "" {
		pos.Status = models.PositionOpen
	}

	a, err := risk.Evaluate(pos, *bar, atr, s.thresholds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return &EvaluateResponse{
		Verdict:     a.Verdict,
		MarginRatio: a.MarginRatio,
		StopPrice:   a.StopPrice,
		Trailing:    a.Trailing,
		ATRFraction: atr,
	}, nil
}

// RecommendLeverage рассчитывает плечо; max <= 0 означает лимит из конфигурации
func (s *RiskService) RecommendLeverage(symbol string, volatility float64, max int) LeverageRecommendation {
	if max <= 0 {
		max = s.maxLeverage
	}
	return LeverageRecommendation{
		Symbol:     symbol,
		Volatility: volatility,
		Max:        max,
		Leverage:   risk.Recommend(volatility, max),
	}
}

// RecentOrders возвращает ордера риск-контроля из журнала
func (s *RiskService) RecentOrders(symbol string, limit int) ([]*models.OrderRecord, error) {
	if s.orders == nil {
		return []*models.OrderRecord{}, nil
	}
	limit = clampLimit(limit, DefaultNotificationLimit, MaxNotificationLimit)
	if symbol != "" {
		return s.orders.GetBySymbol(symbol, limit)
	}
	return s.orders.GetRecent(limit)
}

// FailedOrdersSince возвращает число неудачных закрытий за окно
func (s *RiskService) FailedOrdersSince(window time.Duration) (int, error) {
	if s.orders == nil {
		return 0, nil
	}
	return s.orders.CountFailedSince(s.now().Add(-window))
}
