package risk

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"cryptotrader/internal/indicators"
	"cryptotrader/internal/metrics"
	"cryptotrader/internal/models"
)

// ConservativeLeverage - плечо для аварийного сброса
const ConservativeLeverage = 3

// Recommend = max(1, min(exchangeMax, floor(0.1 / (volatility + 0.01))))
//
// Отрицательная волатильность считается нулевой, NaN дает 1.
// exchangeMax < 1 трактуется как 1.
func Recommend(volatility float64, exchangeMax int) int {
	if exchangeMax < 1 {
		exchangeMax = 1
	}
	if math.IsNaN(volatility) {
		return 1
	}
	if volatility < 0 {
		volatility = 0
	}
	raw := math.Floor(0.1 / (volatility + 0.01))
	if raw > float64(exchangeMax) {
		return exchangeMax
	}
	if raw < 1 {
		return 1
	}
	return int(raw)
}

// VolatilityFraction - ATR(period) в долях последней цены закрытия
func VolatilityFraction(bars []models.Bar, period int) (float64, error) {
	return indicators.ATRFraction(bars, period)
}

// LeverageSetter - часть исполнителя, меняющая плечо
type LeverageSetter interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// LeverageAdvisor рекомендует и применяет безопасное плечо
//
// Текущее плечо передается параметром: советник не ходит на биржу за состоянием.
type LeverageAdvisor struct {
	setter LeverageSetter
	logger *zap.Logger
	now    func() time.Time
}

// NewLeverageAdvisor создает советника; setter обязателен для AutoAdjust
func NewLeverageAdvisor(setter LeverageSetter, logger *zap.Logger) *LeverageAdvisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeverageAdvisor{setter: setter, logger: logger, now: time.Now}
}

// Recommend возвращает рекомендацию для символа
func (a *LeverageAdvisor) Recommend(symbol string, volatility float64, exchangeMax int) int {
	rec := Recommend(volatility, exchangeMax)
	metrics.RecordRecommendation(symbol, rec)
	return rec
}

// AutoAdjust меняет плечо только если текущее отличается от рекомендации
//
// Возвращает nil-команду, когда изменение не требуется.
func (a *LeverageAdvisor) AutoAdjust(ctx context.Context, symbol string, current int, volatility float64, exchangeMax int) (*models.LeverageCommand, error) {
	rec := a.Recommend(symbol, volatility, exchangeMax)
	if rec == current {
		return nil, nil
	}
	return a.apply(ctx, symbol, current, rec, volatility)
}

// AutoAdjustLegs - AutoAdjust для всех ног hedge-позиции символа
//
// Плечо меняется, если хотя бы одна нога отличается от рекомендации.
// PreviousLeverage берется из первой отличающейся ноги.
func (a *LeverageAdvisor) AutoAdjustLegs(ctx context.Context, symbol string, legs []int, volatility float64, exchangeMax int) (*models.LeverageCommand, error) {
	if len(legs) == 0 {
		return nil, nil
	}
	rec := a.Recommend(symbol, volatility, exchangeMax)
	for _, current := range legs {
		if current != rec {
			return a.apply(ctx, symbol, current, rec, volatility)
		}
	}
	return nil, nil
}

// ResetToConservative принудительно выставляет консервативное плечо
func (a *LeverageAdvisor) ResetToConservative(ctx context.Context, symbol string, current int) (*models.LeverageCommand, error) {
	if current == ConservativeLeverage {
		return nil, nil
	}
	return a.apply(ctx, symbol, current, ConservativeLeverage, math.NaN())
}

func (a *LeverageAdvisor) apply(ctx context.Context, symbol string, current, target int, volatility float64) (*models.LeverageCommand, error) {
	if a.setter == nil {
		return nil, evalErr(symbol, "no leverage executor configured", nil)
	}
	if err := a.setter.SetLeverage(ctx, symbol, target); err != nil {
		return nil, evalErr(symbol, "set leverage failed", err)
	}

	metrics.RecordLeverageChange(symbol, target)
	a.logger.Info("leverage adjusted",
		zap.String("symbol", symbol),
		zap.Int("from", current),
		zap.Int("to", target),
		zap.Float64("volatility", volatility),
	)

	if math.IsNaN(volatility) {
		volatility = 0
	}
	return &models.LeverageCommand{
		Symbol:           symbol,
		NewLeverage:      target,
		PreviousLeverage: current,
		Volatility:       volatility,
		IssuedAt:         a.now().UTC(),
	}, nil
}
