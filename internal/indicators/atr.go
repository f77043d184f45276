package indicators

import (
	"errors"
	"math"

	"cryptotrader/internal/models"
)

// DefaultATRPeriod - период ATR для расчета плеча
const DefaultATRPeriod = 14

// ErrNotEnoughData - ряд короче периода индикатора
var ErrNotEnoughData = errors.New("not enough data for indicator")

// TrueRange по каждой свече; для первой свечи нет предыдущего close, берется high-low
func TrueRange(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATR - простое среднее последних period значений true range
func ATR(bars []models.Bar, period int) (float64, error) {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(bars) < period {
		return 0, ErrNotEnoughData
	}
	tr := TrueRange(bars)
	var sum float64
	for _, v := range tr[len(tr)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}

// ATRFraction - ATR в долях от последней цены закрытия
func ATRFraction(bars []models.Bar, period int) (float64, error) {
	atr, err := ATR(bars, period)
	if err != nil {
		return 0, err
	}
	last := bars[len(bars)-1].Close
	if last <= 0 {
		return 0, ErrNotEnoughData
	}
	return atr / last, nil
}
