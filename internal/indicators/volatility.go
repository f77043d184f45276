package indicators

import (
	"math"
	"time"

	"cryptotrader/internal/models"
)

// PctChange возвращает относительные изменения close-to-close (нулевые цены пропускаются)
func PctChange(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, 0, len(x)-1)
	for i := 1; i < len(x); i++ {
		if x[i-1] == 0 {
			continue
		}
		out = append(out, (x[i]-x[i-1])/x[i-1])
	}
	return out
}

// SampleStd - выборочное стандартное отклонение (знаменатель n-1), 0 при n < 2
func SampleStd(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(n)

	var ss float64
	for _, v := range x {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// RecentVolatility - std процентных изменений close в окне [asOf-window, asOf]
//
// Свечи должны быть упорядочены по времени. Если в окне меньше 3 свечей, возвращает 0.
func RecentVolatility(bars []models.Bar, asOf time.Time, window time.Duration) float64 {
	from := asOf.Add(-window)
	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp.Before(from) || b.Timestamp.After(asOf) {
			continue
		}
		closes = append(closes, b.Close)
	}
	v := SampleStd(PctChange(closes))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
