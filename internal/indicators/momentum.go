package indicators

// RSI по последним period изменениям цены (простые средние)
//
// Без убыточных изменений возвращает 100, при нехватке данных ok=false.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var up, down float64
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d >= 0 {
			up += d
		} else {
			down -= d
		}
	}
	up /= float64(period)
	down /= float64(period)
	if down == 0 {
		return 100, true
	}
	rs := up / down
	return 100 - 100/(1+rs), true
}

// MACDLine - упрощенный MACD: среднее последних fast закрытий минус среднее последних slow
func MACDLine(closes []float64, fast, slow int) (float64, bool) {
	if fast <= 0 || slow <= 0 || len(closes) < slow || len(closes) < fast {
		return 0, false
	}
	return tailMean(closes, fast) - tailMean(closes, slow), true
}

func tailMean(x []float64, p int) float64 {
	var sum float64
	for _, v := range x[len(x)-p:] {
		sum += v
	}
	return sum / float64(p)
}
