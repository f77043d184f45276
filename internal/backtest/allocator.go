package backtest

import (
	"math"
	"sort"
	"sync"
)

// VolatilityEpsilon - нижняя граница волатильности перед инверсией
const VolatilityEpsilon = 1e-6

// Allocator вычисляет веса портфеля на границе ребалансировки
type Allocator interface {
	ComputeWeights(symbols []string, volatilities map[string]float64) (map[string]float64, error)
}

// AllocatorFunc - адаптер функции к интерфейсу Allocator
type AllocatorFunc func(symbols []string, volatilities map[string]float64) (map[string]float64, error)

// ComputeWeights вызывает f
func (f AllocatorFunc) ComputeWeights(symbols []string, volatilities map[string]float64) (map[string]float64, error) {
	return f(symbols, volatilities)
}

// RiskParityAllocator распределяет капитал обратно пропорционально волатильности
//
// Кроме последнего набора весов (для отчета) состояния не хранит.
type RiskParityAllocator struct {
	mu   sync.RWMutex
	last map[string]float64
}

// NewRiskParityAllocator создает аллокатор
func NewRiskParityAllocator() *RiskParityAllocator {
	return &RiskParityAllocator{}
}

// ComputeWeights возвращает веса w_i = (1/vol_i) / Σ(1/vol_j)
//
// Нулевая, отсутствующая, отрицательная или NaN волатильность заменяется на VolatilityEpsilon.
func (a *RiskParityAllocator) ComputeWeights(symbols []string, volatilities map[string]float64) (map[string]float64, error) {
	if len(symbols) == 0 {
		return nil, &AllocationError{Reason: "empty symbol set"}
	}

	uniq := make([]string, 0, len(symbols))
	dup := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s == "" {
			return nil, &AllocationError{Reason: "empty symbol name"}
		}
		if _, ok := dup[s]; ok {
			continue
		}
		dup[s] = struct{}{}
		uniq = append(uniq, s)
	}
	sort.Strings(uniq)

	inverse := make(map[string]float64, len(uniq))
	total := 0.0
	for _, s := range uniq {
		vol := volatilities[s]
		if math.IsNaN(vol) || vol <= 0 {
			vol = VolatilityEpsilon
		}
		inv := 1 / vol
		inverse[s] = inv
		total += inv
	}
	if total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		return nil, &AllocationError{Reason: "degenerate inverse volatility sum"}
	}

	weights := make(map[string]float64, len(uniq))
	for _, s := range uniq {
		weights[s] = inverse[s] / total
	}

	a.mu.Lock()
	a.last = weights
	a.mu.Unlock()

	return copyWeights(weights), nil
}

// LastWeights возвращает копию последнего рассчитанного набора весов
func (a *RiskParityAllocator) LastWeights() map[string]float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyWeights(a.last)
}

func copyWeights(w map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
