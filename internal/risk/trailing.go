package risk

import (
	"math"

	"cryptotrader/internal/models"
)

// ============================================================
// Трейлинг стоп-лосс
// ============================================================
//
// Long:
//   initialStop = entry * (1 - InitialStopRisk)
//   current <= initialStop              -> stop = initialStop
//   (current-entry)/entry >= activation -> stop = current * (1 - trail)
//   иначе                               -> stop = initialStop
//   trail = max(MinTrailDistance, 0.5*ATR_fraction) или InitialStopRisk/2 без ATR
//
// Short - зеркально. Прибыль отсчитывается от цены входа на каждом тике,
// экстремум цены не отслеживается.
//
// Храповик: для long стоп не опускается (max с предыдущим),
// для short не поднимается (min). Предыдущий стоп хранится в Position.StopPrice.

// StopLevel - результат расчета стопа
type StopLevel struct {
	Price    float64
	Trailing bool // стоп подтянут за ценой
}

// trailDistance возвращает дистанцию трейлинга в долях цены
func trailDistance(atrFraction float64, th models.RiskThresholds) float64 {
	var base float64
	if atrFraction > 0 && !math.IsNaN(atrFraction) && !math.IsInf(atrFraction, 0) {
		base = 0.5 * atrFraction
	} else {
		base = th.InitialStopRisk / 2
	}
	return math.Max(th.MinTrailDistance, base)
}

// ComputeStop рассчитывает стоп без учета предыдущего значения
//
// atrFraction <= 0 означает, что ATR недоступен.
func ComputeStop(side models.PositionSide, entry, current, atrFraction float64, th models.RiskThresholds) StopLevel {
	if side == models.SideShort {
		initialStop := entry * (1 + th.InitialStopRisk)
		if current >= initialStop {
			return StopLevel{Price: initialStop}
		}
		profitRatio := (entry - current) / entry
		if profitRatio >= th.TrailingActivationRatio {
			return StopLevel{Price: current * (1 + trailDistance(atrFraction, th)), Trailing: true}
		}
		return StopLevel{Price: initialStop}
	}

	initialStop := entry * (1 - th.InitialStopRisk)
	if current <= initialStop {
		return StopLevel{Price: initialStop}
	}
	profitRatio := (current - entry) / entry
	if profitRatio >= th.TrailingActivationRatio {
		return StopLevel{Price: current * (1 - trailDistance(atrFraction, th)), Trailing: true}
	}
	return StopLevel{Price: initialStop}
}

// Ratchet не дает стопу двигаться против позиции; prev <= 0 - предыдущего стопа нет
func Ratchet(side models.PositionSide, prev, computed float64) float64 {
	if prev <= 0 {
		return computed
	}
	if side == models.SideShort {
		return math.Min(prev, computed)
	}
	return math.Max(prev, computed)
}

// TrailingStop рассчитывает стоп позиции при цене current с учетом храповика
func TrailingStop(pos models.Position, current, atrFraction float64, th models.RiskThresholds) StopLevel {
	lvl := ComputeStop(pos.Side, pos.EntryPrice, current, atrFraction, th)
	ratcheted := Ratchet(pos.Side, pos.StopPrice, lvl.Price)
	if ratcheted != lvl.Price {
		// предыдущий стоп остается в силе; он мог быть только подтянутым
		return StopLevel{Price: ratcheted, Trailing: true}
	}
	return lvl
}

// StopCrossed проверяет пересечение стопа: <= для long, >= для short
func StopCrossed(side models.PositionSide, current, stop float64) bool {
	if side == models.SideShort {
		return current >= stop
	}
	return current <= stop
}
