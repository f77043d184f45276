package backtest

import (
	"fmt"
	"strings"
	"time"
)

// RebalancePolicy - периодичность ребалансировки
type RebalancePolicy string

// Политики ребалансировки
const (
	RebalanceWeekly  RebalancePolicy = "weekly"
	RebalanceMonthly RebalancePolicy = "monthly"
	RebalanceNever   RebalancePolicy = "never"
)

// ParseRebalancePolicy разбирает значение из конфигурации
//
// Допустимы weekly|W, monthly|M, never|"" (регистр не важен).
func ParseRebalancePolicy(s string) (RebalancePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weekly", "w":
		return RebalanceWeekly, nil
	case "monthly", "m":
		return RebalanceMonthly, nil
	case "never", "":
		return RebalanceNever, nil
	default:
		return "", fmt.Errorf("unknown rebalance policy %q (expected weekly, monthly or never)", s)
	}
}

// rebalanceSchedule отслеживает границы периодов по шагам шкалы
//
// Граница - первый шаг периода, попадающий на понедельник (weekly)
// или на первое число месяца (monthly), по UTC. Один раз за период.
type rebalanceSchedule struct {
	policy RebalancePolicy
	last   int // ключ последнего периода с ребалансировкой, -1 если не было
}

func newRebalanceSchedule(policy RebalancePolicy) *rebalanceSchedule {
	return &rebalanceSchedule{policy: policy, last: -1}
}

// IsBoundary возвращает true на первом подходящем шаге периода
func (r *rebalanceSchedule) IsBoundary(ts time.Time) bool {
	ts = ts.UTC()

	var key int
	switch r.policy {
	case RebalanceWeekly:
		if ts.Weekday() != time.Monday {
			return false
		}
		year, week := ts.ISOWeek()
		key = year*100 + week
	case RebalanceMonthly:
		if ts.Day() != 1 {
			return false
		}
		key = ts.Year()*100 + int(ts.Month())
	default:
		return false
	}

	if key == r.last {
		return false
	}
	r.last = key
	return true
}
