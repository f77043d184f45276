package backtest

import (
	"sort"
	"time"

	"cryptotrader/internal/models"
)

// Timeline - общая временная шкала нескольких символов
//
// Steps строго возрастает и является объединением меток времени всех рядов.
// Одинаковые метки разных символов образуют один шаг.
type Timeline struct {
	Steps   []time.Time
	Symbols []string // отсортированы для детерминированного обхода

	series map[string][]models.Bar
	index  map[string]map[int64]int // symbol -> unix nano -> позиция в ряду
}

// Align сводит ряды свечей на общую шкалу
//
// Пустой ряд или ряд с неупорядоченными метками дает DataError с именем символа.
func Align(series map[string][]models.Bar) (*Timeline, error) {
	if len(series) == 0 {
		return nil, &DataError{Reason: "no series supplied"}
	}

	tl := &Timeline{
		Symbols: make([]string, 0, len(series)),
		series:  make(map[string][]models.Bar, len(series)),
		index:   make(map[string]map[int64]int, len(series)),
	}
	for symbol := range series {
		tl.Symbols = append(tl.Symbols, symbol)
	}
	sort.Strings(tl.Symbols)

	seen := make(map[int64]time.Time)
	for _, symbol := range tl.Symbols {
		bars := series[symbol]
		if len(bars) == 0 {
			return nil, &DataError{Symbol: symbol, Reason: "empty bar sequence"}
		}

		idx := make(map[int64]int, len(bars))
		for i, b := range bars {
			if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
				return nil, &DataError{Symbol: symbol, Timestamp: b.Timestamp, Reason: "bar timestamps are not strictly increasing"}
			}
			key := b.Timestamp.UnixNano()
			idx[key] = i
			if _, ok := seen[key]; !ok {
				seen[key] = b.Timestamp.UTC()
			}
		}
		tl.series[symbol] = bars
		tl.index[symbol] = idx
	}

	tl.Steps = make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		tl.Steps = append(tl.Steps, ts)
	}
	sort.Slice(tl.Steps, func(i, j int) bool { return tl.Steps[i].Before(tl.Steps[j]) })

	return tl, nil
}

// BarAt возвращает свечу символа на шаге; false означает "нет обновления"
func (tl *Timeline) BarAt(symbol string, ts time.Time) (models.Bar, bool) {
	idx, ok := tl.index[symbol]
	if !ok {
		return models.Bar{}, false
	}
	i, ok := idx[ts.UnixNano()]
	if !ok {
		return models.Bar{}, false
	}
	return tl.series[symbol][i], true
}

// History возвращает свечи символа до ts включительно
//
// Возвращается подсрез исходного ряда, вызывающий не должен его изменять.
func (tl *Timeline) History(symbol string, ts time.Time) []models.Bar {
	bars := tl.series[symbol]
	n := sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(ts) })
	return bars[:n]
}

// LastBar возвращает последнюю свечу символа
func (tl *Timeline) LastBar(symbol string) (models.Bar, bool) {
	bars := tl.series[symbol]
	if len(bars) == 0 {
		return models.Bar{}, false
	}
	return bars[len(bars)-1], true
}

// Len возвращает число шагов
func (tl *Timeline) Len() int {
	return len(tl.Steps)
}
