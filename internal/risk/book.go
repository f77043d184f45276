package risk

import (
	"sort"
	"sync"
	"time"

	"cryptotrader/internal/metrics"
	"cryptotrader/internal/models"
)

// DefaultRetention - сколько хранить закрытые позиции в книге
const DefaultRetention = time.Hour

// PositionBook - активный набор позиций
//
// Пишет только поллер (single writer), остальные читают копии через Snapshot.
type PositionBook struct {
	mu        sync.RWMutex
	positions map[models.PositionKey]models.Position
	retention time.Duration
}

// NewPositionBook создает книгу с окном хранения закрытых позиций
func NewPositionBook(retention time.Duration) *PositionBook {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &PositionBook{
		positions: make(map[models.PositionKey]models.Position),
		retention: retention,
	}
}

// Snapshot возвращает копии позиций, отсортированные по символу и стороне
func (b *PositionBook) Snapshot() []models.Position {
	b.mu.RLock()
	out := make([]models.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Side < out[j].Side
	})
	return out
}

// Get возвращает копию позиции по ключу
func (b *PositionBook) Get(key models.PositionKey) (models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[key]
	return p, ok
}

// Replace применяет свежее состояние позиций символа
//
// Открытые позиции символа, отсутствующие в live, переводятся в closed.
func (b *PositionBook) Replace(symbol string, live []models.Position, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[models.PositionKey]struct{}, len(live))
	for _, p := range live {
		key := p.Key()
		seen[key] = struct{}{}
		b.positions[key] = p
	}

	for key, p := range b.positions {
		if key.Symbol != symbol || p.Status.IsTerminal() {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		if err := p.Transition(models.PositionClosed, at); err == nil {
			p.Amount = 0
			p.UnrealizedPnl = 0
			b.positions[key] = p
		}
	}

	metrics.UpdateActivePositions(b.openLocked())
}

// Prune удаляет закрытые и ликвидированные позиции старше окна хранения
func (b *PositionBook) Prune(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for key, p := range b.positions {
		if p.Status.IsTerminal() && now.Sub(p.UpdatedAt) >= b.retention {
			delete(b.positions, key)
			metrics.ForgetPosition(key.String())
			removed++
		}
	}
	return removed
}

// OpenCount возвращает число нетерминальных позиций
func (b *PositionBook) OpenCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.openLocked()
}

func (b *PositionBook) openLocked() int {
	n := 0
	for _, p := range b.positions {
		if !p.Status.IsTerminal() {
			n++
		}
	}
	return n
}
