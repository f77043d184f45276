package notify

import (
	"sync"
	"time"

	"cryptotrader/internal/models"
)

// Интервалы анти-спама по уровню важности
const (
	CriticalInterval = time.Minute
	WarningInterval  = 10 * time.Minute
	InfoInterval     = time.Hour
)

// Throttle пропускает не более одного уведомления на ключ за интервал уровня
type Throttle struct {
	intervals map[string]time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottle создает анти-спам с интервалами по умолчанию
func NewThrottle() *Throttle {
	return &Throttle{
		intervals: map[string]time.Duration{
			models.SeverityError: CriticalInterval,
			models.SeverityWarn:  WarningInterval,
			models.SeverityInfo:  InfoInterval,
		},
		last: make(map[string]time.Time),
	}
}

// SetInterval меняет интервал уровня; 0 отключает ограничение
func (t *Throttle) SetInterval(severity string, d time.Duration) {
	t.mu.Lock()
	t.intervals[severity] = d
	t.mu.Unlock()
}

// Allow отмечает отправку и возвращает false если ключ еще в окне
func (t *Throttle) Allow(key, severity string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	interval := t.intervals[severity]
	if last, ok := t.last[key]; ok && interval > 0 && now.Sub(last) < interval {
		return false
	}
	t.last[key] = now
	return true
}

// Forget удаляет ключи старше максимального интервала
func (t *Throttle) Forget(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var maxInterval time.Duration
	for _, d := range t.intervals {
		if d > maxInterval {
			maxInterval = d
		}
	}
	removed := 0
	for key, last := range t.last {
		if now.Sub(last) >= maxInterval {
			delete(t.last, key)
			removed++
		}
	}
	return removed
}
