package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Bucket - token bucket: rate токенов в секунду, не больше burst
//
// Безопасен для конкурентного использования.
type Bucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewBucket создает полный bucket; rate <= 0 означает без ограничений
func NewBucket(rate, burst float64) *Bucket {
	if burst < 1 {
		burst = 1
	}
	return &Bucket{rate: rate, burst: burst, tokens: burst, last: time.Now(), now: time.Now}
}

func (b *Bucket) refillLocked() {
	now := b.now()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.burst {
			b.tokens = b.burst
		}
	}
	b.last = now
}

// reserve забирает токен и возвращает сколько ждать до его готовности
func (b *Bucket) reserve() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rate <= 0 {
		return 0
	}
	b.refillLocked()
	b.tokens--
	if b.tokens >= 0 {
		return 0
	}
	return time.Duration(-b.tokens / b.rate * float64(time.Second))
}

func (b *Bucket) cancel() {
	b.mu.Lock()
	b.tokens++
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.mu.Unlock()
}

// Wait блокируется до получения токена или отмены контекста
//
// При отмене зарезервированный токен возвращается.
func (b *Bucket) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	delay := b.reserve()
	if delay == 0 {
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		b.cancel()
		return fmt.Errorf("rate limit: wait %v exceeds deadline: %w", delay, context.DeadlineExceeded)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		b.cancel()
		return ctx.Err()
	}
}

// Allow забирает токен без ожидания
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rate <= 0 {
		return true
	}
	b.refillLocked()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Tokens возвращает текущее число токенов
func (b *Bucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return b.tokens
}

// ============================================================
// Лимиты по категориям запросов
// ============================================================

// MultiLimiter - набор bucket'ов по категориям (orders, account, market)
//
// Неизвестная категория не ограничивается.
type MultiLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
}

func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{buckets: make(map[string]*Bucket)}
}

// Add регистрирует или заменяет категорию
func (ml *MultiLimiter) Add(category string, rate, burst float64) {
	ml.mu.Lock()
	ml.buckets[category] = NewBucket(rate, burst)
	ml.mu.Unlock()
}

// Get возвращает bucket категории или nil
func (ml *MultiLimiter) Get(category string) *Bucket {
	ml.mu.RLock()
	defer ml.mu.RUnlock()
	return ml.buckets[category]
}

func (ml *MultiLimiter) Wait(ctx context.Context, category string) error {
	if b := ml.Get(category); b != nil {
		return b.Wait(ctx)
	}
	return ctx.Err()
}

func (ml *MultiLimiter) Allow(category string) bool {
	if b := ml.Get(category); b != nil {
		return b.Allow()
	}
	return true
}
