package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock управляет временем bucket'а в тестах
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBucket(rate, burst float64) (*Bucket, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBucket(rate, burst)
	b.now = clock.Now
	b.last = clock.Now()
	return b, clock
}

func TestBucket_AllowAndRefill(t *testing.T) {
	b, clock := newTestBucket(2, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, b.Allow(), "burst token %d", i)
	}
	assert.False(t, b.Allow())

	clock.Advance(500 * time.Millisecond)
	assert.True(t, b.Allow())
	assert.False(t, b.Allow())

	clock.Advance(time.Hour)
	assert.InDelta(t, 3, b.Tokens(), 1e-9)
}

func TestBucket_Unlimited(t *testing.T) {
	b := NewBucket(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, b.Allow())
	}
	require.NoError(t, b.Wait(context.Background()))
}

func TestBucket_WaitDelays(t *testing.T) {
	b := NewBucket(50, 1)
	require.NoError(t, b.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, b.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestBucket_WaitRespectsDeadline(t *testing.T) {
	b, _ := newTestBucket(0.1, 1)
	require.True(t, b.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := b.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	// токен возвращен: долг не копится
	assert.InDelta(t, 0, b.Tokens(), 1e-9)
}

func TestBucket_WaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewBucket(1, 1).Wait(ctx), context.Canceled)
}

func TestMultiLimiter(t *testing.T) {
	ml := NewMultiLimiter()
	ml.Add("orders", 1, 1)

	assert.True(t, ml.Allow("orders"))
	assert.False(t, ml.Allow("orders"))
	assert.True(t, ml.Allow("unknown"))
	assert.Nil(t, ml.Get("unknown"))
	assert.NoError(t, ml.Wait(context.Background(), "unknown"))

	ml.Add("orders", 100, 5)
	assert.InDelta(t, 5, ml.Get("orders").Tokens(), 1e-6)
}
