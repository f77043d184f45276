package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/models"
)

type memStore struct {
	mu    sync.Mutex
	items []models.Notification
	err   error
}

func (m *memStore) Create(n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.items = append(m.items, *n)
	return nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type memHub struct {
	events   []models.RiskEvent
	commands []models.LeverageCommand
}

func (h *memHub) BroadcastRiskEvent(ev models.RiskEvent)         { h.events = append(h.events, ev) }
func (h *memHub) BroadcastLeverageChange(c models.LeverageCommand) { h.commands = append(h.commands, c) }

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func marginCall() models.RiskEvent {
	return models.RiskEvent{
		ID:          "ev-1",
		Symbol:      "BTC/USDT",
		Verdict:     models.VerdictMarginCall,
		MarginRatio: 0.08,
		Position:    models.Position{Symbol: "BTC/USDT", Side: models.SideLong, Amount: 1, EntryPrice: 100, CurrentPrice: 99, Leverage: 10},
		Timestamp:   t0,
	}
}

func TestFromRiskEvent(t *testing.T) {
	tests := []struct {
		name     string
		ev       models.RiskEvent
		typ      string
		severity string
	}{
		{"margin call", marginCall(), models.NotificationTypeMarginCall, models.SeverityWarn},
		{"auto liquidate", models.RiskEvent{Symbol: "BTC/USDT", Verdict: models.VerdictAutoLiquidate}, models.NotificationTypeAutoLiquidate, models.SeverityError},
		{"stop loss", models.RiskEvent{Symbol: "BTC/USDT", Verdict: models.VerdictStopLossHit, StopPrice: 98}, models.NotificationTypeStopLoss, models.SeverityError},
		{"exchange error", models.RiskEvent{Symbol: "ETH/USDT", Verdict: models.VerdictNone, Error: "fetch_bars: timeout"}, models.NotificationTypeError, models.SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := FromRiskEvent(tt.ev)
			assert.Equal(t, tt.typ, n.Notification.Type)
			assert.Equal(t, tt.severity, n.Notification.Severity)
			assert.Equal(t, tt.ev.Symbol, n.Notification.Symbol)
			assert.NotEmpty(t, n.Notification.Message)
			require.NotNil(t, n.Event)
			assert.Nil(t, n.Leverage)
		})
	}

	n := FromRiskEvent(marginCall())
	assert.Equal(t, 0.08, n.Notification.Meta["margin_ratio"])
	assert.Equal(t, "long", n.Notification.Meta["side"])
}

func TestFromLeverageCommand(t *testing.T) {
	n := FromLeverageCommand(models.LeverageCommand{Symbol: "ETH/USDT", NewLeverage: 3, PreviousLeverage: 10, Volatility: 0.02, IssuedAt: t0})
	assert.Equal(t, models.NotificationTypeLeverage, n.Notification.Type)
	assert.Equal(t, models.SeverityInfo, n.Notification.Severity)
	assert.Contains(t, n.Notification.Message, "10x -> 3x")
	require.NotNil(t, n.Leverage)
	assert.Equal(t, "ETH/USDT|LEVERAGE", n.Key())
}

func TestThrottle_PerSeverity(t *testing.T) {
	th := NewThrottle()

	assert.True(t, th.Allow("BTC|STOP_LOSS", models.SeverityError, t0))
	assert.False(t, th.Allow("BTC|STOP_LOSS", models.SeverityError, t0.Add(30*time.Second)))
	assert.True(t, th.Allow("BTC|STOP_LOSS", models.SeverityError, t0.Add(time.Minute)))

	assert.True(t, th.Allow("BTC|MARGIN_CALL", models.SeverityWarn, t0))
	assert.False(t, th.Allow("BTC|MARGIN_CALL", models.SeverityWarn, t0.Add(9*time.Minute)))
	assert.True(t, th.Allow("ETH|MARGIN_CALL", models.SeverityWarn, t0.Add(9*time.Minute)), "keys are independent")
	assert.True(t, th.Allow("BTC|MARGIN_CALL", models.SeverityWarn, t0.Add(10*time.Minute)))

	assert.True(t, th.Allow("BTC|LEVERAGE", models.SeverityInfo, t0))
	assert.False(t, th.Allow("BTC|LEVERAGE", models.SeverityInfo, t0.Add(59*time.Minute)))

	th.SetInterval(models.SeverityInfo, 0)
	assert.True(t, th.Allow("BTC|LEVERAGE", models.SeverityInfo, t0.Add(59*time.Minute)))
}

func TestThrottle_Forget(t *testing.T) {
	th := NewThrottle()
	th.Allow("a", models.SeverityError, t0)
	th.Allow("b", models.SeverityInfo, t0.Add(30*time.Minute))

	assert.Equal(t, 1, th.Forget(t0.Add(time.Hour)))
	assert.False(t, th.Allow("b", models.SeverityInfo, t0.Add(time.Hour)))
}

type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "failing" }
func (f *failingSink) Deliver(context.Context, *Notice) error {
	f.calls++
	return errors.New("smtp down")
}

func TestDispatcher_FanOutAndThrottle(t *testing.T) {
	store := &memStore{}
	hub := &memHub{}
	bad := &failingSink{}
	d := NewDispatcher(nil, bad, NewStoreSink(store), NewHubSink(hub))
	now := t0
	d.now = func() time.Time { return now }
	ctx := context.Background()

	assert.True(t, d.Dispatch(ctx, FromRiskEvent(marginCall())))
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, store.len(), "failing sink does not block the others")
	require.Len(t, hub.events, 1)

	now = now.Add(time.Minute)
	assert.False(t, d.Dispatch(ctx, FromRiskEvent(marginCall())), "warning repeats within 10 minutes")
	assert.Equal(t, 1, store.len())

	assert.True(t, d.Dispatch(ctx, FromLeverageCommand(models.LeverageCommand{Symbol: "BTC/USDT", NewLeverage: 3, PreviousLeverage: 10})))
	require.Len(t, hub.commands, 1)
	assert.Equal(t, 2, store.len())
	assert.Equal(t, now, store.items[1].Timestamp, "zero timestamp defaults to dispatch time")
}

func TestDispatcher_Run(t *testing.T) {
	store := &memStore{}
	d := NewDispatcher(nil, NewStoreSink(store))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.PublishRiskEvent(marginCall())
	d.PublishLeverageCommand(models.LeverageCommand{Symbol: "ETH/USDT", NewLeverage: 2, PreviousLeverage: 5})

	require.Eventually(t, func() bool { return store.len() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

func TestDispatcher_QueueOverflowDoesNotBlock(t *testing.T) {
	d := NewDispatcher(nil)
	for i := 0; i < defaultQueueSize+5; i++ {
		d.PublishRiskEvent(marginCall())
	}
	assert.Len(t, d.queue, defaultQueueSize)
}

func TestStreamSink(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sink := NewStreamSink(rdb, "", 100)
	ctx := context.Background()
	require.NoError(t, sink.Deliver(ctx, FromRiskEvent(marginCall())))
	require.NoError(t, sink.Deliver(ctx, FromLeverageCommand(models.LeverageCommand{Symbol: "BTC/USDT", NewLeverage: 3})))

	entries, err := rdb.XRange(ctx, DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0].Values
	assert.Equal(t, models.NotificationTypeMarginCall, first["type"])
	assert.Equal(t, models.SeverityWarn, first["severity"])
	assert.Equal(t, "BTC/USDT", first["symbol"])

	var ev models.RiskEvent
	require.NoError(t, json.Unmarshal([]byte(first["payload"].(string)), &ev))
	assert.Equal(t, "ev-1", ev.ID)
	assert.Equal(t, 0.08, ev.MarginRatio)

	assert.Equal(t, models.NotificationTypeLeverage, entries[1].Values["type"])
}

func TestStreamSink_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	err = NewStreamSink(rdb, "alerts", 0).Deliver(context.Background(), FromRiskEvent(marginCall()))
	assert.Error(t, err)
}
