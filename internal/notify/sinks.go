package notify

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"cryptotrader/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink - получатель уведомлений
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *Notice) error
}

// ============ Журнал ============

// NotificationStore - часть репозитория уведомлений
type NotificationStore interface {
	Create(n *models.Notification) error
}

// StoreSink сохраняет уведомления в БД
type StoreSink struct {
	store NotificationStore
}

// NewStoreSink создает приемник журнала
func NewStoreSink(store NotificationStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(_ context.Context, n *Notice) error {
	notif := n.Notification
	return s.store.Create(&notif)
}

// ============ WebSocket ============

// Broadcaster - часть WebSocket hub
type Broadcaster interface {
	BroadcastRiskEvent(ev models.RiskEvent)
	BroadcastLeverageChange(cmd models.LeverageCommand)
}

// HubSink рассылает события WebSocket клиентам
type HubSink struct {
	hub Broadcaster
}

// NewHubSink создает приемник WebSocket
func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Name() string { return "websocket" }

func (s *HubSink) Deliver(_ context.Context, n *Notice) error {
	switch {
	case n.Event != nil:
		s.hub.BroadcastRiskEvent(*n.Event)
	case n.Leverage != nil:
		s.hub.BroadcastLeverageChange(*n.Leverage)
	}
	return nil
}

// ============ Redis stream ============

// DefaultStream - имя Redis stream событий
const DefaultStream = "risk:events"

const defaultStreamMaxLen = 10000

// StreamSink публикует уведомления в Redis stream (XADD)
//
// Поля записи: type, severity, symbol, message, payload (JSON события).
type StreamSink struct {
	rdb    redis.Cmdable
	stream string
	maxLen int64
}

// NewStreamSink создает приемник; пустой stream означает DefaultStream
func NewStreamSink(rdb redis.Cmdable, stream string, maxLen int64) *StreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &StreamSink{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Name() string { return "redis_stream" }

func (s *StreamSink) Deliver(ctx context.Context, n *Notice) error {
	var payload interface{} = n.Notification
	switch {
	case n.Event != nil:
		payload = n.Event
	case n.Leverage != nil:
		payload = n.Leverage
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Values: map[string]interface{}{
			"type":     n.Notification.Type,
			"severity": n.Notification.Severity,
			"symbol":   n.Notification.Symbol,
			"message":  n.Notification.Message,
			"payload":  string(raw),
		},
	}).Err()
}
