package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cryptotrader/internal/metrics"
	"cryptotrader/internal/models"
)

const (
	defaultQueueSize   = 256
	defaultSinkTimeout = 5 * time.Second
	throttleGCInterval = 10 * time.Minute
)

// Dispatcher получает события поллера и доставляет их во все приемники
//
// Реализует risk.EventSink: Publish* не блокируются, при полной очереди
// уведомление отбрасывается. Ошибка одного приемника не мешает остальным.
type Dispatcher struct {
	sinks       []Sink
	throttle    *Throttle
	queue       chan *Notice
	sinkTimeout time.Duration
	logger      *zap.Logger

	now func() time.Time
}

// NewDispatcher создает диспетчер с анти-спамом по умолчанию
func NewDispatcher(logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sinks:       sinks,
		throttle:    NewThrottle(),
		queue:       make(chan *Notice, defaultQueueSize),
		sinkTimeout: defaultSinkTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Throttle возвращает анти-спам (для настройки интервалов)
func (d *Dispatcher) Throttle() *Throttle {
	return d.throttle
}

// PublishRiskEvent ставит событие в очередь доставки
func (d *Dispatcher) PublishRiskEvent(ev models.RiskEvent) {
	d.enqueue(FromRiskEvent(ev))
}

// PublishLeverageCommand ставит изменение плеча в очередь доставки
func (d *Dispatcher) PublishLeverageCommand(cmd models.LeverageCommand) {
	d.enqueue(FromLeverageCommand(cmd))
}

func (d *Dispatcher) enqueue(n *Notice) {
	select {
	case d.queue <- n:
	default:
		metrics.RecordBufferOverflow("notify")
		d.logger.Error("notification queue full, dropped",
			zap.String("symbol", n.Notification.Symbol),
			zap.String("type", n.Notification.Type),
		)
	}
}

// Run доставляет уведомления до отмены ctx
func (d *Dispatcher) Run(ctx context.Context) {
	gc := time.NewTicker(throttleGCInterval)
	defer gc.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.Dispatch(ctx, n)
		case <-gc.C:
			d.throttle.Forget(d.now())
		}
	}
}

// Dispatch доставляет одно уведомление; false если подавлено анти-спамом
func (d *Dispatcher) Dispatch(ctx context.Context, n *Notice) bool {
	if n.Notification.Timestamp.IsZero() {
		n.Notification.Timestamp = d.now().UTC()
	}
	if !d.throttle.Allow(n.Key(), n.Notification.Severity, d.now()) {
		metrics.RecordSuppressed(n.Notification.Severity)
		return false
	}

	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
		err := sink.Deliver(sctx, n)
		cancel()

		metrics.RecordDelivery(sink.Name(), err)
		if err != nil {
			d.logger.Warn("notification delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("symbol", n.Notification.Symbol),
				zap.String("type", n.Notification.Type),
				zap.Error(err),
			)
		}
	}
	return true
}
