package risk

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cryptotrader/internal/exchange"
	"cryptotrader/internal/metrics"
	"cryptotrader/internal/models"
	"cryptotrader/pkg/retry"
)

// DefaultEnforceCooldown - пауза перед повторным закрытием той же позиции
const DefaultEnforceCooldown = 30 * time.Second

// OrderPlacer - часть исполнителя, размещающая ордера
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, symbol, side string, amount float64, reduceOnly bool) (*exchange.OrderResult, error)
}

// OrderJournal сохраняет ордера риск-контроля
type OrderJournal interface {
	Create(order *models.OrderRecord) error
}

// Enforcer закрывает позиции по вердиктам AutoLiquidate и StopLossHit
//
// Монитор только советует; ордера ставит Enforcer reduce-only рыночным
// ордером на весь объем. Повторы выполняются здесь, а не в ядре оценки.
// Неудача закрытия возвращается в failures как событие с Error.
type Enforcer struct {
	placer   OrderPlacer
	retryCfg retry.Config
	cooldown time.Duration
	failures EventSink
	journal  OrderJournal
	venue    string
	logger   *zap.Logger

	queue chan models.RiskEvent

	mu       sync.Mutex
	inflight map[models.PositionKey]time.Time

	now func() time.Time
}

// NewEnforcer создает энфорсер; failures может быть nil
func NewEnforcer(placer OrderPlacer, failures EventSink, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := retry.CloseConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying close order",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	return &Enforcer{
		placer:   placer,
		retryCfg: cfg,
		cooldown: DefaultEnforceCooldown,
		failures: failures,
		logger:   logger,
		queue:    make(chan models.RiskEvent, 64),
		inflight: make(map[models.PositionKey]time.Time),
		now:      time.Now,
	}
}

// SetJournal включает запись ордеров; venue - имя биржи в записи
func (e *Enforcer) SetJournal(j OrderJournal, venue string) {
	e.journal = j
	e.venue = venue
}

// PublishRiskEvent реализует EventSink; неисполнимые события игнорируются
func (e *Enforcer) PublishRiskEvent(ev models.RiskEvent) {
	if ev.Error != "" || !ev.Verdict.IsActionable() {
		return
	}
	select {
	case e.queue <- ev:
	default:
		metrics.RecordBufferOverflow("enforcer")
		e.logger.Error("enforcer queue full, event dropped", zap.String("symbol", ev.Symbol))
	}
}

// PublishLeverageCommand реализует EventSink
func (e *Enforcer) PublishLeverageCommand(models.LeverageCommand) {}

// Run обрабатывает очередь до отмены ctx
func (e *Enforcer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.queue:
			if _, err := e.Enforce(ctx, ev); err != nil && e.failures != nil {
				e.failures.PublishRiskEvent(e.failureEvent(ev, err))
			}
		}
	}
}

// Enforce закрывает позицию события reduce-only ордером
//
// Возвращает nil, nil если позиция уже закрывается (cooldown) или объем нулевой.
func (e *Enforcer) Enforce(ctx context.Context, ev models.RiskEvent) (*exchange.OrderResult, error) {
	pos := ev.Position
	if !ev.Verdict.IsActionable() || pos.Amount <= 0 {
		return nil, nil
	}
	key := pos.Key()

	e.mu.Lock()
	if last, ok := e.inflight[key]; ok && e.now().Sub(last) < e.cooldown {
		e.mu.Unlock()
		return nil, nil
	}
	e.inflight[key] = e.now()
	e.mu.Unlock()

	side := exchange.CloseSide(pos.Side)
	res, err := retry.DoWithResult(ctx, func() (*exchange.OrderResult, error) {
		return e.placer.PlaceOrder(ctx, pos.Symbol, side, pos.Amount, true)
	}, e.retryCfg)

	metrics.RecordEnforcement(pos.Symbol, err == nil)
	e.record(ev, side, res, err)
	if err != nil {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
		e.logger.Error("failed to close position",
			zap.String("position", key.String()),
			zap.String("verdict", string(ev.Verdict)),
			zap.Error(err),
		)
		return nil, evalErr(pos.Symbol, "close order failed", err)
	}

	e.logger.Warn("position closed by risk control",
		zap.String("position", key.String()),
		zap.String("verdict", string(ev.Verdict)),
		zap.Float64("amount", res.FilledAmount),
		zap.Float64("price", res.AvgPrice),
	)
	return res, nil
}

func (e *Enforcer) failureEvent(ev models.RiskEvent, err error) models.RiskEvent {
	return models.RiskEvent{
		ID:          uuid.NewString(),
		Symbol:      ev.Symbol,
		Verdict:     ev.Verdict,
		Position:    ev.Position,
		MarginRatio: ev.MarginRatio,
		StopPrice:   ev.StopPrice,
		Timestamp:   e.now().UTC(),
		Error:       "enforce: " + err.Error(),
	}
}

func (e *Enforcer) record(ev models.RiskEvent, side string, res *exchange.OrderResult, err error) {
	if e.journal == nil {
		return
	}
	rec := &models.OrderRecord{
		Exchange:   e.venue,
		Symbol:     ev.Position.Symbol,
		Side:       side,
		Amount:     ev.Position.Amount,
		ReduceOnly: true,
		Reason:     string(ev.Verdict),
		Status:     models.OrderStatusFailed,
		CreatedAt:  e.now().UTC(),
	}
	if err != nil {
		rec.ErrorMessage = err.Error()
	} else {
		rec.ExternalID = res.ID
		rec.FilledAmount = res.FilledAmount
		rec.AvgPrice = res.AvgPrice
		rec.Fee = res.Fee
		rec.Status = models.OrderStatusFilled
		if res.FilledAmount < rec.Amount {
			rec.Status = models.OrderStatusPartial
		}
	}
	if jerr := e.journal.Create(rec); jerr != nil {
		e.logger.Error("failed to journal order", zap.String("symbol", rec.Symbol), zap.Error(jerr))
	}
}
