package risk

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cryptotrader/internal/exchange"
	"cryptotrader/internal/indicators"
	"cryptotrader/internal/metrics"
	"cryptotrader/internal/models"
)

// EventSink получает события поллера; вызовы не должны блокироваться
type EventSink interface {
	PublishRiskEvent(ev models.RiskEvent)
	PublishLeverageCommand(cmd models.LeverageCommand)
}

// PollerConfig - параметры live мониторинга
type PollerConfig struct {
	Interval     time.Duration
	Symbols      []string
	Timeframe    string
	BarLookback  time.Duration // глубина запроса свечей для ATR
	ATRPeriod    int
	MaxLeverage  int
	Workers      int
	AutoLeverage bool
}

// DefaultPollerConfig возвращает параметры по умолчанию
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:     10 * time.Second,
		Timeframe:    "1h",
		BarLookback:  48 * time.Hour,
		ATRPeriod:    indicators.DefaultATRPeriod,
		MaxLeverage:  20,
		Workers:      4,
		AutoLeverage: true,
	}
}

// Этапы обработки символа (метки метрик и событий)
const (
	stageFetchPositions = "fetch_positions"
	stageFetchBars      = "fetch_bars"
	stageEvaluate       = "evaluate"
	stageLeverage       = "leverage"
)

// symbolResult - результат обработки одного символа за тик
type symbolResult struct {
	symbol    string
	applied   bool // состояние позиций получено, книгу можно обновить
	positions []models.Position
	events    []models.RiskEvent
	commands  []models.LeverageCommand
}

// Poller - периодическая проверка открытых позиций
//
// На каждом тике пул воркеров выполняет I/O по символам и чистую оценку,
// затем результаты применяются к книге только горутиной поллера.
// Сбой по одному символу превращается в событие с Error и не мешает остальным.
type Poller struct {
	cfg        PollerConfig
	thresholds models.RiskThresholds
	exec       exchange.Executor
	data       exchange.MarketData
	advisor    *LeverageAdvisor
	book       *PositionBook
	sinks      []EventSink
	logger     *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

// NewPoller создает поллер
func NewPoller(
	cfg PollerConfig,
	thresholds models.RiskThresholds,
	exec exchange.Executor,
	data exchange.MarketData,
	book *PositionBook,
	logger *zap.Logger,
	sinks ...EventSink,
) *Poller {
	def := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = def.ATRPeriod
	}
	if cfg.BarLookback <= 0 {
		cfg.BarLookback = def.BarLookback
	}
	if cfg.MaxLeverage < 1 {
		cfg.MaxLeverage = def.MaxLeverage
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = def.Timeframe
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if book == nil {
		book = NewPositionBook(DefaultRetention)
	}

	return &Poller{
		cfg:        cfg,
		thresholds: thresholds,
		exec:       exec,
		data:       data,
		advisor:    NewLeverageAdvisor(exec, logger),
		book:       book,
		sinks:      sinks,
		logger:     logger,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}
}

// Book возвращает книгу позиций (для чтения снапшотов)
func (p *Poller) Book() *PositionBook {
	return p.book
}

// Run запускает цикл мониторинга до отмены ctx или Stop
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("risk poller started",
		zap.Strings("symbols", p.cfg.Symbols),
		zap.Duration("interval", p.cfg.Interval),
		zap.Int("workers", p.cfg.Workers),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("risk poller stopped", zap.Error(ctx.Err()))
			return
		case <-p.stopCh:
			p.logger.Info("risk poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Stop останавливает цикл мониторинга
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Tick выполняет один проход по всем символам и возвращает события
//
// Если ctx отменен во время тика, книга не изменяется и события не публикуются.
func (p *Poller) Tick(ctx context.Context) []models.RiskEvent {
	started := p.now()

	prev := make(map[models.PositionKey]models.Position)
	for _, pos := range p.book.Snapshot() {
		prev[pos.Key()] = pos
	}

	results := make([]symbolResult, len(p.cfg.Symbols))
	sem := make(chan struct{}, p.cfg.Workers)
	var wg sync.WaitGroup

	for i, symbol := range p.cfg.Symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = symbolResult{symbol: symbol}
				return
			}
			defer func() { <-sem }()
			results[i] = p.processSymbol(ctx, symbol, prev)
		}(i, symbol)
	}
	wg.Wait()

	if ctx.Err() != nil {
		p.logger.Debug("tick cancelled, results discarded")
		return nil
	}

	now := p.now()
	var events []models.RiskEvent
	for _, res := range results {
		if res.applied {
			p.book.Replace(res.symbol, res.positions, now)
		}
		events = append(events, res.events...)
		for _, cmd := range res.commands {
			p.publishCommand(cmd)
		}
	}
	if removed := p.book.Prune(now); removed > 0 {
		p.logger.Debug("pruned closed positions", zap.Int("count", removed))
	}
	for _, ev := range events {
		p.publishEvent(ev)
	}

	metrics.RecordTickLatency(float64(p.now().Sub(started).Microseconds()) / 1000)
	return events
}

// processSymbol выполняет I/O и оценку позиций символа; книгу не трогает
func (p *Poller) processSymbol(ctx context.Context, symbol string, prev map[models.PositionKey]models.Position) symbolResult {
	res := symbolResult{symbol: symbol}

	hedge, err := p.exec.FetchPositions(ctx, symbol)
	if err != nil {
		res.events = append(res.events, p.errorEvent(symbol, nil, stageFetchPositions, err))
		return res
	}
	live := hedge.All()
	if len(live) == 0 {
		res.applied = true
		return res
	}

	end := p.now()
	bars, err := p.data.FetchBars(ctx, symbol, p.cfg.Timeframe, end.Add(-p.cfg.BarLookback), end)
	if err == nil && len(bars) == 0 {
		err = indicators.ErrNotEnoughData
	}
	if err != nil {
		res.events = append(res.events, p.errorEvent(symbol, nil, stageFetchBars, err))
		return res
	}
	bar := bars[len(bars)-1]

	// без ATR стоп использует InitialStopRisk/2, а плечо не трогаем
	atrFraction, atrErr := VolatilityFraction(bars, p.cfg.ATRPeriod)
	if atrErr != nil {
		atrFraction = 0
	}

	res.applied = true
	for _, src := range live {
		pos := *src
		if before, ok := prev[pos.Key()]; ok && !before.Status.IsTerminal() && before.EntryPrice == pos.EntryPrice {
			pos.StopPrice = before.StopPrice
		}
		pos.MarkPrice(bar.Close, end)

		a, err := Evaluate(pos, bar, atrFraction, p.thresholds)
		if err != nil {
			res.events = append(res.events, p.errorEvent(symbol, &pos, stageEvaluate, err))
			res.positions = append(res.positions, pos)
			continue
		}

		pos.StopPrice = a.StopPrice
		metrics.RecordEvaluation(symbol, string(a.Verdict))
		metrics.RecordMarginRatio(pos.Key().String(), a.MarginRatio)

		if a.Verdict != models.VerdictNone {
			res.events = append(res.events, models.RiskEvent{
				ID:          uuid.NewString(),
				Symbol:      symbol,
				Verdict:     a.Verdict,
				Position:    pos.Snapshot(),
				MarginRatio: a.MarginRatio,
				StopPrice:   a.StopPrice,
				Timestamp:   end.UTC(),
			})
		}
		res.positions = append(res.positions, pos)
	}

	if p.cfg.AutoLeverage && atrErr == nil {
		legs := make([]int, len(res.positions))
		for i, pos := range res.positions {
			legs[i] = pos.Leverage
		}
		cmd, err := p.advisor.AutoAdjustLegs(ctx, symbol, legs, atrFraction, p.cfg.MaxLeverage)
		switch {
		case err != nil:
			res.events = append(res.events, p.errorEvent(symbol, nil, stageLeverage, err))
		case cmd != nil:
			res.commands = append(res.commands, *cmd)
			for i := range res.positions {
				res.positions[i].SetLeverage(cmd.NewLeverage, end)
			}
		}
	}

	return res
}

// errorEvent оформляет сбой коллаборатора как событие
func (p *Poller) errorEvent(symbol string, pos *models.Position, stage string, err error) models.RiskEvent {
	metrics.RecordEvaluationError(symbol, stage)
	p.logger.Warn("risk check failed",
		zap.String("symbol", symbol),
		zap.String("stage", stage),
		zap.Error(err),
	)

	ev := models.RiskEvent{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Verdict:   models.VerdictNone,
		Timestamp: p.now().UTC(),
		Error:     stage + ": " + err.Error(),
	}
	if pos != nil {
		ev.Position = pos.Snapshot()
	}
	return ev
}

func (p *Poller) publishEvent(ev models.RiskEvent) {
	for _, s := range p.sinks {
		s.PublishRiskEvent(ev)
	}
}

func (p *Poller) publishCommand(cmd models.LeverageCommand) {
	for _, s := range p.sinks {
		s.PublishLeverageCommand(cmd)
	}
}
