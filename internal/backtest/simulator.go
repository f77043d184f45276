package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cryptotrader/internal/indicators"
	"cryptotrader/internal/metrics"
	"cryptotrader/internal/models"
)

// Config - неизменяемые параметры прогона
type Config struct {
	InitialCapital   float64
	Commission       float64 // доля от объема сделки
	Slippage         float64 // std нормального шума цены исполнения
	Rebalance        RebalancePolicy
	Seed             int64
	BalanceTolerance float64 // допустимый минус по балансу
	VolatilityWindow time.Duration
	QuoteCurrency    string
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		InitialCapital:   10000,
		Commission:       0.0005,
		Slippage:         0.0001,
		Rebalance:        RebalanceWeekly,
		Seed:             1,
		BalanceTolerance: 1e-9,
		VolatilityWindow: 30 * 24 * time.Hour,
		QuoteCurrency:    models.DefaultQuoteCurrency,
	}
}

// Validate проверяет параметры прогона
func (c Config) Validate() error {
	if !(c.InitialCapital > 0) {
		return fmt.Errorf("initial capital must be positive, got %v", c.InitialCapital)
	}
	if c.Commission < 0 || c.Commission >= 1 || math.IsNaN(c.Commission) {
		return fmt.Errorf("commission must be in [0,1), got %v", c.Commission)
	}
	if c.Slippage < 0 || math.IsNaN(c.Slippage) {
		return fmt.Errorf("slippage cannot be negative, got %v", c.Slippage)
	}
	if c.BalanceTolerance < 0 || math.IsNaN(c.BalanceTolerance) {
		return fmt.Errorf("balance tolerance cannot be negative, got %v", c.BalanceTolerance)
	}
	if c.VolatilityWindow <= 0 {
		return fmt.Errorf("volatility window must be positive, got %v", c.VolatilityWindow)
	}
	if _, err := ParseRebalancePolicy(string(c.Rebalance)); err != nil {
		return err
	}
	return nil
}

// runTransitions определяет допустимые переходы состояния прогона
var runTransitions = map[string][]string{
	models.RunStatusInitialized: {models.RunStatusRunning},
	models.RunStatusRunning:     {models.RunStatusCompleted, models.RunStatusFailed},
	models.RunStatusCompleted:   {},
	models.RunStatusFailed:      {},
}

func canTransitionRun(from, to string) bool {
	for _, s := range runTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Simulator - мультисимвольный бэктест с ребалансировкой по risk parity
//
// Прогон однопоточный и детерминированный: одинаковые входные данные
// и Seed дают одинаковый отчет. Экземпляр запускается один раз.
type Simulator struct {
	cfg       Config
	strategy  Strategy
	allocator Allocator
	logger    *zap.Logger

	mu     sync.RWMutex
	status string
	runID  string

	now func() time.Time
}

// NewSimulator создает симулятор в состоянии initialized
func NewSimulator(cfg Config, strategy Strategy, allocator Allocator, logger *zap.Logger) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest config: %w", err)
	}
	if strategy == nil {
		return nil, errors.New("strategy is required")
	}
	if allocator == nil {
		allocator = NewRiskParityAllocator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = models.DefaultQuoteCurrency
	}
	cfg.Rebalance, _ = ParseRebalancePolicy(string(cfg.Rebalance))

	return &Simulator{
		cfg:       cfg,
		strategy:  strategy,
		allocator: allocator,
		logger:    logger,
		status:    models.RunStatusInitialized,
		runID:     uuid.NewString(),
		now:       time.Now,
	}, nil
}

// RunID возвращает идентификатор прогона
func (s *Simulator) RunID() string {
	return s.runID
}

// Status возвращает текущее состояние прогона
func (s *Simulator) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Simulator) transition(to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransitionRun(s.status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrAlreadyRun, s.status, to)
	}
	s.status = to
	return nil
}

// runState - изменяемое состояние одного прогона
type runState struct {
	timeline   *Timeline
	portfolio  *Portfolio
	schedule   *rebalanceSchedule
	rng        *rand.Rand
	weights    map[string]float64
	ceilings   map[string]float64
	bases      map[string]string
	trades     map[string][]models.TradeRecord
	equity     []models.EquityPoint
	skipped    int
	rebalances int
}

// Run выполняет прогон по рядам свечей и возвращает отчет
//
// DataError и AllocationError прерывают прогон (состояние failed),
// TradeRejected только пропускает сделку. Отмена ctx переводит прогон в failed.
func (s *Simulator) Run(ctx context.Context, series map[string][]models.Bar) (*models.BacktestReport, error) {
	if err := s.transition(models.RunStatusRunning); err != nil {
		return nil, err
	}
	started := s.now()

	report, err := s.run(ctx, series)
	elapsed := s.now().Sub(started).Seconds()
	if err != nil {
		_ = s.transition(models.RunStatusFailed)
		metrics.RecordBacktestRun(models.RunStatusFailed, elapsed)
		s.logger.Error("backtest failed", zap.String("run_id", s.runID), zap.Error(err))
		return nil, err
	}

	_ = s.transition(models.RunStatusCompleted)
	metrics.RecordBacktestRun(models.RunStatusCompleted, elapsed)
	report.Status = models.RunStatusCompleted
	s.logger.Info("backtest completed",
		zap.String("run_id", s.runID),
		zap.Float64("final_value", report.Portfolio.FinalValue),
		zap.Float64("return", report.Portfolio.Return),
		zap.Int("skipped_trades", report.SkippedTrades),
	)
	return report, nil
}

func (s *Simulator) run(ctx context.Context, series map[string][]models.Bar) (*models.BacktestReport, error) {
	tl, err := Align(series)
	if err != nil {
		return nil, err
	}

	st := &runState{
		timeline:  tl,
		portfolio: NewPortfolio(s.cfg.QuoteCurrency, s.cfg.InitialCapital),
		schedule:  newRebalanceSchedule(s.cfg.Rebalance),
		rng:       rand.New(rand.NewSource(s.cfg.Seed)),
		ceilings:  make(map[string]float64, len(tl.Symbols)),
		bases:     make(map[string]string, len(tl.Symbols)),
		trades:    make(map[string][]models.TradeRecord, len(tl.Symbols)),
		equity:    make([]models.EquityPoint, 0, tl.Len()),
	}
	for _, symbol := range tl.Symbols {
		base, _ := models.SplitSymbol(symbol, s.cfg.QuoteCurrency)
		if base == s.cfg.QuoteCurrency {
			return nil, &DataError{Symbol: symbol, Reason: "symbol base equals quote currency"}
		}
		st.bases[symbol] = base
	}

	s.logger.Info("backtest started",
		zap.String("run_id", s.runID),
		zap.Strings("symbols", tl.Symbols),
		zap.Int("steps", tl.Len()),
		zap.String("rebalance", string(s.cfg.Rebalance)),
	)

	for i, ts := range tl.Steps {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("backtest cancelled at %s: %w", ts.Format(time.RFC3339), ctx.Err())
		default:
		}

		// первый шаг всегда задает веса, иначе политика never не торговала бы
		if boundary := st.schedule.IsBoundary(ts); boundary || i == 0 {
			if err := s.rebalance(st, ts); err != nil {
				return nil, err
			}
		}

		for _, symbol := range tl.Symbols {
			bar, ok := tl.BarAt(symbol, ts)
			if !ok {
				continue
			}
			s.step(st, symbol, bar, ts)
		}

		st.equity = append(st.equity, st.portfolio.EquityPoint(ts))
	}

	return s.buildReport(st), nil
}

// rebalance пересчитывает веса и потолки капитала; сделок не совершает
func (s *Simulator) rebalance(st *runState, ts time.Time) error {
	vols := make(map[string]float64, len(st.timeline.Symbols))
	for _, symbol := range st.timeline.Symbols {
		vols[symbol] = indicators.RecentVolatility(st.timeline.History(symbol, ts), ts, s.cfg.VolatilityWindow)
	}

	weights, err := s.allocator.ComputeWeights(st.timeline.Symbols, vols)
	if err != nil {
		var ae *AllocationError
		if errors.As(err, &ae) {
			return err
		}
		return &AllocationError{Reason: err.Error()}
	}

	quote := st.portfolio.Balance(s.cfg.QuoteCurrency)
	for _, symbol := range st.timeline.Symbols {
		st.ceilings[symbol] = quote * weights[symbol]
	}
	st.weights = weights
	st.rebalances++
	metrics.RecordRebalance()

	s.logger.Debug("portfolio rebalanced",
		zap.Time("ts", ts),
		zap.Any("weights", weights),
		zap.Float64("quote_balance", quote),
	)
	return nil
}

// step обрабатывает одну свечу символа: переоценка, сигнал, сделка
func (s *Simulator) step(st *runState, symbol string, bar models.Bar, ts time.Time) {
	base := st.bases[symbol]
	if bar.Close > 0 {
		st.portfolio.Mark(base, bar.Close)
	}

	signal, ok := s.strategy.Signal(symbol, bar, st.timeline.History(symbol, ts))
	if !ok {
		return
	}
	if signal.Action != models.ActionBuy && signal.Action != models.ActionSell {
		s.logger.Warn("unknown signal action ignored", zap.String("symbol", symbol), zap.String("action", string(signal.Action)))
		return
	}

	price := signal.Price
	if price <= 0 {
		price = bar.Close
	}
	fill := price * (1 + st.rng.NormFloat64()*s.cfg.Slippage)

	reject := func(reason, asset string, balance float64) {
		err := &TradeRejected{Symbol: symbol, Timestamp: ts, Action: signal.Action, Asset: asset, Balance: balance, Reason: reason}
		st.skipped++
		metrics.RecordBacktestTrade(false)
		s.logger.Warn("trade skipped", zap.Error(err))
	}

	ceiling := st.ceilings[symbol]
	if !(fill > 0) || !(ceiling > 0) {
		reject("no allocated capital or non-positive fill price", s.cfg.QuoteCurrency, st.portfolio.Balance(s.cfg.QuoteCurrency))
		return
	}

	amount := ceiling / fill
	trade := models.TradeRecord{
		Timestamp:  ts,
		Symbol:     symbol,
		Action:     signal.Action,
		Price:      fill,
		Amount:     amount,
		Commission: amount * fill * s.cfg.Commission,
	}

	if asset, balance, ok := st.portfolio.Check(trade, base, s.cfg.BalanceTolerance); !ok {
		reject("balance would go negative", asset, balance)
		return
	}

	st.portfolio.Apply(trade, base)
	st.trades[symbol] = append(st.trades[symbol], trade)
	metrics.RecordBacktestTrade(true)
}

// buildReport считает итоговые показатели портфеля и символов
func (s *Simulator) buildReport(st *runState) *models.BacktestReport {
	tl := st.timeline
	final := st.portfolio.Value()
	initial := s.cfg.InitialCapital

	report := &models.BacktestReport{
		RunID:  s.runID,
		Status: models.RunStatusRunning,
		Start:  tl.Steps[0],
		End:    tl.Steps[len(tl.Steps)-1],
		Portfolio: models.PortfolioSummary{
			InitialCapital: initial,
			FinalValue:     final,
			Return:         final/initial - 1,
			Fees:           st.portfolio.Fees(),
			SymbolWeights:  copyWeights(st.weights),
			Balances:       st.portfolio.Balances(),
		},
		Symbols:       make(map[string]models.SymbolMetrics, len(st.trades)),
		Trades:        st.trades,
		SkippedTrades: st.skipped,
		Rebalances:    st.rebalances,
		EquityCurve:   st.equity,
		CreatedAt:     s.now().UTC(),
	}

	for symbol, trades := range st.trades {
		if len(trades) == 0 {
			continue
		}
		report.Symbols[symbol] = symbolMetrics(trades, initial)
	}
	return report
}

// symbolMetrics: pnl_i = (price_i - price_{i-1}) * amount_i, у первой сделки pnl нет
func symbolMetrics(trades []models.TradeRecord, initial float64) models.SymbolMetrics {
	var total float64
	wins := 0
	for i := 1; i < len(trades); i++ {
		pnl := (trades[i].Price - trades[i-1].Price) * trades[i].Amount
		total += pnl
		if pnl > 0 {
			wins++
		}
	}
	return models.SymbolMetrics{
		TotalReturn: total / initial,
		WinRate:     float64(wins) / float64(len(trades)),
		Trades:      len(trades),
	}
}
