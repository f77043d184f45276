package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"cryptotrader/internal/backtest"
	"cryptotrader/internal/exchange"
	"cryptotrader/internal/models"
	"cryptotrader/internal/repository"
)

// ErrBacktestNotFound - отчет с таким run_id не найден
var ErrBacktestNotFound = errors.New("backtest not found")

// Лимиты списка прогонов
const (
	DefaultBacktestLimit = 20
	MaxBacktestLimit     = 200
	memoryReportsLimit   = 50
)

// BacktestRequest - запуск бэктеста через API
//
// Bars с рядами по символам Symbols имеют приоритет; без них свечи загружаются
// из источника рыночных данных за [Start, End].
type BacktestRequest struct {
	backtest.Scenario
	Bars map[string][]models.Bar `json:"bars,omitempty"`
}

// BacktestService запускает прогоны и хранит отчеты
//
// Без репозитория последние отчеты держатся в памяти.
type BacktestService struct {
	base   backtest.Config
	data   exchange.MarketData
	repo   BacktestRepositoryInterface
	logger *zap.Logger

	mu     sync.Mutex
	memory map[string]*models.BacktestReport
	order  []string
}

// NewBacktestService создает сервис; data и repo могут быть nil
func NewBacktestService(base backtest.Config, data exchange.MarketData, repo BacktestRepositoryInterface, logger *zap.Logger) *BacktestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestService{
		base:   base,
		data:   data,
		repo:   repo,
		logger: logger,
		memory: make(map[string]*models.BacktestReport),
	}
}

// Run выполняет прогон и сохраняет отчет
func (s *BacktestService) Run(ctx context.Context, req BacktestRequest) (*models.BacktestReport, error) {
	if len(req.Symbols) == 0 && len(req.Bars) > 0 {
		for symbol := range req.Bars {
			req.Symbols = append(req.Symbols, symbol)
		}
		sort.Strings(req.Symbols)
	}

	sim, err := req.NewSimulatorFor(s.base, s.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	series, err := requestedSeries(req)
	if err != nil {
		return nil, err
	}
	if series == nil {
		if series, err = s.load(ctx, &req.Scenario); err != nil {
			return nil, err
		}
	}

	report, err := sim.Run(ctx, series)
	if err != nil {
		if backtest.IsDataError(err) || backtest.IsAllocationError(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, err
	}

	s.remember(report)
	if s.repo != nil {
		if err := s.repo.Save(report); err != nil {
			s.logger.Error("failed to persist backtest report", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}
	return report, nil
}

// requestedSeries собирает ряды из req.Bars по списку символов
//
// Символ без ряда получает nil и падает в Align с DataError. Ряды для
// символов вне списка отклоняются. nil без ошибки - Bars не переданы.
func requestedSeries(req BacktestRequest) (map[string][]models.Bar, error) {
	if len(req.Bars) == 0 {
		return nil, nil
	}
	requested := make(map[string]bool, len(req.Symbols))
	for _, symbol := range req.Symbols {
		requested[symbol] = true
	}
	for symbol := range req.Bars {
		if !requested[symbol] {
			return nil, fmt.Errorf("%w: bars supplied for unrequested symbol %s", ErrInvalidRequest, symbol)
		}
	}
	series := make(map[string][]models.Bar, len(req.Symbols))
	for _, symbol := range req.Symbols {
		series[symbol] = req.Bars[symbol]
	}
	return series, nil
}

func (s *BacktestService) load(ctx context.Context, sc *backtest.Scenario) (map[string][]models.Bar, error) {
	if s.data == nil {
		return nil, fmt.Errorf("%w: bars required, no market data source configured", ErrInvalidRequest)
	}
	series := make(map[string][]models.Bar, len(sc.Symbols))
	for _, symbol := range sc.Symbols {
		bars, err := s.data.FetchBars(ctx, symbol, sc.TimeframeOrDefault(), sc.Start, sc.End)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", symbol, err)
		}
		series[symbol] = bars
	}
	return series, nil
}

// Get возвращает отчет прогона
func (s *BacktestService) Get(runID string) (*models.BacktestReport, error) {
	s.mu.Lock()
	report, ok := s.memory[runID]
	s.mu.Unlock()
	if ok {
		return report, nil
	}
	if s.repo == nil {
		return nil, ErrBacktestNotFound
	}
	report, err := s.repo.GetByID(runID)
	if errors.Is(err, repository.ErrBacktestNotFound) {
		return nil, ErrBacktestNotFound
	}
	return report, err
}

// List возвращает краткие записи прогонов, новые сверху
func (s *BacktestService) List(limit int) ([]models.BacktestSummary, error) {
	limit = clampLimit(limit, DefaultBacktestLimit, MaxBacktestLimit)
	if s.repo != nil {
		return s.repo.List(limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BacktestSummary, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.memory[s.order[i]].Summary())
	}
	return out, nil
}

func (s *BacktestService) remember(report *models.BacktestReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory[report.RunID] = report
	s.order = append(s.order, report.RunID)
	if len(s.order) > memoryReportsLimit {
		delete(s.memory, s.order[0])
		s.order = s.order[1:]
	}
}
