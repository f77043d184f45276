package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"cryptotrader/internal/models"
	"cryptotrader/internal/service"
)

// ============ Mock Notification Service ============

type MockNotificationService struct {
	notifications []*models.Notification
	err           error

	lastSymbol string
	lastTypes  []string
	lastLimit  int
	nextID     int
}

func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{nextID: 1}
}

func (m *MockNotificationService) AddNotification(typ, severity, symbol, message string) {
	m.notifications = append(m.notifications, &models.Notification{
		ID:        m.nextID,
		Timestamp: time.Date(2024, 1, 1, 0, 0, m.nextID, 0, time.UTC),
		Type:      typ,
		Severity:  severity,
		Symbol:    symbol,
		Message:   message,
	})
	m.nextID++
}

func (m *MockNotificationService) GetNotifications(symbol string, types []string, limit int) ([]*models.Notification, error) {
	m.lastSymbol, m.lastTypes, m.lastLimit = symbol, types, limit
	if m.err != nil {
		return nil, m.err
	}
	return m.notifications, nil
}

// ============ Mock Risk Service ============

type MockRiskService struct {
	positions []models.Position
	orders    []*models.OrderRecord
	ordersErr error
	evalResp  *service.EvaluateResponse
	evalErr   error

	lastEval  service.EvaluateRequest
	lastMax   int
	lastLimit int
}

func (m *MockRiskService) Thresholds() models.RiskThresholds {
	return models.DefaultRiskThresholds()
}

func (m *MockRiskService) Positions(symbol string) []models.Position {
	out := []models.Position{}
	for _, p := range m.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockRiskService) Evaluate(req service.EvaluateRequest) (*service.EvaluateResponse, error) {
	m.lastEval = req
	return m.evalResp, m.evalErr
}

func (m *MockRiskService) RecommendLeverage(symbol string, volatility float64, max int) service.LeverageRecommendation {
	m.lastMax = max
	if max <= 0 {
		max = 20
	}
	return service.LeverageRecommendation{Symbol: symbol, Volatility: volatility, Max: max, Leverage: 3}
}

func (m *MockRiskService) RecentOrders(symbol string, limit int) ([]*models.OrderRecord, error) {
	m.lastLimit = limit
	return m.orders, m.ordersErr
}

// ============ Mock Backtest Service ============

type MockBacktestService struct {
	mu      sync.Mutex
	reports map[string]*models.BacktestReport
	runErr  error
	lastReq service.BacktestRequest
}

func NewMockBacktestService() *MockBacktestService {
	return &MockBacktestService{reports: make(map[string]*models.BacktestReport)}
}

func (m *MockBacktestService) Run(_ context.Context, req service.BacktestRequest) (*models.BacktestReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReq = req
	if m.runErr != nil {
		return nil, m.runErr
	}
	report := &models.BacktestReport{
		RunID:  "run-1",
		Status: models.RunStatusCompleted,
		Start:  req.Start,
		End:    req.End,
		Portfolio: models.PortfolioSummary{
			InitialCapital: 1000,
			FinalValue:     1100,
			Return:         0.1,
		},
	}
	m.reports[report.RunID] = report
	return report, nil
}

func (m *MockBacktestService) Get(runID string) (*models.BacktestReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[runID]; ok {
		return r, nil
	}
	return nil, service.ErrBacktestNotFound
}

func (m *MockBacktestService) List(limit int) ([]models.BacktestSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit < 0 {
		return nil, errors.New("bad limit")
	}
	var out []models.BacktestSummary
	for _, r := range m.reports {
		out = append(out, r.Summary())
	}
	return out, nil
}
