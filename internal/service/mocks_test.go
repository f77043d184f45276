package service

import (
	"context"
	"errors"
	"time"

	"cryptotrader/internal/models"
	"cryptotrader/internal/repository"
)

// ============ Mock NotificationRepository ============

type MockNotificationRepository struct {
	notifications []*models.Notification
	getErr        error
	deleteErr     error

	lastCall   string
	lastLimit  int
	lastTypes  []string
	lastSymbol string
	lastBefore time.Time
}

func (m *MockNotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	m.lastCall, m.lastLimit = "recent", limit
	return m.notifications, m.getErr
}

func (m *MockNotificationRepository) GetBySymbol(symbol string, limit int) ([]*models.Notification, error) {
	m.lastCall, m.lastSymbol, m.lastLimit = "symbol", symbol, limit
	return m.notifications, m.getErr
}

func (m *MockNotificationRepository) GetByTypes(types []string, limit int) ([]*models.Notification, error) {
	m.lastCall, m.lastTypes, m.lastLimit = "types", types, limit
	return m.notifications, m.getErr
}

func (m *MockNotificationRepository) DeleteOlderThan(before time.Time) (int64, error) {
	m.lastBefore = before
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	return int64(len(m.notifications)), nil
}

// ============ Mock OrderRepository ============

type MockOrderRepository struct {
	orders    []*models.OrderRecord
	failed    int
	lastSince time.Time
}

func (m *MockOrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	if limit < len(m.orders) {
		return m.orders[:limit], nil
	}
	return m.orders, nil
}

func (m *MockOrderRepository) GetBySymbol(symbol string, limit int) ([]*models.OrderRecord, error) {
	var out []*models.OrderRecord
	for _, o := range m.orders {
		if o.Symbol == symbol && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *MockOrderRepository) CountFailedSince(since time.Time) (int, error) {
	m.lastSince = since
	return m.failed, nil
}

// ============ Mock BacktestRepository ============

type MockBacktestRepository struct {
	reports map[string]*models.BacktestReport
	saveErr error
}

func NewMockBacktestRepository() *MockBacktestRepository {
	return &MockBacktestRepository{reports: make(map[string]*models.BacktestReport)}
}

func (m *MockBacktestRepository) Save(report *models.BacktestReport) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.reports[report.RunID] = report
	return nil
}

func (m *MockBacktestRepository) GetByID(runID string) (*models.BacktestReport, error) {
	if r, ok := m.reports[runID]; ok {
		return r, nil
	}
	return nil, repository.ErrBacktestNotFound
}

func (m *MockBacktestRepository) List(limit int) ([]models.BacktestSummary, error) {
	out := make([]models.BacktestSummary, 0, len(m.reports))
	for _, r := range m.reports {
		if len(out) == limit {
			break
		}
		out = append(out, r.Summary())
	}
	return out, nil
}

func (m *MockBacktestRepository) Delete(runID string) error {
	if _, ok := m.reports[runID]; !ok {
		return repository.ErrBacktestNotFound
	}
	delete(m.reports, runID)
	return nil
}

// ============ Mock MarketData / PositionSource ============

type MockMarketData struct {
	series map[string][]models.Bar
	calls  []string
}

func (m *MockMarketData) FetchBars(_ context.Context, symbol, timeframe string, _, _ time.Time) ([]models.Bar, error) {
	m.calls = append(m.calls, symbol+"@"+timeframe)
	bars, ok := m.series[symbol]
	if !ok {
		return nil, errors.New("no data for " + symbol)
	}
	return bars, nil
}

type staticBook []models.Position

func (b staticBook) Snapshot() []models.Position {
	out := make([]models.Position, len(b))
	copy(out, b)
	return out
}
