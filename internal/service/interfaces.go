package service

import (
	"context"
	"time"

	"cryptotrader/internal/models"
)

// NotificationRepositoryInterface определяет интерфейс репозитория уведомлений
type NotificationRepositoryInterface interface {
	GetRecent(limit int) ([]*models.Notification, error)
	GetBySymbol(symbol string, limit int) ([]*models.Notification, error)
	GetByTypes(types []string, limit int) ([]*models.Notification, error)
	DeleteOlderThan(before time.Time) (int64, error)
}

// OrderRepositoryInterface определяет интерфейс журнала ордеров
type OrderRepositoryInterface interface {
	GetRecent(limit int) ([]*models.OrderRecord, error)
	GetBySymbol(symbol string, limit int) ([]*models.OrderRecord, error)
	CountFailedSince(since time.Time) (int, error)
}

// BacktestRepositoryInterface определяет интерфейс хранилища отчетов
type BacktestRepositoryInterface interface {
	Save(report *models.BacktestReport) error
	GetByID(runID string) (*models.BacktestReport, error)
	List(limit int) ([]models.BacktestSummary, error)
	Delete(runID string) error
}

// PositionSource - источник снапшотов книги позиций
type PositionSource interface {
	Snapshot() []models.Position
}

// ============================================================
// Интерфейсы сервисов для HTTP слоя
// ============================================================

// NotificationServiceInterface - журнал событий риск-контроля
type NotificationServiceInterface interface {
	GetNotifications(symbol string, types []string, limit int) ([]*models.Notification, error)
}

// RiskServiceInterface - состояние мониторинга и расчеты риска
type RiskServiceInterface interface {
	Thresholds() models.RiskThresholds
	Positions(symbol string) []models.Position
	Evaluate(req EvaluateRequest) (*EvaluateResponse, error)
	RecommendLeverage(symbol string, volatility float64, max int) LeverageRecommendation
	RecentOrders(symbol string, limit int) ([]*models.OrderRecord, error)
}

// BacktestServiceInterface - запуск и чтение бэктестов
type BacktestServiceInterface interface {
	Run(ctx context.Context, req BacktestRequest) (*models.BacktestReport, error)
	Get(runID string) (*models.BacktestReport, error)
	List(limit int) ([]models.BacktestSummary, error)
}

var (
	_ NotificationServiceInterface = (*NotificationService)(nil)
	_ RiskServiceInterface         = (*RiskService)(nil)
	_ BacktestServiceInterface     = (*BacktestService)(nil)
)
