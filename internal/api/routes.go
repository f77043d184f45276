package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"cryptotrader/internal/api/handlers"
	"cryptotrader/internal/api/middleware"
	"cryptotrader/internal/service"
)

// Dependencies содержит все зависимости для API handlers
//
// Nil сервис отключает его маршруты.
type Dependencies struct {
	NotificationService service.NotificationServiceInterface
	RiskService         service.RiskServiceInterface
	BacktestService     service.BacktestServiceInterface
	// WebSocket поток событий (hub.ServeWS)
	Stream http.HandlerFunc

	Logger         *zap.Logger
	APIKeyHash     string
	AllowedOrigins []string
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── GET  /positions - снимок книги позиций (?symbol)
//	├── GET  /events - журнал событий риск-контроля (?type, ?symbol, ?limit)
//	├── GET  /orders - ордера риск-контроля (?symbol, ?limit)
//	├── GET  /risk/thresholds - действующие пороги
//	├── POST /risk/evaluate - оценка позиции
//	├── GET  /leverage/recommend - рекомендация плеча (?volatility, ?max, ?symbol)
//	├── POST /backtests - запуск бэктеста
//	├── GET  /backtests - список прогонов
//	└── GET  /backtests/{id} - отчет прогона
//
// /ws/stream - WebSocket поток событий
// /metrics - Prometheus
// /health - проверка живости
//
// Middleware: Recovery, Logging, CORS для всех маршрутов; APIKeyAuth для /api/v1 и /ws.
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS(deps.AllowedOrigins))

	auth := middleware.APIKeyAuth(deps.APIKeyHash)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth)

	if deps.NotificationService != nil {
		notificationHandler := handlers.NewNotificationHandler(deps.NotificationService)
		api.HandleFunc("/events", notificationHandler.GetNotifications).Methods(http.MethodGet, http.MethodOptions)
	}

	if deps.RiskService != nil {
		riskHandler := handlers.NewRiskHandler(deps.RiskService)
		api.HandleFunc("/positions", riskHandler.GetPositions).Methods(http.MethodGet, http.MethodOptions)
		api.HandleFunc("/orders", riskHandler.GetOrders).Methods(http.MethodGet, http.MethodOptions)
		api.HandleFunc("/risk/thresholds", riskHandler.GetThresholds).Methods(http.MethodGet, http.MethodOptions)
		api.HandleFunc("/risk/evaluate", riskHandler.Evaluate).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/leverage/recommend", riskHandler.RecommendLeverage).Methods(http.MethodGet, http.MethodOptions)
	}

	if deps.BacktestService != nil {
		backtestHandler := handlers.NewBacktestHandler(deps.BacktestService)
		api.HandleFunc("/backtests", backtestHandler.RunBacktest).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/backtests", backtestHandler.ListBacktests).Methods(http.MethodGet, http.MethodOptions)
		api.HandleFunc("/backtests/{id}", backtestHandler.GetBacktest).Methods(http.MethodGet, http.MethodOptions)
	}

	if deps.Stream != nil {
		ws := router.PathPrefix("/ws").Subrouter()
		ws.Use(auth)
		ws.HandleFunc("/stream", deps.Stream).Methods(http.MethodGet, http.MethodOptions)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}
