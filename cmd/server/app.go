package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cryptotrader/internal/api"
	"cryptotrader/internal/config"
	"cryptotrader/internal/exchange"
	"cryptotrader/internal/marketdata"
	"cryptotrader/internal/models"
	"cryptotrader/internal/notify"
	"cryptotrader/internal/repository"
	"cryptotrader/internal/risk"
	"cryptotrader/internal/service"
	"cryptotrader/internal/websocket"
	"cryptotrader/pkg/utils"
)

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer func() { _ = log.Sync() }()
	logger := log.Logger

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Инициализация базы данных
	var (
		notificationRepo *repository.NotificationRepository
		orderRepo        *repository.OrderRepository
		backtestRepo     *repository.BacktestRepository
	)
	if cfg.Database.Enabled {
		db, err := initDatabase(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := repository.Migrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

		notificationRepo = repository.NewNotificationRepository(db)
		orderRepo = repository.NewOrderRepository(db)
		backtestRepo = repository.NewBacktestRepository(db)
	} else {
		logger.Warn("database disabled: events, orders and reports are not persisted")
	}

	// Redis: кеш свечей и поток событий
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Источник свечей
	var data exchange.MarketData = marketdata.NewCSVSource(cfg.Exchange.DataDir)
	if rdb != nil {
		data = marketdata.NewRedisCache(data, rdb, cfg.Redis.CacheTTL, logger.Named("bars-cache"))
	}

	// Биржа
	inner, err := exchange.NewExchange(cfg.Exchange.Name, cfg.Exchange.Credentials(), data)
	if err != nil {
		return fmt.Errorf("failed to create exchange: %w", err)
	}
	ex := exchange.NewGuarded(inner, cfg.Exchange.Limits())
	if c, ok := inner.(interface{ Close() }); ok {
		defer c.Close()
	}
	logger.Info("exchange ready", utils.Venue(ex.GetName()))

	// WebSocket hub
	hub := websocket.NewHub(logger.Named("ws"))
	hub.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	go hub.Run()
	defer hub.Stop()

	// Уведомления
	sinks := []notify.Sink{notify.NewHubSink(hub)}
	if notificationRepo != nil {
		sinks = append(sinks, notify.NewStoreSink(notificationRepo))
	}
	if rdb != nil {
		sinks = append(sinks, notify.NewStreamSink(rdb, cfg.Redis.Stream, cfg.Redis.StreamMaxLen))
	}
	dispatcher := notify.NewDispatcher(logger.Named("notify"), sinks...)
	dispatcher.Throttle().SetInterval(models.SeverityError, cfg.Notify.CriticalInterval)
	dispatcher.Throttle().SetInterval(models.SeverityWarn, cfg.Notify.WarningInterval)
	dispatcher.Throttle().SetInterval(models.SeverityInfo, cfg.Notify.InfoInterval)
	go dispatcher.Run(ctx)

	// Риск-контроль
	enforcer := risk.NewEnforcer(ex, dispatcher, logger.Named("enforcer"))
	if orderRepo != nil {
		enforcer.SetJournal(orderRepo, ex.GetName())
	}
	go enforcer.Run(ctx)

	book := risk.NewPositionBook(cfg.Monitor.Retention)
	poller := risk.NewPoller(cfg.Monitor.PollerConfig(), cfg.Risk, ex, data, book, logger.Named("poller"), dispatcher, enforcer)
	go poller.Run(ctx)
	defer poller.Stop()

	// Сервисы; nil репозиторий передается как nil интерфейс
	var (
		notificationService service.NotificationServiceInterface
		orders              service.OrderRepositoryInterface
		reports             service.BacktestRepositoryInterface
	)
	if notificationRepo != nil {
		notificationService = service.NewNotificationService(notificationRepo)
	}
	if orderRepo != nil {
		orders = orderRepo
	}
	if backtestRepo != nil {
		reports = backtestRepo
	}

	base, err := cfg.Backtest.Config()
	if err != nil {
		return err
	}
	riskService := service.NewRiskService(cfg.Risk, cfg.Monitor.MaxLeverage, book, orders)
	backtestService := service.NewBacktestService(base, data, reports, logger.Named("backtest"))

	go housekeeping(ctx, cfg, notificationService, riskService, hub, book, logger)

	router := api.SetupRoutes(&api.Dependencies{
		NotificationService: notificationService,
		RiskService:         riskService,
		BacktestService:     backtestService,
		Stream:              hub.ServeWS,
		Logger:              logger.Named("http"),
		APIKeyHash:          cfg.Security.APIKeyHash,
		AllowedOrigins:      cfg.Server.AllowedOrigins,
	})
	if cfg.Security.APIKeyHash == "" {
		logger.Warn("API_KEY_HASH is empty: API is served without authentication")
	}

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr), zap.Bool("https", cfg.Server.UseHTTPS))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// housekeeping рассылает снимок позиций, чистит журнал событий
// и предупреждает о неудачных закрытиях
func housekeeping(
	ctx context.Context,
	cfg *config.Config,
	notifications service.NotificationServiceInterface,
	riskService *service.RiskService,
	hub *websocket.Hub,
	book *risk.PositionBook,
	logger *zap.Logger,
) {
	snapshot := time.NewTicker(cfg.Monitor.Interval)
	defer snapshot.Stop()
	cleanup := time.NewTicker(cfg.Notify.CleanupInterval)
	defer cleanup.Stop()

	cleaner, _ := notifications.(*service.NotificationService)

	for {
		select {
		case <-ctx.Done():
			return
		case <-snapshot.C:
			if hub.ClientCount() > 0 {
				hub.BroadcastPositions(book.Snapshot())
			}
		case <-cleanup.C:
			if cleaner != nil && cfg.Notify.Retention > 0 {
				removed, err := cleaner.CleanupOlderThan(cfg.Notify.Retention)
				if err != nil {
					logger.Error("notification cleanup failed", zap.Error(err))
				} else if removed > 0 {
					logger.Info("old notifications removed", zap.Int64("count", removed))
				}
			}
			failed, err := riskService.FailedOrdersSince(cfg.Notify.CleanupInterval)
			if err == nil && failed > 0 {
				logger.Warn("risk close orders failed recently",
					zap.Int("count", failed),
					zap.Duration("window", cfg.Notify.CleanupInterval),
				)
			}
		}
	}
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
