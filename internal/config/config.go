package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cryptotrader/internal/backtest"
	"cryptotrader/internal/exchange"
	"cryptotrader/internal/models"
	"cryptotrader/internal/risk"
)

// ConfigError - некорректное значение параметра конфигурации
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Config содержит всю конфигурацию приложения
//
// Загружается один раз при старте и дальше только читается.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Security SecurityConfig
	Exchange ExchangeConfig
	Risk     models.RiskThresholds
	Monitor  MonitorConfig
	Backtest BacktestConfig
	Notify   NotifyConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port           int
	Host           string
	UseHTTPS       bool
	CertFile       string
	KeyFile        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string // CORS и WebSocket; пусто = dev origins
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
}

// RedisConfig - кеш свечей и поток событий; пустой Addr отключает Redis
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	CacheTTL     time.Duration
	Stream       string
	StreamMaxLen int64
}

// Enabled возвращает true если Redis настроен
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	APIKeyHash string // bcrypt хеш ключа API; пусто = без аутентификации
}

// ExchangeConfig - биржа для live мониторинга
type ExchangeConfig struct {
	Name        string // paper, bybit
	APIKey      string
	APISecret   string
	BaseURL     string
	DataDir     string  // CSV свечи для paper режима
	FeeRate     float64 // комиссия paper биржи
	OrdersRate  float64
	AccountRate float64
	MarketRate  float64
}

// MonitorConfig - параметры поллера
type MonitorConfig struct {
	Interval     time.Duration
	Symbols      []string
	Timeframe    string
	BarLookback  time.Duration
	ATRPeriod    int
	MaxLeverage  int
	Workers      int
	AutoLeverage bool
	Retention    time.Duration // хранение закрытых позиций в книге
}

// BacktestConfig - базовые параметры прогонов
type BacktestConfig struct {
	InitialCapital   float64
	Commission       float64
	Slippage         float64
	Rebalance        string
	Seed             int64
	BalanceTolerance float64
	VolatilityWindow time.Duration
	QuoteCurrency    string
}

// NotifyConfig - анти-спам и хранение уведомлений
type NotifyConfig struct {
	CriticalInterval time.Duration
	WarningInterval  time.Duration
	InfoInterval     time.Duration
	Retention        time.Duration // 0 = хранить всегда
	CleanupInterval  time.Duration
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	th := models.DefaultRiskThresholds()
	bt := backtest.DefaultConfig()
	pc := risk.DefaultPollerConfig()
	gl := exchange.DefaultGuardedLimits()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS:       getEnvAsBool("USE_HTTPS", false),
			CertFile:       getEnv("CERT_FILE", ""),
			KeyFile:        getEnv("KEY_FILE", ""),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Enabled:      getEnvAsBool("DB_ENABLED", true),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			Name:         getEnv("DB_NAME", "cryptotrader"),
			User:         getEnv("DB_USER", "user"),
			Password:     getEnv("DB_PASSWORD", "password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", ""),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			CacheTTL:     getEnvAsDuration("REDIS_CACHE_TTL", 10*time.Minute),
			Stream:       getEnv("REDIS_STREAM", "risk:events"),
			StreamMaxLen: int64(getEnvAsInt("REDIS_STREAM_MAXLEN", 10000)),
		},
		Security: SecurityConfig{
			APIKeyHash: getEnv("API_KEY_HASH", ""),
		},
		Exchange: ExchangeConfig{
			Name:        strings.ToLower(getEnv("EXCHANGE", "paper")),
			APIKey:      getEnv("EXCHANGE_API_KEY", ""),
			APISecret:   getEnv("EXCHANGE_API_SECRET", ""),
			BaseURL:     getEnv("EXCHANGE_BASE_URL", ""),
			DataDir:     getEnv("DATA_DIR", "./data"),
			FeeRate:     getEnvAsFloat("PAPER_FEE_RATE", 0.0006),
			OrdersRate:  getEnvAsFloat("EXCHANGE_ORDERS_RATE", gl.OrdersRate),
			AccountRate: getEnvAsFloat("EXCHANGE_ACCOUNT_RATE", gl.AccountRate),
			MarketRate:  getEnvAsFloat("EXCHANGE_MARKET_RATE", gl.MarketRate),
		},
		Risk: models.RiskThresholds{
			MarginCallRatio:         getEnvAsFloat("RISK_MARGIN_CALL_RATIO", th.MarginCallRatio),
			AutoLiquidationRatio:    getEnvAsFloat("RISK_AUTO_LIQUIDATION_RATIO", th.AutoLiquidationRatio),
			InitialStopRisk:         getEnvAsFloat("RISK_INITIAL_STOP", th.InitialStopRisk),
			TrailingActivationRatio: getEnvAsFloat("RISK_TRAILING_ACTIVATION", th.TrailingActivationRatio),
			MinTrailDistance:        getEnvAsFloat("RISK_MIN_TRAIL_DISTANCE", th.MinTrailDistance),
		},
		Monitor: MonitorConfig{
			Interval:     getEnvAsDuration("MONITOR_INTERVAL", pc.Interval),
			Symbols:      getEnvAsList("MONITOR_SYMBOLS", []string{"BTC/USDT", "ETH/USDT"}),
			Timeframe:    getEnv("MONITOR_TIMEFRAME", pc.Timeframe),
			BarLookback:  getEnvAsDuration("MONITOR_BAR_LOOKBACK", pc.BarLookback),
			ATRPeriod:    getEnvAsInt("MONITOR_ATR_PERIOD", pc.ATRPeriod),
			MaxLeverage:  getEnvAsInt("MAX_LEVERAGE", pc.MaxLeverage),
			Workers:      getEnvAsInt("MONITOR_WORKERS", pc.Workers),
			AutoLeverage: getEnvAsBool("AUTO_LEVERAGE", pc.AutoLeverage),
			Retention:    getEnvAsDuration("POSITION_RETENTION", risk.DefaultRetention),
		},
		Backtest: BacktestConfig{
			InitialCapital:   getEnvAsFloat("BACKTEST_INITIAL_CAPITAL", bt.InitialCapital),
			Commission:       getEnvAsFloat("BACKTEST_COMMISSION", bt.Commission),
			Slippage:         getEnvAsFloat("BACKTEST_SLIPPAGE", bt.Slippage),
			Rebalance:        getEnv("BACKTEST_REBALANCE", string(bt.Rebalance)),
			Seed:             int64(getEnvAsInt("BACKTEST_SEED", int(bt.Seed))),
			BalanceTolerance: getEnvAsFloat("BACKTEST_BALANCE_TOLERANCE", bt.BalanceTolerance),
			VolatilityWindow: getEnvAsDuration("BACKTEST_VOLATILITY_WINDOW", bt.VolatilityWindow),
			QuoteCurrency:    getEnv("BACKTEST_QUOTE", bt.QuoteCurrency),
		},
		Notify: NotifyConfig{
			CriticalInterval: getEnvAsDuration("NOTIFY_CRITICAL_INTERVAL", time.Minute),
			WarningInterval:  getEnvAsDuration("NOTIFY_WARNING_INTERVAL", 10*time.Minute),
			InfoInterval:     getEnvAsDuration("NOTIFY_INFO_INTERVAL", time.Hour),
			Retention:        getEnvAsDuration("NOTIFY_RETENTION", 30*24*time.Hour),
			CleanupInterval:  getEnvAsDuration("NOTIFY_CLEANUP_INTERVAL", time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет все секции
func (c *Config) Validate() error {
	if err := c.validateRanges(); err != nil {
		return err
	}
	if err := c.validateExchange(); err != nil {
		return err
	}
	return c.validateRisk()
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return configErr("SERVER_PORT", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.UseHTTPS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return configErr("CERT_FILE", "USE_HTTPS requires CERT_FILE and KEY_FILE")
	}
	if c.Database.Enabled && (c.Database.Port < 1 || c.Database.Port > 65535) {
		return configErr("DB_PORT", "must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Redis.CacheTTL < 0 {
		return configErr("REDIS_CACHE_TTL", "cannot be negative, got %v", c.Redis.CacheTTL)
	}
	if c.Monitor.Interval <= 0 {
		return configErr("MONITOR_INTERVAL", "must be positive, got %v", c.Monitor.Interval)
	}
	if c.Monitor.Workers < 1 || c.Monitor.Workers > 64 {
		return configErr("MONITOR_WORKERS", "must be between 1 and 64, got %d", c.Monitor.Workers)
	}
	if c.Monitor.ATRPeriod < 1 {
		return configErr("MONITOR_ATR_PERIOD", "must be positive, got %d", c.Monitor.ATRPeriod)
	}
	if c.Monitor.MaxLeverage < 1 || c.Monitor.MaxLeverage > 125 {
		return configErr("MAX_LEVERAGE", "must be between 1 and 125, got %d", c.Monitor.MaxLeverage)
	}
	if len(c.Monitor.Symbols) == 0 {
		return configErr("MONITOR_SYMBOLS", "at least one symbol is required")
	}
	if c.Notify.Retention < 0 {
		return configErr("NOTIFY_RETENTION", "cannot be negative, got %v", c.Notify.Retention)
	}
	if c.Notify.CleanupInterval <= 0 {
		return configErr("NOTIFY_CLEANUP_INTERVAL", "must be positive, got %v", c.Notify.CleanupInterval)
	}
	if _, err := c.Backtest.Config(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateExchange() error {
	if !exchange.IsSupported(c.Exchange.Name) {
		return configErr("EXCHANGE", "unsupported exchange %q (supported: %s)",
			c.Exchange.Name, strings.Join(exchange.SupportedExchanges, ", "))
	}
	if c.Exchange.Name == "bybit" && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return configErr("EXCHANGE_API_KEY", "bybit requires EXCHANGE_API_KEY and EXCHANGE_API_SECRET")
	}
	if c.Exchange.OrdersRate <= 0 || c.Exchange.AccountRate <= 0 || c.Exchange.MarketRate <= 0 {
		return configErr("EXCHANGE_ORDERS_RATE", "rate limits must be positive")
	}
	return nil
}

// validateRisk проверяет пороги риск-контроля
func (c *Config) validateRisk() error {
	if err := c.Risk.Validate(); err != nil {
		return configErr("RISK", "%v", err)
	}
	return nil
}

// Config собирает базовую конфигурацию симулятора
func (b BacktestConfig) Config() (backtest.Config, error) {
	policy, err := backtest.ParseRebalancePolicy(b.Rebalance)
	if err != nil {
		return backtest.Config{}, configErr("BACKTEST_REBALANCE", "%v", err)
	}
	cfg := backtest.Config{
		InitialCapital:   b.InitialCapital,
		Commission:       b.Commission,
		Slippage:         b.Slippage,
		Rebalance:        policy,
		Seed:             b.Seed,
		BalanceTolerance: b.BalanceTolerance,
		VolatilityWindow: b.VolatilityWindow,
		QuoteCurrency:    b.QuoteCurrency,
	}
	if err := cfg.Validate(); err != nil {
		return backtest.Config{}, configErr("BACKTEST", "%v", err)
	}
	return cfg, nil
}

// PollerConfig возвращает параметры поллера
func (m MonitorConfig) PollerConfig() risk.PollerConfig {
	return risk.PollerConfig{
		Interval:     m.Interval,
		Symbols:      m.Symbols,
		Timeframe:    m.Timeframe,
		BarLookback:  m.BarLookback,
		ATRPeriod:    m.ATRPeriod,
		MaxLeverage:  m.MaxLeverage,
		Workers:      m.Workers,
		AutoLeverage: m.AutoLeverage,
	}
}

// Credentials возвращает ключи для фабрики бирж
func (e ExchangeConfig) Credentials() exchange.Credentials {
	return exchange.Credentials{APIKey: e.APIKey, APISecret: e.APISecret, BaseURL: e.BaseURL, FeeRate: e.FeeRate}
}

// Limits возвращает лимиты запросов
func (e ExchangeConfig) Limits() exchange.GuardedLimits {
	return exchange.GuardedLimits{OrdersRate: e.OrdersRate, AccountRate: e.AccountRate, MarketRate: e.MarketRate}
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList разбирает значения через запятую
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
