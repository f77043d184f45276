package metrics

import (
	"runtime"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики риск-контроля и бэктеста
// ============================================================
//
// Подсистемы:
// - risk: оценки позиций, вердикты, ошибки коллабораторов
// - leverage: команды изменения плеча
// - backtest: сделки, отклоненные сделки, ребалансировки
// - notify: доставка уведомлений по приемникам
// - exchange: REST запросы к бирже
//
// Экспортируются на /metrics через promhttp.

const namespace = "cryptotrader"

// ============ Риск-контроль ============

// RiskEvaluations - количество оценок позиций по вердиктам
var RiskEvaluations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "evaluations_total",
		Help:      "Total number of position risk evaluations by verdict",
	},
	[]string{"symbol", "verdict"},
)

// RiskEvaluationErrors - ошибки оценки (битые снапшоты, сбои биржи)
var RiskEvaluationErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "evaluation_errors_total",
		Help:      "Number of failed risk evaluations",
	},
	[]string{"symbol", "stage"}, // stage: fetch_positions, fetch_bars, evaluate, enforce
)

// MonitorTickLatency - длительность одного тика поллера
var MonitorTickLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "monitor_tick_latency_ms",
		Help:      "Duration of one monitor tick in milliseconds",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	},
)

// ActivePositions - текущее количество открытых позиций в книге
var ActivePositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "active_positions",
		Help:      "Current number of open positions in the position book",
	},
)

// MarginRatio - последний коэффициент маржи по позиции
var MarginRatio = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "margin_ratio",
		Help:      "Last observed margin ratio per position",
	},
	[]string{"position"},
)

// EnforcementOrders - ордера на закрытие, отправленные энфорсером
var EnforcementOrders = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "risk",
		Name:      "enforcement_orders_total",
		Help:      "Reduce-only orders placed for actionable verdicts",
	},
	[]string{"symbol", "result"}, // result: success, failed
)

// ============ Плечо ============

// LeverageChanges - команды изменения плеча
var LeverageChanges = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "leverage",
		Name:      "changes_total",
		Help:      "Number of leverage change commands issued",
	},
	[]string{"symbol"},
)

// RecommendedLeverage - последнее рекомендованное плечо
var RecommendedLeverage = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "leverage",
		Name:      "recommended",
		Help:      "Last recommended leverage per symbol",
	},
	[]string{"symbol"},
)

// ============ Бэктест ============

// BacktestTrades - исполненные симулированные сделки
var BacktestTrades = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backtest",
		Name:      "trades_total",
		Help:      "Simulated trades by result",
	},
	[]string{"result"}, // executed, rejected
)

// BacktestRebalances - ребалансировки портфеля
var BacktestRebalances = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backtest",
		Name:      "rebalances_total",
		Help:      "Number of portfolio rebalances",
	},
)

// BacktestRunDuration - длительность прогона
var BacktestRunDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backtest",
		Name:      "run_duration_seconds",
		Help:      "Backtest run duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	},
	[]string{"status"},
)

// ============ Уведомления ============

// NotificationsDelivered - доставка уведомлений по приемникам
var NotificationsDelivered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "delivered_total",
		Help:      "Notifications delivered per sink and result",
	},
	[]string{"sink", "result"},
)

// NotificationsSuppressed - уведомления, подавленные анти-спамом
var NotificationsSuppressed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "suppressed_total",
		Help:      "Notifications suppressed by rate limiting",
	},
	[]string{"severity"},
)

// ============ Рыночные данные и WebSocket ============

// BarCacheRequests - обращения к кэшу свечей
var BarCacheRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "marketdata",
		Name:      "cache_requests_total",
		Help:      "Bar cache lookups by result",
	},
	[]string{"result"}, // hit, miss, error
)

// ExchangeRequests - REST запросы к бирже
var ExchangeRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "exchange",
		Name:      "requests_total",
		Help:      "Exchange REST requests by endpoint and result",
	},
	[]string{"endpoint", "result"}, // result: 2xx..5xx, transport
)

// ExchangeLatency - задержка REST запросов к бирже
var ExchangeLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "exchange",
		Name:      "request_latency_ms",
		Help:      "Exchange REST request latency in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	},
	[]string{"endpoint"},
)

// WSClients - подключенные WebSocket клиенты
var WSClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "clients",
		Help:      "Number of connected WebSocket clients",
	},
)

// BufferOverflows - переполнения буферов каналов
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runtime",
		Name:      "buffer_overflows_total",
		Help:      "Number of channel buffer overflows (events dropped)",
	},
	[]string{"buffer"},
)

// GoroutineCount - количество горутин
var GoroutineCount = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "runtime",
		Name:      "goroutines",
		Help:      "Current number of goroutines",
	},
)

// ============ Вспомогательные функции ============

// RecordEvaluation записывает результат оценки позиции
func RecordEvaluation(symbol, verdict string) {
	RiskEvaluations.WithLabelValues(symbol, verdict).Inc()
}

// RecordEvaluationError записывает ошибку оценки на указанном этапе
func RecordEvaluationError(symbol, stage string) {
	RiskEvaluationErrors.WithLabelValues(symbol, stage).Inc()
}

// RecordTickLatency записывает длительность тика
func RecordTickLatency(latencyMs float64) {
	MonitorTickLatency.Observe(latencyMs)
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// RecordMarginRatio записывает коэффициент маржи позиции
func RecordMarginRatio(position string, ratio float64) {
	MarginRatio.WithLabelValues(position).Set(ratio)
}

// ForgetPosition удаляет серии закрытой позиции
func ForgetPosition(position string) {
	MarginRatio.DeleteLabelValues(position)
}

// UpdateActivePositions обновляет счетчик открытых позиций
func UpdateActivePositions(count int) {
	ActivePositions.Set(float64(count))
}

// RecordEnforcement записывает результат принудительного закрытия
func RecordEnforcement(symbol string, ok bool) {
	result := "failed"
	if ok {
		result = "success"
	}
	EnforcementOrders.WithLabelValues(symbol, result).Inc()
}

// RecordLeverageChange записывает команду изменения плеча
func RecordLeverageChange(symbol string, leverage int) {
	LeverageChanges.WithLabelValues(symbol).Inc()
	RecommendedLeverage.WithLabelValues(symbol).Set(float64(leverage))
}

// RecordRecommendation записывает рекомендацию без команды
func RecordRecommendation(symbol string, leverage int) {
	RecommendedLeverage.WithLabelValues(symbol).Set(float64(leverage))
}

// RecordBacktestTrade записывает исполненную или отклоненную сделку
func RecordBacktestTrade(executed bool) {
	if executed {
		BacktestTrades.WithLabelValues("executed").Inc()
		return
	}
	BacktestTrades.WithLabelValues("rejected").Inc()
}

// RecordRebalance записывает ребалансировку
func RecordRebalance() {
	BacktestRebalances.Inc()
}

// RecordBacktestRun записывает длительность прогона
func RecordBacktestRun(status string, seconds float64) {
	BacktestRunDuration.WithLabelValues(status).Observe(seconds)
}

// RecordDelivery записывает доставку уведомления
func RecordDelivery(sink string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	NotificationsDelivered.WithLabelValues(sink, result).Inc()
}

// RecordSuppressed записывает подавленное уведомление
func RecordSuppressed(severity string) {
	NotificationsSuppressed.WithLabelValues(severity).Inc()
}

// RecordCacheLookup записывает обращение к кэшу свечей
func RecordCacheLookup(result string) {
	BarCacheRequests.WithLabelValues(result).Inc()
}

// RecordExchangeRequest записывает запрос к бирже; status 0 = ошибка транспорта
func RecordExchangeRequest(endpoint string, status int, latencyMs float64) {
	result := "transport"
	if status > 0 {
		result = strconv.Itoa(status/100) + "xx"
	}
	ExchangeRequests.WithLabelValues(endpoint, result).Inc()
	ExchangeLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// SetWSClients обновляет число WebSocket клиентов
func SetWSClients(count int) {
	WSClients.Set(float64(count))
}

// RecordBufferOverflow записывает переполнение буфера
func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}
