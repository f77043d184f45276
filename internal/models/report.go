package models

import "time"

// Статусы прогона бэктеста
const (
	RunStatusInitialized = "initialized"
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusFailed      = "failed"
)

// BacktestReport - итоговый отчет бэктеста
type BacktestReport struct {
	RunID         string                   `json:"run_id"`
	Status        string                   `json:"status"`
	Start         time.Time                `json:"start"`
	End           time.Time                `json:"end"`
	Portfolio     PortfolioSummary         `json:"portfolio"`
	Symbols       map[string]SymbolMetrics `json:"symbols"`
	Trades        map[string][]TradeRecord `json:"trades,omitempty"`
	SkippedTrades int                      `json:"skipped_trades"`
	Rebalances    int                      `json:"rebalances"`
	EquityCurve   []EquityPoint            `json:"equity_curve,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
}

// PortfolioSummary - итог по портфелю
type PortfolioSummary struct {
	InitialCapital float64            `json:"initial_capital"`
	FinalValue     float64            `json:"final_value"`
	Return         float64            `json:"return"`
	Fees           float64            `json:"fees"`
	SymbolWeights  map[string]float64 `json:"symbol_weights"`
	Balances       map[string]float64 `json:"balances"`
}

// SymbolMetrics - показатели по символу
type SymbolMetrics struct {
	TotalReturn float64 `json:"total_return"`
	WinRate     float64 `json:"win_rate"`
	Trades      int     `json:"trades"`
}

// EquityPoint - точка кривой капитала
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// BacktestSummary - краткая запись прогона для списков
type BacktestSummary struct {
	RunID          string    `json:"run_id"`
	Status         string    `json:"status"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	InitialCapital float64   `json:"initial_capital"`
	FinalValue     float64   `json:"final_value"`
	Return         float64   `json:"return"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary возвращает краткую запись отчета
func (r *BacktestReport) Summary() BacktestSummary {
	return BacktestSummary{
		RunID:          r.RunID,
		Status:         r.Status,
		Start:          r.Start,
		End:            r.End,
		InitialCapital: r.Portfolio.InitialCapital,
		FinalValue:     r.Portfolio.FinalValue,
		Return:         r.Portfolio.Return,
		CreatedAt:      r.CreatedAt,
	}
}
