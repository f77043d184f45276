package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/models"
)

func dailyBars(symbol string, closes ...float64) []models.Bar {
	offsets := make([]int, len(closes))
	for i := range closes {
		offsets[i] = i
	}
	return barsAt(symbol, 24*time.Hour, offsets, closes)
}

func noFrictionConfig(policy RebalancePolicy) Config {
	cfg := DefaultConfig()
	cfg.Commission = 0
	cfg.Slippage = 0
	cfg.Rebalance = policy
	return cfg
}

func newTestSimulator(t *testing.T, cfg Config, strategy Strategy, allocator Allocator) *Simulator {
	t.Helper()
	sim, err := NewSimulator(cfg, strategy, allocator, nil)
	require.NoError(t, err)
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	sim.now = func() time.Time { return fixed }
	return sim
}

// buyThenSell покупает BTC на первой свече и продает на третьей
var buyThenSell = StrategyFunc(func(symbol string, bar models.Bar, history []models.Bar) (Signal, bool) {
	if symbol != "BTC/USDT" {
		return Signal{}, false
	}
	switch len(history) {
	case 1:
		return Signal{Action: models.ActionBuy}, true
	case 3:
		return Signal{Action: models.ActionSell}, true
	}
	return Signal{}, false
})

func TestSimulator_BuyThenSell(t *testing.T) {
	sim := newTestSimulator(t, noFrictionConfig(RebalanceNever), buyThenSell, nil)

	report, err := sim.Run(context.Background(), map[string][]models.Bar{
		"BTC/USDT": dailyBars("BTC/USDT", 100, 110, 120),
		"ETH/USDT": dailyBars("ETH/USDT", 10, 10, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, report.Status)
	assert.Equal(t, models.RunStatusCompleted, sim.Status())

	// первый шаг задает равные веса: волатильность по одной свече нулевая
	assert.InDelta(t, 0.5, report.Portfolio.SymbolWeights["BTC/USDT"], 1e-9)
	assert.Equal(t, 1, report.Rebalances)

	// buy 50 BTC @100, sell 5000/120 BTC @120
	require.Len(t, report.Trades["BTC/USDT"], 2)
	assert.InDelta(t, 50.0, report.Trades["BTC/USDT"][0].Amount, 1e-9)
	assert.InDelta(t, 5000.0/120.0, report.Trades["BTC/USDT"][1].Amount, 1e-9)

	assert.InDelta(t, 11000.0, report.Portfolio.FinalValue, 1e-6)
	assert.InDelta(t, 0.1, report.Portfolio.Return, 1e-9)
	assert.InDelta(t, 10000.0, report.Portfolio.Balances["USDT"], 1e-6)

	m := report.Symbols["BTC/USDT"]
	assert.Equal(t, 2, m.Trades)
	assert.InDelta(t, 20*5000.0/120.0/10000.0, m.TotalReturn, 1e-9)
	assert.InDelta(t, 0.5, m.WinRate, 1e-12)

	_, hasETH := report.Symbols["ETH/USDT"]
	assert.False(t, hasETH, "symbols without trades have no metrics")

	require.Len(t, report.EquityCurve, 3)
	assert.InDelta(t, 10000.0, report.EquityCurve[0].Value, 1e-6)
	assert.InDelta(t, 10500.0, report.EquityCurve[1].Value, 1e-6)
}

func TestSimulator_CommissionReducesValue(t *testing.T) {
	cfg := noFrictionConfig(RebalanceNever)
	cfg.Commission = 0.001
	sim := newTestSimulator(t, cfg, buyThenSell, nil)

	report, err := sim.Run(context.Background(), map[string][]models.Bar{
		"BTC/USDT": dailyBars("BTC/USDT", 100, 100, 100),
		"ETH/USDT": dailyBars("ETH/USDT", 10, 10, 10),
	})
	require.NoError(t, err)

	// потолок BTC 5000: buy 50 @100 и sell 50 @100, комиссия 5 + 5
	assert.InDelta(t, 10.0, report.Portfolio.Fees, 1e-9)
	assert.InDelta(t, 9990.0, report.Portfolio.FinalValue, 1e-6)
	assert.InDelta(t, 0.0, report.Portfolio.Balances["BTC"], 1e-9)
}

func TestSimulator_RejectsOversell(t *testing.T) {
	alwaysSell := StrategyFunc(func(string, models.Bar, []models.Bar) (Signal, bool) {
		return Signal{Action: models.ActionSell}, true
	})
	sim := newTestSimulator(t, noFrictionConfig(RebalanceNever), alwaysSell, nil)

	report, err := sim.Run(context.Background(), map[string][]models.Bar{
		"BTC/USDT": dailyBars("BTC/USDT", 100, 101, 102, 103),
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.SkippedTrades)
	assert.Empty(t, report.Trades["BTC/USDT"])
	assert.InDelta(t, 10000.0, report.Portfolio.FinalValue, 1e-9)
}

func TestSimulator_Deterministic(t *testing.T) {
	series := map[string][]models.Bar{
		"BTC/USDT": dailyBars("BTC/USDT", 100, 104, 99, 107, 111, 108, 115, 117, 113, 120, 118, 125, 130, 127),
		"ETH/USDT": dailyBars("ETH/USDT", 10, 10.5, 10.2, 9.8, 10.9, 11.4, 11, 11.8, 12.1, 11.7, 12.6, 12.2, 13, 13.4),
	}
	alternating := StrategyFunc(func(symbol string, bar models.Bar, history []models.Bar) (Signal, bool) {
		switch len(history) % 3 {
		case 0:
			return Signal{Action: models.ActionBuy}, true
		case 2:
			return Signal{Action: models.ActionSell}, true
		}
		return Signal{}, false
	})

	cfg := DefaultConfig()
	cfg.Slippage = 0.01
	cfg.Seed = 42

	run := func() *models.BacktestReport {
		report, err := newTestSimulator(t, cfg, alternating, nil).Run(context.Background(), series)
		require.NoError(t, err)
		return report
	}

	a, b := run(), run()
	assert.Equal(t, a.Portfolio, b.Portfolio)
	assert.Equal(t, a.Trades, b.Trades)
	assert.Equal(t, a.Symbols, b.Symbols)
	assert.Equal(t, a.EquityCurve, b.EquityCurve)
	assert.Equal(t, a.SkippedTrades, b.SkippedTrades)

	cfg.Seed = 43
	c := run()
	assert.NotEqual(t, a.Trades, c.Trades, "different seed changes fills")
}

func TestSimulator_WeeklyRebalances(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}
	none := StrategyFunc(func(string, models.Bar, []models.Bar) (Signal, bool) { return Signal{}, false })

	report, err := newTestSimulator(t, noFrictionConfig(RebalanceWeekly), none, nil).Run(context.Background(), map[string][]models.Bar{
		"BTC/USDT": dailyBars("BTC/USDT", closes...),
	})
	require.NoError(t, err)

	// 1, 8 и 15 января 2024 - понедельники
	assert.Equal(t, 3, report.Rebalances)
}

func TestSimulator_RunsOnce(t *testing.T) {
	sim := newTestSimulator(t, noFrictionConfig(RebalanceNever), buyThenSell, nil)
	series := map[string][]models.Bar{"BTC/USDT": dailyBars("BTC/USDT", 100, 110)}

	_, err := sim.Run(context.Background(), series)
	require.NoError(t, err)

	_, err = sim.Run(context.Background(), series)
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestSimulator_Failures(t *testing.T) {
	failing := AllocatorFunc(func([]string, map[string]float64) (map[string]float64, error) {
		return nil, errors.New("boom")
	})

	tests := []struct {
		name      string
		allocator Allocator
		series    map[string][]models.Bar
		ctx       func() context.Context
		check     func(t *testing.T, err error)
	}{
		{
			name:   "empty series",
			series: map[string][]models.Bar{"BTC/USDT": nil},
			ctx:    context.Background,
			check: func(t *testing.T, err error) {
				var de *DataError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, "BTC/USDT", de.Symbol)
			},
		},
		{
			name:      "allocator error",
			allocator: failing,
			series:    map[string][]models.Bar{"BTC/USDT": dailyBars("BTC/USDT", 1, 2)},
			ctx:       context.Background,
			check: func(t *testing.T, err error) {
				assert.True(t, IsAllocationError(err))
			},
		},
		{
			name:   "cancelled",
			series: map[string][]models.Bar{"BTC/USDT": dailyBars("BTC/USDT", 1, 2)},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, context.Canceled)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newTestSimulator(t, noFrictionConfig(RebalanceNever), buyThenSell, tt.allocator)

			report, err := sim.Run(tt.ctx(), tt.series)
			require.Error(t, err)
			assert.Nil(t, report)
			assert.Equal(t, models.RunStatusFailed, sim.Status())
			tt.check(t, err)
		})
	}
}

func TestNewSimulator_Validation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialCapital = 0
	_, err := NewSimulator(cfg, buyThenSell, nil, nil)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Rebalance = "quarterly"
	_, err = NewSimulator(cfg, buyThenSell, nil, nil)
	assert.Error(t, err)

	_, err = NewSimulator(DefaultConfig(), nil, nil, nil)
	assert.Error(t, err)
}
