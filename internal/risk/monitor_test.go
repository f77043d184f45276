package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/models"
)

func barClose(symbol string, close float64) models.Bar {
	return models.Bar{Symbol: symbol, Open: close, High: close, Low: close, Close: close}
}

func TestEvaluate_Verdicts(t *testing.T) {
	th := models.DefaultRiskThresholds()

	tests := []struct {
		name      string
		side      models.PositionSide
		entry     float64
		leverage  int
		close     float64
		want      models.RiskVerdict
		wantRatio float64
	}{
		{
			// (10 + (93.75-100)) / 93.75 = 0.04 < 0.05
			name: "auto liquidation overrides stop", side: models.SideLong, entry: 100, leverage: 10,
			close: 93.75, want: models.VerdictAutoLiquidate, wantRatio: 0.04,
		},
		{
			name: "stop loss hit", side: models.SideLong, entry: 50000, leverage: 1,
			close: 49000, want: models.VerdictStopLossHit, wantRatio: 1,
		},
		{
			// (10 + (98.5-100)) / 98.5 < 0.1, стоп 98 не пересечен
			name: "margin call", side: models.SideLong, entry: 100, leverage: 10,
			close: 98.5, want: models.VerdictMarginCall, wantRatio: 8.5 / 98.5,
		},
		{
			name: "healthy", side: models.SideLong, entry: 100, leverage: 5,
			close: 101, want: models.VerdictNone, wantRatio: 21.0 / 101,
		},
		{
			// short: (10 + (100-101.5)) / 101.5, стоп 102 не пересечен
			name: "short margin call", side: models.SideShort, entry: 100, leverage: 10,
			close: 101.5, want: models.VerdictMarginCall, wantRatio: 8.5 / 101.5,
		},
		{
			name: "short stop loss", side: models.SideShort, entry: 100, leverage: 2,
			close: 102, want: models.VerdictStopLossHit, wantRatio: 48.0 / 102,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := mustPosition(t, tt.side, tt.entry, 1, tt.leverage)

			a, err := Evaluate(pos, barClose("BTC/USDT", tt.close), 0, th)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Verdict)
			assert.InDelta(t, tt.wantRatio, a.MarginRatio, 1e-9)
		})
	}
}

func TestClassifyMargin_ThresholdOrdering(t *testing.T) {
	th := models.RiskThresholds{MarginCallRatio: 0.1, AutoLiquidationRatio: 0.05}

	assert.Equal(t, models.VerdictAutoLiquidate, ClassifyMargin(0.04, th))
	assert.Equal(t, models.VerdictMarginCall, ClassifyMargin(0.07, th))
	assert.Equal(t, models.VerdictNone, ClassifyMargin(0.1, th))

	// ниже порога авто-ликвидации margin call не сообщается никогда
	for r := -0.5; r < th.AutoLiquidationRatio; r += 0.001 {
		require.Equal(t, models.VerdictAutoLiquidate, ClassifyMargin(r, th), "ratio %v", r)
	}
}

func TestEvaluate_MalformedSnapshot(t *testing.T) {
	th := models.DefaultRiskThresholds()
	good := mustPosition(t, models.SideLong, 100, 1, 3)

	tests := []struct {
		name   string
		mutate func(p *models.Position, b *models.Bar)
	}{
		{"missing entry", func(p *models.Position, _ *models.Bar) { p.EntryPrice = 0 }},
		{"zero amount", func(p *models.Position, _ *models.Bar) { p.Amount = 0 }},
		{"leverage below one", func(p *models.Position, _ *models.Bar) { p.Leverage = 0 }},
		{"no close", func(_ *models.Position, b *models.Bar) { b.Close = 0 }},
		{"symbol mismatch", func(_ *models.Position, b *models.Bar) { b.Symbol = "ETH/USDT" }},
		{"closed position", func(p *models.Position, _ *models.Bar) { p.Status = models.PositionClosed }},
		{"empty symbol", func(p *models.Position, _ *models.Bar) { p.Symbol = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := good
			bar := barClose("BTC/USDT", 100)
			tt.mutate(&pos, &bar)

			_, err := Evaluate(pos, bar, 0, th)
			require.Error(t, err)
			assert.True(t, IsEvaluationError(err))
		})
	}
}

func TestEvaluate_InvalidThresholds(t *testing.T) {
	th := models.DefaultRiskThresholds()
	th.AutoLiquidationRatio = 0.2 // выше margin call

	_, err := Evaluate(mustPosition(t, models.SideLong, 100, 1, 3), barClose("BTC/USDT", 100), 0, th)
	assert.True(t, IsEvaluationError(err))
}

func TestEvaluate_IsPure(t *testing.T) {
	th := models.DefaultRiskThresholds()
	pos := mustPosition(t, models.SideLong, 100, 1, 3)
	before := pos

	_, err := Evaluate(pos, barClose("BTC/USDT", 180), 0.02, th)
	require.NoError(t, err)
	assert.Equal(t, before, pos)
}
