package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/models"
)

func mustPosition(t *testing.T, side models.PositionSide, entry, amount float64, leverage int) models.Position {
	t.Helper()
	p, err := models.NewPosition("BTC/USDT", side, entry, amount, leverage, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return *p
}

func TestComputeStop_Long(t *testing.T) {
	th := models.DefaultRiskThresholds() // risk 0.02, activation 0.5, min trail 0.01

	tests := []struct {
		name     string
		current  float64
		atr      float64
		want     float64
		trailing bool
	}{
		{"at initial stop", 98, 0.04, 98, false},
		{"below initial stop", 90, 0.04, 98, false},
		{"in profit below activation", 140, 0.04, 98, false},
		{"activated with atr", 150, 0.04, 150 * 0.98, true},
		{"activated, min trail wins", 200, 0.01, 200 * 0.99, true},
		{"activated without atr", 160, 0, 160 * 0.99, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lvl := ComputeStop(models.SideLong, 100, tt.current, tt.atr, th)
			assert.InDelta(t, tt.want, lvl.Price, 1e-9)
			assert.Equal(t, tt.trailing, lvl.Trailing)
		})
	}
}

func TestComputeStop_ShortMirrorsLong(t *testing.T) {
	th := models.DefaultRiskThresholds()

	assert.InDelta(t, 102.0, ComputeStop(models.SideShort, 100, 105, 0.04, th).Price, 1e-9)
	assert.InDelta(t, 102.0, ComputeStop(models.SideShort, 100, 70, 0.04, th).Price, 1e-9)

	lvl := ComputeStop(models.SideShort, 100, 50, 0.04, th)
	assert.True(t, lvl.Trailing)
	assert.InDelta(t, 50*1.02, lvl.Price, 1e-9)
}

func TestTrailingStop_InitialStopScenario(t *testing.T) {
	th := models.DefaultRiskThresholds()
	pos := mustPosition(t, models.SideLong, 50000, 1, 1)

	lvl := TrailingStop(pos, 49000, 0, th)
	assert.InDelta(t, 49000.0, lvl.Price, 1e-9)
	assert.True(t, StopCrossed(models.SideLong, 49000, lvl.Price))
}

func TestTrailingStop_LongMonotonic(t *testing.T) {
	th := models.DefaultRiskThresholds()
	pos := mustPosition(t, models.SideLong, 100, 1, 1)

	prev := 0.0
	for price := 100.0; price <= 300; price += 3.7 {
		atr := 0.01 + float64(int(price)%7)/100 // ATR скачет, стоп не должен падать
		lvl := TrailingStop(pos, price, atr, th)
		require.GreaterOrEqual(t, lvl.Price, prev, "stop decreased at price %v", price)
		prev = lvl.Price
		pos.StopPrice = lvl.Price
	}
}

func TestTrailingStop_RatchetHoldsOnRetracement(t *testing.T) {
	th := models.DefaultRiskThresholds()
	pos := mustPosition(t, models.SideLong, 100, 1, 1)

	up := TrailingStop(pos, 200, 0.04, th)
	require.True(t, up.Trailing)
	pos.StopPrice = up.Price // 196

	down := TrailingStop(pos, 180, 0.04, th)
	assert.InDelta(t, 196.0, down.Price, 1e-9)
	assert.True(t, StopCrossed(models.SideLong, 180, down.Price))
}

func TestRatchet(t *testing.T) {
	assert.Equal(t, 5.0, Ratchet(models.SideLong, 0, 5))
	assert.Equal(t, 7.0, Ratchet(models.SideLong, 7, 5))
	assert.Equal(t, 9.0, Ratchet(models.SideLong, 7, 9))
	assert.Equal(t, 5.0, Ratchet(models.SideShort, 7, 5))
	assert.Equal(t, 7.0, Ratchet(models.SideShort, 7, 9))
}
