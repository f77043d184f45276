package backtest

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptotrader/internal/models"
)

func TestPortfolio_BuySellBalances(t *testing.T) {
	p := NewPortfolio("USDT", 1000)
	p.Mark("BTC", 100)

	buy := models.TradeRecord{Symbol: "BTC/USDT", Action: models.ActionBuy, Price: 100, Amount: 2, Commission: 0.1}
	_, _, ok := p.Check(buy, "BTC", 0)
	require.True(t, ok)
	p.Apply(buy, "BTC")

	assert.InDelta(t, 799.9, p.Balance("USDT"), 1e-9)
	assert.InDelta(t, 2.0, p.Balance("BTC"), 1e-12)

	p.Mark("BTC", 110)
	assert.InDelta(t, 20.0, p.PnL(), 1e-9)
	assert.InDelta(t, 1019.9, p.Value(), 1e-9)

	sell := models.TradeRecord{Symbol: "BTC/USDT", Action: models.ActionSell, Price: 110, Amount: 1, Commission: 0.05}
	p.Apply(sell, "BTC")

	assert.InDelta(t, 909.85, p.Balance("USDT"), 1e-9)
	assert.InDelta(t, 1.0, p.Balance("BTC"), 1e-12)
	assert.InDelta(t, 0.15, p.Fees(), 1e-12)
	assert.InDelta(t, 0.0, p.Drift(), 1e-9)
}

func TestPortfolio_CheckRejectsNegativeBalance(t *testing.T) {
	p := NewPortfolio("USDT", 100)

	sell := models.TradeRecord{Action: models.ActionSell, Price: 10, Amount: 1}
	asset, balance, ok := p.Check(sell, "BTC", 1e-9)
	assert.False(t, ok)
	assert.Equal(t, "BTC", asset)
	assert.InDelta(t, -1.0, balance, 1e-12)

	buy := models.TradeRecord{Action: models.ActionBuy, Price: 10, Amount: 11}
	asset, _, ok = p.Check(buy, "BTC", 1e-9)
	assert.False(t, ok)
	assert.Equal(t, "USDT", asset)

	// в пределах допуска
	_, _, ok = p.Check(sell, "BTC", 1.5)
	assert.True(t, ok)
}

func TestPortfolio_ConservationUnderRandomTrades(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := NewPortfolio("USDT", 10000)
	prices := map[string]float64{"BTC": 40000, "ETH": 2500}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		for base := range prices {
			prices[base] *= 1 + rng.NormFloat64()*0.02
			p.Mark(base, prices[base])
		}

		base := "BTC"
		if rng.Intn(2) == 1 {
			base = "ETH"
		}
		action := models.ActionBuy
		if rng.Intn(2) == 1 {
			action = models.ActionSell
		}
		fill := prices[base] * (1 + rng.NormFloat64()*0.001)
		amount := rng.Float64() * 100 / fill
		trade := models.TradeRecord{
			Timestamp:  ts.Add(time.Duration(i) * time.Hour),
			Action:     action,
			Price:      fill,
			Amount:     amount,
			Commission: amount * fill * 0.0005,
		}
		if _, _, ok := p.Check(trade, base, 0); ok {
			p.Apply(trade, base)
		}

		expected := p.Initial() + p.PnL() - p.Fees()
		require.InDelta(t, expected, p.Value(), 1e-6, "conservation broken at step %d", i)
	}
	assert.InDelta(t, 0.0, p.Drift(), 1e-9)
}

func TestPortfolio_BalancesIsCopy(t *testing.T) {
	p := NewPortfolio("USDT", 50)
	b := p.Balances()
	b["USDT"] = 0
	assert.InDelta(t, 50.0, p.Balance("USDT"), 1e-12)
	assert.Equal(t, []string{"USDT"}, p.Assets())
}
