package exchange

import (
	"context"
	"time"

	"cryptotrader/internal/models"
	"cryptotrader/pkg/ratelimit"
)

// Категории лимитов запросов
const (
	CategoryOrders  = "orders"
	CategoryAccount = "account"
	CategoryMarket  = "market"
)

// GuardedLimits - лимиты запросов по категориям (req/sec)
type GuardedLimits struct {
	OrdersRate  float64
	AccountRate float64
	MarketRate  float64
}

// DefaultGuardedLimits - консервативные лимиты, подходящие большинству бирж
func DefaultGuardedLimits() GuardedLimits {
	return GuardedLimits{
		OrdersRate:  5,
		AccountRate: 10,
		MarketRate:  20,
	}
}

// Guarded - декоратор Exchange, ограничивающий частоту запросов token bucket'ом
type Guarded struct {
	inner    Exchange
	limiters *ratelimit.MultiLimiter
}

// NewGuarded оборачивает биржу лимитами запросов
func NewGuarded(inner Exchange, limits GuardedLimits) *Guarded {
	ml := ratelimit.NewMultiLimiter()
	ml.Add(CategoryOrders, limits.OrdersRate, limits.OrdersRate*2)
	ml.Add(CategoryAccount, limits.AccountRate, limits.AccountRate*2)
	ml.Add(CategoryMarket, limits.MarketRate, limits.MarketRate*2)
	return &Guarded{inner: inner, limiters: ml}
}

// GetName реализует Exchange
func (g *Guarded) GetName() string {
	return g.inner.GetName()
}

func (g *Guarded) wait(ctx context.Context, category string) error {
	if err := g.limiters.Wait(ctx, category); err != nil {
		return &ExchangeError{Exchange: g.inner.GetName(), Code: "rate_limit", Message: "rate limiter wait aborted", Original: err}
	}
	return nil
}

// FetchBars реализует MarketData
func (g *Guarded) FetchBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Bar, error) {
	if err := g.wait(ctx, CategoryMarket); err != nil {
		return nil, err
	}
	return g.inner.FetchBars(ctx, symbol, timeframe, start, end)
}

// PlaceOrder реализует Executor
func (g *Guarded) PlaceOrder(ctx context.Context, symbol, side string, amount float64, reduceOnly bool) (*OrderResult, error) {
	if err := g.wait(ctx, CategoryOrders); err != nil {
		return nil, err
	}
	return g.inner.PlaceOrder(ctx, symbol, side, amount, reduceOnly)
}

// FetchPositions реализует Executor
func (g *Guarded) FetchPositions(ctx context.Context, symbol string) (*HedgePositions, error) {
	if err := g.wait(ctx, CategoryAccount); err != nil {
		return nil, err
	}
	return g.inner.FetchPositions(ctx, symbol)
}

// SetLeverage реализует Executor
func (g *Guarded) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := g.wait(ctx, CategoryAccount); err != nil {
		return err
	}
	return g.inner.SetLeverage(ctx, symbol, leverage)
}

// Tokens возвращает доступные токены категории (для мониторинга)
func (g *Guarded) Tokens(category string) float64 {
	if l := g.limiters.Get(category); l != nil {
		return l.Tokens()
	}
	return 0
}
