package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptotrader/internal/models"
)

// ErrNoPrice - для символа еще нет цены
var ErrNoPrice = errors.New("no price for symbol")

// PaperExchange - биржа в памяти для dry-run и тестов
//
// Исполняет ордера по последней известной цене, ведет hedge-позиции
// и плечо по символам. Цены обновляются через SetPrice или FetchBars.
type PaperExchange struct {
	data    MarketData // опционально
	feeRate float64

	mu        sync.Mutex
	prices    map[string]float64
	leverage  map[string]int
	positions map[models.PositionKey]*models.Position
	orders    []OrderResult
	seq       int

	now func() time.Time
}

// NewPaperExchange создает биржу в памяти; data может быть nil
func NewPaperExchange(data MarketData, feeRate float64) *PaperExchange {
	return &PaperExchange{
		data:      data,
		feeRate:   feeRate,
		prices:    make(map[string]float64),
		leverage:  make(map[string]int),
		positions: make(map[models.PositionKey]*models.Position),
		now:       time.Now,
	}
}

// GetName реализует Exchange
func (p *PaperExchange) GetName() string {
	return "paper"
}

// SetPrice задает текущую цену символа и переоценивает позиции
func (p *PaperExchange) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setPriceLocked(symbol, price)
}

func (p *PaperExchange) setPriceLocked(symbol string, price float64) {
	if price <= 0 {
		return
	}
	p.prices[symbol] = price
	at := p.now()
	for key, pos := range p.positions {
		if key.Symbol == symbol {
			pos.MarkPrice(price, at)
		}
	}
}

// FetchBars реализует MarketData через источник данных
func (p *PaperExchange) FetchBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]models.Bar, error) {
	if p.data == nil {
		return nil, &ExchangeError{Exchange: p.GetName(), Code: "no_data", Message: "market data source is not configured"}
	}
	bars, err := p.data.FetchBars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if n := len(bars); n > 0 {
		p.SetPrice(symbol, bars[n-1].Close)
	}
	return bars, nil
}

// PlaceOrder реализует Executor
//
// buy увеличивает long (или уменьшает short при reduceOnly),
// sell увеличивает short (или уменьшает long при reduceOnly).
func (p *PaperExchange) PlaceOrder(ctx context.Context, symbol, side string, amount float64, reduceOnly bool) (*OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, p.reject("invalid_amount", fmt.Sprintf("order amount must be positive, got %v", amount))
	}
	if side != SideBuy && side != SideSell {
		return nil, p.reject("invalid_side", fmt.Sprintf("unknown order side %q", side))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		return nil, &ExchangeError{Exchange: p.GetName(), Code: "no_price", Message: symbol, Original: ErrNoPrice}
	}
	at := p.now()
	fee := amount * price * p.feeRate

	var filled float64
	if reduceOnly {
		target := models.SideLong
		if side == SideBuy {
			target = models.SideShort
		}
		pos := p.positions[models.PositionKey{Symbol: symbol, Side: target}]
		if pos == nil || pos.Status.IsTerminal() {
			return nil, p.reject("reduce_only", fmt.Sprintf("no %s position to reduce for %s", target, symbol))
		}
		filled = amount
		if filled > pos.Amount {
			filled = pos.Amount
		}
		fee = filled * price * p.feeRate
		if err := pos.PartialClose(filled, price, fee, at); err != nil {
			return nil, p.reject("reduce_only", err.Error())
		}
		if pos.Status.IsTerminal() {
			delete(p.positions, pos.Key())
		}
	} else {
		target := models.SideLong
		if side == SideSell {
			target = models.SideShort
		}
		filled = amount
		if err := p.increaseLocked(symbol, target, amount, price, fee, at); err != nil {
			return nil, p.reject("invalid_order", err.Error())
		}
	}

	p.seq++
	res := OrderResult{
		ID:           fmt.Sprintf("paper-%d", p.seq),
		Symbol:       symbol,
		Side:         side,
		Amount:       amount,
		FilledAmount: filled,
		AvgPrice:     price,
		Fee:          fee,
		ReduceOnly:   reduceOnly,
		Status:       OrderStatusFilled,
		CreatedAt:    at,
	}
	if filled < amount {
		res.Status = OrderStatusPartial
	}
	p.orders = append(p.orders, res)
	return &res, nil
}

// increaseLocked открывает позицию или усредняет вход
func (p *PaperExchange) increaseLocked(symbol string, side models.PositionSide, amount, price, fee float64, at time.Time) error {
	lev := p.leverage[symbol]
	if lev < 1 {
		lev = 1
	}
	key := models.PositionKey{Symbol: symbol, Side: side}
	pos := p.positions[key]
	if pos == nil {
		created, err := models.NewPosition(symbol, side, price, amount, lev, at)
		if err != nil {
			return err
		}
		created.Fees = fee
		created.RealizedPnl = -fee
		p.positions[key] = created
		return nil
	}
	total := pos.Amount + amount
	pos.EntryPrice = (pos.EntryPrice*pos.Amount + price*amount) / total
	pos.Amount = total
	pos.Fees += fee
	pos.RealizedPnl -= fee
	pos.MarkPrice(price, at)
	return nil
}

// OpenPosition добавляет позицию по заданной цене входа (для сценариев и тестов)
func (p *PaperExchange) OpenPosition(symbol string, side models.PositionSide, entry, amount float64, leverage int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, err := models.NewPosition(symbol, side, entry, amount, leverage, p.now())
	if err != nil {
		return err
	}
	if price, ok := p.prices[symbol]; ok {
		pos.MarkPrice(price, p.now())
	}
	p.leverage[symbol] = pos.Leverage
	p.positions[pos.Key()] = pos
	return nil
}

// FetchPositions реализует Executor; возвращаются копии
func (p *PaperExchange) FetchPositions(ctx context.Context, symbol string) (*HedgePositions, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := &HedgePositions{}
	if pos := p.positions[models.PositionKey{Symbol: symbol, Side: models.SideLong}]; pos != nil {
		snap := pos.Snapshot()
		out.Long = &snap
	}
	if pos := p.positions[models.PositionKey{Symbol: symbol, Side: models.SideShort}]; pos != nil {
		snap := pos.Snapshot()
		out.Short = &snap
	}
	return out, nil
}

// SetLeverage реализует Executor
func (p *PaperExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if leverage < 1 {
		return p.reject("invalid_leverage", fmt.Sprintf("leverage must be >= 1, got %d", leverage))
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.leverage[symbol] = leverage
	at := p.now()
	for key, pos := range p.positions {
		if key.Symbol == symbol {
			pos.SetLeverage(leverage, at)
		}
	}
	return nil
}

// Leverage возвращает текущее плечо символа (1, если не задано)
func (p *PaperExchange) Leverage(symbol string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lev := p.leverage[symbol]; lev >= 1 {
		return lev
	}
	return 1
}

// Orders возвращает копию журнала ордеров
func (p *PaperExchange) Orders() []OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OrderResult, len(p.orders))
	copy(out, p.orders)
	return out
}

func (p *PaperExchange) reject(code, msg string) error {
	return &ExchangeError{Exchange: p.GetName(), Code: code, Message: msg, Permanent: true}
}
