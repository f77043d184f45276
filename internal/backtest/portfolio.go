package backtest

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cryptotrader/internal/models"
)

// Portfolio - книга балансов бэктеста (тикер -> баланс)
//
// Балансы хранятся в decimal, чтобы закон сохранения
// value = initial + pnl - fees выполнялся точно на каждом шаге.
// PnL накапливается при переоценке (Mark) и при исполнении
// по цене, отличной от последней отметки (проскальзывание).
type Portfolio struct {
	quote    string
	initial  decimal.Decimal
	balances map[string]decimal.Decimal
	marks    map[string]decimal.Decimal // base -> последняя цена
	pnl      decimal.Decimal
	fees     decimal.Decimal
}

// NewPortfolio создает портфель с начальным балансом котируемой валюты
func NewPortfolio(quote string, initialCapital float64) *Portfolio {
	initial := decimal.NewFromFloat(initialCapital)
	return &Portfolio{
		quote:    quote,
		initial:  initial,
		balances: map[string]decimal.Decimal{quote: initial},
		marks:    make(map[string]decimal.Decimal),
	}
}

// Quote возвращает котируемую валюту
func (p *Portfolio) Quote() string {
	return p.quote
}

// Balance возвращает баланс актива
func (p *Portfolio) Balance(asset string) float64 {
	return p.balances[asset].InexactFloat64()
}

// Balances возвращает копию всех балансов
func (p *Portfolio) Balances() map[string]float64 {
	out := make(map[string]float64, len(p.balances))
	for asset, b := range p.balances {
		out[asset] = b.InexactFloat64()
	}
	return out
}

// Mark переоценивает базовый актив по новой цене
func (p *Portfolio) Mark(base string, price float64) {
	if price <= 0 {
		return
	}
	newMark := decimal.NewFromFloat(price)
	if old, ok := p.marks[base]; ok {
		p.pnl = p.pnl.Add(p.balances[base].Mul(newMark.Sub(old)))
	}
	p.marks[base] = newMark
}

// Check проверяет, что сделка не уведет балансы ниже -tolerance
//
// Возвращает актив-нарушитель и его баланс после сделки.
func (p *Portfolio) Check(trade models.TradeRecord, base string, tolerance float64) (string, float64, bool) {
	quoteAfter, baseAfter := p.after(trade, base)
	limit := decimal.NewFromFloat(-tolerance)
	if quoteAfter.LessThan(limit) {
		return p.quote, quoteAfter.InexactFloat64(), false
	}
	if baseAfter.LessThan(limit) {
		return base, baseAfter.InexactFloat64(), false
	}
	return "", 0, true
}

func (p *Portfolio) after(trade models.TradeRecord, base string) (decimal.Decimal, decimal.Decimal) {
	price := decimal.NewFromFloat(trade.Price)
	amount := decimal.NewFromFloat(trade.Amount)
	fee := decimal.NewFromFloat(trade.Commission)
	notional := amount.Mul(price)

	quote := p.balances[p.quote]
	held := p.balances[base]
	if trade.Action == models.ActionBuy {
		return quote.Sub(notional).Sub(fee), held.Add(amount)
	}
	return quote.Add(notional).Sub(fee), held.Sub(amount)
}

// Apply исполняет сделку: buy списывает котируемую валюту, sell зачисляет
//
// Разница между ценой исполнения и последней отметкой учитывается в PnL,
// комиссия - в fees.
func (p *Portfolio) Apply(trade models.TradeRecord, base string) {
	quoteAfter, baseAfter := p.after(trade, base)

	price := decimal.NewFromFloat(trade.Price)
	amount := decimal.NewFromFloat(trade.Amount)
	mark, ok := p.marks[base]
	if !ok {
		mark = price
		p.marks[base] = price
	}
	if trade.Action == models.ActionBuy {
		p.pnl = p.pnl.Add(amount.Mul(mark.Sub(price)))
	} else {
		p.pnl = p.pnl.Add(amount.Mul(price.Sub(mark)))
	}
	p.fees = p.fees.Add(decimal.NewFromFloat(trade.Commission))

	p.balances[p.quote] = quoteAfter
	p.balances[base] = baseAfter
}

// Value возвращает стоимость портфеля в котируемой валюте по последним отметкам
func (p *Portfolio) Value() float64 {
	return p.value().InexactFloat64()
}

func (p *Portfolio) value() decimal.Decimal {
	total := p.balances[p.quote]
	for asset, b := range p.balances {
		if asset == p.quote {
			continue
		}
		total = total.Add(b.Mul(p.marks[asset]))
	}
	return total
}

// Initial возвращает начальный капитал
func (p *Portfolio) Initial() float64 {
	return p.initial.InexactFloat64()
}

// PnL возвращает накопленный PnL
func (p *Portfolio) PnL() float64 {
	return p.pnl.InexactFloat64()
}

// Fees возвращает накопленные комиссии
func (p *Portfolio) Fees() float64 {
	return p.fees.InexactFloat64()
}

// Drift возвращает отклонение value - (initial + pnl - fees); ноль при соблюдении сохранения
func (p *Portfolio) Drift() float64 {
	return p.value().Sub(p.initial.Add(p.pnl).Sub(p.fees)).InexactFloat64()
}

// Assets возвращает отсортированный список активов с ненулевым балансом
func (p *Portfolio) Assets() []string {
	out := make([]string, 0, len(p.balances))
	for asset, b := range p.balances {
		if !b.IsZero() || asset == p.quote {
			out = append(out, asset)
		}
	}
	sort.Strings(out)
	return out
}

// EquityPoint фиксирует стоимость портфеля на шаге
func (p *Portfolio) EquityPoint(ts time.Time) models.EquityPoint {
	return models.EquityPoint{Timestamp: ts, Value: p.Value()}
}
