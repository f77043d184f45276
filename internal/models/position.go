package models

import (
	"errors"
	"fmt"
	"time"
)

// PositionSide - направление позиции
type PositionSide string

// Направления позиции
const (
	SideLong  PositionSide = "long"  // длинная позиция (ставка на рост)
	SideShort PositionSide = "short" // короткая позиция (ставка на падение)
	SideNet   PositionSide = "net"   // нетто-позиция (односторонний режим)
)

// PositionStatus - состояние позиции
type PositionStatus string

// Состояния позиции (state machine)
const (
	PositionOpen       PositionStatus = "open"       // позиция открыта
	PositionClosing    PositionStatus = "closing"    // отправлен ордер на закрытие
	PositionClosed     PositionStatus = "closed"     // позиция закрыта
	PositionLiquidated PositionStatus = "liquidated" // позиция ликвидирована биржей
)

// Ошибки позиции
var (
	ErrInvalidTransition = errors.New("invalid position status transition")
	ErrInvalidPosition   = errors.New("invalid position")
	ErrPositionNotOpen   = errors.New("position is not open")
)

// PositionTransitions определяет допустимые переходы между состояниями позиции
var PositionTransitions = map[PositionStatus][]PositionStatus{
	PositionOpen:       {PositionClosing, PositionClosed, PositionLiquidated},
	PositionClosing:    {PositionOpen, PositionClosed, PositionLiquidated}, // Open при неудачном закрытии
	PositionClosed:     {},
	PositionLiquidated: {},
}

// CanTransitionPosition проверяет допустимость перехода
func CanTransitionPosition(from, to PositionStatus) bool {
	for _, s := range PositionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для закрытых и ликвидированных позиций
func (s PositionStatus) IsTerminal() bool {
	return s == PositionClosed || s == PositionLiquidated
}

// Position представляет позицию на фьючерсном аккаунте
//
// Владелец позиции - компонент, который последним её изменял (симулятор в бэктесте,
// поллер в live режиме). Остальные работают только с копиями (Snapshot).
type Position struct {
	Symbol           string         `json:"symbol"`
	Side             PositionSide   `json:"side"`
	Status           PositionStatus `json:"status"`
	EntryPrice       float64        `json:"entry_price"`
	CurrentPrice     float64        `json:"current_price"`
	Amount           float64        `json:"amount"` // всегда >= 0
	Leverage         int            `json:"leverage"`
	LiquidationPrice float64        `json:"liquidation_price"`
	UnrealizedPnl    float64        `json:"unrealized_pnl"`
	RealizedPnl      float64        `json:"realized_pnl"`
	Fees             float64        `json:"fees"`
	StopPrice        float64        `json:"stop_price"` // последний стоп трейлинга (0 = не рассчитан)
	OpenedAt         time.Time      `json:"opened_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// NewPosition создает открытую позицию и рассчитывает производные поля
func NewPosition(symbol string, side PositionSide, entry, amount float64, leverage int, openedAt time.Time) (*Position, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrInvalidPosition)
	}
	if side != SideLong && side != SideShort && side != SideNet {
		return nil, fmt.Errorf("%w: unknown side %q", ErrInvalidPosition, side)
	}
	if entry <= 0 {
		return nil, fmt.Errorf("%w: entry price must be positive, got %v", ErrInvalidPosition, entry)
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount cannot be negative, got %v", ErrInvalidPosition, amount)
	}
	if leverage < 1 {
		leverage = 1
	}

	p := &Position{
		Symbol:       symbol,
		Side:         side,
		Status:       PositionOpen,
		EntryPrice:   entry,
		CurrentPrice: entry,
		Amount:       amount,
		Leverage:     leverage,
		OpenedAt:     openedAt,
		UpdatedAt:    openedAt,
	}
	p.recalculate()
	return p, nil
}

// recalculate пересчитывает нереализованный PNL и цену ликвидации
func (p *Position) recalculate() {
	p.UnrealizedPnl = PositionPnl(p.Side, p.EntryPrice, p.CurrentPrice, p.Amount)

	p.LiquidationPrice = 0
	if p.Leverage > 1 {
		lev := float64(p.Leverage)
		switch p.Side {
		case SideShort:
			p.LiquidationPrice = p.EntryPrice * (1 + 1/lev)
		default:
			p.LiquidationPrice = p.EntryPrice * (1 - 1/lev)
		}
	}
}

// PositionPnl рассчитывает PNL позиции при заданной цене
//
// Для long: (current - entry) * amount, для short: (entry - current) * amount.
// Нетто-позиция считается как long.
func PositionPnl(side PositionSide, entry, current, amount float64) float64 {
	if side == SideShort {
		return (entry - current) * amount
	}
	return (current - entry) * amount
}

// MarkPrice обновляет текущую цену позиции
func (p *Position) MarkPrice(price float64, at time.Time) {
	if p.Status.IsTerminal() || price <= 0 {
		return
	}
	p.CurrentPrice = price
	p.UpdatedAt = at
	p.recalculate()
}

// SetLeverage меняет плечо и пересчитывает цену ликвидации
func (p *Position) SetLeverage(leverage int, at time.Time) {
	if leverage < 1 {
		leverage = 1
	}
	p.Leverage = leverage
	p.UpdatedAt = at
	p.recalculate()
}

// Transition переводит позицию в новое состояние через таблицу переходов
func (p *Position) Transition(to PositionStatus, at time.Time) error {
	if !CanTransitionPosition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	p.UpdatedAt = at
	return nil
}

// PartialClose закрывает часть позиции по цене price
//
// Реализованный PNL растет на PNL закрытой части за вычетом комиссии.
// При закрытии всего объема позиция переходит в closed.
func (p *Position) PartialClose(amount, price, fee float64, at time.Time) error {
	if p.Status != PositionOpen && p.Status != PositionClosing {
		return fmt.Errorf("%w: status %s", ErrPositionNotOpen, p.Status)
	}
	if amount <= 0 || price <= 0 {
		return fmt.Errorf("%w: close amount and price must be positive", ErrInvalidPosition)
	}
	if amount > p.Amount {
		amount = p.Amount
	}

	p.RealizedPnl += PositionPnl(p.Side, p.EntryPrice, price, amount) - fee
	p.Fees += fee
	p.Amount -= amount
	p.CurrentPrice = price
	p.UpdatedAt = at
	p.recalculate()

	if p.Amount <= 0 {
		p.Amount = 0
		p.UnrealizedPnl = 0
		return p.Transition(PositionClosed, at)
	}
	return nil
}

// Close закрывает позицию целиком
func (p *Position) Close(price, fee float64, at time.Time) error {
	return p.PartialClose(p.Amount, price, fee, at)
}

// Liquidate отмечает позицию как ликвидированную по цене price
//
// Потеря маржи фиксируется в реализованном PNL.
func (p *Position) Liquidate(price float64, at time.Time) error {
	if err := p.Transition(PositionLiquidated, at); err != nil {
		return err
	}
	if price > 0 {
		p.CurrentPrice = price
	}
	p.RealizedPnl += PositionPnl(p.Side, p.EntryPrice, p.CurrentPrice, p.Amount)
	p.UnrealizedPnl = 0
	p.Amount = 0
	return nil
}

// InitialMargin возвращает маржу, внесенную при открытии
func (p *Position) InitialMargin() float64 {
	lev := p.Leverage
	if lev < 1 {
		lev = 1
	}
	return p.EntryPrice * p.Amount / float64(lev)
}

// Notional возвращает стоимость позиции по текущей цене
func (p *Position) Notional() float64 {
	return p.CurrentPrice * p.Amount
}

// PnlPercentage возвращает доходность относительно маржи
func (p *Position) PnlPercentage() float64 {
	margin := p.InitialMargin()
	if margin == 0 {
		return 0
	}
	return p.UnrealizedPnl / margin
}

// RiskRatio возвращает относительное расстояние до цены ликвидации
func (p *Position) RiskRatio() float64 {
	if p.LiquidationPrice == 0 || p.CurrentPrice == 0 {
		return 0
	}
	if p.Side == SideShort {
		return (p.LiquidationPrice - p.CurrentPrice) / p.CurrentPrice
	}
	return (p.CurrentPrice - p.LiquidationPrice) / p.CurrentPrice
}

// Snapshot возвращает копию позиции для читателей
func (p *Position) Snapshot() Position {
	return *p
}

// Key возвращает ключ позиции в книге (символ + направление)
func (p *Position) Key() PositionKey {
	return PositionKey{Symbol: p.Symbol, Side: p.Side}
}

// PositionKey - ключ позиции в активном наборе
type PositionKey struct {
	Symbol string
	Side   PositionSide
}

// String форматирует ключ для логов и метрик
func (k PositionKey) String() string {
	return k.Symbol + ":" + string(k.Side)
}
