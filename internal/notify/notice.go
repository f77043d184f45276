// Package notify доставляет события риск-контроля получателям:
// журнал уведомлений, WebSocket клиентам и Redis stream.
package notify

import (
	"fmt"

	"cryptotrader/internal/models"
)

// Notice - уведомление вместе с исходным событием
//
// Ровно одно из Event и Leverage не nil.
type Notice struct {
	Notification models.Notification
	Event        *models.RiskEvent
	Leverage     *models.LeverageCommand
}

// Key возвращает ключ анти-спама: символ + тип уведомления
func (n *Notice) Key() string {
	return n.Notification.Symbol + "|" + n.Notification.Type
}

// FromRiskEvent оформляет событие монитора как уведомление
func FromRiskEvent(ev models.RiskEvent) *Notice {
	typ := models.NotificationTypeForVerdict(ev.Verdict)
	meta := map[string]interface{}{
		"event_id": ev.ID,
		"verdict":  string(ev.Verdict),
	}
	if ev.Position.Symbol != "" {
		meta["side"] = string(ev.Position.Side)
		meta["amount"] = ev.Position.Amount
		meta["entry_price"] = ev.Position.EntryPrice
		meta["price"] = ev.Position.CurrentPrice
		meta["leverage"] = ev.Position.Leverage
	}

	var msg string
	switch {
	case ev.Error != "":
		msg = fmt.Sprintf("%s: %s", ev.Symbol, ev.Error)
		meta["error"] = ev.Error
	case ev.Verdict == models.VerdictStopLossHit:
		msg = fmt.Sprintf("%s %s: price %.8g crossed trailing stop %.8g",
			ev.Symbol, ev.Position.Side, ev.Position.CurrentPrice, ev.StopPrice)
		meta["stop_price"] = ev.StopPrice
	default:
		msg = fmt.Sprintf("%s %s: margin ratio %.4f (%s)",
			ev.Symbol, ev.Position.Side, ev.MarginRatio, ev.Verdict)
		meta["margin_ratio"] = ev.MarginRatio
	}

	evCopy := ev
	return &Notice{
		Notification: models.Notification{
			Timestamp: ev.Timestamp,
			Type:      typ,
			Severity:  ev.Severity(),
			Symbol:    ev.Symbol,
			Message:   msg,
			Meta:      meta,
		},
		Event: &evCopy,
	}
}

// FromLeverageCommand оформляет изменение плеча как уведомление
func FromLeverageCommand(cmd models.LeverageCommand) *Notice {
	cmdCopy := cmd
	return &Notice{
		Notification: models.Notification{
			Timestamp: cmd.IssuedAt,
			Type:      models.NotificationTypeLeverage,
			Severity:  models.SeverityInfo,
			Symbol:    cmd.Symbol,
			Message: fmt.Sprintf("%s: leverage %dx -> %dx (volatility %.4f)",
				cmd.Symbol, cmd.PreviousLeverage, cmd.NewLeverage, cmd.Volatility),
			Meta: map[string]interface{}{
				"previous_leverage": cmd.PreviousLeverage,
				"new_leverage":      cmd.NewLeverage,
				"volatility":        cmd.Volatility,
			},
		},
		Leverage: &cmdCopy,
	}
}
