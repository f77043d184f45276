package websocket

import (
	"time"

	"cryptotrader/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeRiskEvent - вердикт монитора или ошибка биржи по позиции
	MessageTypeRiskEvent MessageType = "riskEvent"

	// MessageTypeLeverageChange - плечо символа изменено автоматически
	MessageTypeLeverageChange MessageType = "leverageChange"

	// MessageTypePositions - снимок книги позиций
	MessageTypePositions MessageType = "positions"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// RiskEventMessage - событие риск-контроля
type RiskEventMessage struct {
	BaseMessage
	Severity string           `json:"severity"`
	Data     models.RiskEvent `json:"data"`
}

// LeverageMessage - изменение плеча
type LeverageMessage struct {
	BaseMessage
	Data models.LeverageCommand `json:"data"`
}

// PositionsMessage - снимок открытых и недавно закрытых позиций
type PositionsMessage struct {
	BaseMessage
	Data []models.Position `json:"data"`
}

// NewRiskEventMessage создает сообщение события
func NewRiskEventMessage(ev models.RiskEvent) *RiskEventMessage {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &RiskEventMessage{
		BaseMessage: BaseMessage{Type: MessageTypeRiskEvent, Timestamp: ts},
		Severity:    ev.Severity(),
		Data:        ev,
	}
}

// NewLeverageMessage создает сообщение изменения плеча
func NewLeverageMessage(cmd models.LeverageCommand) *LeverageMessage {
	ts := cmd.IssuedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &LeverageMessage{
		BaseMessage: BaseMessage{Type: MessageTypeLeverageChange, Timestamp: ts},
		Data:        cmd,
	}
}

// NewPositionsMessage создает снимок позиций
func NewPositionsMessage(positions []models.Position) *PositionsMessage {
	if positions == nil {
		positions = []models.Position{}
	}
	return &PositionsMessage{
		BaseMessage: BaseMessage{Type: MessageTypePositions, Timestamp: time.Now().UTC()},
		Data:        positions,
	}
}
