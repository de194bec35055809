package websocket

import (
	"time"

	"fundingbot/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypePositionOpened - исход попытки открытия хеджа
	MessageTypePositionOpened MessageType = "positionOpened"

	// MessageTypePositionClosed - исход закрытия хеджа
	MessageTypePositionClosed MessageType = "positionClosed"

	// MessageTypePnlThreshold - одноразовое уведомление о достижении
	// порога P&L по открытой позиции
	MessageTypePnlThreshold MessageType = "pnlThreshold"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// PositionOpenedMessage - сообщение об исходе открытия
type PositionOpenedMessage struct {
	BaseMessage
	Data models.PositionOpenedEvent `json:"data"`
}

// PositionClosedMessage - сообщение об исходе закрытия
type PositionClosedMessage struct {
	BaseMessage
	Data models.PositionClosedEvent `json:"data"`
}

// PnlThresholdMessage - сообщение о достижении порога P&L
type PnlThresholdMessage struct {
	BaseMessage
	Data models.PnlThresholdEvent `json:"data"`
}

// NewPositionOpenedMessage создает сообщение об открытии
func NewPositionOpenedMessage(event models.PositionOpenedEvent) *PositionOpenedMessage {
	return &PositionOpenedMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePositionOpened,
			Timestamp: time.Now(),
		},
		Data: event,
	}
}

// NewPositionClosedMessage создает сообщение о закрытии
func NewPositionClosedMessage(event models.PositionClosedEvent) *PositionClosedMessage {
	return &PositionClosedMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePositionClosed,
			Timestamp: time.Now(),
		},
		Data: event,
	}
}

// NewPnlThresholdMessage создает сообщение о пороге P&L
func NewPnlThresholdMessage(event models.PnlThresholdEvent) *PnlThresholdMessage {
	return &PnlThresholdMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePnlThreshold,
			Timestamp: time.Now(),
		},
		Data: event,
	}
}
