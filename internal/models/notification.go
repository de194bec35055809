package models

// Исходящие события оркестратора (отправляются подписчикам через hub)

// PositionOpenedEvent - результат попытки открытия (успех или провал)
type PositionOpenedEvent struct {
	PositionID      string  `json:"position_id"`
	Ticker          string  `json:"ticker"`
	Message         string  `json:"message"`
	Balance         float64 `json:"balance"` // использованная маржа или размер потери
	FirstVenue      string  `json:"first_venue"`
	SecondVenue     string  `json:"second_venue"`
	FirstDirection  string  `json:"first_direction"`
	SecondDirection string  `json:"second_direction"`
	Success         bool    `json:"success"`
}

// PositionClosedEvent - результат закрытия позиции
type PositionClosedEvent struct {
	PositionID    string      `json:"position_id"`
	Ticker        string      `json:"ticker"`
	Profit        float64     `json:"profit"`
	Percent       float64     `json:"percent"`
	Success       bool        `json:"success"`
	Mode          HoldingMode `json:"mode"`
	SpreadAtClose float64     `json:"spread_at_close"` // bps, 0 если фид недоступен
	Reason        string      `json:"reason"`
}

// PnlThresholdEvent - одноразовое уведомление о достижении порога P&L
type PnlThresholdEvent struct {
	PositionID string       `json:"position_id"`
	Ticker     string       `json:"ticker"`
	Snapshot   *PnLSnapshot `json:"snapshot"`
	Percent    float64      `json:"percent"` // netPnl / margin * 100
	Margin     float64      `json:"margin"`
	Mode       HoldingMode  `json:"mode"`
}

// Причины закрытия (человекочитаемые, попадают в события и в историю)
const (
	CloseReasonFunding      = "funding received"
	CloseReasonRateFlip     = "funding rate flipped"
	CloseReasonBadStreak    = "bad streak"
	CloseReasonMaxHold      = "max hold time"
	CloseReasonPnlThreshold = "pnl threshold"
	CloseReasonLiquidation  = "leg liquidated"
	CloseReasonManual       = "manual close"
)
