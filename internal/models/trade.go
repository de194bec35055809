package models

import "time"

// TradeRecord - запись в истории сделок (таблица trades)
//
// Создаётся на каждый исход закрытия, успешный или нет.
type TradeRecord struct {
	ID            int         `json:"id" db:"id"`
	PositionID    string      `json:"position_id" db:"position_id"` // P-0001...
	Ticker        string      `json:"ticker" db:"ticker"`
	FirstVenue    string      `json:"first_venue" db:"first_venue"`
	SecondVenue   string      `json:"second_venue" db:"second_venue"`
	Mode          HoldingMode `json:"mode" db:"mode"`
	Margin        float64     `json:"margin" db:"margin"` // использованная маржа, USD
	Profit        float64     `json:"profit" db:"profit"` // реализованный P&L, USD
	Percent       float64     `json:"percent" db:"percent"`
	SpreadAtClose float64     `json:"spread_at_close" db:"spread_at_close"`
	Reason        string      `json:"reason" db:"reason"`
	Success       bool        `json:"success" db:"success"`
	OpenedAt      time.Time   `json:"opened_at" db:"opened_at"`
	ClosedAt      time.Time   `json:"closed_at" db:"closed_at"`
}
