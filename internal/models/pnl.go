package models

import "time"

// PnLSnapshot - учётное состояние P&L одной хедж-позиции
//
// Производные поля (TotalFundingNet, GrossPnl, NetPnl) никогда не
// хранятся отдельно от входов: Recalculate вызывается после каждого
// изменения любого поля, поэтому итоги не могут "протухнуть".
type PnLSnapshot struct {
	PositionID string    `json:"position_id"`
	Ticker     string    `json:"ticker"`
	OpenTime   time.Time `json:"open_time"`

	OpenFees  float64 `json:"open_fees"`  // суммарные комиссии открытия обеих ног
	CloseFees float64 `json:"close_fees"` // ноль до закрытия

	FirstFundingNet  float64 `json:"first_funding_net"`  // накопленный фандинг первой ноги
	SecondFundingNet float64 `json:"second_funding_net"` // накопленный фандинг второй ноги

	FirstUnrealizedPnl  float64 `json:"first_unrealized_pnl"`
	SecondUnrealizedPnl float64 `json:"second_unrealized_pnl"`

	// Производные итоги - чистая функция полей выше
	TotalFundingNet float64 `json:"total_funding_net"`
	GrossPnl        float64 `json:"gross_pnl"`
	NetPnl          float64 `json:"net_pnl"`
}

// Recalculate пересчитывает производные итоги из собственных полей.
// netPnl = grossPnl - openFees - closeFees + totalFundingNet
func (s *PnLSnapshot) Recalculate() {
	s.TotalFundingNet = s.FirstFundingNet + s.SecondFundingNet
	s.GrossPnl = s.FirstUnrealizedPnl + s.SecondUnrealizedPnl
	s.NetPnl = s.GrossPnl - s.OpenFees - s.CloseFees + s.TotalFundingNet
}

// NetPnlPercent возвращает netPnl как процент от использованной маржи
func (s *PnLSnapshot) NetPnlPercent(margin float64) float64 {
	if margin <= 0 {
		return 0
	}
	return s.NetPnl / margin * 100
}

// Clone возвращает копию снапшота (для безопасной отдачи наружу)
func (s *PnLSnapshot) Clone() *PnLSnapshot {
	c := *s
	return &c
}
