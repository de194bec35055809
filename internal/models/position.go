package models

import "time"

// HoldingMode определяет политику закрытия хеджа
type HoldingMode string

// Режимы удержания позиции
const (
	// FastMode - закрытие сразу после ближайшей выплаты фандинга
	FastMode HoldingMode = "FAST_MODE"

	// SmartMode - удержание пока спред выгоден (закрытие по bad streak)
	SmartMode HoldingMode = "SMART_MODE"

	// OneFunding - глобальный режим по умолчанию (информационный)
	OneFunding HoldingMode = "ONE_FUNDING"
)

// Направления позиции
const (
	DirectionLong  = "LONG"  // получатель фандинга при отрицательной ставке
	DirectionShort = "SHORT" // плательщик фандинга при отрицательной ставке
)

// HedgeLeg - одна нога хеджа на конкретной бирже
//
// После успешного открытия нога неизменяема, кроме OrderID,
// который проставляется биржей при создании ордера.
type HedgeLeg struct {
	Venue     string `json:"venue"`              // имя биржи в реестре адаптеров
	Direction string `json:"direction"`          // LONG или SHORT
	OrderID   string `json:"order_id,omitempty"` // id ордера на бирже (после открытия)
}

// OpenIntent - входной сигнал для открытия хеджа
//
// Создаётся продюсером сигналов, потребляется оркестратором ровно один раз.
// Направления ног должны быть экономически противоположны: одна нога
// получает фандинг, вторая платит.
type OpenIntent struct {
	Ticker   string      `json:"ticker"`
	First    HedgeLeg    `json:"first"`
	Second   HedgeLeg    `json:"second"`
	Leverage int         `json:"leverage"` // желаемое плечо (будет ограничено биржами)
	Mode     HoldingMode `json:"mode"`
	Rate     float64     `json:"rate"`   // спред фандинга на момент решения, bps
	Action   string      `json:"action"` // человекочитаемая метка, "LONG x, SHORT y"
}

// HedgePosition - учётная запись открытого хеджа
//
// Создаётся только после успешной валидации обеих ног.
// BadStreak мутируется мониторингом (только в SmartMode) и никогда
// не уменьшается до закрытия позиции.
type HedgePosition struct {
	ID          string      `json:"id"`     // P-0001, P-0002...
	Ticker      string      `json:"ticker"`
	First       HedgeLeg    `json:"first"`
	Second      HedgeLeg    `json:"second"`
	Balance     float64     `json:"balance"` // использованная маржа, USD
	Mode        HoldingMode `json:"mode"`
	OpenedAt    time.Time   `json:"opened_at"`
	OpenRate    float64     `json:"open_rate"` // спред на момент открытия, bps
	Action      string      `json:"action"`    // метка направления на момент открытия
	BadStreak   int         `json:"bad_streak"`
	CloseReason string      `json:"close_reason,omitempty"`

	// PnlNotified - была ли отправлена одноразовая нотификация о
	// достижении порога P&L (идемпотентность per position)
	PnlNotified bool `json:"pnl_notified"`

	// ManualCheck - закрытие не удалось подтвердить, позиция остаётся
	// видимой до ручной сверки оператором
	ManualCheck bool `json:"manual_check,omitempty"`
}

// HeldMinutes возвращает время удержания позиции в минутах
func (p *HedgePosition) HeldMinutes(now time.Time) int64 {
	return int64(now.Sub(p.OpenedAt).Minutes())
}

// Legs возвращает обе ноги позиции
func (p *HedgePosition) Legs() [2]HedgeLeg {
	return [2]HedgeLeg{p.First, p.Second}
}
