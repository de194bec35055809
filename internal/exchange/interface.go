// Package exchange определяет контракт возможностей биржевого адаптера
// и реестр подключённых бирж.
package exchange

import (
	"context"
	"errors"
	"time"
)

// ErrNotSupported возвращается адаптером для операций, которые биржа
// не умеет (защитные ордера, плечо). Это не ошибка потока управления:
// оркестратор проверяет capability-флаги перед вызовом.
var ErrNotSupported = errors.New("operation not supported by venue")

// Exchange определяет унифицированный интерфейс для работы с любой биржей
//
// Реализации живут вне этого репозитория (REST клиенты бирж).
// Все удалённые вызовы принимают context; отмена после отправки ордера
// невозможна - "отмена" значит компенсирующее закрытие.
type Exchange interface {
	// Name возвращает имя биржи в реестре
	Name() string

	// Balance возвращает общий баланс и торгуемую маржу.
	// TradableMargin - консервативная доля баланса (85%), резерв
	// на проскальзывание и комиссии закладывает сам адаптер.
	Balance(ctx context.Context) (Balance, error)

	// Positions возвращает открытые позиции по тикеру и направлению.
	// Пустой список = позиции нет.
	Positions(ctx context.Context, ticker, direction string) ([]Position, error)

	// MaxSizeForMargin вычисляет максимальный торгуемый размер для
	// заданной маржи и плеча с учётом стакана биржи
	MaxSizeForMargin(ctx context.Context, ticker string, marginUSD float64, leverage int, isBuy bool) (float64, error)

	// OpenWithSize открывает позицию заданного размера, возвращает id ордера
	OpenWithSize(ctx context.Context, ticker string, size float64, direction string) (string, error)

	// ClosePosition закрывает позицию по рынку
	ClosePosition(ctx context.Context, ticker, direction string) (CloseResult, error)

	// SetLeverage устанавливает плечо для тикера
	SetLeverage(ctx context.Context, ticker string, leverage int) error

	// MaxLeverage возвращает максимальное плечо биржи для тикера
	MaxLeverage(ctx context.Context, ticker string) (int, error)

	// OrderBook возвращает верх стакана
	OrderBook(ctx context.Context, ticker string) (OrderBook, error)

	// TakerFee возвращает комиссию тейкера (доля, 0.0004 = 0.04%)
	TakerFee() float64

	// HasFundingSchedule - платит ли биржа фандинг по расписанию.
	// Для таких бирж действует ограничение на время до выплаты.
	HasFundingSchedule() bool

	// MinutesUntilFunding возвращает минуты до ближайшей выплаты фандинга
	MinutesUntilFunding(ctx context.Context, ticker string) (int64, error)

	// AccruedFunding возвращает накопленный нетто-фандинг ноги с момента
	// since. Биржи считают по-разному: часть отдаёт агрегат, часть
	// требует суммировать отдельные выплаты - контракт это скрывает.
	// prevNet передаётся чтобы адаптер мог вернуть прежнее значение,
	// если новых данных нет.
	AccruedFunding(ctx context.Context, ticker, direction string, since time.Time, prevNet float64) (float64, error)

	// SupportsProtectiveOrders - умеет ли биржа SL/TP ордера
	SupportsProtectiveOrders() bool

	// PlaceStopLoss выставляет стоп-лосс, возвращает id ордера
	PlaceStopLoss(ctx context.Context, ticker, direction string, price float64) (string, error)

	// PlaceTakeProfit выставляет тейк-профит, возвращает id ордера
	PlaceTakeProfit(ctx context.Context, ticker, direction string, price float64) (string, error)

	// OpenDelay возвращает преднамеренную задержку перед открытием,
	// когда вторая нога на бирже other (рассинхронизация исполнения)
	OpenDelay(other string) time.Duration

	// CloseDelay - то же для закрытия
	CloseDelay(other string) time.Duration
}

// Balance - баланс фьючерсного аккаунта
type Balance struct {
	Total          float64 `json:"total"`           // полный баланс, USD
	TradableMargin float64 `json:"tradable_margin"` // доступно под маржу (haircut)
}

// Position - открытая позиция на бирже
type Position struct {
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

// OrderBook - верх стакана
type OrderBook struct {
	BestBid float64 `json:"best_bid"`
	BestAsk float64 `json:"best_ask"`
}

// CloseResult - результат закрытия позиции
type CloseResult struct {
	OrderID string `json:"order_id"`
	Success bool   `json:"success"`
}

// VenueError представляет ошибку от биржи
type VenueError struct {
	Venue    string
	Message  string
	Original error
}

func (e *VenueError) Error() string {
	return e.Venue + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *VenueError) Unwrap() error {
	return e.Original
}
