package hedge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fundingbot/internal/exchange"
	"fundingbot/internal/models"
)

// slippageAllowance - поправка к mark price в неблагоприятную сторону,
// когда стакан недоступен (0.4%)
const slippageAllowance = 0.004

// Accountant вычисляет реалистичный P&L хедж-позиции: нереализованный
// P&L по ногам с учётом стакана, нотионал, комиссии и накопленный
// фандинг.
type Accountant struct {
	venues *exchange.Registry
	log    *zap.Logger
}

// NewAccountant создаёт бухгалтера поверх реестра бирж
func NewAccountant(venues *exchange.Registry, log *zap.Logger) *Accountant {
	return &Accountant{venues: venues, log: log}
}

// Notional возвращает долларовую экспозицию позиции
func Notional(size, price float64) float64 {
	return size * price
}

// TakerFee возвращает комиссию тейкера от нотионала
func TakerFee(ex exchange.Exchange, size, price float64) float64 {
	return Notional(size, price) * ex.TakerFee()
}

// LegUnrealizedPnl вычисляет нереализованный P&L одной ноги.
//
// Цена выхода берётся из стакана: закрытие LONG - по best bid,
// закрытие SHORT - по best ask. Если стакан недоступен, используется
// mark price со сдвигом slippageAllowance в неблагоприятную сторону.
// Отсутствующая позиция даёт нулевой P&L (нога уже закрыта извне).
func (a *Accountant) LegUnrealizedPnl(ctx context.Context, ticker string, leg models.HedgeLeg) (float64, error) {
	ex, ok := a.venues.Resolve(leg.Venue)
	if !ok {
		return 0, fmt.Errorf("unknown venue %q", leg.Venue)
	}

	positions, err := ex.Positions(ctx, ticker, leg.Direction)
	if err != nil {
		return 0, fmt.Errorf("%s: positions query failed: %w", leg.Venue, err)
	}
	if len(positions) == 0 {
		a.log.Debug("no live position for leg, pnl=0",
			zap.String("venue", leg.Venue),
			zap.String("ticker", ticker),
			zap.String("direction", leg.Direction))
		return 0, nil
	}

	pos := positions[0]
	exit := a.effectiveExitPrice(ctx, ex, ticker, leg.Direction, pos.MarkPrice)

	if leg.Direction == models.DirectionLong {
		return pos.Size * (exit - pos.EntryPrice), nil
	}
	return pos.Size * (pos.EntryPrice - exit), nil
}

// effectiveExitPrice возвращает реалистичную цену выхода ноги
func (a *Accountant) effectiveExitPrice(ctx context.Context, ex exchange.Exchange, ticker, direction string, markPrice float64) float64 {
	book, err := ex.OrderBook(ctx, ticker)
	if err == nil {
		if direction == models.DirectionLong && book.BestBid > 0 {
			return book.BestBid
		}
		if direction == models.DirectionShort && book.BestAsk > 0 {
			return book.BestAsk
		}
	}

	// Fallback: mark price со сдвигом против позиции
	if direction == models.DirectionLong {
		return markPrice * (1 - slippageAllowance)
	}
	return markPrice * (1 + slippageAllowance)
}

// Snapshot пересчитывает нереализованный P&L обеих ног и возвращает
// обновлённую копию снапшота. Исходный снапшот не мутируется.
// Ошибка одной ноги не роняет расчёт - нога сохраняет прежнее значение.
func (a *Accountant) Snapshot(ctx context.Context, pos *models.HedgePosition, base models.PnLSnapshot) (models.PnLSnapshot, error) {
	snap := base

	var firstErr error

	if pnl, err := a.LegUnrealizedPnl(ctx, pos.Ticker, pos.First); err != nil {
		firstErr = err
	} else {
		snap.FirstUnrealizedPnl = pnl
	}

	if pnl, err := a.LegUnrealizedPnl(ctx, pos.Ticker, pos.Second); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		snap.SecondUnrealizedPnl = pnl
	}

	snap.Recalculate()
	return snap, firstErr
}

// LegAccruedFunding возвращает накопленный нетто-фандинг ноги через
// контракт биржи (часть бирж отдаёт агрегат, часть суммирует выплаты)
func (a *Accountant) LegAccruedFunding(ctx context.Context, pos *models.HedgePosition, leg models.HedgeLeg, prevNet float64) (float64, error) {
	ex, ok := a.venues.Resolve(leg.Venue)
	if !ok {
		return prevNet, fmt.Errorf("unknown venue %q", leg.Venue)
	}
	return ex.AccruedFunding(ctx, pos.Ticker, leg.Direction, pos.OpenedAt, prevNet)
}
