package handlers

import (
	"context"
	"errors"
	"time"

	"fundingbot/internal/exchange"
	"fundingbot/internal/hedge"
	"fundingbot/internal/models"
)

// ============================================================
// Фейки зависимостей handlers
// ============================================================

type fakeOrchestrator struct {
	openResult   *hedge.OpenResult
	openErr      error
	closeOutcome *hedge.CloseOutcome
	closeErr     error
	allOutcomes  []hedge.CloseOutcome
	allErr       error

	openedIntents []models.OpenIntent
	closedIDs     []string
}

func (f *fakeOrchestrator) Open(ctx context.Context, intent models.OpenIntent) (*hedge.OpenResult, error) {
	f.openedIntents = append(f.openedIntents, intent)
	return f.openResult, f.openErr
}

func (f *fakeOrchestrator) Close(ctx context.Context, positionID, reason string) (*hedge.CloseOutcome, error) {
	f.closedIDs = append(f.closedIDs, positionID)
	return f.closeOutcome, f.closeErr
}

func (f *fakeOrchestrator) CloseAll(ctx context.Context, reason string) ([]hedge.CloseOutcome, error) {
	return f.allOutcomes, f.allErr
}

type fakePositions struct {
	entries map[string]hedge.Entry
}

func (f *fakePositions) List() []hedge.Entry {
	var out []hedge.Entry
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out
}

func (f *fakePositions) Get(id string) (hedge.Entry, bool) {
	e, ok := f.entries[id]
	return e, ok
}

type fakeBuilder struct {
	intent models.OpenIntent
	ok     bool
}

func (f *fakeBuilder) BuildIntent(info *exchange.SpreadInfo) (models.OpenIntent, bool) {
	return f.intent, f.ok
}

func (f *fakeBuilder) ManualIntent(info *exchange.SpreadInfo, mode models.HoldingMode) models.OpenIntent {
	intent := f.intent
	intent.Mode = mode
	return intent
}

type fakeSpreads struct {
	info *exchange.SpreadInfo
	err  error
}

func (f *fakeSpreads) Spread(ctx context.Context, ticker string) (*exchange.SpreadInfo, error) {
	return f.info, f.err
}

type fakeTrades struct {
	trades []*models.TradeRecord
	count  int
	profit float64
	err    error
}

func (f *fakeTrades) GetRecent(ctx context.Context, limit int) ([]*models.TradeRecord, error) {
	return f.trades, f.err
}

func (f *fakeTrades) GetSince(ctx context.Context, from time.Time, limit int) ([]*models.TradeRecord, error) {
	return f.trades, f.err
}

func (f *fakeTrades) GetByTicker(ctx context.Context, ticker string, limit int) ([]*models.TradeRecord, error) {
	var out []*models.TradeRecord
	for _, tr := range f.trades {
		if tr.Ticker == ticker {
			out = append(out, tr)
		}
	}
	return out, f.err
}

func (f *fakeTrades) Count(ctx context.Context) (int, error) {
	return f.count, f.err
}

func (f *fakeTrades) TotalProfit(ctx context.Context, from time.Time) (float64, error) {
	return f.profit, f.err
}

var errFake = errors.New("fake failure")

func sampleEntry(id string) hedge.Entry {
	return hedge.Entry{
		Position: models.HedgePosition{
			ID:     id,
			Ticker: "BTC",
			First:  models.HedgeLeg{Venue: "extended", Direction: models.DirectionLong},
			Second: models.HedgeLeg{Venue: "aster", Direction: models.DirectionShort},
			Mode:   models.FastMode,
		},
		State: hedge.StateMonitoring,
	}
}

func sampleSpread() *exchange.SpreadInfo {
	return &exchange.SpreadInfo{
		Ticker:      "BTC",
		FirstVenue:  "extended",
		SecondVenue: "aster",
		FirstRate:   -20,
		SecondRate:  15,
		Spread:      35,
		Action:      "LONG extended, SHORT aster",
	}
}
