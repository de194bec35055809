package hedge

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fundingbot/internal/config"
	"fundingbot/internal/exchange"
	"fundingbot/internal/models"
)

// ============================================================
// Фейки зависимостей оркестратора
// ============================================================

var errVenue = errors.New("venue failure")

// fakeExchange - управляемая реализация контракта биржи.
// Поля задают ответы, счётчики фиксируют вызовы.
type fakeExchange struct {
	mu sync.Mutex

	name string

	balance    exchange.Balance
	balanceErr error

	positions    []exchange.Position
	positionsErr error

	maxSize    float64
	maxSizeErr error

	openOrderID string
	openErr     error
	openWait    time.Duration // задержка открытия, прерывается контекстом

	closeResult exchange.CloseResult
	closeErr    error

	maxLeverage    int
	maxLeverageErr error
	setLeverageErr error

	orderBook    exchange.OrderBook
	orderBookErr error

	takerFee float64

	hasSchedule  bool
	minutesUntil int64
	minutesErr   error

	accrued    float64
	accruedErr error

	supportsProtective bool

	openCalls     int
	closeCalls    int
	leverageSet   []int
	stopLosses    []float64
	takeProfits   []float64
	openedSizes   []float64
	lastDirection string
}

// newFakeExchange возвращает фейк с ответами, достаточными для
// успешного прохождения всей саги открытия
func newFakeExchange(name string) *fakeExchange {
	return &fakeExchange{
		name:        name,
		balance:     exchange.Balance{Total: 100, TradableMargin: 85},
		positions:   []exchange.Position{{Size: 0.84, EntryPrice: 100, MarkPrice: 100}},
		maxSize:     1.0,
		openOrderID: name + "-order",
		closeResult: exchange.CloseResult{OrderID: name + "-close", Success: true},
		maxLeverage: 10,
		orderBook:   exchange.OrderBook{BestBid: 99.5, BestAsk: 100.5},
		takerFee:    0.0004,
	}
}

func (f *fakeExchange) Name() string { return f.name }

func (f *fakeExchange) Balance(ctx context.Context) (exchange.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.balanceErr
}

// setBalance меняет баланс между шагами саги (имитация исполнения)
func (f *fakeExchange) setBalance(total, tradable float64) {
	f.mu.Lock()
	f.balance = exchange.Balance{Total: total, TradableMargin: tradable}
	f.mu.Unlock()
}

func (f *fakeExchange) Positions(ctx context.Context, ticker, direction string) ([]exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, f.positionsErr
}

func (f *fakeExchange) MaxSizeForMargin(ctx context.Context, ticker string, marginUSD float64, leverage int, isBuy bool) (float64, error) {
	return f.maxSize, f.maxSizeErr
}

func (f *fakeExchange) OpenWithSize(ctx context.Context, ticker string, size float64, direction string) (string, error) {
	if f.openWait > 0 {
		select {
		case <-time.After(f.openWait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	f.openedSizes = append(f.openedSizes, size)
	f.lastDirection = direction
	return f.openOrderID, f.openErr
}

func (f *fakeExchange) ClosePosition(ctx context.Context, ticker, direction string) (exchange.CloseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return f.closeResult, f.closeErr
}

func (f *fakeExchange) SetLeverage(ctx context.Context, ticker string, leverage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverageSet = append(f.leverageSet, leverage)
	return f.setLeverageErr
}

func (f *fakeExchange) MaxLeverage(ctx context.Context, ticker string) (int, error) {
	return f.maxLeverage, f.maxLeverageErr
}

func (f *fakeExchange) OrderBook(ctx context.Context, ticker string) (exchange.OrderBook, error) {
	return f.orderBook, f.orderBookErr
}

func (f *fakeExchange) TakerFee() float64 { return f.takerFee }

func (f *fakeExchange) HasFundingSchedule() bool { return f.hasSchedule }

func (f *fakeExchange) MinutesUntilFunding(ctx context.Context, ticker string) (int64, error) {
	return f.minutesUntil, f.minutesErr
}

func (f *fakeExchange) AccruedFunding(ctx context.Context, ticker, direction string, since time.Time, prevNet float64) (float64, error) {
	if f.accruedErr != nil {
		return prevNet, f.accruedErr
	}
	return f.accrued, nil
}

func (f *fakeExchange) SupportsProtectiveOrders() bool { return f.supportsProtective }

func (f *fakeExchange) PlaceStopLoss(ctx context.Context, ticker, direction string, price float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLosses = append(f.stopLosses, price)
	return f.name + "-sl", nil
}

func (f *fakeExchange) PlaceTakeProfit(ctx context.Context, ticker, direction string, price float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.takeProfits = append(f.takeProfits, price)
	return f.name + "-tp", nil
}

func (f *fakeExchange) OpenDelay(other string) time.Duration  { return 0 }
func (f *fakeExchange) CloseDelay(other string) time.Duration { return 0 }

func (f *fakeExchange) closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func (f *fakeExchange) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.openCalls
}

// fakeNotifier собирает события оркестратора
type fakeNotifier struct {
	mu     sync.Mutex
	opened []models.PositionOpenedEvent
	closed []models.PositionClosedEvent
	pnl    []models.PnlThresholdEvent
}

func (f *fakeNotifier) PositionOpened(event models.PositionOpenedEvent) {
	f.mu.Lock()
	f.opened = append(f.opened, event)
	f.mu.Unlock()
}

func (f *fakeNotifier) PositionClosed(event models.PositionClosedEvent) {
	f.mu.Lock()
	f.closed = append(f.closed, event)
	f.mu.Unlock()
}

func (f *fakeNotifier) PnlThreshold(event models.PnlThresholdEvent) {
	f.mu.Lock()
	f.pnl = append(f.pnl, event)
	f.mu.Unlock()
}

func (f *fakeNotifier) closedEvents() []models.PositionClosedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PositionClosedEvent, len(f.closed))
	copy(out, f.closed)
	return out
}

// fakeTradeStore собирает записи истории сделок
type fakeTradeStore struct {
	mu      sync.Mutex
	saved   []*models.TradeRecord
	saveErr error
}

func (f *fakeTradeStore) Save(ctx context.Context, rec *models.TradeRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	return len(f.saved), f.saveErr
}

func (f *fakeTradeStore) records() []*models.TradeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.TradeRecord, len(f.saved))
	copy(out, f.saved)
	return out
}

// ============================================================
// Общие фикстуры
// ============================================================

// testHedgeConfig - конфигурация с нулевыми паузами, чтобы тесты
// не спали
func testHedgeConfig() config.HedgeConfig {
	return config.HedgeConfig{
		Venues:               []string{"alpha", "beta"},
		FastLeverage:         3,
		SmartLeverage:        2,
		FastModeRate:         30,
		SmartModeRate:        15,
		BadStreakThreshold:   3,
		CloseSpreadThreshold: 5,
		PnlNotifyEnabled:     true,
		PnlThresholdPct:      1.0,
		GracePeriod:          10 * time.Minute,
		OpenTimeout:          2 * time.Second,
		CloseTimeout:         2 * time.Second,
		SettleDelay:          0,
		CloseSettleDelay:     0,
		MarginFloor:          5,
		FundingWindowMax:     60 * time.Minute,
	}
}

type testEnv struct {
	first    *fakeExchange
	second   *fakeExchange
	venues   *exchange.Registry
	registry *Registry
	notifier *fakeNotifier
	store    *fakeTradeStore
	orch     *Orchestrator
}

// newTestEnv собирает оркестратор поверх двух фейковых бирж
func newTestEnv(cfg config.HedgeConfig) *testEnv {
	first := newFakeExchange("alpha")
	second := newFakeExchange("beta")

	venues := exchange.NewRegistry()
	venues.Register(first)
	venues.Register(second)

	registry := NewRegistry()
	notifier := &fakeNotifier{}
	store := &fakeTradeStore{}
	acct := NewAccountant(venues, zap.NewNop())

	orch := NewOrchestrator(venues, registry, acct, nil, store, notifier, cfg, zap.NewNop())

	return &testEnv{
		first:    first,
		second:   second,
		venues:   venues,
		registry: registry,
		notifier: notifier,
		store:    store,
		orch:     orch,
	}
}

func sampleIntent(mode models.HoldingMode) models.OpenIntent {
	return models.OpenIntent{
		Ticker:   "BTC",
		First:    models.HedgeLeg{Venue: "alpha", Direction: models.DirectionLong},
		Second:   models.HedgeLeg{Venue: "beta", Direction: models.DirectionShort},
		Leverage: 3,
		Mode:     mode,
		Rate:     35,
		Action:   "LONG alpha, SHORT beta",
	}
}

// insertTestPosition кладёт позицию в реестр напрямую, минуя сагу
// открытия (для тестов мониторинга и закрытия)
func insertTestPosition(registry *Registry, id string, mode models.HoldingMode, openedAt time.Time) *models.HedgePosition {
	pos := &models.HedgePosition{
		ID:       id,
		Ticker:   "BTC",
		First:    models.HedgeLeg{Venue: "alpha", Direction: models.DirectionLong},
		Second:   models.HedgeLeg{Venue: "beta", Direction: models.DirectionShort},
		Balance:  50,
		Mode:     mode,
		OpenedAt: openedAt,
		OpenRate: 35,
		Action:   "LONG alpha, SHORT beta",
	}
	snap := &models.PnLSnapshot{PositionID: id, Ticker: "BTC", OpenTime: openedAt}
	snap.Recalculate()
	registry.Insert(pos, snap, 200)
	return pos
}
