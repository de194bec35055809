package hedge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fundingbot/internal/config"
	"fundingbot/internal/exchange"
	"fundingbot/internal/models"
	"fundingbot/pkg/utils"
)

// sizePrecision - точность округления размера ноги (знаков после запятой).
// Округление всегда вниз: ни одна биржа не должна получить запрос больше,
// чем она может исполнить.
const sizePrecision = 2

// Notifier доставляет события оркестратора подписчикам (websocket hub)
type Notifier interface {
	PositionOpened(event models.PositionOpenedEvent)
	PositionClosed(event models.PositionClosedEvent)
	PnlThreshold(event models.PnlThresholdEvent)
}

// TradeStore сохраняет исходы закрытий в историю сделок
type TradeStore interface {
	Save(ctx context.Context, rec *models.TradeRecord) (int, error)
}

// OpenResult - успешный результат открытия хеджа
type OpenResult struct {
	PositionID    string  `json:"position_id"`
	Ticker        string  `json:"ticker"`
	Size          float64 `json:"size"`
	Margin        float64 `json:"margin"`
	Leverage      int     `json:"leverage"`
	FirstOrderID  string  `json:"first_order_id"`
	SecondOrderID string  `json:"second_order_id"`
}

// CloseOutcome - результат закрытия хеджа
type CloseOutcome struct {
	PositionID string  `json:"position_id"`
	Ticker     string  `json:"ticker"`
	Profit     float64 `json:"profit"`
	Percent    float64 `json:"percent"`
	Success    bool    `json:"success"`
	Reason     string  `json:"reason"`
}

// legResult - результат одной ноги (открытие или закрытие)
type legResult struct {
	orderID string
	err     error
}

// Orchestrator - сага открытия/удержания/закрытия дельта-нейтрального хеджа
//
// Атомарности между двумя биржами не существует, поэтому оркестратор
// имитирует её сам: параллельное исполнение ног с таймаутом,
// компенсирующее закрытие при частичном отказе, повторная валидация
// после паузы на распространение. Сырые ошибки бирж наружу не выходят -
// только SagaError.
type Orchestrator struct {
	venues     *exchange.Registry
	registry   *Registry
	accountant *Accountant
	feed       *exchange.RateFeed
	store      TradeStore
	notifier   Notifier
	cfg        config.HedgeConfig
	log        *zap.Logger
}

// NewOrchestrator собирает оркестратор из зависимостей
func NewOrchestrator(
	venues *exchange.Registry,
	registry *Registry,
	accountant *Accountant,
	feed *exchange.RateFeed,
	store TradeStore,
	notifier Notifier,
	cfg config.HedgeConfig,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		venues:     venues,
		registry:   registry,
		accountant: accountant,
		feed:       feed,
		store:      store,
		notifier:   notifier,
		cfg:        cfg,
		log:        log,
	}
}

// Registry возвращает реестр позиций (для API и мониторинга)
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// ============================================================
// Открытие
// ============================================================

// Open исполняет сагу открытия хеджа по сигналу.
//
// Отказ до отправки ордеров не оставляет следов. Отказ после - либо
// откатывается компенсирующим закрытием (OPENING_FAILURE), либо
// принудительным закрытием после валидации (VALIDATION_FAILURE), либо
// остаётся видимым до ручной сверки (MANUAL_INTERVENTION).
func (o *Orchestrator) Open(ctx context.Context, intent models.OpenIntent) (*OpenResult, error) {
	// Шаг 1: разрешаем адаптеры бирж
	first, ok := o.venues.Resolve(intent.First.Venue)
	if !ok {
		recordOpen(intent.Ticker, "rejected")
		return nil, &SagaError{Kind: FailureOpening, Ticker: intent.Ticker,
			Message: fmt.Sprintf("unknown venue %q", intent.First.Venue)}
	}
	second, ok := o.venues.Resolve(intent.Second.Venue)
	if !ok {
		recordOpen(intent.Ticker, "rejected")
		return nil, &SagaError{Kind: FailureOpening, Ticker: intent.Ticker,
			Message: fmt.Sprintf("unknown venue %q", intent.Second.Venue)}
	}

	// Шаг 2: используемая маржа = min торгуемых марж обеих бирж.
	// Haircut (85%) закладывает сам адаптер в TradableMargin.
	balFirst, err := first.Balance(ctx)
	if err != nil {
		recordOpen(intent.Ticker, "rejected")
		return nil, o.openingFailure(intent.Ticker, "", 0, "balance query failed on "+first.Name(), err)
	}
	balSecond, err := second.Balance(ctx)
	if err != nil {
		recordOpen(intent.Ticker, "rejected")
		return nil, o.openingFailure(intent.Ticker, "", 0, "balance query failed on "+second.Name(), err)
	}

	margin := utils.Min(balFirst.TradableMargin, balSecond.TradableMargin)
	if margin <= o.cfg.MarginFloor {
		recordOpen(intent.Ticker, "rejected")
		return nil, o.openingFailure(intent.Ticker, "", 0,
			fmt.Sprintf("usable margin %.2f below floor %.2f", margin, o.cfg.MarginFloor), nil)
	}

	balanceBefore := balFirst.Total + balSecond.Total

	// Ограничение на время до выплаты фандинга - только для бирж
	// с расписанием выплат
	if err := o.checkFundingWindow(ctx, intent.Ticker, first, second); err != nil {
		recordOpen(intent.Ticker, "rejected")
		return nil, err
	}

	// Шаг 3: выделяем id позиции
	posID, seq := o.registry.NextID()

	log := o.log.With(
		zap.String("position_id", posID),
		zap.String("ticker", intent.Ticker),
		zap.String("action", intent.Action),
	)
	log.Info("[FundingBot] opening hedge",
		zap.Float64("margin", margin),
		zap.Float64("rate_bps", intent.Rate),
		zap.String("mode", string(intent.Mode)))

	// Шаг 4: эффективное плечо = min(запрошенное, максимумы обеих бирж)
	leverage, err := o.resolveLeverage(ctx, intent.Ticker, intent.Leverage, first, second)
	if err != nil {
		o.registry.Release(seq)
		recordOpen(intent.Ticker, "rejected")
		return nil, err
	}

	// Шаг 5: параллельный расчёт максимального размера для маржи;
	// берём меньший, округляем вниз до фиксированной точности
	size, err := o.resolveSize(ctx, intent, margin, leverage, first, second)
	if err != nil {
		o.registry.Release(seq)
		recordOpen(intent.Ticker, "rejected")
		return nil, err
	}

	log.Info("[FundingBot] hedge sizing resolved",
		zap.Int("leverage", leverage),
		zap.Float64("size", size))

	// Шаг 6: параллельное открытие обеих ног с общим таймаутом
	firstRes, secondRes := o.openLegs(ctx, intent, size, first, second)

	// Шаг 7: частичный отказ - компенсирующее закрытие успевшей ноги
	if firstRes.err != nil || secondRes.err != nil {
		loss := o.rollbackOpen(intent, firstRes, secondRes, first, second, balanceBefore)
		o.registry.Release(seq)
		recordOpen(intent.Ticker, "open_failed")

		sagaErr := o.openingFailure(intent.Ticker, posID, loss,
			fmt.Sprintf("leg open failed: %s=%v %s=%v",
				first.Name(), firstRes.err, second.Name(), secondRes.err), nil)
		o.notifyOpened(intent, posID, loss, false, sagaErr.Error())
		return nil, sagaErr
	}

	// Шаг 8: валидация - после паузы на распространение обе ноги
	// должны быть видны на биржах
	o.sleep(ctx, o.cfg.SettleDelay)

	posFirst, posSecond, err := o.validateLegs(ctx, intent, posID, first, second, balanceBefore)
	if err != nil {
		if NeedsManualCheck(err) {
			recordOpen(intent.Ticker, "manual")
		} else {
			recordOpen(intent.Ticker, "validation_failed")
		}
		o.notifyOpened(intent, posID, 0, false, err.Error())
		return nil, err
	}

	// Шаг 9: метрики дельта-нейтральности - только наблюдаемость,
	// никогда не причина отказа
	o.logDeltaNeutrality(log, size, posFirst, posSecond)

	// Шаг 10: регистрируем позицию со снапшотом комиссий открытия
	intent.First.OrderID = firstRes.orderID
	intent.Second.OrderID = secondRes.orderID

	pos := &models.HedgePosition{
		ID:       posID,
		Ticker:   intent.Ticker,
		First:    intent.First,
		Second:   intent.Second,
		Balance:  margin,
		Mode:     intent.Mode,
		OpenedAt: time.Now(),
		OpenRate: intent.Rate,
		Action:   intent.Action,
	}

	snap := &models.PnLSnapshot{
		PositionID: posID,
		Ticker:     intent.Ticker,
		OpenTime:   pos.OpenedAt,
		OpenFees: TakerFee(first, posFirst.Size, posFirst.EntryPrice) +
			TakerFee(second, posSecond.Size, posSecond.EntryPrice),
	}
	snap.Recalculate()

	o.registry.Insert(pos, snap, balanceBefore)
	OpenPositions.Set(float64(o.registry.Len()))

	// Защитные ордера - best-effort, биржа без поддержки пропускается
	if o.cfg.SlTpEnabled {
		o.placeProtectiveOrders(ctx, pos, posFirst.EntryPrice, posSecond.EntryPrice, first, second)
	}

	recordOpen(intent.Ticker, "success")
	o.notifyOpened(intent, posID, margin, true, "hedge opened")

	log.Info("[FundingBot] hedge opened",
		zap.String("first_order", firstRes.orderID),
		zap.String("second_order", secondRes.orderID),
		zap.Float64("open_fees", snap.OpenFees))

	// Шаг 11
	return &OpenResult{
		PositionID:    posID,
		Ticker:        intent.Ticker,
		Size:          size,
		Margin:        margin,
		Leverage:      leverage,
		FirstOrderID:  firstRes.orderID,
		SecondOrderID: secondRes.orderID,
	}, nil
}

// checkFundingWindow отклоняет открытие, если до выплаты фандинга на
// бирже с расписанием остаётся больше лимита
func (o *Orchestrator) checkFundingWindow(ctx context.Context, ticker string, venues ...exchange.Exchange) error {
	maxMinutes := int64(o.cfg.FundingWindowMax.Minutes())

	for _, ex := range venues {
		if !ex.HasFundingSchedule() {
			continue
		}
		minutes, err := ex.MinutesUntilFunding(ctx, ticker)
		if err != nil {
			return o.openingFailure(ticker, "", 0, "funding schedule query failed on "+ex.Name(), err)
		}
		if minutes > maxMinutes {
			return o.openingFailure(ticker, "", 0,
				fmt.Sprintf("%s pays funding in %d min, limit %d", ex.Name(), minutes, maxMinutes), nil)
		}
	}
	return nil
}

// resolveLeverage вычисляет связывающее плечо: минимум из запрошенного
// и живых максимумов бирж, затем выставляет его на обеих
func (o *Orchestrator) resolveLeverage(ctx context.Context, ticker string, requested int, venues ...exchange.Exchange) (int, error) {
	leverage := requested

	for _, ex := range venues {
		max, err := ex.MaxLeverage(ctx, ticker)
		if errors.Is(err, exchange.ErrNotSupported) {
			continue // биржа без понятия плеча не ограничивает
		}
		if err != nil {
			return 0, o.openingFailure(ticker, "", 0, "max leverage query failed on "+ex.Name(), err)
		}
		if max > 0 && max < leverage {
			leverage = max
		}
	}

	for _, ex := range venues {
		if err := ex.SetLeverage(ctx, ticker, leverage); err != nil && !errors.Is(err, exchange.ErrNotSupported) {
			return 0, o.openingFailure(ticker, "", 0, "set leverage failed on "+ex.Name(), err)
		}
	}

	return leverage, nil
}

// resolveSize параллельно запрашивает максимальный размер каждой ноги
// и возвращает floor(min) с фиксированной точностью
func (o *Orchestrator) resolveSize(ctx context.Context, intent models.OpenIntent, margin float64, leverage int, first, second exchange.Exchange) (float64, error) {
	type sizeResult struct {
		size float64
		err  error
	}

	firstCh := make(chan sizeResult, 1)
	secondCh := make(chan sizeResult, 1)

	go func() {
		s, err := first.MaxSizeForMargin(ctx, intent.Ticker, margin, leverage,
			intent.First.Direction == models.DirectionLong)
		firstCh <- sizeResult{size: s, err: err}
	}()
	go func() {
		s, err := second.MaxSizeForMargin(ctx, intent.Ticker, margin, leverage,
			intent.Second.Direction == models.DirectionLong)
		secondCh <- sizeResult{size: s, err: err}
	}()

	firstRes := <-firstCh
	secondRes := <-secondCh

	if firstRes.err != nil {
		return 0, o.openingFailure(intent.Ticker, "", 0, "sizing failed on "+first.Name(), firstRes.err)
	}
	if secondRes.err != nil {
		return 0, o.openingFailure(intent.Ticker, "", 0, "sizing failed on "+second.Name(), secondRes.err)
	}

	size := utils.FloorToPrecision(utils.Min(firstRes.size, secondRes.size), sizePrecision)
	if size <= 0 {
		return 0, o.openingFailure(intent.Ticker, "", 0,
			fmt.Sprintf("resolved size is zero (first=%.6f second=%.6f)", firstRes.size, secondRes.size), nil)
	}
	return size, nil
}

// openLegs параллельно отправляет открывающие ордера обеих ног и ждёт
// оба результата с общим таймаутом. Таймаут ноги = отказ ноги.
func (o *Orchestrator) openLegs(ctx context.Context, intent models.OpenIntent, size float64, first, second exchange.Exchange) (legResult, legResult) {
	openCtx, cancel := context.WithTimeout(ctx, o.cfg.OpenTimeout)
	defer cancel()

	firstCh := make(chan legResult, 1)
	secondCh := make(chan legResult, 1)

	go func() {
		o.staggerDelay(openCtx, first.OpenDelay(second.Name()))
		started := time.Now()
		orderID, err := first.OpenWithSize(openCtx, intent.Ticker, size, intent.First.Direction)
		LegLatency.WithLabelValues(first.Name(), "open").Observe(float64(time.Since(started).Milliseconds()))
		firstCh <- legResult{orderID: orderID, err: err}
	}()
	go func() {
		o.staggerDelay(openCtx, second.OpenDelay(first.Name()))
		started := time.Now()
		orderID, err := second.OpenWithSize(openCtx, intent.Ticker, size, intent.Second.Direction)
		LegLatency.WithLabelValues(second.Name(), "open").Observe(float64(time.Since(started).Milliseconds()))
		secondCh <- legResult{orderID: orderID, err: err}
	}()

	firstRes, secondRes := joinLegs(openCtx, firstCh, secondCh,
		fmt.Errorf("open timed out after %v", o.cfg.OpenTimeout))

	// Ордер без идентификатора приравнивается к отказу
	if firstRes.err == nil && firstRes.orderID == "" {
		firstRes.err = fmt.Errorf("%s returned no order id", first.Name())
	}
	if secondRes.err == nil && secondRes.orderID == "" {
		secondRes.err = fmt.Errorf("%s returned no order id", second.Name())
	}

	return firstRes, secondRes
}

// joinLegs ждёт результаты обеих ног с общим дедлайном. Неполученная к
// дедлайну нога получает timeoutErr.
//
// После Done уже доставленные результаты добираются неблокирующе:
// select может выбрать Done при готовом результате в буфере канала, и
// без добора реально исполненный ордер был бы засчитан как провал -
// компенсирующее закрытие его бы пропустило.
func joinLegs(ctx context.Context, firstCh, secondCh <-chan legResult, timeoutErr error) (legResult, legResult) {
	firstRes := legResult{err: timeoutErr}
	secondRes := legResult{err: timeoutErr}
	var firstReceived, secondReceived bool

	for !firstReceived || !secondReceived {
		select {
		case firstRes = <-firstCh:
			firstReceived = true
		case secondRes = <-secondCh:
			secondReceived = true
		case <-ctx.Done():
			if !firstReceived {
				select {
				case firstRes = <-firstCh:
				default:
				}
			}
			if !secondReceived {
				select {
				case secondRes = <-secondCh:
				default:
				}
			}
			return firstRes, secondRes
		}
	}
	return firstRes, secondRes
}

// rollbackOpen закрывает успевшие открыться ноги (best-effort) и
// возвращает реализованную потерю как дельту балансов.
//
// Отказ компенсирующего закрытия здесь логируется, но НЕ эскалируется
// в ручную сверку: путь и так best-effort (принятая асимметрия с
// валидацией).
func (o *Orchestrator) rollbackOpen(intent models.OpenIntent, firstRes, secondRes legResult, first, second exchange.Exchange, balanceBefore float64) float64 {
	// Отдельный контекст: вызывающий ctx мог уже истечь
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.CloseTimeout)
	defer cancel()

	if firstRes.err == nil {
		RollbacksTotal.Inc()
		if _, err := first.ClosePosition(ctx, intent.Ticker, intent.First.Direction); err != nil {
			o.log.Error("[FundingBot] rollback close failed",
				zap.String("venue", first.Name()),
				zap.String("ticker", intent.Ticker),
				zap.Error(err))
		}
	}
	if secondRes.err == nil {
		RollbacksTotal.Inc()
		if _, err := second.ClosePosition(ctx, intent.Ticker, intent.Second.Direction); err != nil {
			o.log.Error("[FundingBot] rollback close failed",
				zap.String("venue", second.Name()),
				zap.String("ticker", intent.Ticker),
				zap.Error(err))
		}
	}

	o.sleep(ctx, o.cfg.SettleDelay)
	return o.realizedDelta(ctx, balanceBefore, first, second)
}

// validateLegs перепроверяет живое присутствие обеих ног после открытия.
// Отсутствие любой из них - принудительное закрытие оставшихся и
// VALIDATION_FAILURE; отказ принудительного закрытия - эскалация в
// MANUAL_INTERVENTION, позиция остаётся видимой до ручной сверки.
func (o *Orchestrator) validateLegs(ctx context.Context, intent models.OpenIntent, posID string, first, second exchange.Exchange, balanceBefore float64) (exchange.Position, exchange.Position, error) {
	var zero exchange.Position

	posFirst, errFirst := first.Positions(ctx, intent.Ticker, intent.First.Direction)
	posSecond, errSecond := second.Positions(ctx, intent.Ticker, intent.Second.Direction)

	firstPresent := errFirst == nil && len(posFirst) > 0 && posFirst[0].Size > 0
	secondPresent := errSecond == nil && len(posSecond) > 0 && posSecond[0].Size > 0

	if firstPresent && secondPresent {
		return posFirst[0], posSecond[0], nil
	}

	o.log.Warn("[FundingBot] validation failed, forcing close of surviving legs",
		zap.String("position_id", posID),
		zap.Bool("first_present", firstPresent),
		zap.Bool("second_present", secondPresent),
		zap.NamedError("first_err", errFirst),
		zap.NamedError("second_err", errSecond))

	var closeFailed bool
	if firstPresent {
		if _, err := first.ClosePosition(ctx, intent.Ticker, intent.First.Direction); err != nil {
			closeFailed = true
			o.log.Error("[FundingBot] forced close failed",
				zap.String("venue", first.Name()), zap.Error(err))
		}
	}
	if secondPresent {
		if _, err := second.ClosePosition(ctx, intent.Ticker, intent.Second.Direction); err != nil {
			closeFailed = true
			o.log.Error("[FundingBot] forced close failed",
				zap.String("venue", second.Name()), zap.Error(err))
		}
	}

	if closeFailed {
		// Нельзя терять след: регистрируем как требующую ручной сверки
		ManualInterventionsTotal.Inc()
		pos := &models.HedgePosition{
			ID:       posID,
			Ticker:   intent.Ticker,
			First:    intent.First,
			Second:   intent.Second,
			Mode:     intent.Mode,
			OpenedAt: time.Now(),
			OpenRate: intent.Rate,
			Action:   intent.Action,
		}
		snap := &models.PnLSnapshot{PositionID: posID, Ticker: intent.Ticker, OpenTime: pos.OpenedAt}
		o.registry.Insert(pos, snap, balanceBefore)
		o.registry.SetManualCheck(posID)
		OpenPositions.Set(float64(o.registry.Len()))

		return zero, zero, &SagaError{
			Kind:       FailureManual,
			PositionID: posID,
			Ticker:     intent.Ticker,
			Message:    "forced close after validation failed, manual reconciliation required",
		}
	}

	o.sleep(ctx, o.cfg.SettleDelay)
	loss := o.realizedDelta(ctx, balanceBefore, first, second)

	return zero, zero, &SagaError{
		Kind:       FailureValidation,
		PositionID: posID,
		Ticker:     intent.Ticker,
		Loss:       loss,
		Message:    "legs vanished before confirmation, remaining legs force-closed",
	}
}

// logDeltaNeutrality логирует расхождение ног по размеру и нотионалу
func (o *Orchestrator) logDeltaNeutrality(log *zap.Logger, intended float64, first, second exchange.Position) {
	sizeDelta := utils.Abs(first.Size-second.Size) / intended * 100
	notionalFirst := Notional(first.Size, first.EntryPrice)
	notionalSecond := Notional(second.Size, second.EntryPrice)

	var notionalDelta float64
	if notionalFirst > 0 {
		notionalDelta = utils.Abs(notionalFirst-notionalSecond) / notionalFirst * 100
	}

	log.Info("[FundingBot] delta neutrality",
		zap.Float64("size_delta_pct", sizeDelta),
		zap.Float64("notional_delta_pct", notionalDelta),
		zap.Float64("notional_first", notionalFirst),
		zap.Float64("notional_second", notionalSecond))
}

// placeProtectiveOrders выставляет SL/TP на ногах, которые это умеют.
// Любой отказ логируется и не влияет на исход открытия.
func (o *Orchestrator) placeProtectiveOrders(ctx context.Context, pos *models.HedgePosition, entryFirst, entrySecond float64, first, second exchange.Exchange) {
	place := func(ex exchange.Exchange, leg models.HedgeLeg, entry float64) {
		if !ex.SupportsProtectiveOrders() {
			return
		}

		slMul, tpMul := 1-o.cfg.StopLossPct/100, 1+o.cfg.TakeProfitPct/100
		if leg.Direction == models.DirectionShort {
			slMul, tpMul = 1+o.cfg.StopLossPct/100, 1-o.cfg.TakeProfitPct/100
		}

		if _, err := ex.PlaceStopLoss(ctx, pos.Ticker, leg.Direction, entry*slMul); err != nil {
			o.log.Warn("[FundingBot] stop loss placement failed",
				zap.String("venue", ex.Name()), zap.String("position_id", pos.ID), zap.Error(err))
		}
		if _, err := ex.PlaceTakeProfit(ctx, pos.Ticker, leg.Direction, entry*tpMul); err != nil {
			o.log.Warn("[FundingBot] take profit placement failed",
				zap.String("venue", ex.Name()), zap.String("position_id", pos.ID), zap.Error(err))
		}
	}

	place(first, pos.First, entryFirst)
	place(second, pos.Second, entrySecond)
}

// ============================================================
// Закрытие
// ============================================================

// Close закрывает хедж по id с указанием причины.
//
// Позиция удаляется из реестра только после подтверждённого успеха.
// Провал закрытия оставляет её в реестре для повтора (CLOSING_FAILURE);
// событие с success=false и сообщение о ручной проверке отправляются
// в любом случае.
func (o *Orchestrator) Close(ctx context.Context, positionID, reason string) (*CloseOutcome, error) {
	entry, ok := o.registry.Get(positionID)
	if !ok {
		return nil, fmt.Errorf("position %s not found", positionID)
	}
	pos := entry.Position

	log := o.log.With(
		zap.String("position_id", positionID),
		zap.String("ticker", pos.Ticker),
		zap.String("reason", reason))

	// Конкурирующие закрытия сериализуются через машину состояний:
	// позиция уже в CLOSING не принимает второй Close, иначе свип и
	// REST-запрос оператора отправят дублирующие ордера на биржи
	if !o.registry.SetState(positionID, StateClosing) {
		return nil, fmt.Errorf("position %s close already in progress", positionID)
	}
	o.registry.SetCloseReason(positionID, reason)

	// Шаг 1: ожидаемый P&L до отправки ордеров - только для сверки в логе
	if expected, err := o.accountant.Snapshot(ctx, &pos, entry.Snapshot); err == nil {
		log.Info("[FundingBot] closing hedge",
			zap.Float64("expected_net_pnl", expected.NetPnl),
			zap.Float64("expected_funding_net", expected.TotalFundingNet))
	} else {
		log.Warn("[FundingBot] expected pnl unavailable before close", zap.Error(err))
	}

	spreadAtClose := o.spreadAtClose(ctx, pos.Ticker)

	first, okFirst := o.venues.Resolve(pos.First.Venue)
	second, okSecond := o.venues.Resolve(pos.Second.Venue)
	if !okFirst || !okSecond {
		return o.closeFailed(ctx, pos, reason, spreadAtClose,
			fmt.Errorf("venue resolution failed: first=%v second=%v", okFirst, okSecond))
	}

	// Шаг 2: параллельное закрытие обеих ног с таймаутом
	if err := o.closeLegs(ctx, pos, first, second); err != nil {
		return o.closeFailed(ctx, pos, reason, spreadAtClose, err)
	}

	// Шаг 3: после паузы на распространение читаем балансы;
	// профит = баланс после - баланс до открытия
	o.sleep(ctx, o.cfg.CloseSettleDelay)

	balanceBefore, _ := o.registry.BalanceBefore(positionID)
	profit := o.realizedDelta(ctx, balanceBefore, first, second)

	var percent float64
	if pos.Balance > 0 {
		percent = profit / pos.Balance * 100
	}

	o.registry.SetState(positionID, StateClosed)
	o.registry.Remove(positionID)
	OpenPositions.Set(float64(o.registry.Len()))
	recordClose(reason, true, profit)

	outcome := &CloseOutcome{
		PositionID: positionID,
		Ticker:     pos.Ticker,
		Profit:     profit,
		Percent:    percent,
		Success:    true,
		Reason:     reason,
	}

	o.persistTrade(ctx, pos, outcome, spreadAtClose)
	o.notifyClosed(models.PositionClosedEvent{
		PositionID:    positionID,
		Ticker:        pos.Ticker,
		Profit:        profit,
		Percent:       percent,
		Success:       true,
		Mode:          pos.Mode,
		SpreadAtClose: spreadAtClose,
		Reason:        reason,
	})

	log.Info("[FundingBot] hedge closed",
		zap.Float64("profit", profit),
		zap.Float64("percent", percent))

	return outcome, nil
}

// CloseAll закрывает все отслеживаемые позиции, пропуская требующие
// ручной сверки. Возвращает исходы и первую ошибку.
func (o *Orchestrator) CloseAll(ctx context.Context, reason string) ([]CloseOutcome, error) {
	var outcomes []CloseOutcome
	var firstErr error

	for _, entry := range o.registry.List() {
		if entry.Position.ManualCheck {
			o.log.Warn("[FundingBot] skipping manual-check position in close-all",
				zap.String("position_id", entry.Position.ID))
			continue
		}

		outcome, err := o.Close(ctx, entry.Position.ID, reason)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		outcomes = append(outcomes, *outcome)
	}

	return outcomes, firstErr
}

// closeLegs параллельно закрывает обе ноги с общим таймаутом
func (o *Orchestrator) closeLegs(ctx context.Context, pos models.HedgePosition, first, second exchange.Exchange) error {
	closeCtx, cancel := context.WithTimeout(ctx, o.cfg.CloseTimeout)
	defer cancel()

	firstCh := make(chan legResult, 1)
	secondCh := make(chan legResult, 1)

	go func() {
		o.staggerDelay(closeCtx, first.CloseDelay(second.Name()))
		started := time.Now()
		res, err := first.ClosePosition(closeCtx, pos.Ticker, pos.First.Direction)
		LegLatency.WithLabelValues(first.Name(), "close").Observe(float64(time.Since(started).Milliseconds()))
		if err == nil && !res.Success {
			err = fmt.Errorf("%s reported unsuccessful close", first.Name())
		}
		firstCh <- legResult{orderID: res.OrderID, err: err}
	}()
	go func() {
		o.staggerDelay(closeCtx, second.CloseDelay(first.Name()))
		started := time.Now()
		res, err := second.ClosePosition(closeCtx, pos.Ticker, pos.Second.Direction)
		LegLatency.WithLabelValues(second.Name(), "close").Observe(float64(time.Since(started).Milliseconds()))
		if err == nil && !res.Success {
			err = fmt.Errorf("%s reported unsuccessful close", second.Name())
		}
		secondCh <- legResult{orderID: res.OrderID, err: err}
	}()

	firstRes, secondRes := joinLegs(closeCtx, firstCh, secondCh,
		fmt.Errorf("close timed out after %v", o.cfg.CloseTimeout))

	if firstRes.err != nil || secondRes.err != nil {
		return fmt.Errorf("close failed: %s=%v %s=%v",
			first.Name(), firstRes.err, second.Name(), secondRes.err)
	}
	return nil
}

// closeFailed оформляет провал закрытия: позиция остаётся в реестре
// для повтора, событие и запись истории с success=false
func (o *Orchestrator) closeFailed(ctx context.Context, pos models.HedgePosition, reason string, spreadAtClose float64, cause error) (*CloseOutcome, error) {
	// Возврат в мониторинг: следующий свип или оператор повторит
	o.registry.SetState(pos.ID, StateMonitoring)
	recordClose(reason, false, 0)

	outcome := &CloseOutcome{
		PositionID: pos.ID,
		Ticker:     pos.Ticker,
		Success:    false,
		Reason:     reason,
	}

	o.persistTrade(ctx, pos, outcome, spreadAtClose)
	o.notifyClosed(models.PositionClosedEvent{
		PositionID:    pos.ID,
		Ticker:        pos.Ticker,
		Success:       false,
		Mode:          pos.Mode,
		SpreadAtClose: spreadAtClose,
		Reason:        reason,
	})

	o.log.Error("[FundingBot] hedge close failed, manual check required",
		zap.String("position_id", pos.ID),
		zap.String("ticker", pos.Ticker),
		zap.Error(cause))

	return outcome, &SagaError{
		Kind:       FailureClosing,
		PositionID: pos.ID,
		Ticker:     pos.Ticker,
		Message:    "close failed, position kept for retry, manual check required",
		Err:        cause,
	}
}

// ============================================================
// Вспомогательные
// ============================================================

// openingFailure оборачивает причину отказа открытия в SagaError
func (o *Orchestrator) openingFailure(ticker, posID string, loss float64, msg string, err error) *SagaError {
	return &SagaError{
		Kind:       FailureOpening,
		PositionID: posID,
		Ticker:     ticker,
		Loss:       loss,
		Message:    msg,
		Err:        err,
	}
}

// realizedDelta возвращает дельту суммарного баланса бирж к balanceBefore.
// Ошибки чтения баланса считают вклад биржи нулевым (логируются).
func (o *Orchestrator) realizedDelta(ctx context.Context, balanceBefore float64, venues ...exchange.Exchange) float64 {
	var after float64
	for _, ex := range venues {
		bal, err := ex.Balance(ctx)
		if err != nil {
			o.log.Warn("[FundingBot] balance read failed during delta calculation",
				zap.String("venue", ex.Name()), zap.Error(err))
			continue
		}
		after += bal.Total
	}
	return after - balanceBefore
}

// spreadAtClose возвращает текущий спред тикера или 0, если фид недоступен
func (o *Orchestrator) spreadAtClose(ctx context.Context, ticker string) float64 {
	if o.feed == nil {
		return 0
	}
	info, err := o.feed.Spread(ctx, ticker)
	if err != nil {
		return 0
	}
	return info.Spread
}

// persistTrade сохраняет исход закрытия в историю сделок
func (o *Orchestrator) persistTrade(ctx context.Context, pos models.HedgePosition, outcome *CloseOutcome, spreadAtClose float64) {
	if o.store == nil {
		return
	}

	rec := &models.TradeRecord{
		PositionID:    pos.ID,
		Ticker:        pos.Ticker,
		FirstVenue:    pos.First.Venue,
		SecondVenue:   pos.Second.Venue,
		Mode:          pos.Mode,
		Margin:        pos.Balance,
		Profit:        outcome.Profit,
		Percent:       outcome.Percent,
		SpreadAtClose: spreadAtClose,
		Reason:        outcome.Reason,
		Success:       outcome.Success,
		OpenedAt:      pos.OpenedAt,
		ClosedAt:      time.Now(),
	}

	if _, err := o.store.Save(ctx, rec); err != nil {
		o.log.Error("[FundingBot] trade history save failed",
			zap.String("position_id", pos.ID), zap.Error(err))
	}
}

// notifyOpened отправляет событие исхода открытия
func (o *Orchestrator) notifyOpened(intent models.OpenIntent, posID string, balance float64, success bool, message string) {
	if o.notifier == nil {
		return
	}
	o.notifier.PositionOpened(models.PositionOpenedEvent{
		PositionID:      posID,
		Ticker:          intent.Ticker,
		Message:         message,
		Balance:         balance,
		FirstVenue:      intent.First.Venue,
		SecondVenue:     intent.Second.Venue,
		FirstDirection:  intent.First.Direction,
		SecondDirection: intent.Second.Direction,
		Success:         success,
	})
}

// notifyClosed отправляет событие исхода закрытия
func (o *Orchestrator) notifyClosed(event models.PositionClosedEvent) {
	if o.notifier == nil {
		return
	}
	o.notifier.PositionClosed(event)
}

// staggerDelay выдерживает преднамеренную рассинхронизацию ног
func (o *Orchestrator) staggerDelay(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// sleep ждёт d с учётом отмены контекста
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
