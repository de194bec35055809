package hedge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fundingbot/internal/config"
	"fundingbot/internal/exchange"
	"fundingbot/internal/models"
	"fundingbot/pkg/retry"
)

// Monitor - периодические свипы над живыми позициями
//
// Каждый свип идёт на своём таймере и работает поверх реестра как
// единственного источника правды. Ошибка вызова биржи по одной позиции
// логируется и не прерывает обход остальных (MONITORING_FAILURE).
// Позиции с ManualCheck все свипы пропускают.
type Monitor struct {
	orch     *Orchestrator
	venues   *exchange.Registry
	registry *Registry
	acct     *Accountant
	feed     *exchange.RateFeed
	cfg      config.HedgeConfig
	log      *zap.Logger

	// Чтения бирж внутри свипов повторяются с бэкоффом;
	// сами закрытия не повторяются (идут через сагу)
	readRetry retry.Config
}

// NewMonitor собирает мониторинг поверх оркестратора
func NewMonitor(orch *Orchestrator, venues *exchange.Registry, acct *Accountant, feed *exchange.RateFeed, cfg config.HedgeConfig, log *zap.Logger) *Monitor {
	readRetry := retry.ConservativeConfig()
	readRetry.RetryIf = retry.RetryIfNotContext

	return &Monitor{
		orch:      orch,
		venues:    venues,
		registry:  orch.Registry(),
		acct:      acct,
		feed:      feed,
		cfg:       cfg,
		log:       log,
		readRetry: readRetry,
	}
}

// Run запускает все свипы и блокируется до отмены контекста
func (m *Monitor) Run(ctx context.Context) {
	go m.runFundingSweep(ctx)
	go m.runTicker(ctx, m.cfg.SmartTickInterval, m.SmartTick)
	go m.runTicker(ctx, m.cfg.FundingCalcInterval, m.SweepFundingCalc)
	go m.runTicker(ctx, m.cfg.PnlCheckInterval, m.SweepPnlThreshold)
	go m.runTicker(ctx, m.cfg.LiquidationInterval, m.SweepLiquidations)

	m.log.Info("[FundingBot] monitor started",
		zap.Duration("smart_tick", m.cfg.SmartTickInterval),
		zap.Duration("pnl_check", m.cfg.PnlCheckInterval),
		zap.Duration("liquidation", m.cfg.LiquidationInterval))

	<-ctx.Done()
	m.log.Info("[FundingBot] monitor stopped")
}

// runTicker вызывает sweep каждые interval до отмены контекста
func (m *Monitor) runTicker(ctx context.Context, interval time.Duration, sweep func(context.Context)) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runFundingSweep будит SweepFundingDue сразу после каждой часовой
// границы (выплаты фандинга идут по часам)
func (m *Monitor) runFundingSweep(ctx context.Context) {
	for {
		wait := time.Until(nextFundingBoundary(time.Now()))
		select {
		case <-time.After(wait):
			m.SweepFundingDue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// nextFundingBoundary возвращает ближайший момент hh:01:00 - минута
// запаса, чтобы выплата успела зачислиться
func nextFundingBoundary(now time.Time) time.Time {
	boundary := now.Truncate(time.Hour).Add(time.Minute)
	if !boundary.After(now) {
		boundary = boundary.Add(time.Hour)
	}
	return boundary
}

// ============================================================
// Свипы
// ============================================================

// SweepFundingDue закрывает все FAST_MODE позиции безусловно -
// выплата фандинга получена, профитность не проверяется
func (m *Monitor) SweepFundingDue(ctx context.Context) {
	for _, entry := range m.registry.ByMode(models.FastMode) {
		if entry.Position.ManualCheck {
			continue
		}

		if _, err := m.orch.Close(ctx, entry.Position.ID, models.CloseReasonFunding); err != nil {
			recordSweepError("funding_time")
			m.log.Error("[FundingBot] funding-time close failed",
				zap.String("position_id", entry.Position.ID), zap.Error(err))
		}
	}
}

// SmartTick переоценивает SMART_MODE позиции по текущему спреду.
//
// Плохой тик: метка действия сменилась (ставка перевернулась) либо
// спред упал до порога закрытия. Bad streak только растёт; на пороге
// позиция закрывается. Отдельно срабатывает максимум удержания.
func (m *Monitor) SmartTick(ctx context.Context) {
	now := time.Now()

	for _, entry := range m.registry.ByMode(models.SmartMode) {
		pos := entry.Position
		if pos.ManualCheck {
			continue
		}

		if m.cfg.SmartMaxHold > 0 && pos.HeldMinutes(now) >= int64(m.cfg.SmartMaxHold.Minutes()) {
			m.closePosition(ctx, pos.ID, models.CloseReasonMaxHold, "smart_tick")
			continue
		}

		spread, err := retry.DoWithResult(ctx, func() (*exchange.SpreadInfo, error) {
			return m.feed.Spread(ctx, pos.Ticker)
		}, m.readRetry)
		if err != nil {
			recordSweepError("smart_tick")
			m.log.Warn("[FundingBot] rate feed unavailable, skipping tick",
				zap.String("position_id", pos.ID), zap.Error(err))
			continue
		}

		flipped := spread.Action != pos.Action
		degraded := spread.Spread <= m.cfg.CloseSpreadThreshold
		if !flipped && !degraded {
			continue // хороший тик, streak не трогаем
		}

		streak, ok := m.registry.IncrementBadStreak(pos.ID)
		if !ok {
			continue // позиция закрылась параллельным свипом
		}

		m.log.Info("[FundingBot] bad tick",
			zap.String("position_id", pos.ID),
			zap.Bool("action_flipped", flipped),
			zap.Float64("spread_bps", spread.Spread),
			zap.Int("bad_streak", streak))

		if streak >= m.cfg.BadStreakThreshold {
			reason := models.CloseReasonBadStreak
			if flipped {
				// Переворот ставки на закрывающем тике - отдельная причина
				reason = models.CloseReasonRateFlip
			}
			m.closePosition(ctx, pos.ID, reason, "smart_tick")
		}
	}
}

// SweepFundingCalc пересчитывает накопленный фандинг обеих ног через
// контракты бирж и обновляет снапшоты
func (m *Monitor) SweepFundingCalc(ctx context.Context) {
	for _, entry := range m.registry.List() {
		pos := entry.Position
		if pos.ManualCheck {
			continue
		}

		firstNet, errFirst := m.acct.LegAccruedFunding(ctx, &pos, pos.First, entry.Snapshot.FirstFundingNet)
		secondNet, errSecond := m.acct.LegAccruedFunding(ctx, &pos, pos.Second, entry.Snapshot.SecondFundingNet)

		if errFirst != nil || errSecond != nil {
			recordSweepError("funding_calc")
			m.log.Warn("[FundingBot] funding recalculation failed",
				zap.String("position_id", pos.ID),
				zap.NamedError("first_err", errFirst),
				zap.NamedError("second_err", errSecond))
			// Успешная нога всё равно обновляется ниже
		}

		m.registry.UpdateSnapshot(pos.ID, func(s *models.PnLSnapshot) {
			if errFirst == nil {
				s.FirstFundingNet = firstNet
			}
			if errSecond == nil {
				s.SecondFundingNet = secondNet
			}
		})
	}
}

// SweepPnlThreshold проверяет достижение порога P&L.
//
// Молодые позиции (младше грейс-периода) пропускаются - сразу после
// открытия P&L шумит комиссиями. Нотификация одноразовая per position;
// после неё позиция закрывается.
func (m *Monitor) SweepPnlThreshold(ctx context.Context) {
	if !m.cfg.PnlNotifyEnabled {
		return
	}

	now := time.Now()

	for _, entry := range m.registry.List() {
		pos := entry.Position
		if pos.ManualCheck || pos.PnlNotified {
			continue
		}
		if now.Sub(pos.OpenedAt) < m.cfg.GracePeriod {
			continue
		}

		snap, err := m.acct.Snapshot(ctx, &pos, entry.Snapshot)
		if err != nil {
			recordSweepError("pnl_check")
			m.log.Warn("[FundingBot] pnl recomputation failed",
				zap.String("position_id", pos.ID), zap.Error(err))
			continue
		}

		m.registry.UpdateSnapshot(pos.ID, func(s *models.PnLSnapshot) {
			s.FirstUnrealizedPnl = snap.FirstUnrealizedPnl
			s.SecondUnrealizedPnl = snap.SecondUnrealizedPnl
		})

		percent := snap.NetPnlPercent(pos.Balance)
		if percent < m.cfg.PnlThresholdPct {
			continue
		}

		// MarkPnlNotified отдаёт true ровно один раз - защита от
		// гонки двух параллельных свипов
		if !m.registry.MarkPnlNotified(pos.ID) {
			continue
		}

		m.log.Info("[FundingBot] pnl threshold reached",
			zap.String("position_id", pos.ID),
			zap.Float64("percent", percent),
			zap.Float64("net_pnl", snap.NetPnl))

		if m.orch.notifier != nil {
			m.orch.notifier.PnlThreshold(models.PnlThresholdEvent{
				PositionID: pos.ID,
				Ticker:     pos.Ticker,
				Snapshot:   snap.Clone(),
				Percent:    percent,
				Margin:     pos.Balance,
				Mode:       pos.Mode,
			})
		}

		m.closePosition(ctx, pos.ID, models.CloseReasonPnlThreshold, "pnl_check")
	}
}

// SweepLiquidations ищет ноги, закрытые или ликвидированные извне.
// Осиротевшая вторая нога закрывается немедленно; отказ такого
// закрытия - единственный невосстановимый случай мониторинга,
// позиция помечается для ручной сверки.
func (m *Monitor) SweepLiquidations(ctx context.Context) {
	for _, entry := range m.registry.List() {
		pos := entry.Position
		if pos.ManualCheck {
			continue
		}

		firstAlive, errFirst := m.legAlive(ctx, pos.Ticker, pos.First)
		if errFirst != nil {
			recordSweepError("liquidation")
			m.log.Warn("[FundingBot] liquidation check failed",
				zap.String("position_id", pos.ID),
				zap.String("venue", pos.First.Venue), zap.Error(errFirst))
			continue
		}

		secondAlive, errSecond := m.legAlive(ctx, pos.Ticker, pos.Second)
		if errSecond != nil {
			recordSweepError("liquidation")
			m.log.Warn("[FundingBot] liquidation check failed",
				zap.String("position_id", pos.ID),
				zap.String("venue", pos.Second.Venue), zap.Error(errSecond))
			continue
		}

		if firstAlive && secondAlive {
			continue
		}

		m.log.Warn("[FundingBot] external liquidation detected",
			zap.String("position_id", pos.ID),
			zap.Bool("first_alive", firstAlive),
			zap.Bool("second_alive", secondAlive))

		var survivor *models.HedgeLeg
		if firstAlive {
			survivor = &pos.First
		} else if secondAlive {
			survivor = &pos.Second
		}

		m.forceCloseSurvivor(ctx, pos, survivor)
	}
}

// ============================================================
// Вспомогательные
// ============================================================

// legAlive возвращает true, если нога жива на бирже (с повторами чтения)
func (m *Monitor) legAlive(ctx context.Context, ticker string, leg models.HedgeLeg) (bool, error) {
	ex, ok := m.venues.Resolve(leg.Venue)
	if !ok {
		return false, &exchange.VenueError{Venue: leg.Venue, Message: "not registered"}
	}

	positions, err := retry.DoWithResult(ctx, func() ([]exchange.Position, error) {
		return ex.Positions(ctx, ticker, leg.Direction)
	}, m.readRetry)
	if err != nil {
		return false, err
	}

	return len(positions) > 0 && positions[0].Size > 0, nil
}

// forceCloseSurvivor закрывает осиротевшую ногу и снимает позицию
// с отслеживания. survivor == nil значит обе ноги уже исчезли.
func (m *Monitor) forceCloseSurvivor(ctx context.Context, pos models.HedgePosition, survivor *models.HedgeLeg) {
	if survivor != nil {
		ex, ok := m.venues.Resolve(survivor.Venue)
		if !ok {
			m.escalateManual(pos, "survivor venue not registered")
			return
		}

		if _, err := ex.ClosePosition(ctx, pos.Ticker, survivor.Direction); err != nil {
			m.log.Error("[FundingBot] survivor close failed, manual reconciliation required",
				zap.String("position_id", pos.ID),
				zap.String("venue", survivor.Venue), zap.Error(err))
			m.escalateManual(pos, "survivor close failed")
			return
		}
	}

	balanceBefore, _ := m.registry.BalanceBefore(pos.ID)
	m.registry.SetCloseReason(pos.ID, models.CloseReasonLiquidation)
	m.registry.Remove(pos.ID)
	OpenPositions.Set(float64(m.registry.Len()))

	first, okFirst := m.venues.Resolve(pos.First.Venue)
	second, okSecond := m.venues.Resolve(pos.Second.Venue)

	var profit, percent float64
	if okFirst && okSecond {
		profit = m.orch.realizedDelta(ctx, balanceBefore, first, second)
		if pos.Balance > 0 {
			percent = profit / pos.Balance * 100
		}
	}

	recordClose(models.CloseReasonLiquidation, true, profit)
	outcome := &CloseOutcome{
		PositionID: pos.ID,
		Ticker:     pos.Ticker,
		Profit:     profit,
		Percent:    percent,
		Success:    true,
		Reason:     models.CloseReasonLiquidation,
	}
	m.orch.persistTrade(ctx, pos, outcome, 0)
	m.orch.notifyClosed(models.PositionClosedEvent{
		PositionID: pos.ID,
		Ticker:     pos.Ticker,
		Profit:     profit,
		Percent:    percent,
		Success:    true,
		Mode:       pos.Mode,
		Reason:     models.CloseReasonLiquidation,
	})
}

// escalateManual помечает позицию как требующую ручной сверки
func (m *Monitor) escalateManual(pos models.HedgePosition, why string) {
	ManualInterventionsTotal.Inc()
	m.registry.SetCloseReason(pos.ID, models.CloseReasonLiquidation)
	m.registry.SetManualCheck(pos.ID)

	m.orch.notifyClosed(models.PositionClosedEvent{
		PositionID: pos.ID,
		Ticker:     pos.Ticker,
		Success:    false,
		Mode:       pos.Mode,
		Reason:     models.CloseReasonLiquidation + ": " + why,
	})
}

// closePosition закрывает позицию через сагу, логируя отказ как
// ошибку свипа
func (m *Monitor) closePosition(ctx context.Context, positionID, reason, sweep string) {
	if _, err := m.orch.Close(ctx, positionID, reason); err != nil {
		recordSweepError(sweep)
		m.log.Error("[FundingBot] sweep close failed",
			zap.String("position_id", positionID),
			zap.String("reason", reason),
			zap.Error(err))
	}
}
