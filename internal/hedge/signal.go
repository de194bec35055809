package hedge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fundingbot/internal/config"
	"fundingbot/internal/exchange"
	"fundingbot/internal/models"
)

// Scanner - продюсер сигналов открытия
//
// Периодически берёт лучший спред из фида и строит OpenIntent:
// FAST_MODE при спреде от быстрого порога, SMART_MODE от умного.
// Ниже умного порога сигнала нет. Каждый интент потребляется
// оркестратором ровно один раз.
type Scanner struct {
	orch *Orchestrator
	feed *exchange.RateFeed
	cfg  config.HedgeConfig
	log  *zap.Logger
}

// NewScanner создаёт продюсер сигналов
func NewScanner(orch *Orchestrator, feed *exchange.RateFeed, cfg config.HedgeConfig, log *zap.Logger) *Scanner {
	return &Scanner{orch: orch, feed: feed, cfg: cfg, log: log}
}

// Run сканирует фид каждые ScanInterval до отмены контекста
func (s *Scanner) Run(ctx context.Context) {
	if s.cfg.ScanInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.log.Info("[FundingBot] signal scanner started",
		zap.Duration("interval", s.cfg.ScanInterval),
		zap.Float64("fast_threshold_bps", s.cfg.FastModeRate),
		zap.Float64("smart_threshold_bps", s.cfg.SmartModeRate))

	for {
		select {
		case <-ticker.C:
			s.Scan(ctx)
		case <-ctx.Done():
			s.log.Info("[FundingBot] signal scanner stopped")
			return
		}
	}
}

// Scan делает один проход: лучший спред, выбор режима, открытие
func (s *Scanner) Scan(ctx context.Context) {
	top, err := s.feed.Top(ctx)
	if err != nil {
		s.log.Warn("[FundingBot] rate feed scan failed", zap.Error(err))
		return
	}

	SpreadObserved.WithLabelValues(top.Ticker).Observe(top.Spread)

	intent, ok := s.BuildIntent(top)
	if !ok {
		s.log.Debug("[FundingBot] top spread below entry threshold",
			zap.String("ticker", top.Ticker),
			zap.Float64("spread_bps", top.Spread))
		return
	}

	s.log.Info("[FundingBot] open signal",
		zap.String("ticker", intent.Ticker),
		zap.String("mode", string(intent.Mode)),
		zap.String("action", intent.Action),
		zap.Float64("spread_bps", intent.Rate))

	if _, err := s.orch.Open(ctx, intent); err != nil {
		s.log.Warn("[FundingBot] signal open rejected", zap.Error(err))
	}
}

// BuildIntent превращает спред в интент открытия.
// Возвращает false, если спред не дотягивает до умного порога.
// Нога с меньшей ставкой - LONG (получатель фандинга).
func (s *Scanner) BuildIntent(info *exchange.SpreadInfo) (models.OpenIntent, bool) {
	switch {
	case info.Spread >= s.cfg.FastModeRate:
		return s.intent(info, models.FastMode), true
	case info.Spread >= s.cfg.SmartModeRate:
		return s.intent(info, models.SmartMode), true
	default:
		return models.OpenIntent{}, false
	}
}

// ManualIntent строит интент с явно заданным оператором режимом,
// минуя пороги входа
func (s *Scanner) ManualIntent(info *exchange.SpreadInfo, mode models.HoldingMode) models.OpenIntent {
	return s.intent(info, mode)
}

func (s *Scanner) intent(info *exchange.SpreadInfo, mode models.HoldingMode) models.OpenIntent {
	leverage := s.cfg.SmartLeverage
	if mode == models.FastMode {
		leverage = s.cfg.FastLeverage
	}

	firstDir, secondDir := models.DirectionLong, models.DirectionShort
	if info.FirstRate > info.SecondRate {
		firstDir, secondDir = models.DirectionShort, models.DirectionLong
	}

	return models.OpenIntent{
		Ticker:   info.Ticker,
		First:    models.HedgeLeg{Venue: info.FirstVenue, Direction: firstDir},
		Second:   models.HedgeLeg{Venue: info.SecondVenue, Direction: secondDir},
		Leverage: leverage,
		Mode:     mode,
		Rate:     info.Spread,
		Action:   info.Action,
	}
}
