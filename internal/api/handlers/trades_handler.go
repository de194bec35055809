package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"fundingbot/internal/models"
	"fundingbot/pkg/utils"
)

// defaultTradesLimit - лимит выборки истории по умолчанию
const (
	defaultTradesLimit = 50
	maxTradesLimit     = 500
)

// TradeHistory - чтение истории сделок из БД
type TradeHistory interface {
	GetRecent(ctx context.Context, limit int) ([]*models.TradeRecord, error)
	GetSince(ctx context.Context, from time.Time, limit int) ([]*models.TradeRecord, error)
	GetByTicker(ctx context.Context, ticker string, limit int) ([]*models.TradeRecord, error)
	Count(ctx context.Context) (int, error)
	TotalProfit(ctx context.Context, from time.Time) (float64, error)
}

// TradesHandler отдаёт историю закрытий из БД.
//
// Endpoints:
// - GET /api/v1/trades?period=day|week|month|year|all&ticker=BTC&limit=50
// - GET /api/v1/trades/summary?period=...
type TradesHandler struct {
	trades TradeHistory
}

// NewTradesHandler создает новый TradesHandler
func NewTradesHandler(trades TradeHistory) *TradesHandler {
	return &TradesHandler{trades: trades}
}

// GetTrades возвращает историю сделок с фильтром по периоду и тикеру
//
// GET /api/v1/trades
func (h *TradesHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"))

	if ticker := r.URL.Query().Get("ticker"); ticker != "" {
		if err := utils.ValidateSymbol(ticker); err != nil {
			respondError(w, http.StatusBadRequest, "invalid ticker", err)
			return
		}

		trades, err := h.trades.GetByTicker(r.Context(), ticker, limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to get trades", err)
			return
		}
		respondTrades(w, trades)
		return
	}

	period := utils.PeriodType(r.URL.Query().Get("period"))
	if period == "" || period == utils.PeriodAll {
		trades, err := h.trades.GetRecent(r.Context(), limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to get trades", err)
			return
		}
		respondTrades(w, trades)
		return
	}

	trades, err := h.trades.GetSince(r.Context(), utils.GetPeriodStart(period), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get trades", err)
		return
	}
	respondTrades(w, trades)
}

// GetSummary возвращает агрегированную сводку по истории
//
// GET /api/v1/trades/summary
func (h *TradesHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	period := utils.PeriodType(r.URL.Query().Get("period"))
	if period == "" {
		period = utils.PeriodAll
	}
	from := utils.GetPeriodStart(period)

	count, err := h.trades.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get summary", err)
		return
	}

	profit, err := h.trades.TotalProfit(r.Context(), from)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get summary", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"period":       string(period),
		"total_trades": count,
		"total_profit": profit,
	})
}

func respondTrades(w http.ResponseWriter, trades []*models.TradeRecord) {
	if trades == nil {
		trades = []*models.TradeRecord{}
	}
	respondJSON(w, http.StatusOK, trades)
}

func parseLimit(raw string) int {
	limit := defaultTradesLimit
	if raw == "" {
		return limit
	}
	if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
		limit = parsed
		if limit > maxTradesLimit {
			limit = maxTradesLimit
		}
	}
	return limit
}
