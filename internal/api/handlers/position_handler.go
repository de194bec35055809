package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"fundingbot/internal/exchange"
	"fundingbot/internal/hedge"
	"fundingbot/internal/models"
	"fundingbot/pkg/utils"
)

// Orchestrator - операции жизненного цикла хеджа, используемые API
type Orchestrator interface {
	Open(ctx context.Context, intent models.OpenIntent) (*hedge.OpenResult, error)
	Close(ctx context.Context, positionID, reason string) (*hedge.CloseOutcome, error)
	CloseAll(ctx context.Context, reason string) ([]hedge.CloseOutcome, error)
}

// PositionSource - чтение реестра живых позиций
type PositionSource interface {
	List() []hedge.Entry
	Get(id string) (hedge.Entry, bool)
}

// IntentBuilder строит интент открытия из текущего спреда
type IntentBuilder interface {
	BuildIntent(info *exchange.SpreadInfo) (models.OpenIntent, bool)
	ManualIntent(info *exchange.SpreadInfo, mode models.HoldingMode) models.OpenIntent
}

// SpreadSource - выборка текущего спреда по тикеру
type SpreadSource interface {
	Spread(ctx context.Context, ticker string) (*exchange.SpreadInfo, error)
}

// PositionHandler обрабатывает HTTP запросы к живым хедж-позициям.
//
// Endpoints:
// - GET /api/v1/positions - список отслеживаемых позиций
// - GET /api/v1/positions/{id} - одна позиция
// - POST /api/v1/positions - ручное открытие по тикеру
// - POST /api/v1/positions/{id}/close - ручное закрытие
// - POST /api/v1/positions/close-all - закрытие всех позиций
type PositionHandler struct {
	orch      Orchestrator
	positions PositionSource
	builder   IntentBuilder
	spreads   SpreadSource
}

// NewPositionHandler создает новый PositionHandler с внедрением зависимостей
func NewPositionHandler(orch Orchestrator, positions PositionSource, builder IntentBuilder, spreads SpreadSource) *PositionHandler {
	return &PositionHandler{
		orch:      orch,
		positions: positions,
		builder:   builder,
		spreads:   spreads,
	}
}

// openRequest - тело запроса ручного открытия
type openRequest struct {
	Ticker string             `json:"ticker"`
	Mode   models.HoldingMode `json:"mode,omitempty"` // FAST_MODE / SMART_MODE, опционально
}

// GetPositions возвращает все отслеживаемые позиции
//
// GET /api/v1/positions
func (h *PositionHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	entries := h.positions.List()
	if entries == nil {
		entries = []hedge.Entry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// GetPosition возвращает одну позицию по id
//
// GET /api/v1/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := utils.ValidatePositionID(id); err != nil {
		respondError(w, http.StatusBadRequest, "invalid position id", err)
		return
	}

	entry, ok := h.positions.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "position not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// OpenPosition открывает хедж по тикеру вручную.
//
// POST /api/v1/positions
// Body: {"ticker": "BTC", "mode": "SMART_MODE"}
//
// Без явного mode режим выбирается по порогам входа; если спред ниже
// умного порога - 422.
func (h *PositionHandler) OpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := utils.ValidateSymbol(req.Ticker); err != nil {
		respondError(w, http.StatusBadRequest, "invalid ticker", err)
		return
	}

	if req.Mode != "" && req.Mode != models.FastMode && req.Mode != models.SmartMode {
		respondError(w, http.StatusBadRequest, "invalid mode", errors.New("mode must be FAST_MODE or SMART_MODE"))
		return
	}

	info, err := h.spreads.Spread(r.Context(), req.Ticker)
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to fetch current rates", err)
		return
	}

	var intent models.OpenIntent
	if req.Mode != "" {
		intent = h.builder.ManualIntent(info, req.Mode)
	} else {
		var ok bool
		intent, ok = h.builder.BuildIntent(info)
		if !ok {
			respondError(w, http.StatusUnprocessableEntity, "spread below entry threshold", nil)
			return
		}
	}

	result, err := h.orch.Open(r.Context(), intent)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "open failed", err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// ClosePosition закрывает позицию вручную.
//
// POST /api/v1/positions/{id}/close
//
// При неподтверждённом закрытии позиция остаётся в отслеживании,
// возвращается 502 с деталями.
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := utils.ValidatePositionID(id); err != nil {
		respondError(w, http.StatusBadRequest, "invalid position id", err)
		return
	}

	if _, ok := h.positions.Get(id); !ok {
		respondError(w, http.StatusNotFound, "position not found", nil)
		return
	}

	outcome, err := h.orch.Close(r.Context(), id, models.CloseReasonManual)
	if err != nil {
		respondError(w, http.StatusBadGateway, "close failed", err)
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}

// CloseAllPositions закрывает все отслеживаемые позиции.
//
// POST /api/v1/positions/close-all
//
// Возвращает исходы по каждой позиции; частичный провал - 207.
func (h *PositionHandler) CloseAllPositions(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.orch.CloseAll(r.Context(), models.CloseReasonManual)
	if outcomes == nil {
		outcomes = []hedge.CloseOutcome{}
	}

	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
	}

	respondJSON(w, status, map[string]interface{}{
		"outcomes": outcomes,
		"closed":   countClosed(outcomes),
		"total":    len(outcomes),
	})
}

func countClosed(outcomes []hedge.CloseOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Success {
			n++
		}
	}
	return n
}
