package handlers

import (
	"context"
	"net/http"

	"fundingbot/internal/exchange"
)

// RateSource - текущие арбитражные спреды фандинга
type RateSource interface {
	All(ctx context.Context) ([]exchange.SpreadInfo, error)
	Top(ctx context.Context) (*exchange.SpreadInfo, error)
}

// RatesHandler отдаёт текущие спреды фандинга между биржами.
//
// Endpoints:
// - GET /api/v1/rates - все спреды, отсортированные по убыванию
// - GET /api/v1/rates/top - лучший текущий спред
type RatesHandler struct {
	rates RateSource
}

// NewRatesHandler создает новый RatesHandler
func NewRatesHandler(rates RateSource) *RatesHandler {
	return &RatesHandler{rates: rates}
}

// GetRates возвращает все текущие спреды
//
// GET /api/v1/rates
func (h *RatesHandler) GetRates(w http.ResponseWriter, r *http.Request) {
	spreads, err := h.rates.All(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to fetch rates", err)
		return
	}

	if spreads == nil {
		spreads = []exchange.SpreadInfo{}
	}
	respondJSON(w, http.StatusOK, spreads)
}

// GetTopRate возвращает лучший текущий спред
//
// GET /api/v1/rates/top
func (h *RatesHandler) GetTopRate(w http.ResponseWriter, r *http.Request) {
	top, err := h.rates.Top(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to fetch rates", err)
		return
	}
	respondJSON(w, http.StatusOK, top)
}
