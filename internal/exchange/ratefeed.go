package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// rateFeedCacheTTL - время жизни кэша ответа API (фид обновляется раз
// в минуту, чаще ходить бессмысленно)
const rateFeedCacheTTL = 60 * time.Second

// SpreadInfo - текущий спред фандинга по тикеру между двумя биржами
type SpreadInfo struct {
	Ticker      string  `json:"ticker"`
	FirstVenue  string  `json:"first_venue"`
	SecondVenue string  `json:"second_venue"`
	FirstRate   float64 `json:"first_rate"`  // bps
	SecondRate  float64 `json:"second_rate"` // bps
	Spread      float64 `json:"spread"`      // |first - second|, bps
	Action      string  `json:"action"`      // "LONG <a>, SHORT <b>"
}

// feedResponse - читаемая часть ответа внешнего фида
type feedResponse struct {
	FundingRates map[string]map[string]float64 `json:"funding_rates"`
}

// RateFeed - клиент внешнего фида ставок фандинга
//
// Единственный потребитель - smart-режим мониторинга и продюсер
// сигналов. Ответ кэшируется на rateFeedCacheTTL, сетевые ошибки
// наружу отдаются как есть (вызывающий решает, пропустить тик или нет).
type RateFeed struct {
	url    string
	venues []string // биржи, учитываемые при поиске спредов
	client *http.Client
	log    *zap.Logger

	mu        sync.Mutex
	cached    map[string]map[string]float64
	fetchedAt time.Time
}

// NewRateFeed создаёт клиент фида для заданного набора бирж
func NewRateFeed(url string, venues []string, log *zap.Logger) *RateFeed {
	lowered := make([]string, len(venues))
	for i, v := range venues {
		lowered[i] = strings.ToLower(v)
	}

	return &RateFeed{
		url:    url,
		venues: lowered,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// All возвращает все арбитражные спреды по поддерживаемым биржам,
// отсортированные по убыванию
func (f *RateFeed) All(ctx context.Context) ([]SpreadInfo, error) {
	rates, err := f.fundingRates(ctx)
	if err != nil {
		return nil, err
	}

	// Фильтруем только подключённые биржи
	filtered := make(map[string]map[string]float64)
	for venue, byTicker := range rates {
		if f.isKnownVenue(venue) {
			filtered[strings.ToLower(venue)] = byTicker
		}
	}

	if len(filtered) < 2 {
		return nil, fmt.Errorf("not enough venues in feed for arbitrage: got %d", len(filtered))
	}

	venues := make([]string, 0, len(filtered))
	for v := range filtered {
		venues = append(venues, v)
	}
	sort.Strings(venues)

	var spreads []SpreadInfo
	for i := 0; i < len(venues); i++ {
		for j := i + 1; j < len(venues); j++ {
			spreads = append(spreads, pairSpreads(venues[i], filtered[venues[i]], venues[j], filtered[venues[j]])...)
		}
	}

	sort.Slice(spreads, func(a, b int) bool {
		return spreads[a].Spread > spreads[b].Spread
	})

	return spreads, nil
}

// Top возвращает лучший текущий спред
func (f *RateFeed) Top(ctx context.Context) (*SpreadInfo, error) {
	spreads, err := f.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(spreads) == 0 {
		return nil, fmt.Errorf("no common tickers across venues")
	}
	return &spreads[0], nil
}

// Spread возвращает лучший текущий спред по конкретному тикеру
func (f *RateFeed) Spread(ctx context.Context, ticker string) (*SpreadInfo, error) {
	spreads, err := f.All(ctx)
	if err != nil {
		return nil, err
	}

	for i := range spreads {
		if spreads[i].Ticker == ticker {
			return &spreads[i], nil
		}
	}
	return nil, fmt.Errorf("ticker %s not found in current rates", ticker)
}

// pairSpreads строит спреды по общим тикерам пары бирж.
// Меньшая ставка - LONG (нога получает фандинг), большая - SHORT.
func pairSpreads(venueA string, ratesA map[string]float64, venueB string, ratesB map[string]float64) []SpreadInfo {
	var out []SpreadInfo

	for ticker, rateA := range ratesA {
		rateB, ok := ratesB[ticker]
		if !ok {
			continue
		}

		spread := rateA - rateB
		if spread < 0 {
			spread = -spread
		}

		var action string
		if rateA < rateB {
			action = fmt.Sprintf("LONG %s, SHORT %s", venueA, venueB)
		} else {
			action = fmt.Sprintf("SHORT %s, LONG %s", venueA, venueB)
		}

		out = append(out, SpreadInfo{
			Ticker:      ticker,
			FirstVenue:  venueA,
			SecondVenue: venueB,
			FirstRate:   rateA,
			SecondRate:  rateB,
			Spread:      spread,
			Action:      action,
		})
	}

	return out
}

// fundingRates возвращает funding_rates из фида, с кэшем
func (f *RateFeed) fundingRates(ctx context.Context) (map[string]map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != nil && time.Since(f.fetchedAt) < rateFeedCacheTTL {
		return f.cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed feedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("rate feed parse failed: %w", err)
	}

	if parsed.FundingRates == nil {
		return nil, fmt.Errorf("no funding_rates in feed response")
	}

	f.cached = parsed.FundingRates
	f.fetchedAt = time.Now()
	f.log.Debug("rate feed response cached", zap.Int("venues", len(f.cached)))

	return f.cached, nil
}

func (f *RateFeed) isKnownVenue(name string) bool {
	name = strings.ToLower(name)
	for _, v := range f.venues {
		if v == name {
			return true
		}
	}
	return false
}
