package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

// ============================================================
// Тесты клиента фида ставок
// ============================================================

func newFeedServer(t *testing.T, body string, status int) (*httptest.Server, *int64) {
	t.Helper()

	var requests int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&requests, 1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, &requests
}

const sampleFeedBody = `{
	"funding_rates": {
		"alpha":   {"BTC": -20, "ETH": -5, "SOL": 2},
		"beta":    {"BTC": 15,  "ETH": -3},
		"unknown": {"BTC": 99}
	}
}`

func newTestRateFeed(t *testing.T, body string, status int) (*RateFeed, *int64) {
	server, requests := newFeedServer(t, body, status)
	return NewRateFeed(server.URL, []string{"alpha", "beta"}, zap.NewNop()), requests
}

func TestRateFeed_All(t *testing.T) {
	feed, _ := newTestRateFeed(t, sampleFeedBody, http.StatusOK)

	spreads, err := feed.All(context.Background())
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}

	// Общие тикеры alpha/beta: BTC (35) и ETH (2); SOL только на alpha,
	// unknown не в списке подключённых бирж
	if len(spreads) != 2 {
		t.Fatalf("spreads = %d, want 2", len(spreads))
	}
	if spreads[0].Ticker != "BTC" || spreads[0].Spread != 35 {
		t.Errorf("top spread = %s/%v, want BTC/35", spreads[0].Ticker, spreads[0].Spread)
	}
	if spreads[1].Ticker != "ETH" || spreads[1].Spread != 2 {
		t.Errorf("second spread = %s/%v, want ETH/2", spreads[1].Ticker, spreads[1].Spread)
	}

	// Меньшая ставка - LONG
	if spreads[0].Action != "LONG alpha, SHORT beta" {
		t.Errorf("action = %q, want LONG alpha, SHORT beta", spreads[0].Action)
	}
}

func TestRateFeed_Top(t *testing.T) {
	feed, _ := newTestRateFeed(t, sampleFeedBody, http.StatusOK)

	top, err := feed.Top(context.Background())
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if top.Ticker != "BTC" {
		t.Errorf("top ticker = %s, want BTC", top.Ticker)
	}
}

func TestRateFeed_Spread(t *testing.T) {
	feed, _ := newTestRateFeed(t, sampleFeedBody, http.StatusOK)

	info, err := feed.Spread(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("Spread failed: %v", err)
	}
	if info.Ticker != "ETH" || info.Spread != 2 {
		t.Errorf("spread = %s/%v, want ETH/2", info.Ticker, info.Spread)
	}

	if _, err := feed.Spread(context.Background(), "DOGE"); err == nil {
		t.Error("unknown ticker must fail")
	}
}

func TestRateFeed_Caching(t *testing.T) {
	feed, requests := newTestRateFeed(t, sampleFeedBody, http.StatusOK)

	for i := 0; i < 3; i++ {
		if _, err := feed.All(context.Background()); err != nil {
			t.Fatalf("All failed on call %d: %v", i, err)
		}
	}

	if got := atomic.LoadInt64(requests); got != 1 {
		t.Errorf("feed requests = %d, want 1 (cached)", got)
	}
}

func TestRateFeed_ErrorStatus(t *testing.T) {
	feed, _ := newTestRateFeed(t, "oops", http.StatusInternalServerError)

	if _, err := feed.All(context.Background()); err == nil {
		t.Error("non-200 response must fail")
	}
}

func TestRateFeed_BadPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"broken json", `{"funding_rates":`},
		{"missing funding_rates", `{"other": 1}`},
		{"single venue", `{"funding_rates": {"alpha": {"BTC": 1}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed, _ := newTestRateFeed(t, tt.body, http.StatusOK)
			if _, err := feed.All(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPairSpreads(t *testing.T) {
	spreads := pairSpreads(
		"alpha", map[string]float64{"BTC": 10, "ETH": -4},
		"beta", map[string]float64{"BTC": -10},
	)

	if len(spreads) != 1 {
		t.Fatalf("spreads = %d, want 1 (only common tickers)", len(spreads))
	}
	s := spreads[0]
	if s.Spread != 20 {
		t.Errorf("spread = %v, want 20 (absolute difference)", s.Spread)
	}
	// Большая ставка - SHORT
	if s.Action != "SHORT alpha, LONG beta" {
		t.Errorf("action = %q, want SHORT alpha, LONG beta", s.Action)
	}
}
