package exchange

import (
	"context"
	"testing"
	"time"
)

// stubExchange - минимальная реализация контракта для тестов реестра
type stubExchange struct {
	name string
}

func (s *stubExchange) Name() string                                  { return s.name }
func (s *stubExchange) Balance(ctx context.Context) (Balance, error) { return Balance{}, nil }
func (s *stubExchange) Positions(ctx context.Context, ticker, direction string) ([]Position, error) {
	return nil, nil
}
func (s *stubExchange) MaxSizeForMargin(ctx context.Context, ticker string, marginUSD float64, leverage int, isBuy bool) (float64, error) {
	return 0, nil
}
func (s *stubExchange) OpenWithSize(ctx context.Context, ticker string, size float64, direction string) (string, error) {
	return "", nil
}
func (s *stubExchange) ClosePosition(ctx context.Context, ticker, direction string) (CloseResult, error) {
	return CloseResult{}, nil
}
func (s *stubExchange) SetLeverage(ctx context.Context, ticker string, leverage int) error {
	return nil
}
func (s *stubExchange) MaxLeverage(ctx context.Context, ticker string) (int, error) { return 0, nil }
func (s *stubExchange) OrderBook(ctx context.Context, ticker string) (OrderBook, error) {
	return OrderBook{}, nil
}
func (s *stubExchange) TakerFee() float64        { return 0 }
func (s *stubExchange) HasFundingSchedule() bool { return false }
func (s *stubExchange) MinutesUntilFunding(ctx context.Context, ticker string) (int64, error) {
	return 0, nil
}
func (s *stubExchange) AccruedFunding(ctx context.Context, ticker, direction string, since time.Time, prevNet float64) (float64, error) {
	return prevNet, nil
}
func (s *stubExchange) SupportsProtectiveOrders() bool { return false }
func (s *stubExchange) PlaceStopLoss(ctx context.Context, ticker, direction string, price float64) (string, error) {
	return "", ErrNotSupported
}
func (s *stubExchange) PlaceTakeProfit(ctx context.Context, ticker, direction string, price float64) (string, error) {
	return "", ErrNotSupported
}
func (s *stubExchange) OpenDelay(other string) time.Duration  { return 0 }
func (s *stubExchange) CloseDelay(other string) time.Duration { return 0 }

func TestRegistry_RegisterResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubExchange{name: "Alpha"})

	// Разрешение нечувствительно к регистру
	for _, name := range []string{"alpha", "Alpha", "ALPHA"} {
		if _, ok := r.Resolve(name); !ok {
			t.Errorf("Resolve(%q) failed", name)
		}
	}

	if _, ok := r.Resolve("ghost"); ok {
		t.Error("unknown venue must not resolve")
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubExchange{name: "beta"})
	r.Register(&stubExchange{name: "alpha"})

	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("names = %v, want [alpha beta]", names)
	}
	if r.Len() != 2 {
		t.Errorf("len = %d, want 2", r.Len())
	}
}

func TestFactoryRegistration(t *testing.T) {
	RegisterFactory("test-venue", func() (Exchange, error) {
		return &stubExchange{name: "test-venue"}, nil
	})

	if !IsSupported("TEST-VENUE") {
		t.Error("factory lookup must be case-insensitive")
	}

	ex, err := NewExchange("test-venue")
	if err != nil {
		t.Fatalf("NewExchange failed: %v", err)
	}
	if ex.Name() != "test-venue" {
		t.Errorf("name = %s, want test-venue", ex.Name())
	}

	if _, err := NewExchange("missing"); err == nil {
		t.Error("unregistered venue must fail")
	}
	if IsSupported("missing") {
		t.Error("unregistered venue must not be supported")
	}
}
