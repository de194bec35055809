package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fastConfig - минимальные задержки, чтобы тесты не спали
func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoWithResult_FirstAttemptSucceeds(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), func() (int, error) {
		attempts++
		return 42, nil
	}, fastConfig())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || attempts != 1 {
		t.Errorf("got %d after %d attempts, want 42 after 1", got, attempts)
	}
}

func TestDoWithResult_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	got, err := DoWithResult(context.Background(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}, fastConfig())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Errorf("got %q after %d attempts, want ok after 3", got, attempts)
	}
}

func TestDoWithResult_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	_, err := DoWithResult(context.Background(), func() (int, error) {
		attempts++
		return 0, fmt.Errorf("failure %d", attempts)
	}, fastConfig())

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	// Возвращается последняя ошибка, не первая
	if err == nil || err.Error() != "failure 3" {
		t.Errorf("err = %v, want failure 3", err)
	}
}

func TestDoWithResult_RetryIfStopsRetrying(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryIf = RetryIfNotContext

	attempts := 0
	_, err := DoWithResult(context.Background(), func() (int, error) {
		attempts++
		return 0, fmt.Errorf("venue read: %w", context.DeadlineExceeded)
	}, cfg)

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (context errors are not retried)", attempts)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped DeadlineExceeded", err)
	}
}

func TestDoWithResult_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := DoWithResult(ctx, func() (int, error) {
		attempts++
		return 0, nil
	}, fastConfig())

	if attempts != 0 {
		t.Errorf("attempts = %d, want 0 with a cancelled context", attempts)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestDoWithResult_CancelDuringBackoff(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour // бэкофф должен прерваться контекстом
	cfg.MaxDelay = time.Hour     // не даём потолку fastConfig срезать бэкофф

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	opErr := errors.New("transient")

	done := make(chan error, 1)
	go func() {
		_, err := DoWithResult(ctx, func() (int, error) {
			attempts++
			return 0, opErr
		}, cfg)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, opErr) {
			t.Errorf("err = %v, want the last operation error", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not stop after context cancellation")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	}, fastConfig())

	if err != nil || attempts != 2 {
		t.Errorf("err = %v after %d attempts, want nil after 2", err, attempts)
	}
}

func TestRetryIfNotContext(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain error", errors.New("boom"), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"wrapped canceled", fmt.Errorf("read: %w", context.Canceled), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RetryIfNotContext(tt.err); got != tt.want {
				t.Errorf("RetryIfNotContext(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDelay_GrowthAndCap(t *testing.T) {
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2.0,
	}
	cfg.normalize()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 300 * time.Millisecond}, // потолок MaxDelay
		{3, 300 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := cfg.delay(tt.attempt); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelay_JitterStaysInBounds(t *testing.T) {
	cfg := ConservativeConfig()
	cfg.normalize()

	lo := time.Duration(float64(cfg.InitialDelay) * (1 - cfg.JitterFactor))
	hi := time.Duration(float64(cfg.InitialDelay) * (1 + cfg.JitterFactor))

	for i := 0; i < 100; i++ {
		if d := cfg.delay(0); d < lo || d > hi {
			t.Fatalf("delay(0) = %v, want within [%v, %v]", d, lo, hi)
		}
	}
}

func TestNormalize_Defaults(t *testing.T) {
	var cfg Config
	cfg.normalize()

	if cfg.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", cfg.MaxAttempts)
	}
	if cfg.InitialDelay <= 0 || cfg.MaxDelay <= 0 || cfg.Multiplier <= 0 {
		t.Errorf("normalize left zero values: %+v", cfg)
	}
}
