// Package retry повторяет неустойчивые операции с экспоненциальным
// бэкоффом. Используется свипами мониторинга для чтений бирж: короткая
// серия попыток с джиттером, ошибки контекста не повторяются.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ============================================================
// Политика повторов
// ============================================================

// Config - политика повторов одной операции.
//
// Задержка перед попыткой n+1 растёт экспоненциально:
// InitialDelay * Multiplier^n, с потолком MaxDelay и случайным
// джиттером, чтобы параллельные свипы не били по бирже синхронно.
type Config struct {
	MaxAttempts  int           // всего попыток, включая первую
	InitialDelay time.Duration // задержка после первой неудачи
	MaxDelay     time.Duration // потолок задержки
	Multiplier   float64       // множитель роста
	JitterFactor float64       // доля случайного разброса, 0..1

	// RetryIf решает, повторять ли конкретную ошибку.
	// nil = повторять любую
	RetryIf func(error) bool
}

// ConservativeConfig - политика для чтений внутри свипов: три попытки
// с задержками ~500ms / ~1s, чтобы свип не растягивался дольше своего
// интервала
func ConservativeConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// RetryIfNotContext не повторяет отмену и истечение контекста:
// остановка сервиса или дедлайн вызывающего - не повод долбить биржу
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// ============================================================
// Выполнение
// ============================================================

// Do выполняет операцию без результата с повторами по cfg
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// DoWithResult выполняет операцию с повторами по cfg и возвращает её
// результат. При исчерпании попыток возвращается последняя ошибка;
// при отмене контекста между попытками - последняя ошибка операции,
// если она была, иначе ошибка контекста.
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.normalize()

	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-time.After(cfg.delay(attempt)):
		case <-ctx.Done():
			return zero, lastErr
		}
	}

	return zero, lastErr
}

// normalize подставляет безопасные значения вместо нулевых
func (c *Config) normalize() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// delay вычисляет задержку после неудачной попытки attempt (с нуля)
func (c *Config) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		d += d * c.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
