// Package hedge реализует оркестратор дельта-нейтральных хеджей:
// открытие двух ног на независимых биржах, валидация, мониторинг
// и закрытие с компенсацией при частичных отказах.
package hedge

import (
	"errors"
	"fmt"
)

// FailureKind классифицирует отказы саги.
// Сырые транспортные ошибки за границу оркестратора не выходят -
// каждая конвертируется в один из этих видов.
type FailureKind string

const (
	// FailureOpening - одна или обе ноги не открылись (или таймаут).
	// Восстановимо: компенсирующее закрытие успевшей ноги.
	FailureOpening FailureKind = "OPENING_FAILURE"

	// FailureValidation - ноги исчезли до подтверждения.
	// Восстановимо: принудительное закрытие оставшихся ног.
	FailureValidation FailureKind = "VALIDATION_FAILURE"

	// FailureManual - компенсирующее или принудительное закрытие само
	// упало. Автоматически НЕ восстановимо, позиция остаётся видимой
	// до ручной сверки оператором.
	FailureManual FailureKind = "MANUAL_INTERVENTION"

	// FailureMonitoring - упал один вызов биржи внутри свипа.
	// Логируется, позиция пропускается, повтор на следующем тике.
	FailureMonitoring FailureKind = "MONITORING_FAILURE"

	// FailureClosing - плановое/ручное закрытие не удалось.
	// Позиция остаётся в реестре для повтора.
	FailureClosing FailureKind = "CLOSING_FAILURE"
)

// SagaError - типизированная ошибка саги
type SagaError struct {
	Kind       FailureKind
	PositionID string
	Ticker     string
	Loss       float64 // реализованная потеря (дельта балансов), USD
	Message    string
	Err        error
}

func (e *SagaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s] %s: %v", e.Kind, e.PositionID, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s] %s", e.Kind, e.PositionID, e.Message)
}

// Unwrap возвращает оригинальную ошибку для errors.Is() и errors.As()
func (e *SagaError) Unwrap() error {
	return e.Err
}

// KindOf возвращает вид отказа или пустую строку для чужих ошибок
func KindOf(err error) FailureKind {
	var se *SagaError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// NeedsManualCheck сообщает, требует ли отказ ручной сверки оператором
func NeedsManualCheck(err error) bool {
	return KindOf(err) == FailureManual
}
