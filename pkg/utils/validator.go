package utils

// validator.go - валидация входных данных API

import (
	"fmt"
	"regexp"
)

var (
	symbolRe     = regexp.MustCompile(`^[A-Za-z0-9/_-]{2,30}$`)
	positionIDRe = regexp.MustCompile(`^P-\d{4,}$`)
)

// ValidateSymbol проверяет формат тикера (BTC, ETHUSDT, BTC-USDT).
// Возвращает error с описанием проблемы или nil.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is empty")
	}
	if !symbolRe.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %q", symbol)
	}
	return nil
}

// ValidatePositionID проверяет формат id позиции (P-0001)
func ValidatePositionID(id string) error {
	if id == "" {
		return fmt.Errorf("position id is empty")
	}
	if !positionIDRe.MatchString(id) {
		return fmt.Errorf("invalid position id format: %q", id)
	}
	return nil
}

// ValidateLeverage проверяет диапазон плеча
func ValidateLeverage(leverage int) error {
	if leverage < 1 || leverage > 100 {
		return fmt.Errorf("leverage must be between 1 and 100, got %d", leverage)
	}
	return nil
}
