package utils

import (
	"math"
)

// math.go - математические утилиты для расчёта размеров и P&L
//
// Все функции являются чистыми (pure functions) без побочных эффектов.

// FloorToPrecision округляет значение ВНИЗ до заданного числа знаков
// после запятой.
//
// Используется для округления размера ноги перед отправкой ордера.
// Округление вниз гарантирует, что ни одна биржа не получит запрос
// больше, чем она может исполнить.
//
// Примеры:
//   - FloorToPrecision(0.123456, 2) = 0.12
//   - FloorToPrecision(1.999, 2) = 1.99
//   - FloorToPrecision(100.5, 0) = 100.0
func FloorToPrecision(value float64, decimals int) float64 {
	if decimals < 0 {
		return value
	}
	factor := math.Pow(10, float64(decimals))
	return math.Floor(value*factor) / factor
}

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Используется для округления объёма до минимального шага биржи.
// Если lotSize <= 0, возвращает исходное значение.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// BpsToFraction переводит базисные пункты в долю (1 bps = 0.0001)
func BpsToFraction(bps float64) float64 {
	return bps / 10000
}

// Abs возвращает абсолютное значение числа.
func Abs(x float64) float64 {
	return math.Abs(x)
}

// Min возвращает минимум из двух чисел.
func Min(a, b float64) float64 {
	return math.Min(a, b)
}

// Max возвращает максимум из двух чисел.
func Max(a, b float64) float64 {
	return math.Max(a, b)
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
