package utils

import (
	"time"
)

// time.go - утилиты для работы со временем
//
// Используются для фильтрации истории сделок по периодам
// (day/week/month) и форматирования времени удержания в логах.

// PeriodType тип периода для фильтрации истории
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
	PeriodYear  PeriodType = "year"
	PeriodAll   PeriodType = "all"
)

// GetPeriodStart возвращает начало периода указанного типа (UTC)
func GetPeriodStart(period PeriodType) time.Time {
	return GetPeriodStartFrom(period, time.Now().UTC())
}

// GetPeriodStartFrom возвращает начало периода для указанного времени
func GetPeriodStartFrom(period PeriodType, t time.Time) time.Time {
	switch period {
	case PeriodDay:
		return GetDayStartFrom(t)
	case PeriodWeek:
		return GetWeekStartFrom(t)
	case PeriodMonth:
		return GetMonthStartFrom(t)
	case PeriodYear:
		return GetYearStartFrom(t)
	case PeriodAll:
		return time.Time{} // zero time
	default:
		return GetDayStartFrom(t)
	}
}

// GetDayStartFrom возвращает начало дня (00:00:00 UTC) для указанной даты
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetWeekStartFrom возвращает понедельник 00:00:00 UTC недели,
// содержащей указанную дату (неделя по ISO 8601)
func GetWeekStartFrom(t time.Time) time.Time {
	t = t.UTC()

	// 0=Sunday ... 6=Saturday -> ISO 1=Monday ... 7=Sunday
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}

	monday := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// GetMonthStartFrom возвращает 1-е число месяца 00:00:00 UTC
func GetMonthStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// GetYearStartFrom возвращает 1 января 00:00:00 UTC
func GetYearStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// FormatDuration форматирует продолжительность в человекочитаемый вид
//
// Примеры: "45s", "5m30s", "2h15m", "72h"
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		if minutes > 0 {
			return (time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute).String()
		}
		return (time.Duration(hours) * time.Hour).String()
	}

	if minutes > 0 {
		if seconds > 0 {
			return (time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second).String()
		}
		return (time.Duration(minutes) * time.Minute).String()
	}

	return (time.Duration(seconds) * time.Second).String()
}
