// Package repository - доступ к таблицам PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fundingbot/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// tradeColumns - общий список колонок таблицы trades
const tradeColumns = `id, position_id, ticker, first_venue, second_venue, mode, margin, profit, percent, spread_at_close, reason, success, opened_at, closed_at`

// TradeRepository - работа с таблицей trades (история закрытий)
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Save создает запись об исходе закрытия и возвращает её id
func (r *TradeRepository) Save(ctx context.Context, trade *models.TradeRecord) (int, error) {
	query := `
		INSERT INTO trades (position_id, ticker, first_venue, second_venue, mode, margin, profit, percent, spread_at_close, reason, success, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	if trade.ClosedAt.IsZero() {
		trade.ClosedAt = time.Now()
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		trade.PositionID,
		trade.Ticker,
		trade.FirstVenue,
		trade.SecondVenue,
		trade.Mode,
		trade.Margin,
		trade.Profit,
		trade.Percent,
		trade.SpreadAtClose,
		trade.Reason,
		trade.Success,
		trade.OpenedAt,
		trade.ClosedAt,
	).Scan(&trade.ID)

	if err != nil {
		return 0, err
	}

	return trade.ID, nil
}

// GetByID возвращает сделку по ID
func (r *TradeRepository) GetByID(ctx context.Context, id int) (*models.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE id = $1`

	trade := &models.TradeRecord{}
	err := r.scanTrade(r.db.QueryRowContext(ctx, query, id), trade)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	return trade, nil
}

// GetRecent возвращает последние N сделок
func (r *TradeRepository) GetRecent(ctx context.Context, limit int) ([]*models.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		ORDER BY closed_at DESC
		LIMIT $1`

	return r.queryTrades(ctx, query, limit)
}

// GetSince возвращает сделки, закрытые не раньше from (для фильтра
// по периодам day/week/month)
func (r *TradeRepository) GetSince(ctx context.Context, from time.Time, limit int) ([]*models.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE closed_at >= $1
		ORDER BY closed_at DESC
		LIMIT $2`

	return r.queryTrades(ctx, query, from, limit)
}

// GetByTicker возвращает сделки по тикеру
func (r *TradeRepository) GetByTicker(ctx context.Context, ticker string, limit int) ([]*models.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE ticker = $1
		ORDER BY closed_at DESC
		LIMIT $2`

	return r.queryTrades(ctx, query, ticker, limit)
}

// Count возвращает общее количество сделок
func (r *TradeRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// TotalProfit возвращает суммарный реализованный профит успешных
// закрытий с момента from
func (r *TradeRepository) TotalProfit(ctx context.Context, from time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(profit), 0)
		FROM trades
		WHERE success = true AND closed_at >= $1`

	var total float64
	err := r.db.QueryRowContext(ctx, query, from).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// DeleteOlderThan удаляет сделки старше указанной даты, возвращает
// количество удалённых строк
func (r *TradeRepository) DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM trades WHERE closed_at < $1`, timestamp)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// queryTrades выполняет запрос и сканирует все строки
func (r *TradeRepository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*models.TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.TradeRecord
	for rows.Next() {
		trade := &models.TradeRecord{}
		if err := r.scanTrade(rows, trade); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// scanner покрывает *sql.Row и *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *TradeRepository) scanTrade(s scanner, trade *models.TradeRecord) error {
	return s.Scan(
		&trade.ID,
		&trade.PositionID,
		&trade.Ticker,
		&trade.FirstVenue,
		&trade.SecondVenue,
		&trade.Mode,
		&trade.Margin,
		&trade.Profit,
		&trade.Percent,
		&trade.SpreadAtClose,
		&trade.Reason,
		&trade.Success,
		&trade.OpenedAt,
		&trade.ClosedAt,
	)
}
