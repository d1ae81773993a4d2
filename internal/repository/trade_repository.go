package repository

import (
	"database/sql"
	"errors"
	"time"

	"exchange/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - работа с таблицей trades
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create создает запись о сделке
func (r *TradeRepository) Create(trade *models.Trade) error {
	query := `
		INSERT INTO trades (id, market_id, maker_order_id, taker_order_id, maker_account_id, taker_account_id, price, quantity, maker_side, sequence_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(
		query,
		trade.ID,
		trade.MarketID,
		trade.MakerOrderID,
		trade.TakerOrderID,
		trade.MakerAccountID,
		trade.TakerAccountID,
		trade.Price,
		trade.Quantity,
		trade.MakerSide,
		trade.SequenceNumber,
		trade.CreatedAt,
	)

	return err
}

// GetByID возвращает сделку по ID
func (r *TradeRepository) GetByID(id string) (*models.Trade, error) {
	query := `
		SELECT id, market_id, maker_order_id, taker_order_id, maker_account_id, taker_account_id, price, quantity, maker_side, sequence_number, created_at
		FROM trades
		WHERE id = $1`

	trade := &models.Trade{}
	err := r.db.QueryRow(query, id).Scan(
		&trade.ID,
		&trade.MarketID,
		&trade.MakerOrderID,
		&trade.TakerOrderID,
		&trade.MakerAccountID,
		&trade.TakerAccountID,
		&trade.Price,
		&trade.Quantity,
		&trade.MakerSide,
		&trade.SequenceNumber,
		&trade.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}

	return trade, nil
}

// GetByMarket возвращает последние сделки рынка
func (r *TradeRepository) GetByMarket(marketID string, limit int) ([]*models.Trade, error) {
	query := `
		SELECT id, market_id, maker_order_id, taker_order_id, maker_account_id, taker_account_id, price, quantity, maker_side, sequence_number, created_at
		FROM trades
		WHERE market_id = $1
		ORDER BY sequence_number DESC
		LIMIT $2`

	return r.queryTrades(query, marketID, limit)
}

// GetByAccount возвращает последние сделки аккаунта (как мейкера или тейкера)
func (r *TradeRepository) GetByAccount(accountID string, limit int) ([]*models.Trade, error) {
	query := `
		SELECT id, market_id, maker_order_id, taker_order_id, maker_account_id, taker_account_id, price, quantity, maker_side, sequence_number, created_at
		FROM trades
		WHERE maker_account_id = $1 OR taker_account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryTrades(query, accountID, limit)
}

// GetByMarketInTimeRange возвращает сделки рынка за период
func (r *TradeRepository) GetByMarketInTimeRange(marketID string, from, to time.Time) ([]*models.Trade, error) {
	query := `
		SELECT id, market_id, maker_order_id, taker_order_id, maker_account_id, taker_account_id, price, quantity, maker_side, sequence_number, created_at
		FROM trades
		WHERE market_id = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY sequence_number`

	return r.queryTrades(query, marketID, from, to)
}

// Count возвращает общее количество сделок
func (r *TradeRepository) Count() (int, error) {
	query := `SELECT COUNT(*) FROM trades`

	var count int
	err := r.db.QueryRow(query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]*models.Trade, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		trade := &models.Trade{}
		err := rows.Scan(
			&trade.ID,
			&trade.MarketID,
			&trade.MakerOrderID,
			&trade.TakerOrderID,
			&trade.MakerAccountID,
			&trade.TakerAccountID,
			&trade.Price,
			&trade.Quantity,
			&trade.MakerSide,
			&trade.SequenceNumber,
			&trade.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}
