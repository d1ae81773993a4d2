package repository

import (
	"database/sql"
	"errors"
	"time"

	"exchange/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - работа с таблицей orders.
//
// Таблица - история для аудита и API выборок; источником истины по
// открытым ордерам остается движок.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Upsert вставляет ордер или обновляет его изменяемые поля.
// Вызывается на каждое изменение статуса, конфликты по id ожидаемы.
func (r *OrderRepository) Upsert(order *models.Order) error {
	query := `
		INSERT INTO orders (id, account_id, market_id, side, type, price, quantity, filled_quantity, status, sequence_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET filled_quantity = EXCLUDED.filled_quantity,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(
		query,
		order.ID,
		order.AccountID,
		order.MarketID,
		order.Side,
		order.Type,
		order.Price,
		order.Quantity,
		order.FilledQuantity,
		order.Status,
		order.SequenceNumber,
		order.CreatedAt,
		order.UpdatedAt,
	)

	return err
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id string) (*models.Order, error) {
	query := `
		SELECT id, account_id, market_id, side, type, price, quantity, filled_quantity, status, sequence_number, created_at, updated_at
		FROM orders
		WHERE id = $1`

	order := &models.Order{}
	err := r.db.QueryRow(query, id).Scan(
		&order.ID,
		&order.AccountID,
		&order.MarketID,
		&order.Side,
		&order.Type,
		&order.Price,
		&order.Quantity,
		&order.FilledQuantity,
		&order.Status,
		&order.SequenceNumber,
		&order.CreatedAt,
		&order.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetByAccount возвращает последние ордера аккаунта
func (r *OrderRepository) GetByAccount(accountID string, limit int) ([]*models.Order, error) {
	query := `
		SELECT id, account_id, market_id, side, type, price, quantity, filled_quantity, status, sequence_number, created_at, updated_at
		FROM orders
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryOrders(query, accountID, limit)
}

// GetByMarket возвращает последние ордера рынка
func (r *OrderRepository) GetByMarket(marketID string, limit int) ([]*models.Order, error) {
	query := `
		SELECT id, account_id, market_id, side, type, price, quantity, filled_quantity, status, sequence_number, created_at, updated_at
		FROM orders
		WHERE market_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryOrders(query, marketID, limit)
}

// CountByStatus возвращает количество ордеров с определенным статусом
func (r *OrderRepository) CountByStatus(status string) (int, error) {
	query := `SELECT COUNT(*) FROM orders WHERE status = $1`

	var count int
	err := r.db.QueryRow(query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteOlderThan удаляет терминальные ордера старше указанной даты
func (r *OrderRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	query := `
		DELETE FROM orders
		WHERE updated_at < $1 AND status IN ($2, $3, $4)`

	result, err := r.db.Exec(query, timestamp,
		models.OrderStatusFilled, models.OrderStatusCancelled, models.OrderStatusRejected)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

func (r *OrderRepository) queryOrders(query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		err := rows.Scan(
			&order.ID,
			&order.AccountID,
			&order.MarketID,
			&order.Side,
			&order.Type,
			&order.Price,
			&order.Quantity,
			&order.FilledQuantity,
			&order.Status,
			&order.SequenceNumber,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}
