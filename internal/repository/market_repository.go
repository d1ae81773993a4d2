package repository

import (
	"database/sql"
	"errors"

	"exchange/internal/models"
)

// Ошибки репозитория рынков
var (
	ErrMarketNotFound = errors.New("market not found")
)

// MarketRepository - работа с таблицей markets
type MarketRepository struct {
	db *sql.DB
}

// NewMarketRepository создает новый экземпляр репозитория
func NewMarketRepository(db *sql.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

// GetAll возвращает все рынки
func (r *MarketRepository) GetAll() ([]*models.Market, error) {
	query := `
		SELECT id, base_asset, quote_asset, tick_size, lot_size, min_notional, active
		FROM markets
		ORDER BY id`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []*models.Market
	for rows.Next() {
		m := &models.Market{}
		err := rows.Scan(
			&m.ID,
			&m.Base,
			&m.Quote,
			&m.TickSize,
			&m.LotSize,
			&m.MinNotional,
			&m.Active,
		)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return markets, nil
}

// GetByID возвращает рынок по ID
func (r *MarketRepository) GetByID(id string) (*models.Market, error) {
	query := `
		SELECT id, base_asset, quote_asset, tick_size, lot_size, min_notional, active
		FROM markets
		WHERE id = $1`

	m := &models.Market{}
	err := r.db.QueryRow(query, id).Scan(
		&m.ID,
		&m.Base,
		&m.Quote,
		&m.TickSize,
		&m.LotSize,
		&m.MinNotional,
		&m.Active,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMarketNotFound
		}
		return nil, err
	}

	return m, nil
}

// Create создает рынок
func (r *MarketRepository) Create(m *models.Market) error {
	query := `
		INSERT INTO markets (id, base_asset, quote_asset, tick_size, lot_size, min_notional, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(
		query,
		m.ID,
		m.Base,
		m.Quote,
		m.TickSize,
		m.LotSize,
		m.MinNotional,
		m.Active,
	)

	return err
}

// SetActive включает или выключает рынок
func (r *MarketRepository) SetActive(id string, active bool) error {
	query := `
		UPDATE markets
		SET active = $1
		WHERE id = $2`

	result, err := r.db.Exec(query, active, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrMarketNotFound
	}

	return nil
}
