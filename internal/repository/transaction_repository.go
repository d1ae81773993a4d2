package repository

import (
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

// Ошибки репозитория транзакций
var (
	ErrTransactionNotFound = errors.New("transaction not found")
)

// TransactionRepository - работа с таблицей transactions (вводы и выводы)
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository создает новый экземпляр репозитория
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create создает запись о транзакции
func (r *TransactionRepository) Create(tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, account_id, asset, type, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(
		query,
		tx.ID,
		tx.AccountID,
		tx.Asset,
		tx.Type,
		tx.Amount,
		tx.CreatedAt,
	)

	return err
}

// GetByID возвращает транзакцию по ID
func (r *TransactionRepository) GetByID(id string) (*models.Transaction, error) {
	query := `
		SELECT id, account_id, asset, type, amount, created_at
		FROM transactions
		WHERE id = $1`

	tx := &models.Transaction{}
	err := r.db.QueryRow(query, id).Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.Asset,
		&tx.Type,
		&tx.Amount,
		&tx.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	return tx, nil
}

// GetByAccount возвращает последние транзакции аккаунта
func (r *TransactionRepository) GetByAccount(accountID string, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, account_id, asset, type, amount, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		tx := &models.Transaction{}
		err := rows.Scan(
			&tx.ID,
			&tx.AccountID,
			&tx.Asset,
			&tx.Type,
			&tx.Amount,
			&tx.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return txs, nil
}

// SumByAssetAndType возвращает сумму транзакций типа по активу.
// Используется сверкой: sum(deposits) - sum(withdrawals) должна
// совпадать с суммой балансов ledger'а.
func (r *TransactionRepository) SumByAssetAndType(asset, txType string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE asset = $1 AND type = $2`

	var sum decimal.Decimal
	err := r.db.QueryRow(query, asset, txType).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}

	return sum, nil
}
