package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance - баланс аккаунта по одному активу
//
// Инварианты (поддерживаются ledger'ом):
//   - Available >= 0, Held >= 0
//   - сумма Available+Held по всем аккаунтам для актива равна
//     sum(deposits) - sum(withdrawals) в любой момент времени
type Balance struct {
	AccountID string          `json:"account_id"`
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"` // свободные средства
	Held      decimal.Decimal `json:"held"`      // зарезервировано открытыми ордерами
}

// Total возвращает полный баланс (свободный + зарезервированный)
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Held)
}

// Типы транзакций на границе системы
const (
	TransactionTypeDeposit    = "deposit"
	TransactionTypeWithdrawal = "withdrawal"
)

// Transaction - запись о вводе/выводе средств
//
// Единственный способ изменить суммарное количество актива в системе.
type Transaction struct {
	ID        string          `json:"id" db:"id"`
	AccountID string          `json:"account_id" db:"account_id"`
	Asset     string          `json:"asset" db:"asset"`
	Type      string          `json:"type" db:"type"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
