package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade - запись о сделке
//
// Создается ровно один раз на каждое сведение (match), иммутабельна,
// никогда не удаляется. Цена сделки всегда равна цене мейкера
// (отдыхающего ордера), не цене тейкера.
type Trade struct {
	ID             string          `json:"id" db:"id"`
	MarketID       string          `json:"market_id" db:"market_id"`
	MakerOrderID   string          `json:"maker_order_id" db:"maker_order_id"`
	TakerOrderID   string          `json:"taker_order_id" db:"taker_order_id"`
	MakerAccountID string          `json:"maker_account_id" db:"maker_account_id"`
	TakerAccountID string          `json:"taker_account_id" db:"taker_account_id"`
	Price          decimal.Decimal `json:"price" db:"price"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	MakerSide      Side            `json:"maker_side" db:"maker_side"`
	SequenceNumber uint64          `json:"sequence_number" db:"sequence_number"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// Notional возвращает сумму сделки в quote валюте
func (t *Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}
