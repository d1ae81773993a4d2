package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side - сторона ордера
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite возвращает противоположную сторону
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType - тип ордера
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Статусы ордера
//
// Терминальные статусы (filled, cancelled, rejected) финальны:
// после них ордер не мутируется.
const (
	OrderStatusOpen            = "open"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusCancelled       = "cancelled"
	OrderStatusRejected        = "rejected"
)

// Order - ордер в системе
//
// Создается командой NewOrder, мутируется ТОЛЬКО матчинг-движком
// (заполнение, отмена). SequenceNumber - строго монотонный номер,
// присваиваемый движком; определяет time-priority при равной цене.
type Order struct {
	ID             string          `json:"id" db:"id"`
	AccountID      string          `json:"account_id" db:"account_id"`
	MarketID       string          `json:"market_id" db:"market_id"`
	Side           Side            `json:"side" db:"side"`
	Type           OrderType       `json:"type" db:"type"`
	Price          decimal.Decimal `json:"price" db:"price"` // ноль для market ордеров
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity" db:"filled_quantity"`
	Status         string          `json:"status" db:"status"`
	SequenceNumber uint64          `json:"sequence_number" db:"sequence_number"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`

	// ReservationID связывает ордер с резервацией в ledger.
	// Внутреннее поле движка, наружу не отдается.
	ReservationID string `json:"-" db:"-"`
}

// Remaining возвращает незаполненное количество
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsFullyFilled возвращает true если ордер полностью исполнен
func (o *Order) IsFullyFilled() bool {
	return o.Remaining().IsZero()
}

// IsTerminal возвращает true если статус финальный
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Clone возвращает копию ордера для отдачи наружу.
// Движок мутирует оригинал, читатели получают snapshot.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
