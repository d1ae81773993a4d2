package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ошибки валидации рыночных параметров ордера
var (
	ErrInvalidPrice     = errors.New("price is not a multiple of tick size")
	ErrInvalidQuantity  = errors.New("quantity is not a multiple of lot size")
	ErrBelowMinNotional = errors.New("order notional is below market minimum")

	// ErrInvalidMarketParams - некорректная конфигурация рынка в БД
	ErrInvalidMarketParams = errors.New("invalid market parameters")
)

// Market - торговая пара (рынок)
//
// Статическая конфигурация: создается при старте из БД и не меняется
// во время работы. Динамическое создание рынков не поддерживается.
//
// Параметры:
//   - TickSize: минимальный шаг цены (цена должна быть кратна)
//   - LotSize: минимальный шаг количества
//   - MinNotional: минимальная сумма ордера в quote валюте
type Market struct {
	ID          string          `json:"id" db:"id"`                     // BTC-USDT
	Base        string          `json:"base" db:"base_asset"`           // BTC
	Quote       string          `json:"quote" db:"quote_asset"`         // USDT
	TickSize    decimal.Decimal `json:"tick_size" db:"tick_size"`       // 0.01
	LotSize     decimal.Decimal `json:"lot_size" db:"lot_size"`         // 0.0001
	MinNotional decimal.Decimal `json:"min_notional" db:"min_notional"` // 10
	Active      bool            `json:"active" db:"active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Validate проверяет параметры рынка при загрузке из БД.
// Нулевой или отрицательный шаг цены/лота ломает матчинг
// (market buy режет количество вниз с шагом LotSize),
// поэтому такой рынок не запускается.
func (m *Market) Validate() error {
	if m.ID == "" || m.Base == "" || m.Quote == "" {
		return fmt.Errorf("%w: %q: id, base and quote are required", ErrInvalidMarketParams, m.ID)
	}
	if m.TickSize.Sign() <= 0 {
		return fmt.Errorf("%w: %s: tick_size must be positive, got %s", ErrInvalidMarketParams, m.ID, m.TickSize)
	}
	if m.LotSize.Sign() <= 0 {
		return fmt.Errorf("%w: %s: lot_size must be positive, got %s", ErrInvalidMarketParams, m.ID, m.LotSize)
	}
	if m.MinNotional.Sign() < 0 {
		return fmt.Errorf("%w: %s: min_notional must not be negative, got %s", ErrInvalidMarketParams, m.ID, m.MinNotional)
	}
	return nil
}

// ValidatePrice проверяет что цена положительна и кратна TickSize
func (m *Market) ValidatePrice(price decimal.Decimal) error {
	if price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if m.TickSize.Sign() > 0 && !price.Mod(m.TickSize).IsZero() {
		return ErrInvalidPrice
	}
	return nil
}

// ValidateQuantity проверяет что количество положительно и кратно LotSize
func (m *Market) ValidateQuantity(qty decimal.Decimal) error {
	if qty.Sign() <= 0 {
		return ErrInvalidQuantity
	}
	if m.LotSize.Sign() > 0 && !qty.Mod(m.LotSize).IsZero() {
		return ErrInvalidQuantity
	}
	return nil
}

// ValidateNotional проверяет минимальную сумму ордера (price * qty >= MinNotional)
func (m *Market) ValidateNotional(price, qty decimal.Decimal) error {
	if m.MinNotional.IsZero() {
		return nil
	}
	if price.Mul(qty).LessThan(m.MinNotional) {
		return ErrBelowMinNotional
	}
	return nil
}
