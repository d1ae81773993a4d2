package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepthLevel - агрегированный ценовой уровень стакана
type DepthLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"` // суммарный остаток ордеров на уровне
	OrderCount int             `json:"order_count"`
}

// Depth - snapshot стакана (топ-N уровней с каждой стороны)
//
// Bids отсортированы по убыванию цены, Asks - по возрастанию.
type Depth struct {
	MarketID       string       `json:"market_id"`
	Bids           []DepthLevel `json:"bids"`
	Asks           []DepthLevel `json:"asks"`
	SequenceNumber uint64       `json:"sequence_number"`
	Timestamp      time.Time    `json:"timestamp"`
}

// BestBid возвращает лучший bid уровень или nil
func (d *Depth) BestBid() *DepthLevel {
	if len(d.Bids) == 0 {
		return nil
	}
	return &d.Bids[0]
}

// BestAsk возвращает лучший ask уровень или nil
func (d *Depth) BestAsk() *DepthLevel {
	if len(d.Asks) == 0 {
		return nil
	}
	return &d.Asks[0]
}

// MarketStats - статистика рынка за скользящее 24h окно
type MarketStats struct {
	MarketID  string          `json:"market_id"`
	LastPrice decimal.Decimal `json:"last_price"`
	High24h   decimal.Decimal `json:"high_24h"`
	Low24h    decimal.Decimal `json:"low_24h"`
	Volume24h decimal.Decimal `json:"volume_24h"` // в base валюте
	Change24h decimal.Decimal `json:"change_24h"` // в процентах
	Trades24h int             `json:"trades_24h"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Candle - OHLC свеча (минутная агрегация сделок)
type Candle struct {
	MarketID string          `json:"market_id"`
	Start    time.Time       `json:"start"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}
