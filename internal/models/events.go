package models

import "time"

// EventType - тип события движка
type EventType string

// Закрытое множество событий движка.
// Gateway получает типизированные варианты вместо {type, data any}.
const (
	EventTypeTrade       EventType = "trade"
	EventTypeDepthUpdate EventType = "depthUpdate"
	EventTypeOrderStatus EventType = "orderStatus"
	EventTypeEngineHalt  EventType = "engineHalt"
)

// Event - событие из потока матчинг-движка
//
// Sum type: конкретные варианты - TradeEvent, DepthUpdateEvent,
// OrderStatusEvent, EngineHaltEvent. Sequence() уникален в пределах
// рынка: журнал ключует записи по нему, и поток событий рынка
// воспроизводим из журнала в исходном порядке.
type Event interface {
	EventType() EventType
	Market() string
	Sequence() uint64
}

// TradeEvent - совершена сделка
type TradeEvent struct {
	Trade *Trade `json:"trade"`
}

func (e *TradeEvent) EventType() EventType { return EventTypeTrade }
func (e *TradeEvent) Market() string       { return e.Trade.MarketID }
func (e *TradeEvent) Sequence() uint64     { return e.Trade.SequenceNumber }

// DepthUpdateEvent - изменился стакан
type DepthUpdateEvent struct {
	Depth *Depth `json:"depth"`
}

func (e *DepthUpdateEvent) EventType() EventType { return EventTypeDepthUpdate }
func (e *DepthUpdateEvent) Market() string       { return e.Depth.MarketID }
func (e *DepthUpdateEvent) Sequence() uint64     { return e.Depth.SequenceNumber }

// OrderStatusEvent - изменился статус ордера
//
// SequenceNumber - позиция события в потоке рынка. Ордер может менять
// статус несколько раз (open, partially_filled, filled), каждое
// изменение - отдельное событие со своим номером. Номер адмиссии
// ордера остается в Order.SequenceNumber.
type OrderStatusEvent struct {
	Order          *Order `json:"order"` // snapshot, не живой объект движка
	SequenceNumber uint64 `json:"sequence_number"`
}

func (e *OrderStatusEvent) EventType() EventType { return EventTypeOrderStatus }
func (e *OrderStatusEvent) Market() string       { return e.Order.MarketID }
func (e *OrderStatusEvent) Sequence() uint64     { return e.SequenceNumber }

// EngineHaltEvent - фатальное нарушение инварианта, рынок остановлен
//
// Требует вмешательства оператора. После этого события движок рынка
// не обрабатывает команды.
type EngineHaltEvent struct {
	MarketID       string    `json:"market_id"`
	Reason         string    `json:"reason"`
	SequenceNumber uint64    `json:"sequence_number"`
	Timestamp      time.Time `json:"timestamp"`
}

func (e *EngineHaltEvent) EventType() EventType { return EventTypeEngineHalt }
func (e *EngineHaltEvent) Market() string       { return e.MarketID }
func (e *EngineHaltEvent) Sequence() uint64     { return e.SequenceNumber }
