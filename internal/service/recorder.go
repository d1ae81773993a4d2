package service

import (
	"context"
	"log"
	"time"

	"exchange/internal/models"
	"exchange/pkg/retry"
)

// Recorder асинхронно пишет события движка в БД.
//
// Подключается вторым потребителем к fanout движков: матчинг не ждет
// БД. Порядок записи по рынку сохраняется (один writer-цикл), при
// недоступности БД записи повторяются с backoff. Источником истины
// остаются движок и journal - БД только для истории и выборок API.
type Recorder struct {
	orders OrderRepositoryInterface
	trades TradeRepositoryInterface

	events chan models.Event
	quit   chan struct{}
	done   chan struct{}
}

// NewRecorder создает новый экземпляр рекордера
func NewRecorder(orders OrderRepositoryInterface, trades TradeRepositoryInterface) *Recorder {
	return &Recorder{
		orders: orders,
		trades: trades,
		events: make(chan models.Event, 8192),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (r *Recorder) Start() {
	go r.run()
}

// Stop останавливает цикл, дописав буфер
func (r *Recorder) Stop() {
	close(r.quit)
	<-r.done
}

// Publish принимает событие движка. Никогда не блокирует.
func (r *Recorder) Publish(ev models.Event) {
	select {
	case r.events <- ev:
	default:
		log.Printf("WARN: recorder buffer full, dropping %s event seq=%d market=%s",
			ev.EventType(), ev.Sequence(), ev.Market())
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for {
		select {
		case ev := <-r.events:
			r.record(ev)
		case <-r.quit:
			for {
				select {
				case ev := <-r.events:
					r.record(ev)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) record(ev models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := retry.DefaultConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Printf("WARN: recorder retry %d for %s seq=%d: %v", attempt, ev.EventType(), ev.Sequence(), err)
	}

	var err error
	switch e := ev.(type) {
	case *models.TradeEvent:
		err = retry.Do(ctx, func() error { return r.trades.Create(e.Trade) }, cfg)
	case *models.OrderStatusEvent:
		err = retry.Do(ctx, func() error { return r.orders.Upsert(e.Order) }, cfg)
	default:
		return
	}

	if err != nil {
		log.Printf("ERROR: recorder gave up on %s event market=%s seq=%d: %v",
			ev.EventType(), ev.Market(), ev.Sequence(), err)
	}
}
