package marketdata

import (
	"context"
	"log"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"exchange/internal/journal"
	"exchange/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	eventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "marketdata",
		Name:      "events_processed_total",
		Help:      "События движка, обработанные публикатором",
	}, []string{"market", "type"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "marketdata",
		Name:      "events_dropped_total",
		Help:      "События, отброшенные при переполнении буфера",
	}, []string{"market"})

	feedErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "exchange",
		Subsystem: "marketdata",
		Name:      "feed_errors_total",
		Help:      "Ошибки публикации во внешний feed",
	})
)

// Broadcaster доставляет событие подписчикам канала.
// Реализуется websocket hub.
type Broadcaster interface {
	BroadcastEvent(channel string, ev models.Event)
}

// ChannelForMarket - канал подписки на события рынка
func ChannelForMarket(marketID string) string {
	return "market:" + marketID
}

// Publisher - потребитель потока событий движков.
//
// Publish не блокирует: движок кладет событие в буфер и продолжает
// матчинг; если потребитель не успевает, событие отбрасывается (для
// восстановления у подписчиков есть journal replay). Один run-цикл
// обслуживает все рынки: журналирует, обновляет статистику и кеш
// стакана, рассылает в hub и best-effort публикует в kafka.
type Publisher struct {
	journal *journal.Journal
	feed    *Feed
	hub     Broadcaster

	events chan models.Event
	quit   chan struct{}
	done   chan struct{}

	mu       sync.RWMutex
	depths   map[string]*models.Depth
	trackers map[string]*tracker
	lastSeq  map[string]uint64
}

// Options настраивает публикатор
type Options struct {
	BufferSize int // емкость буфера событий (по умолчанию 4096)
}

// NewPublisher создает публикатор. journal, feed и hub могут быть nil -
// соответствующий выход просто выключен.
func NewPublisher(j *journal.Journal, feed *Feed, hub Broadcaster, opts Options) *Publisher {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 4096
	}
	return &Publisher{
		journal:  j,
		feed:     feed,
		hub:      hub,
		events:   make(chan models.Event, opts.BufferSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		depths:   make(map[string]*models.Depth),
		trackers: make(map[string]*tracker),
		lastSeq:  make(map[string]uint64),
	}
}

// SetHub подключает hub после создания. Hub зависит от публикатора
// как от Replayer, поэтому подключается вторым шагом. Вызывать до Start.
func (p *Publisher) SetHub(hub Broadcaster) {
	p.hub = hub
}

func (p *Publisher) Start() {
	go p.run()
}

// Stop останавливает цикл, дочитав буфер
func (p *Publisher) Stop() {
	close(p.quit)
	<-p.done
}

// Publish принимает событие движка. Никогда не блокирует.
func (p *Publisher) Publish(ev models.Event) {
	select {
	case p.events <- ev:
	default:
		eventsDropped.WithLabelValues(ev.Market()).Inc()
		log.Printf("WARN: marketdata buffer full, dropping %s event seq=%d market=%s",
			ev.EventType(), ev.Sequence(), ev.Market())
	}
}

func (p *Publisher) run() {
	defer close(p.done)

	for {
		select {
		case ev := <-p.events:
			p.handle(ev)
		case <-p.quit:
			for {
				select {
				case ev := <-p.events:
					p.handle(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) handle(ev models.Event) {
	eventsProcessed.WithLabelValues(ev.Market(), string(ev.EventType())).Inc()

	if err := p.journal.Append(ev); err != nil {
		log.Printf("ERROR: journal append failed: market=%s seq=%d: %v",
			ev.Market(), ev.Sequence(), err)
	}

	switch e := ev.(type) {
	case *models.TradeEvent:
		p.trackerFor(e.Trade.MarketID).Record(e.Trade)
	case *models.DepthUpdateEvent:
		p.mu.Lock()
		p.depths[e.Depth.MarketID] = e.Depth
		p.mu.Unlock()
	case *models.EngineHaltEvent:
		log.Printf("WARN: market %s halted: %s", e.MarketID, e.Reason)
	}

	p.mu.Lock()
	if ev.Sequence() > p.lastSeq[ev.Market()] {
		p.lastSeq[ev.Market()] = ev.Sequence()
	}
	p.mu.Unlock()

	if p.hub != nil {
		p.hub.BroadcastEvent(ChannelForMarket(ev.Market()), ev)
	}

	if p.feed != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := p.feed.Publish(ctx, ev); err != nil {
			feedErrors.Inc()
			log.Printf("WARN: kafka feed publish failed: %v", err)
		}
		cancel()
	}
}

func (p *Publisher) trackerFor(marketID string) *tracker {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.trackers[marketID]
	if !ok {
		t = newTracker(marketID)
		p.trackers[marketID] = t
	}
	return t
}

// Depth возвращает последний снапшот стакана рынка (nil если не было)
func (p *Publisher) Depth(marketID string) *models.Depth {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.depths[marketID]
}

// Stats возвращает 24h статистику рынка
func (p *Publisher) Stats(marketID string) *models.MarketStats {
	return p.trackerFor(marketID).Stats()
}

// Candles возвращает последние limit минутных свечей рынка
func (p *Publisher) Candles(marketID string, limit int) []*models.Candle {
	return p.trackerFor(marketID).Candles(limit)
}

// LastSequence - sequence number последнего обработанного события рынка
func (p *Publisher) LastSequence(marketID string) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeq[marketID]
}

// Replay воспроизводит журнал рынка начиная с fromSeq.
// Используется подписчиками для догона после live-подписки.
func (p *Publisher) Replay(marketID string, fromSeq uint64, fn func(models.Event) error) error {
	return p.journal.ReplayFrom(marketID, fromSeq, fn)
}
