package marketdata

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type recordingHub struct {
	mu     sync.Mutex
	byChan map[string][]models.Event
}

func newRecordingHub() *recordingHub {
	return &recordingHub{byChan: make(map[string][]models.Event)}
}

func (h *recordingHub) BroadcastEvent(channel string, ev models.Event) {
	h.mu.Lock()
	h.byChan[channel] = append(h.byChan[channel], ev)
	h.mu.Unlock()
}

func (h *recordingHub) events(channel string) []models.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Event(nil), h.byChan[channel]...)
}

func trade(market string, seq uint64, price, qty string, at time.Time) *models.TradeEvent {
	return &models.TradeEvent{Trade: &models.Trade{
		ID:             "t",
		MarketID:       market,
		Price:          d(price),
		Quantity:       d(qty),
		MakerSide:      models.SideSell,
		SequenceNumber: seq,
		CreatedAt:      at,
	}}
}

func TestPublisherBroadcastsToMarketChannel(t *testing.T) {
	hub := newRecordingHub()
	p := NewPublisher(nil, nil, hub, Options{})
	p.Start()

	now := time.Now().UTC()
	p.Publish(trade("BTC-USDT", 1, "100", "1", now))
	p.Publish(trade("ETH-USDT", 1, "10", "2", now))
	p.Stop()

	if got := hub.events("market:BTC-USDT"); len(got) != 1 {
		t.Errorf("BTC-USDT events = %d, want 1", len(got))
	}
	if got := hub.events("market:ETH-USDT"); len(got) != 1 {
		t.Errorf("ETH-USDT events = %d, want 1", len(got))
	}
}

func TestStatsWindow(t *testing.T) {
	p := NewPublisher(nil, nil, nil, Options{})
	p.Start()

	now := time.Now().UTC()
	// Сделка вне 24h окна выпадает из статистики
	p.Publish(trade("BTC-USDT", 1, "999", "9", now.Add(-25*time.Hour)))
	p.Publish(trade("BTC-USDT", 2, "100", "1", now.Add(-time.Hour)))
	p.Publish(trade("BTC-USDT", 3, "110", "2", now.Add(-time.Minute)))
	p.Publish(trade("BTC-USDT", 4, "105", "1", now))
	p.Stop()

	s := p.Stats("BTC-USDT")
	if !s.LastPrice.Equal(d("105")) {
		t.Errorf("last price = %s, want 105", s.LastPrice)
	}
	if !s.High24h.Equal(d("110")) {
		t.Errorf("high = %s, want 110", s.High24h)
	}
	if !s.Low24h.Equal(d("100")) {
		t.Errorf("low = %s, want 100", s.Low24h)
	}
	if !s.Volume24h.Equal(d("4")) {
		t.Errorf("volume = %s, want 4", s.Volume24h)
	}
	if s.Trades24h != 3 {
		t.Errorf("trades = %d, want 3", s.Trades24h)
	}
}

func TestCandleAggregation(t *testing.T) {
	tr := newTracker("BTC-USDT")

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	ticks := []struct {
		at    time.Time
		price string
		qty   string
	}{
		{base.Add(5 * time.Second), "100", "1"},
		{base.Add(20 * time.Second), "103", "2"},
		{base.Add(40 * time.Second), "99", "1"},
		{base.Add(70 * time.Second), "101", "3"}, // следующая минута
	}
	for i, tk := range ticks {
		tr.Record(&models.Trade{
			MarketID: "BTC-USDT", Price: d(tk.price), Quantity: d(tk.qty),
			SequenceNumber: uint64(i + 1), CreatedAt: tk.at,
		})
	}

	candles := tr.Candles(0)
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}

	c := candles[0]
	if !c.Open.Equal(d("100")) || !c.High.Equal(d("103")) || !c.Low.Equal(d("99")) || !c.Close.Equal(d("99")) {
		t.Errorf("candle OHLC = %s/%s/%s/%s, want 100/103/99/99", c.Open, c.High, c.Low, c.Close)
	}
	if !c.Volume.Equal(d("4")) {
		t.Errorf("candle volume = %s, want 4", c.Volume)
	}

	if !candles[1].Open.Equal(d("101")) || !candles[1].Volume.Equal(d("3")) {
		t.Errorf("second candle = open %s volume %s, want 101/3", candles[1].Open, candles[1].Volume)
	}
}

func TestDepthCache(t *testing.T) {
	p := NewPublisher(nil, nil, nil, Options{})
	p.Start()

	if p.Depth("BTC-USDT") != nil {
		t.Error("depth before any update should be nil")
	}

	depth := &models.Depth{
		MarketID:       "BTC-USDT",
		Bids:           []models.DepthLevel{{Price: d("100"), Quantity: d("1"), OrderCount: 1}},
		SequenceNumber: 5,
		Timestamp:      time.Now().UTC(),
	}
	p.Publish(&models.DepthUpdateEvent{Depth: depth})
	p.Publish(&models.DepthUpdateEvent{Depth: &models.Depth{
		MarketID:       "BTC-USDT",
		SequenceNumber: 7,
	}})
	p.Stop()

	got := p.Depth("BTC-USDT")
	if got == nil || got.SequenceNumber != 7 {
		t.Errorf("depth cache should hold latest snapshot, got %+v", got)
	}
	if p.LastSequence("BTC-USDT") != 7 {
		t.Errorf("last seq = %d, want 7", p.LastSequence("BTC-USDT"))
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	// Буфер 1 и ни одного потребителя: лишние события отбрасываются,
	// вызов возвращается сразу
	p := NewPublisher(nil, nil, nil, Options{BufferSize: 1})

	done := make(chan struct{})
	go func() {
		now := time.Now().UTC()
		for i := 0; i < 100; i++ {
			p.Publish(trade("BTC-USDT", uint64(i+1), "100", "1", now))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
}
