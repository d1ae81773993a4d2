package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func tradeEvent(market string, seq uint64, price string) *models.TradeEvent {
	p, _ := decimal.NewFromString(price)
	return &models.TradeEvent{Trade: &models.Trade{
		ID:             "t",
		MarketID:       market,
		Price:          p,
		Quantity:       decimal.NewFromInt(1),
		MakerSide:      models.SideSell,
		SequenceNumber: seq,
		CreatedAt:      time.Now().UTC(),
	}}
}

func TestAppendReplayRoundTrip(t *testing.T) {
	j := openTestJournal(t)

	events := []models.Event{
		tradeEvent("BTC-USDT", 1, "100"),
		&models.OrderStatusEvent{SequenceNumber: 2, Order: &models.Order{
			ID: "o1", MarketID: "BTC-USDT", Side: models.SideBuy,
			Type: models.OrderTypeLimit, Status: models.OrderStatusOpen,
			Price: decimal.NewFromInt(99), Quantity: decimal.NewFromInt(2),
			SequenceNumber: 1,
		}},
		tradeEvent("BTC-USDT", 3, "101"),
		&models.EngineHaltEvent{MarketID: "BTC-USDT", Reason: "test", SequenceNumber: 4},
	}
	for _, ev := range events {
		if err := j.Append(ev); err != nil {
			t.Fatalf("append seq %d: %v", ev.Sequence(), err)
		}
	}

	var got []models.Event
	err := j.ReplayFrom("BTC-USDT", 0, func(ev models.Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if len(got) != len(events) {
		t.Fatalf("replayed %d events, want %d", len(got), len(events))
	}
	for i, ev := range got {
		if ev.Sequence() != events[i].Sequence() {
			t.Errorf("event %d: seq = %d, want %d", i, ev.Sequence(), events[i].Sequence())
		}
		if ev.EventType() != events[i].EventType() {
			t.Errorf("event %d: type = %s, want %s", i, ev.EventType(), events[i].EventType())
		}
	}

	// Типизированное содержимое переживает round-trip
	te, ok := got[0].(*models.TradeEvent)
	if !ok {
		t.Fatalf("event 0 is %T, want *TradeEvent", got[0])
	}
	if !te.Trade.Price.Equal(decimal.NewFromInt(100)) {
		t.Errorf("trade price = %s, want 100", te.Trade.Price)
	}
}

func TestReplayFromSeq(t *testing.T) {
	j := openTestJournal(t)

	for seq := uint64(1); seq <= 5; seq++ {
		if err := j.Append(tradeEvent("BTC-USDT", seq, "100")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var seqs []uint64
	err := j.ReplayFrom("BTC-USDT", 3, func(ev models.Event) error {
		seqs = append(seqs, ev.Sequence())
		return nil
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	want := []uint64{3, 4, 5}
	if len(seqs) != len(want) {
		t.Fatalf("seqs = %v, want %v", seqs, want)
	}
	for i := range want {
		if seqs[i] != want[i] {
			t.Errorf("seqs = %v, want %v", seqs, want)
			break
		}
	}
}

func TestReplayIsolatedPerMarket(t *testing.T) {
	j := openTestJournal(t)

	j.Append(tradeEvent("BTC-USDT", 1, "100"))
	j.Append(tradeEvent("ETH-USDT", 1, "10"))
	j.Append(tradeEvent("BTC-USDT", 2, "101"))

	var count int
	if err := j.ReplayFrom("ETH-USDT", 0, func(models.Event) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if count != 1 {
		t.Errorf("ETH-USDT events = %d, want 1", count)
	}
}

func TestLastSequence(t *testing.T) {
	j := openTestJournal(t)

	if seq, err := j.LastSequence("BTC-USDT"); err != nil || seq != 0 {
		t.Errorf("empty journal: seq=%d err=%v, want 0 nil", seq, err)
	}

	j.Append(tradeEvent("BTC-USDT", 7, "100"))
	j.Append(tradeEvent("BTC-USDT", 9, "101"))

	seq, err := j.LastSequence("BTC-USDT")
	if err != nil {
		t.Fatalf("last sequence: %v", err)
	}
	if seq != 9 {
		t.Errorf("seq = %d, want 9", seq)
	}
}

func TestNilJournalIsNoop(t *testing.T) {
	var j *Journal

	if err := j.Append(tradeEvent("BTC-USDT", 1, "100")); err != nil {
		t.Errorf("nil append: %v", err)
	}
	if err := j.ReplayFrom("BTC-USDT", 0, func(models.Event) error {
		t.Error("nil journal must not replay anything")
		return nil
	}); err != nil {
		t.Errorf("nil replay: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("nil close: %v", err)
	}
}
