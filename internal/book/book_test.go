package book

import (
	"testing"

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

var nextSeq uint64

func order(id string, side models.Side, price, qty string) *models.Order {
	nextSeq++
	return &models.Order{
		ID:             id,
		MarketID:       "BTC-USDT",
		Side:           side,
		Type:           models.OrderTypeLimit,
		Price:          d(price),
		Quantity:       d(qty),
		FilledQuantity: decimal.Zero,
		Status:         models.OrderStatusOpen,
		SequenceNumber: nextSeq,
	}
}

func TestInsertAndBestOpposite(t *testing.T) {
	b := New()

	b.Insert(order("a1", models.SideSell, "101", "1"))
	b.Insert(order("a2", models.SideSell, "100", "1"))
	b.Insert(order("a3", models.SideSell, "102", "1"))

	best := b.BestOpposite(models.SideBuy)
	if best == nil || best.ID != "a2" {
		t.Fatalf("best opposite ask should be a2 (100), got %+v", best)
	}

	b.Insert(order("b1", models.SideBuy, "99", "1"))
	b.Insert(order("b2", models.SideBuy, "99.5", "1"))

	best = b.BestOpposite(models.SideSell)
	if best == nil || best.ID != "b2" {
		t.Fatalf("best opposite bid should be b2 (99.5), got %+v", best)
	}
}

func TestFIFOWithinLevel(t *testing.T) {
	// Price-time priority: при равной цене первым матчится ордер
	// с меньшим sequence number
	b := New()

	b.Insert(order("first", models.SideSell, "100", "1"))
	b.Insert(order("second", models.SideSell, "100", "1"))

	if best := b.BestOpposite(models.SideBuy); best.ID != "first" {
		t.Fatalf("FIFO violated: head = %s, want first", best.ID)
	}

	b.Remove("first")

	if best := b.BestOpposite(models.SideBuy); best.ID != "second" {
		t.Fatalf("after removing head: %s, want second", best.ID)
	}
}

func TestRemove(t *testing.T) {
	b := New()
	b.Insert(order("x", models.SideBuy, "100", "1"))

	if !b.Remove("x") {
		t.Error("remove existing order should return true")
	}
	// Гонка отмены: повторный remove - не ошибка
	if b.Remove("x") {
		t.Error("remove missing order should return false")
	}
	if b.Len() != 0 {
		t.Errorf("len = %d, want 0", b.Len())
	}
	if _, ok := b.BestBid(); ok {
		t.Error("empty book should have no best bid")
	}
}

func TestRemoveKeepsLevelOrder(t *testing.T) {
	b := New()
	b.Insert(order("s1", models.SideSell, "100", "1"))
	b.Insert(order("s2", models.SideSell, "101", "1"))
	b.Insert(order("s3", models.SideSell, "100", "2"))

	b.Remove("s1")

	best := b.BestOpposite(models.SideBuy)
	if best.ID != "s3" {
		t.Errorf("head = %s, want s3", best.ID)
	}

	b.Remove("s3")
	best = b.BestOpposite(models.SideBuy)
	if best.ID != "s2" {
		t.Errorf("head = %s, want s2 at 101", best.ID)
	}
}

func TestCrossed(t *testing.T) {
	b := New()
	b.Insert(order("b1", models.SideBuy, "100", "1"))
	b.Insert(order("a1", models.SideSell, "101", "1"))

	if b.Crossed() {
		t.Error("book 100/101 should not be crossed")
	}

	b.Insert(order("b2", models.SideBuy, "101", "1"))
	if !b.Crossed() {
		t.Error("book 101/101 should be crossed")
	}
}

func TestDepth(t *testing.T) {
	b := New()
	b.Insert(order("b1", models.SideBuy, "99", "2"))
	b.Insert(order("b2", models.SideBuy, "99", "3"))
	b.Insert(order("b3", models.SideBuy, "98", "1"))
	b.Insert(order("a1", models.SideSell, "101", "4"))
	b.Insert(order("a2", models.SideSell, "102", "5"))
	b.Insert(order("a3", models.SideSell, "103", "6"))

	depth := b.Depth(2)

	if len(depth.Bids) != 2 || len(depth.Asks) != 2 {
		t.Fatalf("levels = %d/%d, want 2/2", len(depth.Bids), len(depth.Asks))
	}

	// Уровень 99 агрегирует два ордера
	if !depth.Bids[0].Price.Equal(d("99")) || !depth.Bids[0].Quantity.Equal(d("5")) || depth.Bids[0].OrderCount != 2 {
		t.Errorf("bid level 0 = %+v, want price=99 qty=5 count=2", depth.Bids[0])
	}
	if !depth.Bids[1].Price.Equal(d("98")) {
		t.Errorf("bid level 1 price = %s, want 98", depth.Bids[1].Price)
	}
	if !depth.Asks[0].Price.Equal(d("101")) || !depth.Asks[1].Price.Equal(d("102")) {
		t.Errorf("asks not ascending: %s, %s", depth.Asks[0].Price, depth.Asks[1].Price)
	}
}

func TestDepthCountsRemaining(t *testing.T) {
	// На уровне учитывается остаток, не исходное количество
	b := New()
	o := order("p1", models.SideSell, "100", "10")
	o.FilledQuantity = d("4")
	b.Insert(o)

	depth := b.Depth(5)
	if !depth.Asks[0].Quantity.Equal(d("6")) {
		t.Errorf("level qty = %s, want 6", depth.Asks[0].Quantity)
	}
}

func TestOrdersByAccount(t *testing.T) {
	b := New()

	o1 := order("o1", models.SideBuy, "99", "1")
	o1.AccountID = "alice"
	o2 := order("o2", models.SideSell, "101", "1")
	o2.AccountID = "alice"
	o3 := order("o3", models.SideSell, "102", "1")
	o3.AccountID = "bob"
	b.Insert(o1)
	b.Insert(o2)
	b.Insert(o3)

	got := b.OrdersByAccount("alice")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestInsertMiddleLevel(t *testing.T) {
	b := New()
	b.Insert(order("a1", models.SideSell, "100", "1"))
	b.Insert(order("a2", models.SideSell, "104", "1"))
	b.Insert(order("a3", models.SideSell, "102", "1"))

	depth := b.Depth(3)
	want := []string{"100", "102", "104"}
	for i, w := range want {
		if !depth.Asks[i].Price.Equal(d(w)) {
			t.Errorf("ask[%d] = %s, want %s", i, depth.Asks[i].Price, w)
		}
	}
}
