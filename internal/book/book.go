package book

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

// priceLevel - FIFO очередь ордеров на одной цене.
// Внутри уровня строгий порядок по SequenceNumber (движок вставляет
// ордера в порядке секвенирования, поэтому append сохраняет FIFO).
type priceLevel struct {
	price  decimal.Decimal
	orders []*models.Order
}

// Book - стакан одного рынка
//
// Два отсортированных среза уровней: bids по убыванию цены, asks по
// возрастанию. Инвариант: у каждого отдыхающего ордера Remaining() > 0.
// Пересеченный стакан (best bid >= best ask) не персистится - он
// разрешается матчингом немедленно, до вставки.
//
// НЕ потокобезопасен: единственный писатель - горутина движка рынка.
type Book struct {
	bids []*priceLevel
	asks []*priceLevel

	// Индекс orderID -> сторона, для быстрого Remove
	index map[string]models.Side
}

// New создает пустой стакан
func New() *Book {
	return &Book{
		bids:  make([]*priceLevel, 0, 64),
		asks:  make([]*priceLevel, 0, 64),
		index: make(map[string]models.Side),
	}
}

// betterOrEqual: true если цена a не хуже цены b для данной стороны
func betterThan(side models.Side, a, b decimal.Decimal) bool {
	if side == models.SideBuy {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

func (b *Book) levels(side models.Side) *[]*priceLevel {
	if side == models.SideBuy {
		return &b.bids
	}
	return &b.asks
}

// Insert добавляет отдыхающий ордер на свой ценовой уровень,
// в хвост очереди уровня (FIFO внутри цены).
func (b *Book) Insert(o *models.Order) {
	levels := b.levels(o.Side)
	b.index[o.ID] = o.Side

	// Быстрый путь: пустой стакан или худшая цена - в конец
	n := len(*levels)
	if n == 0 || betterThan(o.Side, (*levels)[n-1].price, o.Price) {
		*levels = append(*levels, &priceLevel{price: o.Price, orders: []*models.Order{o}})
		return
	}

	// Быстрый путь: лучшая цена - в начало
	if betterThan(o.Side, o.Price, (*levels)[0].price) {
		*levels = append([]*priceLevel{{price: o.Price, orders: []*models.Order{o}}}, *levels...)
		return
	}

	// Бинарный поиск позиции
	idx := sort.Search(n, func(i int) bool {
		return !betterThan(o.Side, (*levels)[i].price, o.Price)
	})

	if idx < n && (*levels)[idx].price.Equal(o.Price) {
		(*levels)[idx].orders = append((*levels)[idx].orders, o)
		return
	}

	lvl := &priceLevel{price: o.Price, orders: []*models.Order{o}}
	*levels = append(*levels, nil)
	copy((*levels)[idx+1:], (*levels)[idx:])
	(*levels)[idx] = lvl
}

// BestOpposite возвращает лучший отдыхающий ордер противоположной
// стороны (голова лучшего уровня) или nil если та сторона пуста.
func (b *Book) BestOpposite(side models.Side) *models.Order {
	levels := *b.levels(side.Opposite())
	if len(levels) == 0 {
		return nil
	}
	return levels[0].orders[0]
}

// BestBid возвращает лучшую цену bid
func (b *Book) BestBid() (decimal.Decimal, bool) {
	if len(b.bids) == 0 {
		return decimal.Zero, false
	}
	return b.bids[0].price, true
}

// BestAsk возвращает лучшую цену ask
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	if len(b.asks) == 0 {
		return decimal.Zero, false
	}
	return b.asks[0].price, true
}

// Remove убирает ордер из стакана (отмена или полное исполнение).
// Возвращает false если ордер не найден - гонки отмены ожидаемы
// и не являются ошибкой.
func (b *Book) Remove(orderID string) bool {
	side, ok := b.index[orderID]
	if !ok {
		return false
	}
	delete(b.index, orderID)

	levels := b.levels(side)
	for i, lvl := range *levels {
		for j, o := range lvl.orders {
			if o.ID != orderID {
				continue
			}
			lvl.orders = append(lvl.orders[:j], lvl.orders[j+1:]...)
			if len(lvl.orders) == 0 {
				*levels = append((*levels)[:i], (*levels)[i+1:]...)
			}
			return true
		}
	}
	return false
}

// Crossed возвращает true если best bid >= best ask.
// Отдыхающий пересеченный стакан - нарушение инварианта движка.
func (b *Book) Crossed() bool {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	return okB && okA && bid.GreaterThanOrEqual(ask)
}

// Len возвращает количество отдыхающих ордеров
func (b *Book) Len() int {
	return len(b.index)
}

// Depth строит агрегированный snapshot топ-N уровней каждой стороны.
// Количество на уровне - сумма Remaining() его ордеров.
func (b *Book) Depth(maxLevels int) *models.Depth {
	d := &models.Depth{
		Bids:      aggregate(b.bids, maxLevels),
		Asks:      aggregate(b.asks, maxLevels),
		Timestamp: time.Now().UTC(),
	}
	return d
}

func aggregate(levels []*priceLevel, maxLevels int) []models.DepthLevel {
	if maxLevels > len(levels) {
		maxLevels = len(levels)
	}
	out := make([]models.DepthLevel, 0, maxLevels)
	for _, lvl := range levels[:maxLevels] {
		qty := decimal.Zero
		for _, o := range lvl.orders {
			qty = qty.Add(o.Remaining())
		}
		out = append(out, models.DepthLevel{
			Price:      lvl.price,
			Quantity:   qty,
			OrderCount: len(lvl.orders),
		})
	}
	return out
}

// OrdersByAccount возвращает отдыхающие ордера аккаунта (live указатели).
// Вызывать только из горутины движка.
func (b *Book) OrdersByAccount(accountID string) []*models.Order {
	var out []*models.Order
	for _, lvls := range [][]*priceLevel{b.bids, b.asks} {
		for _, lvl := range lvls {
			for _, o := range lvl.orders {
				if o.AccountID == accountID {
					out = append(out, o)
				}
			}
		}
	}
	return out
}
