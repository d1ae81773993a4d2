package marketdata

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

const (
	statsWindow = 24 * time.Hour
	candleSpan  = time.Minute
	maxCandles  = 1440 // сутки минутных свечей
)

type windowTrade struct {
	at    time.Time
	price decimal.Decimal
	qty   decimal.Decimal
}

// tracker накапливает статистику одного рынка: скользящее 24h окно
// сделок и минутные OHLC свечи. Потокобезопасен.
type tracker struct {
	mu        sync.Mutex
	marketID  string
	trades    []windowTrade // упорядочены по времени
	lastPrice decimal.Decimal
	candles   []*models.Candle // упорядочены по Start
}

func newTracker(marketID string) *tracker {
	return &tracker{marketID: marketID}
}

// Record учитывает сделку в окне и свечах
func (t *tracker) Record(trade *models.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := trade.CreatedAt
	t.trades = append(t.trades, windowTrade{at: now, price: trade.Price, qty: trade.Quantity})
	t.lastPrice = trade.Price
	t.prune(now)

	start := now.Truncate(candleSpan)
	if n := len(t.candles); n > 0 && t.candles[n-1].Start.Equal(start) {
		c := t.candles[n-1]
		if trade.Price.GreaterThan(c.High) {
			c.High = trade.Price
		}
		if trade.Price.LessThan(c.Low) {
			c.Low = trade.Price
		}
		c.Close = trade.Price
		c.Volume = c.Volume.Add(trade.Quantity)
		return
	}

	t.candles = append(t.candles, &models.Candle{
		MarketID: t.marketID,
		Start:    start,
		Open:     trade.Price,
		High:     trade.Price,
		Low:      trade.Price,
		Close:    trade.Price,
		Volume:   trade.Quantity,
	})
	if len(t.candles) > maxCandles {
		t.candles = t.candles[len(t.candles)-maxCandles:]
	}
}

// prune выбрасывает сделки старше окна. Вызывается под mu.
func (t *tracker) prune(now time.Time) {
	cutoff := now.Add(-statsWindow)
	i := 0
	for i < len(t.trades) && t.trades[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.trades = t.trades[i:]
	}
}

// Stats возвращает снапшот 24h статистики
func (t *tracker) Stats() *models.MarketStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.prune(now)

	s := &models.MarketStats{
		MarketID:  t.marketID,
		LastPrice: t.lastPrice,
		Trades24h: len(t.trades),
		UpdatedAt: now,
	}
	if len(t.trades) == 0 {
		return s
	}

	first := t.trades[0].price
	high := t.trades[0].price
	low := t.trades[0].price
	volume := decimal.Zero
	for _, tr := range t.trades {
		if tr.price.GreaterThan(high) {
			high = tr.price
		}
		if tr.price.LessThan(low) {
			low = tr.price
		}
		volume = volume.Add(tr.qty)
	}

	s.High24h = high
	s.Low24h = low
	s.Volume24h = volume
	if first.Sign() > 0 {
		s.Change24h = t.lastPrice.Sub(first).Div(first).Mul(decimal.NewFromInt(100)).Round(4)
	}
	return s
}

// Candles возвращает последние limit свечей (от старых к новым)
func (t *tracker) Candles(limit int) []*models.Candle {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.candles)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*models.Candle, limit)
	for i, c := range t.candles[n-limit:] {
		cp := *c
		out[i] = &cp
	}
	return out
}
