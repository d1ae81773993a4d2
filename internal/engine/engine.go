package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exchange/internal/book"
	"exchange/internal/ledger"
	"exchange/internal/models"
)

// Ошибки движка
var (
	// ErrMarketInactive - рынок выключен конфигурацией
	ErrMarketInactive = errors.New("market is inactive")

	// ErrMarketHalted - рынок остановлен из-за нарушения инварианта
	ErrMarketHalted = errors.New("market is halted")

	// ErrOrderNotCancellable - ордер нельзя отменить (уже исполнен,
	// отменен или не существует). Гонка cancel-after-fill - это
	// ожидаемый безопасный случай, не сбой.
	ErrOrderNotCancellable = errors.New("order is not cancellable")

	// ErrInvalidOrder - некорректные параметры ордера
	ErrInvalidOrder = errors.New("invalid order")

	// ErrEngineStopped - движок остановлен (shutdown)
	ErrEngineStopped = errors.New("engine is stopped")
)

// Publisher принимает события движка. Реализация ОБЯЗАНА быть
// неблокирующей: market data best-effort и никогда не тормозит матчинг.
type Publisher interface {
	Publish(ev models.Event)
}

// Options - параметры движка рынка
type Options struct {
	QueueSize   int // размер очереди команд (default 1024)
	DepthLevels int // глубина depth snapshot'ов (default 20)
}

type commandType int

const (
	cmdNewOrder commandType = iota
	cmdCancelOrder
)

// command - элемент единого входного потока рынка.
// Порядок очереди = порядок линеаризации = порядок sequence numbers.
type command struct {
	typ       commandType
	order     *models.Order // для cmdNewOrder
	accountID string        // для cmdCancelOrder
	orderID   string        // для cmdCancelOrder
	reply     chan result
}

type result struct {
	order *models.Order // snapshot после обработки
	err   error
}

// Engine - матчинг-движок одного рынка
//
// Единственный писатель стакана: все команды рынка обрабатываются
// строго последовательно одной горутиной (run loop). Рынки между собой
// независимы и работают параллельно, ledger общий.
//
// Никакого внешнего I/O внутри матчинга: персистентность и market data
// навешиваются снаружи на поток событий.
type Engine struct {
	market *models.Market
	book   *book.Book
	ledger *ledger.Ledger
	pub    Publisher
	opts   Options

	commands chan command
	seq      uint64 // только из run loop

	halted     atomic.Bool
	haltReason atomic.Value // string

	// resting - живые отдыхающие ордера (только run loop)
	resting map[string]*models.Order

	// open - снапшоты открытых ордеров для конкурентных читателей
	openMu sync.RWMutex
	open   map[string]*models.Order

	quit chan struct{}
	done chan struct{}
}

// New создает движок рынка. Движок не принимает команды до Start().
func New(market *models.Market, l *ledger.Ledger, pub Publisher, opts Options) *Engine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.DepthLevels <= 0 {
		opts.DepthLevels = 20
	}

	return &Engine{
		market:   market,
		book:     book.New(),
		ledger:   l,
		pub:      pub,
		opts:     opts,
		commands: make(chan command, opts.QueueSize),
		resting:  make(map[string]*models.Order),
		open:     make(map[string]*models.Order),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Market возвращает конфигурацию рынка
func (e *Engine) Market() *models.Market {
	return e.market
}

// Halted возвращает true если рынок остановлен
func (e *Engine) Halted() bool {
	return e.halted.Load()
}

// Start запускает обработку команд
func (e *Engine) Start() {
	go e.run()
}

// Stop останавливает движок. Команды в очереди получают ErrEngineStopped.
func (e *Engine) Stop() {
	close(e.quit)
	<-e.done
}

// PlaceOrder ставит новый ордер в очередь рынка и ждет результата.
// Возвращает snapshot ордера после обработки (с присвоенным
// sequence number) либо причину отклонения.
func (e *Engine) PlaceOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	if e.halted.Load() {
		return nil, fmt.Errorf("%w: %s", ErrMarketHalted, e.haltedReason())
	}

	cmd := command{typ: cmdNewOrder, order: o, reply: make(chan result, 1)}
	return e.submit(ctx, cmd)
}

// CancelOrder ставит отмену в очередь рынка и ждет результата
func (e *Engine) CancelOrder(ctx context.Context, accountID, orderID string) (*models.Order, error) {
	if e.halted.Load() {
		return nil, fmt.Errorf("%w: %s", ErrMarketHalted, e.haltedReason())
	}

	cmd := command{typ: cmdCancelOrder, accountID: accountID, orderID: orderID, reply: make(chan result, 1)}
	return e.submit(ctx, cmd)
}

func (e *Engine) submit(ctx context.Context, cmd command) (*models.Order, error) {
	select {
	case e.commands <- cmd:
		CommandQueueSize.WithLabelValues(e.market.ID).Set(float64(len(e.commands)))
	case <-e.quit:
		return nil, ErrEngineStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res.order, res.err
	case <-ctx.Done():
		// Команда уже в очереди и будет обработана; ответ теряется,
		// таймауты - ответственность gateway
		return nil, ctx.Err()
	}
}

// OpenOrders возвращает снапшоты открытых ордеров аккаунта
func (e *Engine) OpenOrders(accountID string) []*models.Order {
	e.openMu.RLock()
	defer e.openMu.RUnlock()

	var out []*models.Order
	for _, o := range e.open {
		if o.AccountID == accountID {
			out = append(out, o.Clone())
		}
	}
	return out
}

func (e *Engine) haltedReason() string {
	if r, ok := e.haltReason.Load().(string); ok {
		return r
	}
	return ""
}

//
// ────────────────────────────────────────────────────────────
// Run loop: единственный поток управления рынка
// ────────────────────────────────────────────────────────────
//

func (e *Engine) run() {
	defer close(e.done)

	for {
		select {
		case <-e.quit:
			e.drain()
			return
		case cmd := <-e.commands:
			CommandQueueSize.WithLabelValues(e.market.ID).Set(float64(len(e.commands)))
			e.dispatch(cmd)
		}
	}
}

// drain отвечает на оставшиеся команды после остановки
func (e *Engine) drain() {
	for {
		select {
		case cmd := <-e.commands:
			cmd.reply <- result{err: ErrEngineStopped}
		default:
			return
		}
	}
}

func (e *Engine) dispatch(cmd command) {
	// После остановки рынка команды не обрабатываются
	if e.halted.Load() {
		cmd.reply <- result{err: fmt.Errorf("%w: %s", ErrMarketHalted, e.haltedReason())}
		return
	}

	start := time.Now()
	switch cmd.typ {
	case cmdNewOrder:
		e.processNewOrder(cmd)
		CommandLatency.WithLabelValues(e.market.ID, "new_order").
			Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	case cmdCancelOrder:
		e.processCancel(cmd)
		CommandLatency.WithLabelValues(e.market.ID, "cancel").
			Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}

	// Инвариант: отдыхающий стакан не может быть пересечен
	if !e.halted.Load() && e.book.Crossed() {
		e.halt("crossed resting book detected")
	}

	RestingOrders.WithLabelValues(e.market.ID).Set(float64(e.book.Len()))
}

func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

// halt останавливает рынок после нарушения инварианта.
// Дальнейшие команды отклоняются до вмешательства оператора.
func (e *Engine) halt(reason string) {
	e.haltReason.Store(reason)
	e.halted.Store(true)
	EngineHalts.WithLabelValues(e.market.ID).Inc()

	log.Printf("FATAL: market %s halted: %s", e.market.ID, reason)

	e.pub.Publish(&models.EngineHaltEvent{
		MarketID:       e.market.ID,
		Reason:         reason,
		SequenceNumber: e.nextSeq(),
		Timestamp:      time.Now().UTC(),
	})
}

//
// ────────────────────────────────────────────────────────────
// Новый ордер: адмиссия → матчинг → размещение остатка
// ────────────────────────────────────────────────────────────
//

func (e *Engine) processNewOrder(cmd command) {
	o := cmd.order

	if err := e.admit(o); err != nil {
		o.Status = models.OrderStatusRejected
		o.UpdatedAt = time.Now().UTC()
		OrdersTotal.WithLabelValues(e.market.ID, "rejected").Inc()
		e.pub.Publish(&models.OrderStatusEvent{Order: o.Clone(), SequenceNumber: e.nextSeq()})
		cmd.reply <- result{order: o.Clone(), err: err}
		return
	}

	// Матчинг против стакана
	if fatal := e.match(o); fatal != nil {
		e.halt(fatal.Error())
		cmd.reply <- result{err: fmt.Errorf("%w: %s", ErrMarketHalted, fatal)}
		return
	}

	e.finalize(o)

	OrdersTotal.WithLabelValues(e.market.ID, o.Status).Inc()
	e.pub.Publish(&models.OrderStatusEvent{Order: o.Clone(), SequenceNumber: e.nextSeq()})
	e.publishDepth()
	cmd.reply <- result{order: o.Clone(), err: nil}
}

// admit валидирует ордер и резервирует средства.
// При любой ошибке состояние системы не меняется.
func (e *Engine) admit(o *models.Order) error {
	if !e.market.Active {
		return ErrMarketInactive
	}

	if err := e.market.ValidateQuantity(o.Quantity); err != nil {
		return err
	}

	switch o.Type {
	case models.OrderTypeLimit:
		if err := e.market.ValidatePrice(o.Price); err != nil {
			return err
		}
		if err := e.market.ValidateNotional(o.Price, o.Quantity); err != nil {
			return err
		}
	case models.OrderTypeMarket:
		if !o.Price.IsZero() {
			return fmt.Errorf("%w: market order must not carry a price", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, o.Type)
	}

	// Сумма резервации: quote для покупки, base для продажи.
	// Market buy не имеет ценовой границы - резервируем весь свободный
	// quote баланс, остаток вернется при завершении.
	var asset string
	var amount decimal.Decimal
	switch {
	case o.Side == models.SideSell:
		asset = e.market.Base
		amount = o.Quantity
	case o.Type == models.OrderTypeLimit:
		asset = e.market.Quote
		amount = o.Price.Mul(o.Quantity)
	default:
		asset = e.market.Quote
		amount = e.ledger.Balance(o.AccountID, asset).Available
		if amount.Sign() <= 0 {
			return ledger.ErrInsufficientBalance
		}
	}

	resID, err := e.ledger.Reserve(o.AccountID, asset, amount)
	if err != nil {
		return err
	}
	o.ReservationID = resID

	// Секвенирование после успешной адмиссии
	o.SequenceNumber = e.nextSeq()
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.FilledQuantity = decimal.Zero
	return nil
}

// crosses: пересекается ли входящий limit ордер с ценой мейкера
func crosses(o *models.Order, makerPrice decimal.Decimal) bool {
	if o.Type == models.OrderTypeMarket {
		return true
	}
	if o.Side == models.SideBuy {
		return makerPrice.LessThanOrEqual(o.Price)
	}
	return makerPrice.GreaterThanOrEqual(o.Price)
}

// match сводит входящий ордер с лучшими противоположными до тех пор
// пока есть пересечение и остаток. Возвращает ошибку ТОЛЬКО при
// фатальном нарушении инварианта (рынок должен быть остановлен).
func (e *Engine) match(taker *models.Order) error {
	for taker.Remaining().Sign() > 0 {
		maker := e.book.BestOpposite(taker.Side)
		if maker == nil {
			break
		}
		if !crosses(taker, maker.Price) {
			break
		}

		matchQty := decimal.Min(taker.Remaining(), maker.Remaining())

		// Market buy ограничен средствами резервации по цене мейкера
		if taker.Side == models.SideBuy && taker.Type == models.OrderTypeMarket {
			remaining, ok := e.ledger.ReservationRemaining(taker.ReservationID)
			if !ok {
				return fmt.Errorf("reservation %s vanished mid-match", taker.ReservationID)
			}
			affordable := remaining.DivRound(maker.Price, 16)
			if e.market.LotSize.Sign() > 0 {
				affordable = affordable.Sub(affordable.Mod(e.market.LotSize)) // вниз до шага лота
				// Строго вниз: стоимость не должна превысить резервацию
				for affordable.Sign() > 0 && maker.Price.Mul(affordable).GreaterThan(remaining) {
					affordable = affordable.Sub(e.market.LotSize)
				}
			} else if maker.Price.Mul(affordable).GreaterThan(remaining) {
				// Рынок без шага лота: режем точным делением с усечением
				affordable = remaining.DivRound(maker.Price, 17).Truncate(16)
			}
			if affordable.LessThan(matchQty) {
				matchQty = affordable
			}
			if matchQty.Sign() <= 0 {
				break // средства исчерпаны
			}
		}

		// Цена сделки - ВСЕГДА цена отдыхающего ордера (maker price)
		price := maker.Price
		quoteAmount := price.Mul(matchQty)

		// Расчет: две ноги через ledger. Ошибка здесь - баг движка,
		// обе резервации были проверены при адмиссии.
		var err error
		if taker.Side == models.SideBuy {
			err = e.ledger.Settle(taker.ReservationID, maker.AccountID, quoteAmount)
			if err == nil {
				err = e.ledger.Settle(maker.ReservationID, taker.AccountID, matchQty)
			}
		} else {
			err = e.ledger.Settle(taker.ReservationID, maker.AccountID, matchQty)
			if err == nil {
				err = e.ledger.Settle(maker.ReservationID, taker.AccountID, quoteAmount)
			}
		}
		if err != nil {
			return fmt.Errorf("settlement failed: %v", err)
		}

		taker.FilledQuantity = taker.FilledQuantity.Add(matchQty)
		maker.FilledQuantity = maker.FilledQuantity.Add(matchQty)
		now := time.Now().UTC()
		taker.UpdatedAt = now
		maker.UpdatedAt = now

		trade := &models.Trade{
			ID:             uuid.NewString(),
			MarketID:       e.market.ID,
			MakerOrderID:   maker.ID,
			TakerOrderID:   taker.ID,
			MakerAccountID: maker.AccountID,
			TakerAccountID: taker.AccountID,
			Price:          price,
			Quantity:       matchQty,
			MakerSide:      maker.Side,
			SequenceNumber: e.nextSeq(),
			CreatedAt:      now,
		}
		TradesTotal.WithLabelValues(e.market.ID).Inc()
		e.pub.Publish(&models.TradeEvent{Trade: trade})

		if maker.IsFullyFilled() {
			maker.Status = models.OrderStatusFilled
			e.book.Remove(maker.ID)
			e.removeOpen(maker.ID)
			// Остаток резервации мейкера должен быть ровно ноль
			// (сделки мейкера идут по его собственной цене);
			// release идемпотентен и подчищает любой остаток
			if err := e.ledger.Release(maker.ReservationID); err != nil {
				return fmt.Errorf("maker reservation release failed: %v", err)
			}
		} else {
			maker.Status = models.OrderStatusPartiallyFilled
			e.updateOpen(maker)
		}
		e.pub.Publish(&models.OrderStatusEvent{Order: maker.Clone(), SequenceNumber: e.nextSeq()})
	}

	return nil
}

// finalize определяет терминальное/отдыхающее состояние входящего
// ордера после матчинга
func (e *Engine) finalize(o *models.Order) {
	o.UpdatedAt = time.Now().UTC()

	if o.IsFullyFilled() {
		o.Status = models.OrderStatusFilled
		// Для buy limit по maker price остается излишек quote
		// резервации - возвращаем
		_ = e.ledger.Release(o.ReservationID)
		return
	}

	if o.Type == models.OrderTypeMarket {
		// Market ордера никогда не отдыхают: остаток отменяется,
		// резервация освобождается
		if o.FilledQuantity.Sign() > 0 {
			o.Status = models.OrderStatusPartiallyFilled
		} else {
			o.Status = models.OrderStatusCancelled
		}
		_ = e.ledger.Release(o.ReservationID)
		return
	}

	// Остаток limit ордера отдыхает в стакане
	if o.FilledQuantity.Sign() > 0 {
		o.Status = models.OrderStatusPartiallyFilled
	} else {
		o.Status = models.OrderStatusOpen
	}
	e.book.Insert(o)
	e.resting[o.ID] = o
	e.updateOpen(o)
}

//
// ────────────────────────────────────────────────────────────
// Отмена
// ────────────────────────────────────────────────────────────
//

func (e *Engine) processCancel(cmd command) {
	o, ok := e.resting[cmd.orderID]
	if !ok || o.AccountID != cmd.accountID {
		// Гонка cancel-after-fill или чужой/неизвестный ордер.
		// Безопасный no-op, состояние не трогаем.
		cmd.reply <- result{err: fmt.Errorf("%w: order already filled, cancelled or unknown", ErrOrderNotCancellable)}
		return
	}

	e.book.Remove(o.ID)
	delete(e.resting, o.ID)
	e.removeOpen(o.ID)

	if err := e.ledger.Release(o.ReservationID); err != nil {
		e.halt(fmt.Sprintf("release on cancel failed: %v", err))
		cmd.reply <- result{err: fmt.Errorf("%w: %s", ErrMarketHalted, e.haltedReason())}
		return
	}

	o.Status = models.OrderStatusCancelled
	o.UpdatedAt = time.Now().UTC()

	OrdersTotal.WithLabelValues(e.market.ID, "cancelled").Inc()
	e.pub.Publish(&models.OrderStatusEvent{Order: o.Clone(), SequenceNumber: e.nextSeq()})
	e.publishDepth()
	cmd.reply <- result{order: o.Clone(), err: nil}
}

//
// ────────────────────────────────────────────────────────────
// Вспомогательное
// ────────────────────────────────────────────────────────────
//

func (e *Engine) publishDepth() {
	depth := e.book.Depth(e.opts.DepthLevels)
	depth.MarketID = e.market.ID
	depth.SequenceNumber = e.nextSeq()
	e.pub.Publish(&models.DepthUpdateEvent{Depth: depth})
}

func (e *Engine) updateOpen(o *models.Order) {
	e.openMu.Lock()
	e.open[o.ID] = o.Clone()
	e.openMu.Unlock()
}

func (e *Engine) removeOpen(orderID string) {
	delete(e.resting, orderID)
	e.openMu.Lock()
	delete(e.open, orderID)
	e.openMu.Unlock()
}
