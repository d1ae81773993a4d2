package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exchange/internal/models"
)

// Ошибки ledger'а
var (
	// ErrInsufficientBalance - недостаточно свободных средств.
	// Пользовательская ошибка, возвращается синхронно, состояние не меняется.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount - сумма операции не положительна
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrReservationNotFound - неизвестная резервация
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrSettleExceedsReservation - попытка списать больше чем осталось
	// в резервации. Это НЕ пользовательская ошибка, а нарушение инварианта
	// движка: рынок должен быть остановлен.
	ErrSettleExceedsReservation = errors.New("settle amount exceeds reservation remainder")
)

// entryKey идентифицирует баланс: аккаунт + актив
type entryKey struct {
	accountID string
	asset     string
}

// less задает глобальный порядок взятия локов (сначала меньший ключ).
// Единый порядок исключает deadlock при переводах между аккаунтами.
func (k entryKey) less(o entryKey) bool {
	if k.accountID != o.accountID {
		return k.accountID < o.accountID
	}
	return k.asset < o.asset
}

// entry - баланс одного аккаунта по одному активу.
// Все мутации только под собственным mutex'ом.
type entry struct {
	mu        sync.Mutex
	available decimal.Decimal
	held      decimal.Decimal
}

// reservation - hold под открытый ордер
type reservation struct {
	id        string
	key       entryKey
	remaining decimal.Decimal
	released  bool
}

// Ledger - единственный источник истины по балансам
//
// Все операции атомарны. Конкурентный доступ из нескольких рыночных
// движков: локи гранулярны (на пару аккаунт+актив), глобального лока
// на мутации нет. Межаккаунтный перевод (settle) берет оба лока в
// детерминированном порядке ключей.
type Ledger struct {
	mu      sync.RWMutex // защищает только карты, не балансы
	entries map[entryKey]*entry

	resMu        sync.RWMutex
	reservations map[string]*reservation
}

// New создает пустой ledger
func New() *Ledger {
	return &Ledger{
		entries:      make(map[entryKey]*entry),
		reservations: make(map[string]*reservation),
	}
}

// getOrCreate возвращает entry для ключа, создавая при необходимости
func (l *Ledger) getOrCreate(key entryKey) *entry {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[key]; ok {
		return e
	}
	e = &entry{available: decimal.Zero, held: decimal.Zero}
	l.entries[key] = e
	return e
}

// get возвращает entry без создания
func (l *Ledger) get(key entryKey) (*entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	return e, ok
}

// Deposit зачисляет средства на свободный баланс.
// Граничная операция: единственный способ (вместе с Withdraw) изменить
// суммарное количество актива в системе.
func (l *Ledger) Deposit(accountID, asset string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	e := l.getOrCreate(entryKey{accountID, asset})
	e.mu.Lock()
	e.available = e.available.Add(amount)
	e.mu.Unlock()
	return nil
}

// Withdraw списывает средства со свободного баланса.
// Возвращает ErrInsufficientBalance если available < amount -
// баланс никогда не клампится и не уходит в минус.
func (l *Ledger) Withdraw(accountID, asset string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	e, ok := l.get(entryKey{accountID, asset})
	if !ok {
		return ErrInsufficientBalance
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.available.LessThan(amount) {
		return ErrInsufficientBalance
	}
	e.available = e.available.Sub(amount)
	return nil
}

// Reserve перемещает amount из available в held под открытый ордер.
// Атомарно: при нехватке средств резервация не создается вообще.
// Возвращает ID резервации.
func (l *Ledger) Reserve(accountID, asset string, amount decimal.Decimal) (string, error) {
	if amount.Sign() <= 0 {
		return "", ErrInvalidAmount
	}

	key := entryKey{accountID, asset}
	e := l.getOrCreate(key)

	e.mu.Lock()
	if e.available.LessThan(amount) {
		e.mu.Unlock()
		return "", ErrInsufficientBalance
	}
	e.available = e.available.Sub(amount)
	e.held = e.held.Add(amount)
	e.mu.Unlock()

	res := &reservation{
		id:        uuid.NewString(),
		key:       key,
		remaining: amount,
	}

	l.resMu.Lock()
	l.reservations[res.id] = res
	l.resMu.Unlock()

	return res.id, nil
}

// Release возвращает неиспользованный остаток резервации обратно
// в available.
//
// Идемпотентна: повторный release уже освобожденной резервации - no-op,
// не ошибка. Это важно для гонок отмены (duplicate cancel).
func (l *Ledger) Release(reservationID string) error {
	l.resMu.Lock()
	res, ok := l.reservations[reservationID]
	if !ok {
		l.resMu.Unlock()
		return ErrReservationNotFound
	}
	if res.released || res.remaining.IsZero() {
		res.released = true
		l.resMu.Unlock()
		return nil
	}
	amount := res.remaining
	res.remaining = decimal.Zero
	res.released = true
	l.resMu.Unlock()

	e, ok := l.get(res.key)
	if !ok {
		// Резервация существует только для существующего entry
		return fmt.Errorf("ledger corrupted: entry missing for reservation %s", reservationID)
	}

	e.mu.Lock()
	e.held = e.held.Sub(amount)
	e.available = e.available.Add(amount)
	e.mu.Unlock()
	return nil
}

// Settle атомарно списывает amount из held плательщика (резервации)
// и зачисляет в available получателя. Используется для расчёта по
// сделке: два вызова на сделку (quote нога и base нога).
//
// Для любого конкурентного читателя видны либо обе стороны перевода,
// либо ни одна: оба entry залочены на время перевода, в едином
// глобальном порядке ключей (защита от deadlock).
//
// ErrSettleExceedsReservation - фатальная ошибка (баг движка):
// вызывающий обязан остановить рынок.
func (l *Ledger) Settle(reservationID, toAccountID string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.resMu.Lock()
	res, ok := l.reservations[reservationID]
	if !ok {
		l.resMu.Unlock()
		return ErrReservationNotFound
	}
	if res.released || res.remaining.LessThan(amount) {
		l.resMu.Unlock()
		return fmt.Errorf("%w: reservation=%s remaining=%s amount=%s",
			ErrSettleExceedsReservation, reservationID, res.remaining, amount)
	}
	res.remaining = res.remaining.Sub(amount)
	l.resMu.Unlock()

	fromKey := res.key
	toKey := entryKey{toAccountID, res.key.asset}

	from, ok := l.get(fromKey)
	if !ok {
		return fmt.Errorf("ledger corrupted: payer entry missing for reservation %s", reservationID)
	}
	to := l.getOrCreate(toKey)

	// Самоторговля: один аккаунт с обеих сторон, лок один
	if fromKey == toKey {
		from.mu.Lock()
		from.held = from.held.Sub(amount)
		from.available = from.available.Add(amount)
		from.mu.Unlock()
		return nil
	}

	// Два лока в детерминированном порядке
	first, second := from, to
	if toKey.less(fromKey) {
		first, second = to, from
	}
	first.mu.Lock()
	second.mu.Lock()

	from.held = from.held.Sub(amount)
	to.available = to.available.Add(amount)

	second.mu.Unlock()
	first.mu.Unlock()
	return nil
}

// ReservationRemaining возвращает неиспользованный остаток резервации
func (l *Ledger) ReservationRemaining(reservationID string) (decimal.Decimal, bool) {
	l.resMu.RLock()
	defer l.resMu.RUnlock()

	res, ok := l.reservations[reservationID]
	if !ok {
		return decimal.Zero, false
	}
	return res.remaining, true
}

// Balance возвращает snapshot баланса аккаунта по активу
func (l *Ledger) Balance(accountID, asset string) models.Balance {
	b := models.Balance{
		AccountID: accountID,
		Asset:     asset,
		Available: decimal.Zero,
		Held:      decimal.Zero,
	}

	e, ok := l.get(entryKey{accountID, asset})
	if !ok {
		return b
	}

	e.mu.Lock()
	b.Available = e.available
	b.Held = e.held
	e.mu.Unlock()
	return b
}

// Balances возвращает все балансы аккаунта, отсортированные по активу
func (l *Ledger) Balances(accountID string) []models.Balance {
	l.mu.RLock()
	keys := make([]entryKey, 0, 8)
	for k := range l.entries {
		if k.accountID == accountID {
			keys = append(keys, k)
		}
	}
	l.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	out := make([]models.Balance, 0, len(keys))
	for _, k := range keys {
		out = append(out, l.Balance(k.accountID, k.asset))
	}
	return out
}

// AssetTotal возвращает суммарное количество актива в системе
// (available + held по всем аккаунтам).
//
// Для консистентного среза все entry данного актива лочатся разом,
// в том же глобальном порядке ключей что и Settle. Использовать для
// аудита и проверки closed-system инварианта, не в горячем пути.
func (l *Ledger) AssetTotal(asset string) decimal.Decimal {
	l.mu.RLock()
	keys := make([]entryKey, 0, len(l.entries))
	for k := range l.entries {
		if k.asset == asset {
			keys = append(keys, k)
		}
	}
	l.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	locked := make([]*entry, 0, len(keys))
	for _, k := range keys {
		if e, ok := l.get(k); ok {
			e.mu.Lock()
			locked = append(locked, e)
		}
	}

	total := decimal.Zero
	for _, e := range locked {
		total = total.Add(e.available).Add(e.held)
	}

	for i := len(locked) - 1; i >= 0; i-- {
		locked[i].mu.Unlock()
	}
	return total
}
