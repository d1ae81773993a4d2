package journal

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	jsoniter "github.com/json-iterator/go"

	"exchange/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrUnknownEventType - в журнале запись с неизвестным типом события
	ErrUnknownEventType = errors.New("journal: unknown event type")
)

// envelope - запись журнала на диске. Tagged union: Type определяет,
// в какой конкретный вариант декодировать Payload.
type envelope struct {
	Type    models.EventType    `json:"type"`
	Payload jsoniter.RawMessage `json:"payload"`
}

// Journal - журнал событий движка на pebble.
//
// Ключи: evt/<market>/<seq, zero-padded> - лексикографический порядок
// ключей совпадает с порядком sequence number, что дает дешевый
// range-scan для воспроизведения. Nil-журнал безопасен: все методы
// превращаются в no-op (журналирование выключено конфигом).
type Journal struct {
	db *pebble.DB
}

// Open открывает журнал в каталоге dir
func Open(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // долговечность важнее скорости записи
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", dir, err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

// Append дописывает событие в журнал рынка
func (j *Journal) Append(ev models.Event) error {
	if j == nil {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("journal: encode event: %w", err)
	}
	raw, err := json.Marshal(envelope{Type: ev.EventType(), Payload: payload})
	if err != nil {
		return fmt.Errorf("journal: encode envelope: %w", err)
	}

	return j.db.Set(keyFor(ev.Market(), ev.Sequence()), raw, pebble.Sync)
}

// ReplayFrom воспроизводит события рынка с sequence number >= fromSeq
// в порядке возрастания. Возврат ошибки из fn останавливает обход.
func (j *Journal) ReplayFrom(market string, fromSeq uint64, fn func(models.Event) error) error {
	if j == nil {
		return nil
	}

	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: keyFor(market, fromSeq),
		UpperBound: upperBound(market),
	})
	if err != nil {
		return fmt.Errorf("journal: iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		ev, err := decodeEvent(iter.Value())
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LastSequence возвращает sequence number последней записи рынка
// (0 если журнал пуст)
func (j *Journal) LastSequence(market string) (uint64, error) {
	if j == nil {
		return 0, nil
	}

	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: keyFor(market, 0),
		UpperBound: upperBound(market),
	})
	if err != nil {
		return 0, fmt.Errorf("journal: iterator: %w", err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	ev, err := decodeEvent(iter.Value())
	if err != nil {
		return 0, err
	}
	return ev.Sequence(), nil
}

func decodeEvent(raw []byte) (models.Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("journal: decode envelope: %w", err)
	}

	var ev models.Event
	switch env.Type {
	case models.EventTypeTrade:
		ev = &models.TradeEvent{}
	case models.EventTypeDepthUpdate:
		ev = &models.DepthUpdateEvent{}
	case models.EventTypeOrderStatus:
		ev = &models.OrderStatusEvent{}
	case models.EventTypeEngineHalt:
		ev = &models.EngineHaltEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}

	if err := json.Unmarshal(env.Payload, ev); err != nil {
		return nil, fmt.Errorf("journal: decode %s event: %w", env.Type, err)
	}
	return ev, nil
}

// keyFor строит ключ записи. Zero-padding до 20 знаков сохраняет
// числовой порядок при лексикографическом сравнении.
func keyFor(market string, seq uint64) []byte {
	return []byte(fmt.Sprintf("evt/%s/%020d", market, seq))
}

func upperBound(market string) []byte {
	return []byte(fmt.Sprintf("evt/%s/~", market))
}
