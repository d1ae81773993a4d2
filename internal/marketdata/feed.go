package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"exchange/internal/models"
)

// Feed публикует события движка во внешний kafka топик.
//
// Партиционирование по ключу market id сохраняет порядок событий
// рынка внутри партиции. Nil-feed безопасен (kafka выключена конфигом).
type Feed struct {
	writer *kafka.Writer
}

// NewFeed создает продюсер для brokers/topic
func NewFeed(brokers []string, topic string) *Feed {
	return &Feed{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // ключ -> партиция, стабильный порядок по рынку
			RequiredAcks: kafka.RequireOne,
			Async:        true, // движок не ждет брокера
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish отправляет событие. Best-effort: недоступность брокера
// не должна влиять на матчинг.
func (f *Feed) Publish(ctx context.Context, ev models.Event) error {
	if f == nil {
		return nil
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marketdata: encode event: %w", err)
	}

	return f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Market()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType())},
		},
	})
}

func (f *Feed) Close() error {
	if f == nil {
		return nil
	}
	return f.writer.Close()
}
