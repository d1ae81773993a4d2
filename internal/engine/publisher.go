package engine

import "exchange/internal/models"

// Fanout раздает событие нескольким потребителям.
// Каждый потребитель обязан сам не блокировать.
type Fanout []Publisher

func (f Fanout) Publish(ev models.Event) {
	for _, p := range f {
		p.Publish(ev)
	}
}
