package websocket

import (
	"log"
	"sync"

	"exchange/internal/models"
)

// Replayer воспроизводит журнал событий рынка.
// Реализуется marketdata публикатором.
type Replayer interface {
	Replay(marketID string, fromSeq uint64, fn func(models.Event) error) error
}

// Hub управляет всеми активными WebSocket соединениями
//
// Клиенты подписываются на каналы рынков ("market:BTC-USDT") и
// получают только события своих подписок. Медленный клиент, чей
// буфер переполнился, отключается: поток событий рынка не должен
// тормозить из-за одного получателя, а пропуски клиент добирает
// повторной подпиской с from_seq.
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Источник исторических событий для from_seq подписок (может быть nil)
	replayer Replayer

	quit chan struct{}
	done chan struct{}

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub(replayer Replayer) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		replayer:   replayer,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("Client connected. Total clients: %d", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("Client disconnected. Total clients: %d", total)
		}
	}
}

// Stop завершает цикл Run и отключает всех клиентов.
// Вызывать после остановки источников событий.
func (h *Hub) Stop() {
	close(h.quit)
	<-h.done
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	log.Println("Hub stopped, all clients disconnected")
}

// BroadcastEvent отправляет событие подписчикам канала.
// Реализует marketdata.Broadcaster.
func (h *Hub) BroadcastEvent(channel string, ev models.Event) {
	data, err := encodeEvent(channel, ev, false)
	if err != nil {
		log.Printf("Error marshaling event for channel %s: %v", channel, err)
		return
	}

	// Копируем список подписчиков под коротким RLock,
	// отправляем без блокировки
	h.mu.RLock()
	subscribers := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.subscribed(channel) {
			subscribers = append(subscribers, client)
		}
	}
	h.mu.RUnlock()

	var toRemove []*Client
	for _, client := range subscribers {
		select {
		case client.send <- data:
		default:
			// Клиент не успевает - помечаем для удаления
			toRemove = append(toRemove, client)
		}
	}

	if len(toRemove) > 0 {
		h.mu.Lock()
		for _, client := range toRemove {
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		}
		total := len(h.clients)
		h.mu.Unlock()
		log.Printf("Removed %d slow clients. Total clients: %d", len(toRemove), total)
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
