package websocket

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"exchange/internal/models"
)

const (
	// Время ожидания записи сообщения
	writeWait = 10 * time.Second

	// Время ожидания между pong сообщениями
	pongWait = 60 * time.Second

	// Интервал отправки ping сообщений (должен быть меньше pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения.
	// Клиент шлет только короткие subscribe/unsubscribe команды.
	maxMessageSize = 4096

	// Размер буфера отправки клиента.
	// Всплеск активного рынка (depth + trades + статусы) легко дает
	// сотни событий в секунду.
	clientSendBufferSize = 512
)

// OriginChecker проверяет Origin с O(1) lookup через map
// Потокобезопасен для чтения после инициализации
type OriginChecker struct {
	allowedOrigins map[string]struct{}
	allowAll       bool
}

// originChecker - глобальный экземпляр, инициализируется один раз
var originChecker = initOriginChecker()

func initOriginChecker() *OriginChecker {
	checker := &OriginChecker{
		allowedOrigins: make(map[string]struct{}),
	}

	// Читаем из переменной окружения (comma-separated)
	// Пример: ALLOWED_ORIGINS=http://localhost:3000,https://example.com
	envOrigins := os.Getenv("ALLOWED_ORIGINS")

	if envOrigins == "" || envOrigins == "*" {
		checker.allowAll = true
	} else {
		for _, origin := range strings.Split(envOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				checker.allowedOrigins[origin] = struct{}{}
			}
		}
	}

	return checker
}

// Check проверяет origin за O(1)
func (oc *OriginChecker) Check(origin string) bool {
	if origin == "" {
		return true // Non-browser clients (curl, API tools)
	}
	if oc.allowAll {
		return true
	}
	_, ok := oc.allowedOrigins[origin]
	return ok
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return originChecker.Check(r.Header.Get("Origin"))
	},
	EnableCompression: true,
}

// Client представляет одно WebSocket соединение
//
// Каждый клиент имеет две горутины:
// 1. readPump - читает subscribe/unsubscribe команды
// 2. writePump - пишет события подписанных каналов
type Client struct {
	// WebSocket соединение
	conn *websocket.Conn

	// Hub которому принадлежит клиент
	hub *Hub

	// Буферизованный канал исходящих сообщений
	send chan []byte

	// Активные подписки клиента
	subsMu sync.RWMutex
	subs   map[string]bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		hub:  hub,
		send: make(chan []byte, clientSendBufferSize),
		subs: make(map[string]bool),
	}
}

func (c *Client) subscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subs[channel]
}

// readPump читает команды от клиента
//
// Запускается в отдельной горутине для каждого клиента.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
			// Hub уже остановлен и закрыл клиентов сам
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// handleMessage обрабатывает subscribe/unsubscribe команду
func (c *Client) handleMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.trySend(encodeError("malformed message"))
		return
	}
	if msg.Channel == "" {
		c.trySend(encodeError("channel is required"))
		return
	}

	switch msg.Action {
	case ActionSubscribe:
		c.subsMu.Lock()
		c.subs[msg.Channel] = true
		c.subsMu.Unlock()
		c.trySend(encodeAck("subscribed", msg.Channel))

		if msg.FromSeq > 0 {
			c.replay(msg.Channel, msg.FromSeq)
		}

	case ActionUnsubscribe:
		c.subsMu.Lock()
		delete(c.subs, msg.Channel)
		c.subsMu.Unlock()
		c.trySend(encodeAck("unsubscribed", msg.Channel))

	default:
		c.trySend(encodeError("unknown action: " + msg.Action))
	}
}

// replay досылает клиенту исторические события канала из журнала.
// Живой поток уже включен: перекрытие возможно, клиент дедуплицирует
// по sequence number.
//
// Догон обязан быть без пропусков, поэтому исторические события идут
// с backpressure: при заполненном буфере ждем writePump вместо
// отбрасывания. Таймаут прерывает replay на мертвом соединении.
func (c *Client) replay(channel string, fromSeq uint64) {
	if c.hub.replayer == nil {
		return
	}
	marketID, ok := strings.CutPrefix(channel, "market:")
	if !ok {
		return
	}

	err := c.hub.replayer.Replay(marketID, fromSeq, func(ev models.Event) error {
		data, err := encodeEvent(channel, ev, true)
		if err != nil {
			return err
		}
		return c.sendBlocking(data)
	})
	if err != nil {
		log.Printf("Replay failed for %s from seq %d: %v", channel, fromSeq, err)
		c.trySend(encodeError("replay failed"))
	}
}

// sendBlocking кладет сообщение в буфер клиента, дожидаясь места
func (c *Client) sendBlocking(data []byte) error {
	select {
	case c.send <- data:
		return nil
	case <-time.After(writeWait):
		return errors.New("client send buffer stalled")
	}
}

// trySend кладет сообщение в буфер клиента не блокируясь
func (c *Client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

// writePump отправляет сообщения клиенту
//
// Запускается в отдельной горутине для каждого клиента.
// Читает из канала send и отправляет через WebSocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Дописываем накопившиеся сообщения в тот же фрейм
		drainLoop:
			for {
				select {
				case msg, ok := <-c.send:
					if !ok {
						break drainLoop
					}
					w.Write([]byte{'\n'})
					w.Write(msg)
				default:
					break drainLoop
				}
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS обрабатывает WebSocket запросы от клиента
//
// Апгрейдит HTTP соединение до WebSocket, регистрирует клиента
// в Hub и запускает его горутины.
//
// Использование в routes:
//
//	router.HandleFunc("/ws/stream", func(w, r) { websocket.ServeWS(hub, w, r) })
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := newClient(hub, conn)
	select {
	case client.hub.register <- client:
	case <-hub.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
