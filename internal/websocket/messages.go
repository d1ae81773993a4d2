package websocket

import (
	jsoniter "github.com/json-iterator/go"

	"exchange/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Действия клиента
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ClientMessage - входящее сообщение от клиента
//
// Подписка на канал рынка:
//
//	{"action": "subscribe", "channel": "market:BTC-USDT", "from_seq": 42}
//
// from_seq > 0 запрашивает воспроизведение журнала начиная с этого
// sequence number перед живым потоком. Исторические и живые события
// могут перекрываться - клиент дедуплицирует по sequence number.
type ClientMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
	FromSeq uint64 `json:"from_seq,omitempty"`
}

// EventMessage - исходящее событие рынка
type EventMessage struct {
	Channel  string           `json:"channel"`
	Type     models.EventType `json:"type"`
	Sequence uint64           `json:"sequence"`
	Data     models.Event     `json:"data"`
	Replayed bool             `json:"replayed,omitempty"`
}

// AckMessage - подтверждение подписки/отписки
type AckMessage struct {
	Type    string `json:"type"` // "subscribed" | "unsubscribed"
	Channel string `json:"channel"`
}

// ErrorMessage - ошибка обработки клиентского сообщения
type ErrorMessage struct {
	Type  string `json:"type"` // всегда "error"
	Error string `json:"error"`
}

func encodeEvent(channel string, ev models.Event, replayed bool) ([]byte, error) {
	return json.Marshal(&EventMessage{
		Channel:  channel,
		Type:     ev.EventType(),
		Sequence: ev.Sequence(),
		Data:     ev,
		Replayed: replayed,
	})
}

func encodeAck(msgType, channel string) []byte {
	data, _ := json.Marshal(&AckMessage{Type: msgType, Channel: channel})
	return data
}

func encodeError(msg string) []byte {
	data, _ := json.Marshal(&ErrorMessage{Type: "error", Error: msg})
	return data
}
