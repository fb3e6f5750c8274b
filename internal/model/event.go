package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventName 是推送给宿主的事件名
type EventName string

const (
	EventConnectionSuccess EventName = "connection-success"
	EventConnectionError   EventName = "connection-error"
	EventMessageReceived   EventName = "message-received"
	EventConnectionClosed  EventName = "connection-closed"
)

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// ConnectionEvent 连接状态变化。
type ConnectionEvent struct {
	Status string `json:"status"`
}

// ErrorEvent 可读的错误描述。
type ErrorEvent struct {
	Error string `json:"error"`
}

// MessageEvent 一条解码后的文本消息，Cmd 为其中的 cmd 字段（可能为空）。
type MessageEvent struct {
	Payload string `json:"payload"`
	Cmd     string `json:"cmd,omitempty"`
}

// Event 是投递给 EventSink 的统一信封，瞬时存在，不落库。
type Event struct {
	ID   string    `json:"id"`
	Name EventName `json:"event"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

func newEvent(name EventName, data any) Event {
	return Event{
		ID:   uuid.NewString(),
		Name: name,
		Data: data,
		Time: time.Now(),
	}
}

func ConnectedEvent() Event {
	return newEvent(EventConnectionSuccess, ConnectionEvent{Status: StatusConnected})
}

func ClosedEvent() Event {
	return newEvent(EventConnectionClosed, ConnectionEvent{Status: StatusDisconnected})
}

func NewErrorEvent(msg string) Event {
	return newEvent(EventConnectionError, ErrorEvent{Error: msg})
}

func NewMessageEvent(payload, cmd string) Event {
	return newEvent(EventMessageReceived, MessageEvent{Payload: payload, Cmd: cmd})
}

// UnmarshalJSON 按事件名还原 Data 的具体类型，供 MQ / Redis 订阅端使用。
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID   string          `json:"id"`
		Name EventName       `json:"event"`
		Data json.RawMessage `json:"data"`
		Time time.Time       `json:"time"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var (
		data any
		err  error
	)
	switch raw.Name {
	case EventMessageReceived:
		var d MessageEvent
		err = json.Unmarshal(raw.Data, &d)
		data = d
	case EventConnectionError:
		var d ErrorEvent
		err = json.Unmarshal(raw.Data, &d)
		data = d
	case EventConnectionSuccess, EventConnectionClosed:
		var d ConnectionEvent
		err = json.Unmarshal(raw.Data, &d)
		data = d
	default:
		return fmt.Errorf("unknown event %q", raw.Name)
	}
	if err != nil {
		return fmt.Errorf("decode %s data: %w", raw.Name, err)
	}

	*e = Event{ID: raw.ID, Name: raw.Name, Data: data, Time: raw.Time}
	return nil
}
