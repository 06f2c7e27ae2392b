package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is one realtime frame. ChatID names the room it belongs to; it is
// empty for user-scoped frames such as unreadCount or pong.
type Event struct {
	Type       string          `json:"type"`
	ChatID     string          `json:"chat_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at,omitempty"`
}

// New builds an event with payload marshalled to JSON.
func New(eventType, chatID string, payload interface{}) (Event, error) {
	ev := Event{Type: eventType, ChatID: chatID, OccurredAt: time.Now().UTC()}
	if payload == nil {
		return ev, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	ev.Payload = data
	return ev, nil
}

// MustNew is New for payloads that cannot fail to marshal.
func MustNew(eventType, chatID string, payload interface{}) Event {
	ev, err := New(eventType, chatID, payload)
	if err != nil {
		panic(err)
	}
	return ev
}

func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("failed to decode event: missing type")
	}
	return ev, nil
}

// Into unmarshals the payload into dst.
func (e Event) Into(dst interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}
