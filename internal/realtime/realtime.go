// Package realtime carries table change notifications from writers to
// subscribed consoles. Events say that something changed; subscribers are
// expected to re-read rather than trust the payload.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventAll    = "*"
)

var (
	ErrClosed        = errors.New("realtime: hub closed")
	ErrUnknownDriver = errors.New("realtime: unknown driver")
)

type Event struct {
	Type   string          `json:"type"`
	Schema string          `json:"schema"`
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record,omitempty"`
	At     time.Time       `json:"at"`
}

// Scope narrows a subscription to one table and event type. Empty fields and
// EventAll match anything.
type Scope struct {
	Schema string
	Table  string
	Event  string
}

func (s Scope) Matches(e Event) bool {
	if s.Schema != "" && s.Schema != e.Schema {
		return false
	}
	if s.Table != "" && s.Table != e.Table {
		return false
	}
	return s.Event == "" || s.Event == EventAll || s.Event == e.Type
}

type Handler func(Event)

type Subscription interface {
	Unsubscribe() error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, e Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string, scope Scope, h Handler) (Subscription, error)
}

type Hub interface {
	Publisher
	Subscriber
	Close() error
}

func encode(e Event) ([]byte, error) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	return json.Marshal(e)
}

func decode(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}
