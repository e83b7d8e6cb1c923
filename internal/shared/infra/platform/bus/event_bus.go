package bus

import (
	"context"
	"encoding/json"
)

// Headers que acompañan a cada mensaje publicado.
const (
	HeaderEventID    = "event-id"
	HeaderEventTopic = "event-topic"
)

type Keyer interface {
	PartitionKey() string
}

// Message es lo que el relay entrega al broker: un topic y un payload opaco.
type Message struct {
	ID      string
	Topic   string
	Key     string
	Payload json.RawMessage
}

// EventPublisher traduce un Message a un envío real. Cualquier error se
// considera transitorio y reintentable.
type EventPublisher interface {
	Publish(ctx context.Context, msg Message) error
}

// MessageHandler procesa un mensaje entrante de cualquier transporte.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message) error
}
