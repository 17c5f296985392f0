// Package eventbus carries run lifecycle events from the engine to their
// observers, in process or over Kafka.
package eventbus

import (
	"context"
	"errors"
	"io"

	"github.com/dukex/opflow/pkg/events"
)

var ErrDuplicateHandler = errors.New("event handler already registered")

// Event is a payload routed by its type.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends events keyed by run ID. On Kafka the key selects the
// partition, so events of one run stay ordered.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler receives the decoded event. An error nacks the message.
type EventHandler func(ctx context.Context, event any) error

// EventSubscriber routes each event type to a single handler. Handlers must be
// registered before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	io.Closer
}
