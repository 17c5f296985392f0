package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/opflow/pkg/events"
)

// decoders allocate the concrete event for each type carried in message metadata.
var decoders = map[events.EventType]func() any{
	events.OperationStartedEvent:  func() any { return &events.OperationStarted{} },
	events.OperationFinishedEvent: func() any { return &events.OperationFinished{} },
	events.NodeTransitionedEvent:  func() any { return &events.NodeTransitioned{} },
	events.ContextPausedEvent:     func() any { return &events.ContextPaused{} },
	events.ContextResumedEvent:    func() any { return &events.ContextResumed{} },
	events.AppStatusChangedEvent:  func() any { return &events.AppStatusChanged{} },
}

// WatermillEventBus carries engine events over a watermill publisher and
// subscriber pair, one handler per event type.
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	logger        *slog.Logger
	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

// Option configures a WatermillEventBus.
type Option func(*WatermillEventBus)

// WithLogger sets the logger reporting dropped messages.
func WithLogger(logger *slog.Logger) Option {
	return func(eb *WatermillEventBus) { eb.logger = logger }
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, opts ...Option) EventBus {
	eb := &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        slog.Default(),
		subscriptions: make(map[events.EventType]EventHandler),
	}

	for _, opt := range opts {
		opt(eb)
	}

	eb.logger = eb.logger.With("module", "eventbus")

	return eb
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	if !exists {
		msg.Ack()

		return
	}

	// undecodable messages are dropped: a nack would redeliver them forever
	newEvent, known := decoders[eventType]
	if !known {
		eb.logger.WarnContext(ctx, "Dropping message with unknown event type", "messageId", msg.UUID, "eventType", eventType)
		msg.Ack()

		return
	}

	event := newEvent()

	err := json.Unmarshal(msg.Payload, event)
	if err != nil {
		eb.logger.WarnContext(ctx, "Dropping undecodable message", "messageId", msg.UUID, "eventType", eventType, "error", err)
		msg.Ack()

		return
	}

	err = handler(ctx, event)
	if err != nil {
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if _, exists := eb.subscriptions[eventType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, eventType)
	}

	eb.subscriptions[eventType] = handler

	return nil
}

// Close closes both ends. A shared gochannel instance tolerates the second close.
func (eb *WatermillEventBus) Close() error {
	return errors.Join(eb.publisher.Close(), eb.subscriber.Close())
}
