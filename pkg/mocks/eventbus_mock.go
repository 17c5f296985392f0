package mocks

import (
	"context"
	"sync"

	"github.com/dukex/opflow/pkg/eventbus"
	"github.com/dukex/opflow/pkg/events"
	"github.com/stretchr/testify/mock"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

// RecordingPublisher keeps every published event in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *RecordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

// Events returns the published events in order.
func (p *RecordingPublisher) Events() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

// OfType returns the published events of one type in order.
func (p *RecordingPublisher) OfType(eventType events.EventType) []eventbus.Event {
	var matched []eventbus.Event

	for _, event := range p.Events() {
		if event.GetType() == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}
