// Package events defines event types and structures for operation and application lifecycle notifications.
package events

import (
	"time"

	"github.com/dukex/opflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the single topic every lifecycle event is published to.
const Topic = "opflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Operation lifecycle events.
	OperationStartedEvent  EventType = "operation.started"
	OperationFinishedEvent EventType = "operation.finished"
	NodeTransitionedEvent  EventType = "node.transitioned"

	// Execution context events.
	ContextPausedEvent  EventType = "context.paused"
	ContextResumedEvent EventType = "context.resumed"

	// Application events.
	AppStatusChangedEvent EventType = "app.status.changed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates a base event stamped with a fresh ID and the current time.
func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
	}
}

type OperationStarted struct {
	BaseEvent

	OperationID string `json:"operation_id"`
	Operation   string `json:"operation"`
	TryTimes    int    `json:"try_times"`
}

func (e OperationStarted) GetType() EventType {
	return OperationStartedEvent
}

type OperationFinished struct {
	BaseEvent

	OperationID string        `json:"operation_id"`
	Operation   string        `json:"operation"`
	Success     bool          `json:"success"`
	Status      models.Status `json:"status,omitempty"`
	Error       string        `json:"error,omitempty"`
	Rounds      int           `json:"rounds"`
	Retries     int           `json:"retries"`
	Duration    time.Duration `json:"duration"`
}

func (e OperationFinished) GetType() EventType {
	return OperationFinishedEvent
}

// Record converts the event into a persisted history entry.
func (e OperationFinished) Record() *models.OperationRecord {
	return &models.OperationRecord{
		ID:         e.OperationID,
		RunID:      e.RunID,
		Name:       e.Operation,
		Success:    e.Success,
		Status:     e.Status,
		Error:      e.Error,
		Rounds:     e.Rounds,
		Retries:    e.Retries,
		Duration:   e.Duration,
		FinishedAt: e.Timestamp,
	}
}

type NodeTransitioned struct {
	BaseEvent

	OperationID string        `json:"operation_id"`
	Operation   string        `json:"operation"`
	From        string        `json:"from"`
	To          string        `json:"to"`
	Status      models.Status `json:"status,omitempty"`
}

func (e NodeTransitioned) GetType() EventType {
	return NodeTransitionedEvent
}

type ContextPaused struct {
	BaseEvent
}

func (e ContextPaused) GetType() EventType {
	return ContextPausedEvent
}

type ContextResumed struct {
	BaseEvent

	PausedFor time.Duration `json:"paused_for"`
}

func (e ContextResumed) GetType() EventType {
	return ContextResumedEvent
}

type AppStatusChanged struct {
	BaseEvent

	AppID  string           `json:"app_id"`
	Status models.RunStatus `json:"status"`
	Date   string           `json:"date"`
}

func (e AppStatusChanged) GetType() EventType {
	return AppStatusChangedEvent
}
