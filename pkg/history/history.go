// Package history persists operation lifecycle events published on the event bus.
package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/opflow/pkg/eventbus"
	"github.com/dukex/opflow/pkg/events"
	"github.com/dukex/opflow/pkg/persistence"
)

// Recorder writes every finished operation into the operation history.
type Recorder struct {
	repo   persistence.OperationRecordRepository
	logger *slog.Logger
}

// NewRecorder creates a recorder saving into repo.
func NewRecorder(repo persistence.OperationRecordRepository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger.With("module", "history")}
}

// Register subscribes the recorder to the bus. Subscribe must still be called
// on the bus to start consuming. Application status changes are only logged:
// the run record repository already holds the current status of every
// application, so they add an audit trail to the log and nothing to storage.
func (r *Recorder) Register(bus eventbus.EventSubscriber) error {
	err := bus.Handle(events.OperationFinishedEvent, r.handleOperationFinished)
	if err != nil {
		return fmt.Errorf("failed to register history handler: %w", err)
	}

	return bus.Handle(events.AppStatusChangedEvent, r.handleAppStatusChanged)
}

func (r *Recorder) handleOperationFinished(ctx context.Context, event any) error {
	finished, ok := event.(*events.OperationFinished)
	if !ok {
		r.logger.WarnContext(ctx, "Unexpected event payload", "type", fmt.Sprintf("%T", event))

		return nil
	}

	err := r.repo.Save(ctx, finished.Record())
	if err != nil {
		// a nack would redeliver forever on the in-process channel
		r.logger.ErrorContext(ctx, "Failed to save operation record",
			"operationId", finished.OperationID, "operation", finished.Operation, "error", err)

		return nil
	}

	r.logger.DebugContext(ctx, "Operation record saved", "operationId", finished.OperationID, "success", finished.Success)

	return nil
}

func (r *Recorder) handleAppStatusChanged(ctx context.Context, event any) error {
	changed, ok := event.(*events.AppStatusChanged)
	if !ok {
		r.logger.WarnContext(ctx, "Unexpected event payload", "type", fmt.Sprintf("%T", event))

		return nil
	}

	r.logger.InfoContext(ctx, "Application status changed",
		"appId", changed.AppID, "status", changed.Status, "date", changed.Date, "runId", changed.RunID)

	return nil
}
