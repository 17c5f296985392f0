// Package persistence provides the storage abstraction for application run records
// and operation history.
package persistence

import (
	"context"

	"github.com/dukex/opflow/pkg/models"
)

// Persistence is implemented by every storage backend.
type Persistence interface {
	RunRecordRepository() RunRecordRepository
	OperationRecordRepository() OperationRecordRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// RunRecordRepository stores one run record per application.
type RunRecordRepository interface {
	// Get returns ErrRunRecordNotFound when the application never ran.
	Get(ctx context.Context, appID string) (*models.AppRunRecord, error)
	Save(ctx context.Context, record *models.AppRunRecord) error
	List(ctx context.Context) ([]*models.AppRunRecord, error)
	Delete(ctx context.Context, appID string) error
}

// OperationRecordRepository stores the history of finished operations.
type OperationRecordRepository interface {
	Save(ctx context.Context, record *models.OperationRecord) error
	// ListByRun returns the records of one run, oldest first.
	ListByRun(ctx context.Context, runID string) ([]*models.OperationRecord, error)
	// Recent returns at most limit records, newest first.
	Recent(ctx context.Context, limit int) ([]*models.OperationRecord, error)
}

// DefaultRecentLimit is used when Recent is called with a non-positive limit.
const DefaultRecentLimit = 50

// NormalizeLimit applies DefaultRecentLimit to non-positive limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}

	return limit
}
