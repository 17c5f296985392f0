package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/persistence"
)

// OperationRecordRepository handles operation history database operations.
type OperationRecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewOperationRecordRepository creates a new operation record repository.
func NewOperationRecordRepository(db *sql.DB, logger *slog.Logger) *OperationRecordRepository {
	return &OperationRecordRepository{db: db, logger: logger}
}

const selectOperationRecord = `
	SELECT id, run_id, name, success, status, error_message, rounds, retries, duration_ms, finished_at
	FROM operation_records
`

// Save inserts a history entry; saving the same ID twice keeps the latest values.
func (r *OperationRecordRepository) Save(ctx context.Context, record *models.OperationRecord) error {
	query := `
		INSERT INTO operation_records (
			id, run_id, name, success, status, error_message, rounds, retries, duration_ms, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			success = EXCLUDED.success,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			rounds = EXCLUDED.rounds,
			retries = EXCLUDED.retries,
			duration_ms = EXCLUDED.duration_ms,
			finished_at = EXCLUDED.finished_at
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.RunID,
		record.Name,
		record.Success,
		record.Status,
		record.Error,
		record.Rounds,
		record.Retries,
		record.Duration.Milliseconds(),
		record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save operation record: %w", err)
	}

	return nil
}

// ListByRun returns the records of one run, oldest first.
func (r *OperationRecordRepository) ListByRun(ctx context.Context, runID string) ([]*models.OperationRecord, error) {
	return r.query(ctx, selectOperationRecord+" WHERE run_id = $1 ORDER BY finished_at ASC", runID)
}

// Recent returns the latest records, newest first.
func (r *OperationRecordRepository) Recent(ctx context.Context, limit int) ([]*models.OperationRecord, error) {
	return r.query(ctx, selectOperationRecord+" ORDER BY finished_at DESC LIMIT $1", persistence.NormalizeLimit(limit))
}

func (r *OperationRecordRepository) query(ctx context.Context, query string, args ...any) ([]*models.OperationRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation records: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	records := []*models.OperationRecord{}

	for rows.Next() {
		var (
			record     models.OperationRecord
			durationMS int64
		)

		err := rows.Scan(
			&record.ID,
			&record.RunID,
			&record.Name,
			&record.Success,
			&record.Status,
			&record.Error,
			&record.Rounds,
			&record.Retries,
			&durationMS,
			&record.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation record: %w", err)
		}

		record.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation records: %w", err)
	}

	return records, nil
}
