package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/persistence"
)

// RunRecordRepository handles run record database operations.
type RunRecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRecordRepository creates a new run record repository.
func NewRunRecordRepository(db *sql.DB, logger *slog.Logger) *RunRecordRepository {
	return &RunRecordRepository{db: db, logger: logger}
}

// Get retrieves the run record of an application.
func (r *RunRecordRepository) Get(ctx context.Context, appID string) (*models.AppRunRecord, error) {
	query := `
		SELECT app_id, date, status, reset, updated_at
		FROM app_run_records
		WHERE app_id = $1
	`

	record, err := scanRunRecord(r.db.QueryRowContext(ctx, query, appID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRecordError("Get", appID, persistence.ErrRunRecordNotFound)
		}

		return nil, fmt.Errorf("failed to scan run record: %w", err)
	}

	return record, nil
}

// Save upserts the run record.
func (r *RunRecordRepository) Save(ctx context.Context, record *models.AppRunRecord) error {
	err := record.Validate()
	if err != nil {
		return persistence.NewRecordError("Save", record.AppID, err)
	}

	query := `
		INSERT INTO app_run_records (app_id, date, status, reset, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (app_id) DO UPDATE SET
			date = EXCLUDED.date,
			status = EXCLUDED.status,
			reset = EXCLUDED.reset,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		record.AppID,
		record.Date,
		record.Status,
		record.Reset,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}

	return nil
}

// List returns every run record ordered by application ID.
func (r *RunRecordRepository) List(ctx context.Context) ([]*models.AppRunRecord, error) {
	query := `
		SELECT app_id, date, status, reset, updated_at
		FROM app_run_records
		ORDER BY app_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query run records: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	records := []*models.AppRunRecord{}

	for rows.Next() {
		record, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run records: %w", err)
	}

	return records, nil
}

// Delete removes the run record of an application.
func (r *RunRecordRepository) Delete(ctx context.Context, appID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM app_run_records WHERE app_id = $1", appID)
	if err != nil {
		return fmt.Errorf("failed to delete run record: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewRecordError("Delete", appID, persistence.ErrRunRecordNotFound)
	}

	return nil
}

func scanRunRecord(scanner interface {
	Scan(dest ...any) error
}) (*models.AppRunRecord, error) {
	var record models.AppRunRecord

	err := scanner.Scan(
		&record.AppID,
		&record.Date,
		&record.Status,
		&record.Reset,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &record, nil
}
