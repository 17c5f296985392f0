// Package postgresql provides PostgreSQL persistence for run records and operation history.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/opflow/pkg/persistence"
	"github.com/dukex/opflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

const (
	maxOpenConns    = 4
	connMaxIdleTime = 5 * time.Minute
)

// Persistence stores records in PostgreSQL. The schema is migrated on open.
type Persistence struct {
	db         *sql.DB
	logger     *slog.Logger
	runRecords *RunRecordRepository
	operations *OperationRecordRepository
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence connects to databaseURL and brings the schema up to date.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	p, err := NewPersistenceWithDB(ctx, logger, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return p, nil
}

// NewPersistenceWithDB uses an open database handle, taking ownership of it.
func NewPersistenceWithDB(ctx context.Context, logger *slog.Logger, db *sql.DB) (*Persistence, error) {
	err := db.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	err = sqlbase.NewMigrationManager(logger, db, migrations()).RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:         db,
		logger:     logger,
		runRecords: NewRunRecordRepository(db, logger),
		operations: NewOperationRecordRepository(db, logger),
	}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) RunRecordRepository() persistence.RunRecordRepository {
	return p.runRecords
}

func (p *Persistence) OperationRecordRepository() persistence.OperationRecordRepository {
	return p.operations
}
