package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/persistence"
	"github.com/dukex/opflow/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"operation_records", "app_run_records", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("opflow_test"),
			postgres.WithUsername("opflow"),
			postgres.WithPassword("opflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"app_run_records", "operation_records", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	// Running migrations again is a no-op
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	again, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)
	require.NoError(t, again.Close(ctx))
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestRunRecordRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.RunRecordRepository()
	now := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	_, err := repo.Get(ctx, "daily_quest")
	require.ErrorIs(t, err, persistence.ErrRunRecordNotFound)

	record := models.NewAppRunRecord("daily_quest", models.DailyReset, now)
	require.NoError(t, repo.Save(ctx, record))

	record.Update(models.RunStatusSuccess, now.Add(time.Hour))
	require.NoError(t, repo.Save(ctx, record))

	loaded, err := repo.Get(ctx, "daily_quest")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, loaded.Status)
	assert.Equal(t, "20261018", loaded.Date)
	assert.Equal(t, models.DailyReset, loaded.Reset)
	assert.True(t, loaded.UpdatedAt.Equal(now.Add(time.Hour)))

	require.NoError(t, repo.Save(ctx, models.NewAppRunRecord("buy_parcel", models.WeeklyReset, now)))

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "buy_parcel", records[0].AppID)

	require.NoError(t, repo.Delete(ctx, "buy_parcel"))
	assert.ErrorIs(t, repo.Delete(ctx, "buy_parcel"), persistence.ErrRunRecordNotFound)

	invalid := models.NewAppRunRecord("", "", now)
	assert.ErrorIs(t, repo.Save(ctx, invalid), models.ErrInvalidRunRecord)
}

func TestOperationRecordRepository(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.OperationRecordRepository()
	base := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"op-1", "op-2", "op-3"} {
		runID := "run-a"
		if i == 2 {
			runID = "run-b"
		}

		require.NoError(t, repo.Save(ctx, &models.OperationRecord{
			ID:         id,
			RunID:      runID,
			Name:       "enter_world",
			Success:    i != 1,
			Status:     "in_world",
			Error:      map[bool]string{true: "", false: "retry budget exhausted"}[i != 1],
			Rounds:     i + 1,
			Retries:    i,
			Duration:   time.Duration(i+1) * time.Second,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	byRun, err := repo.ListByRun(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, byRun, 2)
	assert.Equal(t, "op-1", byRun[0].ID)
	assert.False(t, byRun[1].Success)
	assert.Equal(t, "retry budget exhausted", byRun[1].Error)
	assert.Equal(t, 2*time.Second, byRun[1].Duration)

	recent, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "op-3", recent[0].ID)

	none, err := repo.ListByRun(ctx, "run-missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
