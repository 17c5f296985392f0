// Package redis provides Redis persistence for run records and operation history.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/opflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "opflow:"

	// historyTTL bounds how long a single operation record is kept.
	historyTTL = 30 * 24 * time.Hour
)

func runRecordKey(appID string) string { return keyPrefix + "run_record:" + appID }

func runRecordIndexKey() string { return keyPrefix + "run_records" }

func operationKey(id string) string { return keyPrefix + "operation:" + id }

func runOperationsKey(runID string) string { return keyPrefix + "run:" + runID + ":operations" }

func recentOperationsKey() string { return keyPrefix + "operations" }

// Persistence implements the persistence layer on top of a Redis client.
type Persistence struct {
	client              *redis.Client
	logger              *slog.Logger
	runRecordRepo       *RunRecordRepository
	operationRecordRepo *OperationRecordRepository
}

// NewPersistence connects to the Redis server behind a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	options, err := redis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	options.DialTimeout = 2 * time.Second
	options.ReadTimeout = time.Second
	options.WriteTimeout = time.Second

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceWithClient(logger, client), nil
}

// NewPersistenceWithClient wraps an existing client.
func NewPersistenceWithClient(logger *slog.Logger, client *redis.Client) *Persistence {
	return &Persistence{
		client:              client,
		logger:              logger,
		runRecordRepo:       &RunRecordRepository{client: client},
		operationRecordRepo: &OperationRecordRepository{client: client, logger: logger},
	}
}

// Close closes the client connection pool.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) RunRecordRepository() persistence.RunRecordRepository {
	return p.runRecordRepo
}

func (p *Persistence) OperationRecordRepository() persistence.OperationRecordRepository {
	return p.operationRecordRepo
}
