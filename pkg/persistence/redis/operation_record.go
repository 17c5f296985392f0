package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

// OperationRecordRepository keeps each record under its own key and indexes
// them in sorted sets scored by finish time.
type OperationRecordRepository struct {
	client *redis.Client
	logger *slog.Logger
}

func (r *OperationRecordRepository) Save(ctx context.Context, record *models.OperationRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal operation record: %w", err)
	}

	member := redis.Z{Score: float64(record.FinishedAt.UnixMilli()), Member: record.ID}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, operationKey(record.ID), data, historyTTL)
		pipe.ZAdd(ctx, runOperationsKey(record.RunID), member)
		pipe.Expire(ctx, runOperationsKey(record.RunID), historyTTL)
		pipe.ZAdd(ctx, recentOperationsKey(), member)

		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save operation record %s: %w", record.ID, err)
	}

	return nil
}

func (r *OperationRecordRepository) ListByRun(ctx context.Context, runID string) ([]*models.OperationRecord, error) {
	ids, err := r.client.ZRange(ctx, runOperationsKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list operations of run %s: %w", runID, err)
	}

	return r.load(ctx, ids)
}

func (r *OperationRecordRepository) Recent(ctx context.Context, limit int) ([]*models.OperationRecord, error) {
	limit = persistence.NormalizeLimit(limit)

	ids, err := r.client.ZRevRange(ctx, recentOperationsKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list recent operations: %w", err)
	}

	return r.load(ctx, ids)
}

// load fetches records by ID, skipping and unindexing the ones that expired.
func (r *OperationRecordRepository) load(ctx context.Context, ids []string) ([]*models.OperationRecord, error) {
	records := make([]*models.OperationRecord, 0, len(ids))

	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = operationKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis load operation records: %w", err)
	}

	var expired []any

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			expired = append(expired, ids[i])

			continue
		}

		var record models.OperationRecord

		err := json.Unmarshal([]byte(raw), &record)
		if err != nil {
			return nil, fmt.Errorf("unmarshal operation record %s: %w", ids[i], err)
		}

		records = append(records, &record)
	}

	if len(expired) > 0 {
		err := r.client.ZRem(ctx, recentOperationsKey(), expired...).Err()
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to prune expired operation records", "error", err)
		}
	}

	return records, nil
}
