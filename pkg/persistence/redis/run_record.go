package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

// RunRecordRepository stores each run record as a JSON string and keeps the
// application IDs in a set for listing.
type RunRecordRepository struct {
	client *redis.Client
}

func (r *RunRecordRepository) Get(ctx context.Context, appID string) (*models.AppRunRecord, error) {
	data, err := r.client.Get(ctx, runRecordKey(appID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewRecordError("Get", appID, persistence.ErrRunRecordNotFound)
		}

		return nil, fmt.Errorf("redis get run record %s: %w", appID, err)
	}

	var record models.AppRunRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("unmarshal run record %s: %w", appID, err)
	}

	return &record, nil
}

func (r *RunRecordRepository) Save(ctx context.Context, record *models.AppRunRecord) error {
	err := persistence.ValidateKey(record.AppID)
	if err != nil {
		return persistence.NewRecordError("Save", record.AppID, err)
	}

	err = record.Validate()
	if err != nil {
		return persistence.NewRecordError("Save", record.AppID, err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, runRecordKey(record.AppID), data, 0)
		pipe.SAdd(ctx, runRecordIndexKey(), record.AppID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save run record %s: %w", record.AppID, err)
	}

	return nil
}

func (r *RunRecordRepository) List(ctx context.Context) ([]*models.AppRunRecord, error) {
	appIDs, err := r.client.SMembers(ctx, runRecordIndexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list run records: %w", err)
	}

	sort.Strings(appIDs)

	records := make([]*models.AppRunRecord, 0, len(appIDs))

	for _, appID := range appIDs {
		record, err := r.Get(ctx, appID)
		if err != nil {
			if persistence.IsRunRecordNotFound(err) {
				continue
			}

			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (r *RunRecordRepository) Delete(ctx context.Context, appID string) error {
	var deleted *redis.IntCmd

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, runRecordKey(appID))
		pipe.SRem(ctx, runRecordIndexKey(), appID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete run record %s: %w", appID, err)
	}

	if deleted.Val() == 0 {
		return persistence.NewRecordError("Delete", appID, persistence.ErrRunRecordNotFound)
	}

	return nil
}
