package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/persistence"
)

// OperationRecordRepository stores operation history as operations/<run>/<record>.json.
type OperationRecordRepository struct {
	dir string
	mu  sync.RWMutex
}

// NewOperationRecordRepository creates a new operation record repository.
func NewOperationRecordRepository(root string) *OperationRecordRepository {
	return &OperationRecordRepository{dir: filepath.Join(root, "operations")}
}

// Save writes one history entry.
func (r *OperationRecordRepository) Save(_ context.Context, record *models.OperationRecord) error {
	for _, key := range []string{record.RunID, record.ID} {
		err := persistence.ValidateKey(key)
		if err != nil {
			return persistence.NewRecordError("SaveOperation", record.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err := writeJSON(filepath.Join(r.dir, record.RunID, record.ID+".json"), record)
	if err != nil {
		return fmt.Errorf("failed to save operation record %s: %w", record.ID, err)
	}

	return nil
}

// ListByRun returns the history of one run, oldest first.
func (r *OperationRecordRepository) ListByRun(_ context.Context, runID string) ([]*models.OperationRecord, error) {
	err := persistence.ValidateKey(runID)
	if err != nil {
		return nil, persistence.NewRecordError("ListByRun", runID, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	records, err := r.readRun(runID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].FinishedAt.Before(records[j].FinishedAt) })

	return records, nil
}

// Recent returns the latest records across every run, newest first.
func (r *OperationRecordRepository) Recent(_ context.Context, limit int) ([]*models.OperationRecord, error) {
	limit = persistence.NormalizeLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	runs, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.OperationRecord{}, nil
		}

		return nil, fmt.Errorf("failed to read operations directory: %w", err)
	}

	var records []*models.OperationRecord

	for _, run := range runs {
		if !run.IsDir() {
			continue
		}

		runRecords, err := r.readRun(run.Name())
		if err != nil {
			return nil, err
		}

		records = append(records, runRecords...)
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].FinishedAt.After(records[j].FinishedAt) })

	if len(records) > limit {
		records = records[:limit]
	}

	if records == nil {
		records = []*models.OperationRecord{}
	}

	return records, nil
}

func (r *OperationRecordRepository) readRun(runID string) ([]*models.OperationRecord, error) {
	dir := filepath.Join(r.dir, runID)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.OperationRecord{}, nil
		}

		return nil, fmt.Errorf("failed to read run %s: %w", runID, err)
	}

	records := make([]*models.OperationRecord, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var record models.OperationRecord

		err := readJSON(filepath.Join(dir, entry.Name()), &record)
		if err != nil {
			return nil, fmt.Errorf("failed to read operation record %s: %w", entry.Name(), err)
		}

		records = append(records, &record)
	}

	return records, nil
}
