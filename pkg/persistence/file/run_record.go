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

// RunRecordRepository stores one JSON file per application under run_records/.
type RunRecordRepository struct {
	dir string
	mu  sync.RWMutex
}

// NewRunRecordRepository creates a new run record repository.
func NewRunRecordRepository(root string) *RunRecordRepository {
	return &RunRecordRepository{dir: filepath.Join(root, "run_records")}
}

func (r *RunRecordRepository) path(appID string) string {
	return filepath.Join(r.dir, appID+".json")
}

// Get retrieves the run record of an application.
func (r *RunRecordRepository) Get(_ context.Context, appID string) (*models.AppRunRecord, error) {
	err := persistence.ValidateKey(appID)
	if err != nil {
		return nil, persistence.NewRecordError("Get", appID, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var record models.AppRunRecord

	err = readJSON(r.path(appID), &record)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewRecordError("Get", appID, persistence.ErrRunRecordNotFound)
		}

		return nil, fmt.Errorf("failed to read run record %s: %w", appID, err)
	}

	return &record, nil
}

// Save validates and writes the run record, replacing any previous one.
func (r *RunRecordRepository) Save(_ context.Context, record *models.AppRunRecord) error {
	err := persistence.ValidateKey(record.AppID)
	if err != nil {
		return persistence.NewRecordError("Save", record.AppID, err)
	}

	err = record.Validate()
	if err != nil {
		return persistence.NewRecordError("Save", record.AppID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = writeJSON(r.path(record.AppID), record)
	if err != nil {
		return fmt.Errorf("failed to save run record %s: %w", record.AppID, err)
	}

	return nil
}

// List returns every run record ordered by application ID.
func (r *RunRecordRepository) List(_ context.Context) ([]*models.AppRunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*models.AppRunRecord{}, nil
		}

		return nil, fmt.Errorf("failed to read run records directory: %w", err)
	}

	records := make([]*models.AppRunRecord, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var record models.AppRunRecord

		err := readJSON(filepath.Join(r.dir, entry.Name()), &record)
		if err != nil {
			return nil, fmt.Errorf("failed to read run record %s: %w", entry.Name(), err)
		}

		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].AppID < records[j].AppID })

	return records, nil
}

// Delete removes the run record of an application.
func (r *RunRecordRepository) Delete(_ context.Context, appID string) error {
	err := persistence.ValidateKey(appID)
	if err != nil {
		return persistence.NewRecordError("Delete", appID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = os.Remove(r.path(appID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewRecordError("Delete", appID, persistence.ErrRunRecordNotFound)
		}

		return fmt.Errorf("failed to delete run record %s: %w", appID, err)
	}

	return nil
}
