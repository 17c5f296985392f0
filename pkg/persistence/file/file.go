// Package file provides file-based persistence for run records and operation history.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/opflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root            string
	runRecordRepo   *RunRecordRepository
	operationRecord *OperationRecordRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:            cleanRoot,
		runRecordRepo:   NewRunRecordRepository(cleanRoot),
		operationRecord: NewOperationRecordRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) RunRecordRepository() persistence.RunRecordRepository {
	return fp.runRecordRepo
}

func (fp *Persistence) OperationRecordRepository() persistence.OperationRecordRepository {
	return fp.operationRecord
}

// writeJSON writes v atomically: a temp file in the same directory is renamed over path.
func writeJSON(path string, v any) error {
	err := os.MkdirAll(filepath.Dir(path), 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write temp file: %w", err)
	}

	err = os.Chmod(tmp.Name(), 0600)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from validated keys
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}
