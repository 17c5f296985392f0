package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrRunRecordNotFound indicates no run record exists for the application.
	ErrRunRecordNotFound = errors.New("run record not found")

	// ErrInvalidKey indicates an identifier that cannot be stored safely.
	ErrInvalidKey = errors.New("invalid key")

	// ErrUnsupportedScheme indicates a database URL no backend understands.
	ErrUnsupportedScheme = errors.New("unsupported database url scheme")
)

// RecordError wraps repository errors with the operation and key involved.
type RecordError struct {
	Op      string // Operation being performed (e.g., "Get", "Save", "Delete")
	Key     string // Application or run ID if applicable
	Err     error  // Underlying error
	Message string // Additional context message
}

func (e *RecordError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed for %s: %s (%v)", e.Op, e.Key, e.Message, e.Err)
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRecordError creates a new record error with context.
func NewRecordError(op, key string, err error) *RecordError {
	return &RecordError{Op: op, Key: key, Err: err}
}

// IsRunRecordNotFound checks if an error indicates a missing run record.
func IsRunRecordNotFound(err error) bool {
	return errors.Is(err, ErrRunRecordNotFound)
}

// ValidateKey rejects identifiers that are empty or could escape a storage namespace.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	for _, r := range key {
		if r == '/' || r == '\\' || r == ':' || r < ' ' {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidKey, key, r)
		}
	}

	if key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return nil
}
