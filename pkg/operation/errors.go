package operation

import (
	"errors"
	"fmt"

	"github.com/dukex/opflow/pkg/models"
)

var (
	// ErrRetryExhausted indicates more consecutive retries than the operation allows.
	ErrRetryExhausted = errors.New("retry budget exhausted")

	// ErrTimeout indicates the wall-clock budget of the operation was exceeded.
	ErrTimeout = errors.New("operation timed out")

	// ErrGraphDeadEnd indicates a node produced a status no edge or terminal rule accounts for.
	ErrGraphDeadEnd = errors.New("graph dead end")

	// ErrActionFailed indicates a round explicitly reported failure.
	ErrActionFailed = errors.New("action failed")

	// ErrCancelled indicates the run was stopped or its context cancelled.
	ErrCancelled = errors.New("operation cancelled")

	// ErrAlreadyRunning indicates Execute was called while another Execute is in progress.
	ErrAlreadyRunning = errors.New("operation already running")

	// ErrInvalidGraph indicates a structurally broken state graph.
	ErrInvalidGraph = errors.New("invalid graph")
)

// Statuses reported by the engine itself when an operation fails for a reason
// other than a round result.
const (
	StatusRetryExhausted models.Status = "retry_exhausted"
	StatusTimeout        models.Status = "timeout"
	StatusCancelled      models.Status = "cancelled"
	StatusGraphDeadEnd   models.Status = "graph_dead_end"
	StatusAlreadyRunning models.Status = "already_running"
)

// Error wraps an engine error with the operation and node it happened in.
type Error struct {
	Op      string        // Operation name
	Node    string        // Graph node, empty outside state operations
	Status  models.Status // Status of the last round, if any
	Err     error         // Underlying error kind
	Message string        // Additional context
}

func (e *Error) Error() string {
	target := e.Op
	if e.Node != "" {
		target = fmt.Sprintf("%s/%s", e.Op, e.Node)
	}

	if e.Message != "" {
		return fmt.Sprintf("operation %s: %v: %s", target, e.Err, e.Message)
	}

	return fmt.Sprintf("operation %s: %v", target, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error comparison for operation errors.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsRetryExhausted checks if an error indicates the retry budget ran out.
func IsRetryExhausted(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}

// IsTimeout checks if an error indicates the operation timed out.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsGraphDeadEnd checks if an error indicates a graph dead end.
func IsGraphDeadEnd(err error) bool {
	return errors.Is(err, ErrGraphDeadEnd)
}

// IsCancelled checks if an error indicates cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
