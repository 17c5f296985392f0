package models

// OperationState is the lifecycle state of an operation.
type OperationState string

const (
	OperationStateNotStarted OperationState = "not_started"
	OperationStateRunning    OperationState = "running"
	OperationStatePaused     OperationState = "paused"
	OperationStateSuccess    OperationState = "success"
	OperationStateFail       OperationState = "fail"
	OperationStateCancelled  OperationState = "cancelled"
)

// IsTerminal reports whether no further rounds may execute in this state.
func (s OperationState) IsTerminal() bool {
	switch s {
	case OperationStateSuccess, OperationStateFail, OperationStateCancelled:
		return true
	default:
		return false
	}
}

// OperationResult is the terminal summary of one Execute call.
type OperationResult struct {
	Success bool   `json:"success"`
	Status  Status `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Err     error  `json:"-"`
	Rounds  int    `json:"rounds"`
	Retries int    `json:"retries"`
}

// Error returns the error message, empty on success.
func (r OperationResult) Error() string {
	if r.Err == nil {
		return ""
	}

	return r.Err.Error()
}

// ResultSuccess builds a successful result.
func ResultSuccess(status Status, data any) OperationResult {
	return OperationResult{Success: true, Status: status, Data: data}
}

// ResultFail builds a failed result.
func ResultFail(status Status, err error) OperationResult {
	return OperationResult{Success: false, Status: status, Err: err}
}
