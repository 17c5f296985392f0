// Package models defines the value types exchanged between rounds, operations and applications.
package models

import "time"

// DefaultRoundWait is the pause applied between polls when a retry or wait
// result does not carry its own positive delay.
const DefaultRoundWait = 300 * time.Millisecond

// Outcome is the kind of a single round.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeRetry   Outcome = "retry"
	OutcomeWait    Outcome = "wait"
	OutcomeFail    Outcome = "fail"
)

// IsFinal reports whether the outcome ends the polling loop.
func (o Outcome) IsFinal() bool {
	return o == OutcomeSuccess || o == OutcomeFail
}

// Status is the routing label of a round result. Graphs declare their own
// constants of this type; StatusNone is the unlabelled result.
type Status string

// StatusNone is the empty label.
const StatusNone Status = ""

// RoundResult is the unit of communication between one polling step and the engine.
type RoundResult struct {
	Outcome Outcome       `json:"outcome"`
	Status  Status        `json:"status,omitempty"`
	Message string        `json:"message,omitempty"` // display only, never used for routing
	Data    any           `json:"data,omitempty"`
	Wait    time.Duration `json:"wait,omitempty"`

	// Cause is the error kind behind a FAIL, set when the failure comes from a
	// nested operation.
	Cause error `json:"-"`
}

// RoundSuccess finishes the current step successfully.
func RoundSuccess(status Status) RoundResult {
	return RoundResult{Outcome: OutcomeSuccess, Status: status}
}

// RoundRetry reports that something went wrong and the step should be repeated.
// Retries consume the operation budget.
func RoundRetry(status Status) RoundResult {
	return RoundResult{Outcome: OutcomeRetry, Status: status}
}

// RoundWait reports that the step is still in progress. Waits never consume
// the retry budget.
func RoundWait(status Status) RoundResult {
	return RoundResult{Outcome: OutcomeWait, Status: status}
}

// RoundFail ends the operation with a failure.
func RoundFail(status Status) RoundResult {
	return RoundResult{Outcome: OutcomeFail, Status: status}
}

// WithData returns a copy carrying data.
func (r RoundResult) WithData(data any) RoundResult {
	r.Data = data

	return r
}

// WithWait returns a copy carrying the delay to apply before the next poll.
func (r RoundResult) WithWait(wait time.Duration) RoundResult {
	r.Wait = wait

	return r
}

// WithMessage returns a copy carrying a human readable message.
func (r RoundResult) WithMessage(message string) RoundResult {
	r.Message = message

	return r
}

// WithCause returns a copy carrying the error behind a failure.
func (r RoundResult) WithCause(err error) RoundResult {
	r.Cause = err

	return r
}

// Delay is the sleep the engine applies after this result. Retry and wait
// results always sleep for a positive duration.
func (r RoundResult) Delay() time.Duration {
	switch r.Outcome {
	case OutcomeRetry, OutcomeWait:
		if r.Wait <= 0 {
			return DefaultRoundWait
		}

		return r.Wait
	default:
		if r.Wait < 0 {
			return 0
		}

		return r.Wait
	}
}

// Describe returns the message if present, otherwise the status.
func (r RoundResult) Describe() string {
	if r.Message != "" {
		return r.Message
	}

	return string(r.Status)
}
