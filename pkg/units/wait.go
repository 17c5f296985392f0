package units

import (
	"context"
	"time"

	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/operation"
)

// StatusWaited labels a finished WaitInSeconds.
const StatusWaited models.Status = "waited"

type waitHandler struct {
	d     time.Duration
	now   func() time.Time
	start time.Time
}

// Init restarts the countdown on every Execute.
func (w *waitHandler) Init(context.Context) *models.RoundResult {
	w.start = w.now()

	return nil
}

func (w *waitHandler) Round(context.Context) models.RoundResult {
	remaining := w.d - w.now().Sub(w.start)
	if remaining <= 0 {
		return models.RoundSuccess(StatusWaited)
	}

	return models.RoundWait(StatusWaited).WithWait(remaining)
}

// WaitInSeconds is an operation that succeeds once d has elapsed since it
// started. Waiting is interruptible by pause and cancellation like any other
// engine delay.
func WaitInSeconds(execCtx *execution.Context, d time.Duration, opts ...operation.Option) *operation.Operation {
	return operation.New(execCtx, "wait_"+d.String(), &waitHandler{d: d, now: time.Now}, opts...)
}
