package operation

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/models"
)

// CombineOperation runs executors one after another and stops at the first failure.
type CombineOperation struct {
	name    string
	execCtx *execution.Context
	ops     []Executor
}

// Combine creates a sequential composition of ops.
func Combine(execCtx *execution.Context, name string, ops ...Executor) *CombineOperation {
	return &CombineOperation{name: name, execCtx: execCtx, ops: ops}
}

func (c *CombineOperation) Name() string { return c.name }

// Ops returns the composed executors in order.
func (c *CombineOperation) Ops() []Executor {
	return append([]Executor(nil), c.ops...)
}

// Execute runs every op in order. The first failing result is returned as is;
// otherwise the result carries the last op's status and data.
func (c *CombineOperation) Execute(ctx context.Context) models.OperationResult {
	logger := c.execCtx.Logger().With("operation", c.name)
	start := time.Now()

	last := models.ResultSuccess(models.StatusNone, nil)
	rounds := 0

	for i, op := range c.ops {
		err := c.execCtx.WaitRunning(ctx)
		if err != nil {
			return models.OperationResult{
				Status:  StatusCancelled,
				Message: err.Error(),
				Rounds:  rounds,
				Err:     &Error{Op: c.name, Node: op.Name(), Err: errors.Join(ErrCancelled, err)},
			}
		}

		result := op.Execute(ctx)
		rounds += result.Rounds

		if !result.Success {
			logger.WarnContext(ctx, "Combined operation stopped", "step", i, "failed", op.Name(), "status", result.Status)

			return result
		}

		last = result
	}

	logger.DebugContext(ctx, "Combined operation succeeded", "steps", len(c.ops), "duration", time.Since(start))

	last.Rounds = rounds

	return last
}
