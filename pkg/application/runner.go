package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/operation"
)

// StatusSkipped marks apps not started because the run was cancelled.
const StatusSkipped models.Status = "skipped"

// Summary is the outcome of one application within a Runner pass.
type Summary struct {
	AppID    string                 `json:"app_id"`
	Result   models.OperationResult `json:"result"`
	Duration time.Duration          `json:"duration"`
}

// Runner runs applications one after another. A failed application does not
// prevent the next one from running.
type Runner struct {
	apps   []*Application
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger, apps ...*Application) *Runner {
	return &Runner{apps: apps, logger: logger.With("module", "runner")}
}

// Apps returns the applications in run order.
func (r *Runner) Apps() []*Application {
	return r.apps
}

// Run executes every application and reports each result in order. Once ctx
// is done the remaining applications are reported as skipped.
func (r *Runner) Run(ctx context.Context) []Summary {
	summaries := make([]Summary, 0, len(r.apps))
	failed := 0

	for _, app := range r.apps {
		if ctx.Err() != nil {
			summaries = append(summaries, Summary{
				AppID:  app.ID(),
				Result: models.ResultFail(StatusSkipped, ctx.Err()),
			})

			continue
		}

		start := time.Now()
		result := app.Run(ctx)

		if !result.Success {
			failed++
		}

		summaries = append(summaries, Summary{AppID: app.ID(), Result: result, Duration: time.Since(start)})
	}

	r.logger.InfoContext(ctx, "Applications finished", "total", len(r.apps), "failed", failed)

	return summaries
}

// executorApp runs a whole operation as a single pass.
type executorApp struct {
	id       string
	executor operation.Executor
}

// FromExecutor adapts an operation to an App. The operation's success ends the
// application successfully; its failure fails it without further passes.
func FromExecutor(id string, executor operation.Executor) App {
	return &executorApp{id: id, executor: executor}
}

func (a *executorApp) ID() string { return a.id }

func (a *executorApp) ExecuteOneRound(ctx context.Context) models.RoundResult {
	return operation.AsRound(a.executor.Execute(ctx))
}
