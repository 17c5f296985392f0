// Package application runs top-level routines with run-record bookkeeping so
// that work finished in the current period is not repeated after a restart.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/opflow/pkg/events"
	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/operation"
	"github.com/dukex/opflow/pkg/otelhelper"
	"github.com/dukex/opflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// Statuses of application results not produced by the app itself.
const (
	StatusAlreadyDone       models.Status = "already_done"
	StatusInitFailed        models.Status = "init_failed"
	StatusRecordUnavailable models.Status = "record_unavailable"
	StatusIncomplete        models.Status = "incomplete"
)

var (
	ErrInitFailed        = errors.New("application init failed")
	ErrRecordUnavailable = errors.New("run record unavailable")
	ErrIncomplete        = errors.New("application incomplete")
)

// App is a routine that may need several independent passes to finish.
type App interface {
	ID() string

	// ExecuteOneRound runs one pass. WAIT asks for another pass, RETRY for a
	// budgeted one, SUCCESS and FAIL stop the application.
	ExecuteOneRound(ctx context.Context) models.RoundResult
}

// Initializer prepares the app before its first pass.
type Initializer interface {
	Init(ctx context.Context) error
}

// StopHook runs after the last pass. It may rewrite record.Status before the
// record is persisted, for example to FAIL when some sub-task is unconfirmed.
type StopHook interface {
	AfterStop(ctx context.Context, success bool, record *models.AppRunRecord)
}

// Preheater warms resources concurrently with the first passes. It must not
// touch state the passes depend on.
type Preheater interface {
	Preheat(ctx context.Context)
}

// Application drives one App against its run record.
type Application struct {
	execCtx  *execution.Context
	app      App
	repo     persistence.RunRecordRepository
	reset    string
	tryTimes int
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Application)

// WithResetSchedule sets the cron expression of the recurring period.
func WithResetSchedule(expr string) Option {
	return func(a *Application) { a.reset = expr }
}

// WithTryTimes sets the budget of consecutive RETRY passes.
func WithTryTimes(n int) Option {
	return func(a *Application) { a.tryTimes = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Application) { a.now = now }
}

func New(execCtx *execution.Context, app App, repo persistence.RunRecordRepository, opts ...Option) *Application {
	a := &Application{
		execCtx:  execCtx,
		app:      app,
		repo:     repo,
		reset:    models.DailyReset,
		tryTimes: operation.DefaultTryTimes,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	a.logger = execCtx.Logger().With("module", "application", "app", app.ID())

	return a
}

func (a *Application) ID() string { return a.app.ID() }

// Reset returns the cron expression of the recurring period.
func (a *Application) Reset() string { return a.reset }

// Run executes the app unless it already succeeded in the current period.
// Failures end up in the run record and the returned result, never in a panic.
func (a *Application) Run(ctx context.Context) models.OperationResult {
	ctx, span := otelhelper.StartSpan(ctx, a.execCtx.Tracer(), "application.run",
		attribute.String(otelhelper.RunIDKey, a.execCtx.RunID()),
		attribute.String(otelhelper.AppIDKey, a.app.ID()),
	)
	defer span.End()

	record, err := a.load(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to load run record", "error", err)
		otelhelper.Fail(span, err, string(StatusRecordUnavailable))

		return models.ResultFail(StatusRecordUnavailable, fmt.Errorf("%w: %w", ErrRecordUnavailable, err))
	}

	if record.Status == models.RunStatusSuccess {
		a.logger.InfoContext(ctx, "Application already done for this period", "date", record.Date)

		return models.ResultSuccess(StatusAlreadyDone, record)
	}

	a.transition(ctx, record, models.RunStatusRunning)

	result := a.execute(ctx)

	status := models.RunStatusFail
	if result.Success {
		status = models.RunStatusSuccess
	}

	record.Update(status, a.now())

	if hook, ok := a.app.(StopHook); ok {
		hook.AfterStop(ctx, result.Success, record)
	}

	if result.Success && record.Status != models.RunStatusSuccess {
		result.Success = false
		result.Status = StatusIncomplete
		result.Err = ErrIncomplete
	}

	// persist even when the run was cancelled
	err = a.save(context.WithoutCancel(ctx), record)
	if err != nil {
		result.Err = errors.Join(result.Err, err)
	}

	if !result.Success {
		otelhelper.Fail(span, result.Err, string(result.Status))
		a.logger.WarnContext(ctx, "Application failed", "status", result.Status, "error", result.Err)
	} else {
		otelhelper.Succeed(span, string(result.Status))
		a.logger.InfoContext(ctx, "Application finished", "status", result.Status, "rounds", result.Rounds)
	}

	return result
}

func (a *Application) execute(ctx context.Context) models.OperationResult {
	if init, ok := a.app.(Initializer); ok {
		if err := init.Init(ctx); err != nil {
			return models.OperationResult{
				Status:  StatusInitFailed,
				Message: err.Error(),
				Err:     fmt.Errorf("%w: %w", ErrInitFailed, err),
			}
		}
	}

	if pre, ok := a.app.(Preheater); ok {
		preCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		go pre.Preheat(preCtx)
	}

	opts := []operation.Option{operation.WithTryTimes(a.tryTimes), operation.WithLogger(a.logger)}
	if aware, ok := a.app.(operation.PauseAware); ok {
		opts = append(opts, operation.WithPauseHooks(aware.OnPause, aware.OnResume))
	}

	op := operation.Func(a.execCtx, a.app.ID(), a.app.ExecuteOneRound, opts...)

	return op.Execute(ctx)
}

// load returns the record as seen now, creating it when missing.
func (a *Application) load(ctx context.Context) (*models.AppRunRecord, error) {
	now := a.now()

	record, err := a.repo.Get(ctx, a.app.ID())
	if persistence.IsRunRecordNotFound(err) {
		return models.NewAppRunRecord(a.app.ID(), a.reset, now), nil
	}

	if err != nil {
		return nil, err
	}

	record.Reset = a.reset

	if record.CheckAndReset(now) {
		a.logger.DebugContext(ctx, "Run record reset for new period", "date", record.Date)
	}

	return record, nil
}

func (a *Application) transition(ctx context.Context, record *models.AppRunRecord, status models.RunStatus) {
	record.Update(status, a.now())

	if err := a.save(ctx, record); err != nil {
		a.logger.WarnContext(ctx, "Continuing without persisted status", "status", status)
	}
}

func (a *Application) save(ctx context.Context, record *models.AppRunRecord) error {
	err := a.repo.Save(ctx, record)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to save run record", "status", record.Status, "error", err)

		return fmt.Errorf("failed to save run record: %w", err)
	}

	a.execCtx.Publish(ctx, events.AppStatusChanged{
		BaseEvent: events.NewBaseEvent(events.AppStatusChangedEvent, a.execCtx.RunID()),
		AppID:     record.AppID,
		Status:    record.Status,
		Date:      record.Date,
	})

	return nil
}
