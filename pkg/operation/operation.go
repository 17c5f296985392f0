// Package operation implements the polling engine: single operations, state
// graphs of round-executable nodes and sequential composition.
package operation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/opflow/pkg/events"
	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultTryTimes is the retry budget of an operation created without WithTryTimes.
const DefaultTryTimes = 3

// Handler produces one round result per call. It is the only place where an
// operation touches the screen or the input controller.
type Handler interface {
	Round(ctx context.Context) models.RoundResult
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) models.RoundResult

func (f HandlerFunc) Round(ctx context.Context) models.RoundResult {
	return f(ctx)
}

// Initializer is implemented by handlers that prepare state before the first
// round. Returning a SUCCESS result skips the operation, a FAIL result fails it
// and nil runs it normally. It is called once per Execute.
type Initializer interface {
	Init(ctx context.Context) *models.RoundResult
}

// Finisher is implemented by handlers that clean up after the operation,
// whatever its outcome.
type Finisher interface {
	AfterDone(ctx context.Context, result models.OperationResult)
}

// PauseAware is implemented by handlers that react to pause and resume, for
// example to stop issuing movement input.
type PauseAware interface {
	OnPause()
	OnResume()
}

// Executor is anything that runs to completion and yields an OperationResult.
type Executor interface {
	Name() string
	Execute(ctx context.Context) models.OperationResult
}

// stepper is implemented by handlers that report progress and failure causes
// beyond the round result itself.
type stepper interface {
	consumeStep() (advanced bool, cause error)
}

type config struct {
	tryTimes  int
	timeout   time.Duration
	logger    *slog.Logger
	init      func(ctx context.Context) *models.RoundResult
	afterDone func(ctx context.Context, result models.OperationResult)
	onPause   func()
	onResume  func()
	strict    bool
}

// Option configures an operation.
type Option func(*config)

// WithTryTimes sets how many consecutive retries are tolerated. In a state
// operation every transition resets the count, so a graph whose success edges
// form a cycle only ends through a FAIL, the End marker or WithTimeout.
func WithTryTimes(n int) Option {
	return func(c *config) { c.tryTimes = n }
}

// WithTimeout sets the wall-clock budget, excluding time spent paused. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithInit registers an initialization hook with Initializer semantics.
func WithInit(fn func(ctx context.Context) *models.RoundResult) Option {
	return func(c *config) { c.init = fn }
}

// WithAfterDone registers a hook that runs after every Execute.
func WithAfterDone(fn func(ctx context.Context, result models.OperationResult)) Option {
	return func(c *config) { c.afterDone = fn }
}

// WithPauseHooks registers callbacks fired while the operation is executing.
func WithPauseHooks(onPause, onResume func()) Option {
	return func(c *config) {
		c.onPause = onPause
		c.onResume = onResume
	}
}

// WithStrictEdges makes a state operation fail with ErrGraphDeadEnd when a
// node with outgoing edges returns a status none of them accepts.
func WithStrictEdges() Option {
	return func(c *config) { c.strict = true }
}

func newConfig(execCtx *execution.Context, opts []Option) config {
	cfg := config{tryTimes: DefaultTryTimes, logger: execCtx.Logger()}

	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.tryTimes < 0 {
		cfg.tryTimes = 0
	}

	return cfg
}

// Operation runs a bounded polling loop over a Handler.
type Operation struct {
	name    string
	execCtx *execution.Context
	handler Handler
	cfg     config

	mu          sync.Mutex
	id          string
	state       models.OperationState
	pausedAt    time.Time
	pausedTotal time.Duration

	retries int
}

// New creates an operation driving handler.
func New(execCtx *execution.Context, name string, handler Handler, opts ...Option) *Operation {
	return &Operation{
		name:    name,
		execCtx: execCtx,
		handler: handler,
		cfg:     newConfig(execCtx, opts),
		state:   models.OperationStateNotStarted,
	}
}

// Func creates an operation from a round function.
func Func(execCtx *execution.Context, name string, fn func(ctx context.Context) models.RoundResult, opts ...Option) *Operation {
	return New(execCtx, name, HandlerFunc(fn), opts...)
}

func (o *Operation) Name() string { return o.name }

// TryTimes returns the retry budget.
func (o *Operation) TryTimes() int { return o.cfg.tryTimes }

// State returns the lifecycle state.
func (o *Operation) State() models.OperationState {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// ID returns the identifier of the current or last Execute call.
func (o *Operation) ID() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.id
}

// Execute runs the operation to completion. It blocks while the execution
// context is paused.
func (o *Operation) Execute(ctx context.Context) models.OperationResult {
	id, ok := o.begin()
	if !ok {
		return models.OperationResult{
			Status: StatusAlreadyRunning,
			Err:    &Error{Op: o.name, Err: ErrAlreadyRunning},
		}
	}

	start := time.Now()
	logger := o.cfg.logger.With("operation", o.name, "operationId", id)

	ctx, span := otelhelper.StartSpan(ctx, o.execCtx.Tracer(), "operation.execute",
		attribute.String(otelhelper.RunIDKey, o.execCtx.RunID()),
		attribute.String(otelhelper.OperationIDKey, id),
		attribute.String(otelhelper.OperationNameKey, o.name),
	)
	defer span.End()

	defer o.execCtx.Unregister(o.watch())

	logger.DebugContext(ctx, "Operation started", "tryTimes", o.cfg.tryTimes, "timeout", o.cfg.timeout)
	o.execCtx.Publish(ctx, events.OperationStarted{
		BaseEvent:   events.NewBaseEvent(events.OperationStartedEvent, o.execCtx.RunID()),
		OperationID: id,
		Operation:   o.name,
		TryTimes:    o.cfg.tryTimes,
	})

	result := o.run(ctx, start, logger)

	if o.cfg.afterDone != nil {
		o.cfg.afterDone(ctx, result)
	}

	if finisher, ok := o.handler.(Finisher); ok {
		finisher.AfterDone(ctx, result)
	}

	o.finish(result)

	duration := time.Since(start)
	if result.Success {
		otelhelper.Succeed(span, string(result.Status))
		logger.InfoContext(ctx, "Operation succeeded", "status", result.Status, "rounds", result.Rounds, "duration", duration)
	} else {
		otelhelper.Fail(span, result.Err, string(result.Status))
		logger.WarnContext(ctx, "Operation failed", "status", result.Status, "error", result.Err, "rounds", result.Rounds, "duration", duration)
	}

	o.execCtx.Publish(ctx, events.OperationFinished{
		BaseEvent:   events.NewBaseEvent(events.OperationFinishedEvent, o.execCtx.RunID()),
		OperationID: id,
		Operation:   o.name,
		Success:     result.Success,
		Status:      result.Status,
		Error:       result.Error(),
		Rounds:      result.Rounds,
		Retries:     result.Retries,
		Duration:    duration,
	})

	return result
}

func (o *Operation) run(ctx context.Context, start time.Time, logger *slog.Logger) models.OperationResult {
	rounds := 0
	o.retries = 0

	result := func(r models.OperationResult) models.OperationResult {
		r.Rounds = rounds
		r.Retries = o.retries

		return r
	}

	if short := o.initialize(ctx); short != nil {
		switch short.Outcome {
		case models.OutcomeSuccess:
			logger.DebugContext(ctx, "Operation skipped by init", "status", short.Status)

			return result(o.succeed(*short))
		case models.OutcomeFail:
			return result(o.fail(*short, ErrActionFailed))
		}
	}

	for {
		err := o.execCtx.WaitRunning(ctx)
		if err != nil {
			return result(o.cancelled(err))
		}

		if o.expired(start) {
			return result(o.fail(models.RoundFail(StatusTimeout), ErrTimeout))
		}

		round := o.handler.Round(ctx)
		rounds++

		advanced, cause := o.consumeStep()

		switch round.Outcome {
		case models.OutcomeSuccess:
			_ = o.execCtx.Sleep(ctx, round.Delay())

			return result(o.succeed(round))
		case models.OutcomeFail:
			_ = o.execCtx.Sleep(ctx, round.Delay())

			if cause == nil {
				cause = round.Cause
			}

			if cause == nil {
				cause = ErrActionFailed
			}

			return result(o.fail(round, cause))
		case models.OutcomeWait:
			delay := round.Delay()
			if advanced {
				o.retries = 0
				delay = round.Wait
			}

			err = o.execCtx.Sleep(ctx, o.capDelay(start, delay))
			if err != nil {
				return result(o.cancelled(err))
			}
		case models.OutcomeRetry:
			o.retries++
			if o.retries > o.cfg.tryTimes {
				logger.DebugContext(ctx, "Retry budget exhausted", "status", round.Status, "retries", o.retries)

				return result(o.fail(round.WithMessage(round.Describe()), ErrRetryExhausted))
			}

			logger.DebugContext(ctx, "Retrying round", "status", round.Status, "message", round.Message, "retries", o.retries)

			err = o.execCtx.Sleep(ctx, o.capDelay(start, round.Delay()))
			if err != nil {
				return result(o.cancelled(err))
			}
		default:
			return result(o.fail(round.WithMessage("unknown round outcome "+string(round.Outcome)), ErrActionFailed))
		}
	}
}

func (o *Operation) initialize(ctx context.Context) *models.RoundResult {
	if initializer, ok := o.handler.(Initializer); ok {
		if short := initializer.Init(ctx); short != nil {
			return short
		}
	}

	if o.cfg.init != nil {
		return o.cfg.init(ctx)
	}

	return nil
}

func (o *Operation) consumeStep() (bool, error) {
	if s, ok := o.handler.(stepper); ok {
		return s.consumeStep()
	}

	return false, nil
}

func (o *Operation) succeed(round models.RoundResult) models.OperationResult {
	return models.OperationResult{
		Success: true,
		Status:  round.Status,
		Message: round.Message,
		Data:    round.Data,
	}
}

func (o *Operation) fail(round models.RoundResult, kind error) models.OperationResult {
	status := round.Status

	switch {
	case errors.Is(kind, ErrRetryExhausted):
		status = StatusRetryExhausted
	case errors.Is(kind, ErrGraphDeadEnd):
		status = StatusGraphDeadEnd
	}

	return models.OperationResult{
		Success: false,
		Status:  status,
		Message: round.Describe(),
		Data:    round.Data,
		Err:     &Error{Op: o.name, Node: o.nodeName(), Status: round.Status, Err: kind, Message: round.Describe()},
	}
}

func (o *Operation) cancelled(cause error) models.OperationResult {
	return models.OperationResult{
		Success: false,
		Status:  StatusCancelled,
		Message: cause.Error(),
		Err:     &Error{Op: o.name, Node: o.nodeName(), Err: errors.Join(ErrCancelled, cause)},
	}
}

func (o *Operation) nodeName() string {
	if named, ok := o.handler.(interface{ currentNodeName() string }); ok {
		return named.currentNodeName()
	}

	return ""
}

func (o *Operation) begin() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == models.OperationStateRunning || o.state == models.OperationStatePaused {
		return "", false
	}

	o.id = "op-" + uuid.New().String()[:8]
	o.state = models.OperationStateRunning
	o.pausedTotal = 0
	o.pausedAt = time.Time{}

	return o.id, true
}

func (o *Operation) finish(result models.OperationResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case result.Success:
		o.state = models.OperationStateSuccess
	case IsCancelled(result.Err):
		o.state = models.OperationStateCancelled
	default:
		o.state = models.OperationStateFail
	}
}

// watch registers the pause observers. A context that is already paused puts
// the operation in the paused state right away so the wait before the first
// round is not charged to the timeout. o.mu is held across the registration so
// a concurrent resume cannot run its callback before the paused state is set.
func (o *Operation) watch() execution.Registration {
	o.mu.Lock()
	defer o.mu.Unlock()

	handle, running := o.execCtx.Watch(o.onPause, o.onResume)
	if !running && o.state == models.OperationStateRunning {
		o.state = models.OperationStatePaused
		o.pausedAt = time.Now()
	}

	return handle
}

// active is the time spent executing since start, paused time excluded.
func (o *Operation) active(start time.Time) time.Duration {
	return time.Since(start) - o.paused()
}

func (o *Operation) expired(start time.Time) bool {
	return o.cfg.timeout > 0 && o.active(start) >= o.cfg.timeout
}

// capDelay shortens a retry or wait delay to the budget left before the timeout.
func (o *Operation) capDelay(start time.Time, delay time.Duration) time.Duration {
	if o.cfg.timeout <= 0 {
		return delay
	}

	return max(min(delay, o.cfg.timeout-o.active(start)), 0)
}

func (o *Operation) paused() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	total := o.pausedTotal
	if !o.pausedAt.IsZero() {
		total += time.Since(o.pausedAt)
	}

	return total
}

func (o *Operation) onPause() {
	o.mu.Lock()
	if o.state == models.OperationStateRunning {
		o.state = models.OperationStatePaused
		o.pausedAt = time.Now()
	}
	o.mu.Unlock()

	if o.cfg.onPause != nil {
		o.cfg.onPause()
	}

	if aware, ok := o.handler.(PauseAware); ok {
		aware.OnPause()
	}
}

func (o *Operation) onResume() {
	o.mu.Lock()
	if o.state == models.OperationStatePaused {
		o.state = models.OperationStateRunning
		o.pausedTotal += time.Since(o.pausedAt)
		o.pausedAt = time.Time{}
	}
	o.mu.Unlock()

	if o.cfg.onResume != nil {
		o.cfg.onResume()
	}

	if aware, ok := o.handler.(PauseAware); ok {
		aware.OnResume()
	}
}
