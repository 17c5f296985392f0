// Package execution holds the state shared by every operation of one run:
// the running flag, pause/resume observers and the collaborators.
package execution

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/opflow/pkg/eventbus"
	"github.com/dukex/opflow/pkg/events"
	"github.com/dukex/opflow/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrStopped is returned by blocking calls once the context has been stopped.
var ErrStopped = errors.New("execution context stopped")

// Registration identifies a pause/resume observer.
type Registration uint64

type observer struct {
	id       Registration
	onPause  func()
	onResume func()
}

// Context is the explicitly passed state of one run. It is safe for concurrent
// use: pause and resume usually arrive from a signal handler or an HTTP request
// while the worker goroutine executes operations.
type Context struct {
	runID      string
	logger     *slog.Logger
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	screen     protocol.Screen
	recognizer protocol.Recognizer
	controller protocol.Controller

	mu        sync.Mutex
	running   bool
	stopped   bool
	pausedAt  time.Time
	resumed   chan struct{} // closed while running
	done      chan struct{}
	nextID    Registration
	observers []observer
}

// Option configures a Context.
type Option func(*Context)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) { c.logger = logger }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(c *Context) { c.publisher = publisher }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Context) { c.tracer = tracer }
}

func WithScreen(screen protocol.Screen) Option {
	return func(c *Context) { c.screen = screen }
}

func WithRecognizer(recognizer protocol.Recognizer) Option {
	return func(c *Context) { c.recognizer = recognizer }
}

func WithController(controller protocol.Controller) Option {
	return func(c *Context) { c.controller = controller }
}

func WithRunID(runID string) Option {
	return func(c *Context) { c.runID = runID }
}

// New creates a running context.
func New(opts ...Option) *Context {
	resumed := make(chan struct{})
	close(resumed)

	c := &Context{
		runID:   "run-" + uuid.New().String()[:8],
		logger:  slog.Default(),
		tracer:  otel.Tracer("opflow"),
		running: true,
		resumed: resumed,
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("runId", c.runID)

	return c
}

func (c *Context) RunID() string                   { return c.runID }
func (c *Context) Logger() *slog.Logger            { return c.logger }
func (c *Context) Tracer() trace.Tracer            { return c.tracer }
func (c *Context) Screen() protocol.Screen         { return c.screen }
func (c *Context) Recognizer() protocol.Recognizer { return c.recognizer }
func (c *Context) Controller() protocol.Controller { return c.controller }

// IsRunning reports whether the context is neither paused nor stopped.
func (c *Context) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running && !c.stopped
}

// IsStopped reports whether Stop was called.
func (c *Context) IsStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopped
}

// Done is closed when the context is stopped.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// Pause flips the running flag off and notifies observers. It reports whether
// the state changed.
func (c *Context) Pause() bool {
	c.mu.Lock()
	if !c.running || c.stopped {
		c.mu.Unlock()

		return false
	}

	c.running = false
	c.pausedAt = time.Now()
	c.resumed = make(chan struct{})
	callbacks := c.snapshot(func(o observer) func() { return o.onPause })
	c.mu.Unlock()

	c.logger.Info("Execution paused")

	for _, callback := range callbacks {
		callback()
	}

	c.Publish(context.Background(), events.ContextPaused{
		BaseEvent: events.NewBaseEvent(events.ContextPausedEvent, c.runID),
	})

	return true
}

// Resume flips the running flag on and notifies observers. It reports whether
// the state changed.
func (c *Context) Resume() bool {
	c.mu.Lock()
	if c.running || c.stopped {
		c.mu.Unlock()

		return false
	}

	c.running = true
	pausedFor := time.Since(c.pausedAt)
	close(c.resumed)
	callbacks := c.snapshot(func(o observer) func() { return o.onResume })
	c.mu.Unlock()

	c.logger.Info("Execution resumed", "pausedFor", pausedFor)

	for _, callback := range callbacks {
		callback()
	}

	c.Publish(context.Background(), events.ContextResumed{
		BaseEvent: events.NewBaseEvent(events.ContextResumedEvent, c.runID),
		PausedFor: pausedFor,
	})

	return true
}

// Start marks the context as running. A new context already runs, so Start
// only matters after Pause.
func (c *Context) Start() bool {
	return c.Resume()
}

// Toggle pauses a running context and resumes a paused one.
func (c *Context) Toggle() {
	if c.IsRunning() {
		c.Pause()

		return
	}

	c.Resume()
}

// Stop cancels the run. Blocked checkpoints and sleeps return ErrStopped.
func (c *Context) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	c.stopped = true
	close(c.done)
	c.logger.Info("Execution stopped")
}

// WaitRunning is the cooperative pause checkpoint: it returns immediately
// while running and blocks while paused.
func (c *Context) WaitRunning(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()

			return ErrStopped
		}

		if c.running {
			c.mu.Unlock()

			return nil
		}

		resumed := c.resumed
		c.mu.Unlock()

		select {
		case <-resumed:
		case <-c.done:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sleep waits for d unless the context is stopped or ctx is done first.
func (c *Context) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterPause adds a pause/resume observer and returns its handle. Either
// callback may be nil.
func (c *Context) RegisterPause(onPause, onResume func()) Registration {
	handle, _ := c.Watch(onPause, onResume)

	return handle
}

// Watch registers an observer like RegisterPause and reports whether the
// context was running at registration time. An observer registered while
// paused receives no pause callback, only the next resume.
func (c *Context) Watch(onPause, onResume func()) (Registration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	c.observers = append(c.observers, observer{id: c.nextID, onPause: onPause, onResume: onResume})

	return c.nextID, c.running
}

// Unregister removes the observer behind the handle. Unknown handles are ignored.
func (c *Context) Unregister(handle Registration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, o := range c.observers {
		if o.id == handle {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)

			return
		}
	}
}

// Observers returns the number of registered observers.
func (c *Context) Observers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.observers)
}

// Publish sends an event when a publisher is configured. Failures are logged
// and never interrupt the run.
func (c *Context) Publish(ctx context.Context, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	err := c.publisher.Publish(ctx, c.runID, event)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to publish event", "eventType", event.GetType(), "error", err)
	}
}

// snapshot must be called with mu held.
func (c *Context) snapshot(pick func(observer) func()) []func() {
	callbacks := make([]func(), 0, len(c.observers))

	for _, o := range c.observers {
		if callback := pick(o); callback != nil {
			callbacks = append(callbacks, callback)
		}
	}

	return callbacks
}
