package execution_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/opflow/pkg/events"
	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newContext(opts ...execution.Option) *execution.Context {
	return execution.New(append([]execution.Option{
		execution.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)...)
}

func TestContext_StartsRunning(t *testing.T) {
	c := newContext(execution.WithRunID("run-1"))

	assert.True(t, c.IsRunning())
	assert.False(t, c.IsStopped())
	assert.Equal(t, "run-1", c.RunID())
	assert.NotNil(t, c.Tracer())
	require.NoError(t, c.WaitRunning(context.Background()))
}

func TestContext_PauseResumeToggle(t *testing.T) {
	c := newContext()

	assert.True(t, c.Pause())
	assert.False(t, c.Pause(), "pausing twice is a no-op")
	assert.False(t, c.IsRunning())

	assert.True(t, c.Resume())
	assert.False(t, c.Resume())
	assert.True(t, c.IsRunning())

	c.Toggle()
	assert.False(t, c.IsRunning())
	c.Toggle()
	assert.True(t, c.IsRunning())

	c.Pause()
	assert.True(t, c.Start())
	assert.True(t, c.IsRunning())
}

func TestContext_WaitRunningBlocksWhilePaused(t *testing.T) {
	c := newContext()
	c.Pause()

	released := make(chan error)

	go func() { released <- c.WaitRunning(context.Background()) }()

	select {
	case <-released:
		t.Fatal("checkpoint returned while paused")
	case <-time.After(30 * time.Millisecond):
	}

	c.Resume()

	select {
	case err := <-released:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("checkpoint did not return after resume")
	}
}

func TestContext_WaitRunningCancellation(t *testing.T) {
	t.Run("stop", func(t *testing.T) {
		c := newContext()
		c.Pause()

		go func() {
			time.Sleep(10 * time.Millisecond)
			c.Stop()
		}()

		assert.ErrorIs(t, c.WaitRunning(context.Background()), execution.ErrStopped)
		assert.True(t, c.IsStopped())
		assert.False(t, c.IsRunning())
		assert.False(t, c.Resume(), "a stopped context cannot resume")
	})

	t.Run("context", func(t *testing.T) {
		c := newContext()
		c.Pause()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, c.WaitRunning(ctx), context.DeadlineExceeded)
	})
}

func TestContext_Sleep(t *testing.T) {
	c := newContext()

	require.NoError(t, c.Sleep(context.Background(), 0))
	require.NoError(t, c.Sleep(context.Background(), time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Stop()
	}()

	start := time.Now()
	err := c.Sleep(context.Background(), time.Hour)

	assert.ErrorIs(t, err, execution.ErrStopped)
	assert.Less(t, time.Since(start), time.Second)

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestContext_PauseObservers(t *testing.T) {
	c := newContext()

	var (
		mu    sync.Mutex
		calls []string
	)

	record := func(name string) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()

			calls = append(calls, name)
		}
	}

	first := c.RegisterPause(record("pause-1"), record("resume-1"))
	second := c.RegisterPause(record("pause-2"), nil)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, c.Observers())

	c.Pause()
	c.Resume()

	c.Unregister(first)
	c.Unregister(first)
	assert.Equal(t, 1, c.Observers())

	c.Pause()

	assert.Equal(t, []string{"pause-1", "pause-2", "resume-1", "pause-2"}, calls)
}

func TestContext_ObserverMayCallBack(t *testing.T) {
	c := newContext()

	var handle execution.Registration
	handle = c.RegisterPause(func() {
		// callbacks run outside the registry lock
		c.Unregister(handle)
		assert.False(t, c.IsRunning())
	}, nil)

	c.Pause()

	assert.Zero(t, c.Observers())
}

func TestContext_WatchReportsRunningFlag(t *testing.T) {
	c := newContext()

	first, running := c.Watch(nil, nil)
	assert.True(t, running)

	c.Pause()

	resumed := make(chan struct{})
	second, running := c.Watch(nil, func() { close(resumed) })
	assert.False(t, running)
	assert.NotEqual(t, first, second)

	c.Resume()

	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("observer registered while paused was not resumed")
	}
}

func TestContext_PublishesPauseEvents(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "run-events", mock.AnythingOfType("events.ContextPaused")).Return(nil).Once()
	bus.On("Publish", mock.Anything, "run-events", mock.MatchedBy(func(e events.ContextResumed) bool {
		return e.PausedFor > 0
	})).Return(nil).Once()

	c := newContext(execution.WithPublisher(bus), execution.WithRunID("run-events"))
	c.Pause()
	time.Sleep(time.Millisecond)
	c.Resume()

	bus.AssertExpectations(t)
}

func TestContext_PublishFailureIsLogged(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	c := newContext(execution.WithPublisher(bus))

	assert.NotPanics(t, func() { c.Pause() })
	assert.False(t, c.IsRunning())
}
