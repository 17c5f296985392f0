package application

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/opflow/pkg/events"
	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/mocks"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/operation"
	"github.com/dukex/opflow/pkg/persistence"
	"github.com/dukex/opflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContext(opts ...execution.Option) *execution.Context {
	return execution.New(append([]execution.Option{execution.WithLogger(discard())}, opts...)...)
}

// scriptedApp returns the scripted rounds in order and repeats the last one.
type scriptedApp struct {
	id      string
	calls   atomic.Int32
	results []models.RoundResult
}

func newScriptedApp(id string, results ...models.RoundResult) *scriptedApp {
	for i := range results {
		if results[i].Wait == 0 {
			results[i].Wait = time.Millisecond
		}
	}

	return &scriptedApp{id: id, results: results}
}

func (a *scriptedApp) ID() string { return a.id }

func (a *scriptedApp) ExecuteOneRound(context.Context) models.RoundResult {
	n := int(a.calls.Add(1)) - 1
	if n >= len(a.results) {
		n = len(a.results) - 1
	}

	return a.results[n]
}

type hookedApp struct {
	*scriptedApp

	initErr   error
	rewriteTo models.RunStatus
	stopped   []bool
	preheated chan context.Context
}

func (a *hookedApp) Init(context.Context) error { return a.initErr }

func (a *hookedApp) AfterStop(_ context.Context, success bool, record *models.AppRunRecord) {
	a.stopped = append(a.stopped, success)
	if a.rewriteTo != "" {
		record.Status = a.rewriteTo
	}
}

func (a *hookedApp) Preheat(ctx context.Context) {
	a.preheated <- ctx
}

func at(day, hour int) time.Time {
	return time.Date(2026, 10, day, hour, 0, 0, 0, time.UTC)
}

func clock(t *time.Time) Option {
	return WithClock(func() time.Time { return *t })
}

func TestApplication_RunsUntilSuccessAndPersists(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	now := at(18, 10)

	app := newScriptedApp("daily",
		models.RoundWait("loading"),
		models.RoundWait("loading"),
		models.RoundSuccess("claimed"),
	)

	result := New(newTestContext(), app, repo, clock(&now)).Run(context.Background())

	require.True(t, result.Success, result.Message)
	assert.Equal(t, models.Status("claimed"), result.Status)
	assert.Equal(t, int32(3), app.calls.Load())

	record, err := repo.Get(context.Background(), "daily")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, record.Status)
	assert.Equal(t, "20261018", record.Date)
}

func TestApplication_AlreadyDoneInPeriod(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	now := at(18, 10)

	first := newScriptedApp("daily", models.RoundSuccess("done"))
	require.True(t, New(newTestContext(), first, repo, clock(&now)).Run(context.Background()).Success)

	now = at(19, 3)
	second := newScriptedApp("daily", models.RoundSuccess("done"))
	result := New(newTestContext(), second, repo, clock(&now)).Run(context.Background())

	assert.True(t, result.Success)
	assert.Equal(t, StatusAlreadyDone, result.Status)
	assert.Zero(t, second.calls.Load())

	now = at(19, 5)
	result = New(newTestContext(), second, repo, clock(&now)).Run(context.Background())

	assert.Equal(t, models.Status("done"), result.Status)
	assert.Equal(t, int32(1), second.calls.Load())
}

func TestApplication_WeeklyReset(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	app := newScriptedApp("parcel", models.RoundSuccess("bought"))

	now := at(19, 10)
	weekly := []Option{clock(&now), WithResetSchedule(models.WeeklyReset)}

	require.True(t, New(newTestContext(), app, repo, weekly...).Run(context.Background()).Success)

	now = at(25, 23)
	assert.Equal(t, StatusAlreadyDone, New(newTestContext(), app, repo, weekly...).Run(context.Background()).Status)

	now = at(26, 5)
	assert.Equal(t, models.Status("bought"), New(newTestContext(), app, repo, weekly...).Run(context.Background()).Status)
	assert.Equal(t, int32(2), app.calls.Load())
}

func TestApplication_FailureIsRecordedAndRetriedNextRun(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	now := at(18, 10)

	app := newScriptedApp("battle", models.RoundFail("lost"))

	result := New(newTestContext(), app, repo, clock(&now)).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, models.Status("lost"), result.Status)
	assert.ErrorIs(t, result.Err, operation.ErrActionFailed)

	record, err := repo.Get(context.Background(), "battle")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFail, record.Status)

	New(newTestContext(), app, repo, clock(&now)).Run(context.Background())
	assert.Equal(t, int32(2), app.calls.Load())
}

func TestApplication_RetryBudget(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	app := newScriptedApp("flaky", models.RoundRetry("not_ready"))

	result := New(newTestContext(), app, repo, WithTryTimes(1)).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, operation.StatusRetryExhausted, result.Status)
	assert.Equal(t, int32(2), app.calls.Load())
}

func TestApplication_InitFailure(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	app := &hookedApp{
		scriptedApp: newScriptedApp("init", models.RoundSuccess("done")),
		initErr:     assert.AnError,
	}

	result := New(newTestContext(), app, repo).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, StatusInitFailed, result.Status)
	assert.ErrorIs(t, result.Err, ErrInitFailed)
	assert.Zero(t, app.calls.Load())
	assert.Equal(t, []bool{false}, app.stopped)

	record, err := repo.Get(context.Background(), "init")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFail, record.Status)
}

func TestApplication_StopHookMayRejectSuccess(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	app := &hookedApp{
		scriptedApp: newScriptedApp("patrol", models.RoundSuccess("done")),
		rewriteTo:   models.RunStatusFail,
		preheated:   make(chan context.Context, 1),
	}

	result := New(newTestContext(), app, repo).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, StatusIncomplete, result.Status)
	assert.ErrorIs(t, result.Err, ErrIncomplete)
	assert.Equal(t, []bool{true}, app.stopped)

	record, err := repo.Get(context.Background(), "patrol")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFail, record.Status)

	select {
	case ctx := <-app.preheated:
		assert.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("preheat did not run")
	}
}

func TestApplication_RecordStoreUnavailable(t *testing.T) {
	repo := &mocks.MockRunRecordRepository{}
	repo.On("Get", mock.Anything, "daily").Return(nil, assert.AnError)

	app := newScriptedApp("daily", models.RoundSuccess("done"))
	result := New(newTestContext(), app, repo).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, StatusRecordUnavailable, result.Status)
	assert.ErrorIs(t, result.Err, ErrRecordUnavailable)
	assert.Zero(t, app.calls.Load())
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestApplication_SaveFailureSurfaces(t *testing.T) {
	repo := &mocks.MockRunRecordRepository{}
	repo.On("Get", mock.Anything, "daily").
		Return(nil, persistence.NewRecordError("Get", "daily", persistence.ErrRunRecordNotFound))
	repo.On("Save", mock.Anything, mock.Anything).Return(assert.AnError)

	app := newScriptedApp("daily", models.RoundSuccess("done"))
	result := New(newTestContext(), app, repo).Run(context.Background())

	assert.True(t, result.Success)
	assert.ErrorIs(t, result.Err, assert.AnError)
	assert.Equal(t, int32(1), app.calls.Load())
	repo.AssertNumberOfCalls(t, "Save", 2)
}

func TestApplication_PublishesStatusChanges(t *testing.T) {
	publisher := &mocks.RecordingPublisher{}
	repo := file.NewRunRecordRepository(t.TempDir())

	app := newScriptedApp("daily", models.RoundSuccess("done"))
	New(newTestContext(execution.WithPublisher(publisher)), app, repo).Run(context.Background())

	changes := publisher.OfType(events.AppStatusChangedEvent)
	require.Len(t, changes, 2)
	assert.Equal(t, models.RunStatusRunning, changes[0].(events.AppStatusChanged).Status)
	assert.Equal(t, models.RunStatusSuccess, changes[1].(events.AppStatusChanged).Status)
}

func TestApplication_StopRecordsFailure(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	execCtx := newTestContext()

	app := newScriptedApp("endless", models.RoundWait("loading"))

	go func() {
		assert.Eventually(t, func() bool { return app.calls.Load() > 2 }, time.Second, time.Millisecond)
		execCtx.Stop()
	}()

	result := New(execCtx, app, repo).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, operation.StatusCancelled, result.Status)
	assert.ErrorIs(t, result.Err, operation.ErrCancelled)

	record, err := repo.Get(context.Background(), "endless")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFail, record.Status)
}
