package application

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/operation"
	"github.com/dukex/opflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_ContinuesPastFailures(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	execCtx := newTestContext()

	first := newScriptedApp("first", models.RoundFail("lost"))
	second := newScriptedApp("second", models.RoundSuccess("done"))

	runner := NewRunner(discard(),
		New(execCtx, first, repo),
		New(execCtx, second, repo),
	)

	summaries := runner.Run(context.Background())

	require.Len(t, summaries, 2)
	assert.Equal(t, "first", summaries[0].AppID)
	assert.False(t, summaries[0].Result.Success)
	assert.Equal(t, "second", summaries[1].AppID)
	assert.True(t, summaries[1].Result.Success)
	assert.Equal(t, int32(1), second.calls.Load())
}

func TestRunner_SkipsAfterCancellation(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	app := newScriptedApp("daily", models.RoundSuccess("done"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summaries := NewRunner(discard(), New(newTestContext(), app, repo)).Run(ctx)

	require.Len(t, summaries, 1)
	assert.Equal(t, StatusSkipped, summaries[0].Result.Status)
	assert.ErrorIs(t, summaries[0].Result.Err, context.Canceled)
	assert.Zero(t, app.calls.Load())
}

func TestFromExecutor(t *testing.T) {
	repo := file.NewRunRecordRepository(t.TempDir())
	execCtx := newTestContext()

	calls := 0
	op := operation.Func(execCtx, "claim", func(context.Context) models.RoundResult {
		calls++

		return models.RoundSuccess("claimed").WithData(42)
	})

	result := New(execCtx, FromExecutor("mail", op), repo).Run(context.Background())

	require.True(t, result.Success)
	assert.Equal(t, models.Status("claimed"), result.Status)
	assert.Equal(t, 42, result.Data)
	assert.Equal(t, 1, calls)

	failing := operation.Func(execCtx, "claim", func(context.Context) models.RoundResult {
		return models.RoundFail("empty")
	})

	result = New(execCtx, FromExecutor("mail_fail", failing), repo).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, models.Status("empty"), result.Status)
	assert.ErrorIs(t, result.Err, operation.ErrActionFailed)

	stuck := operation.Func(execCtx, "claim", func(context.Context) models.RoundResult {
		return models.RoundRetry("no_button").WithWait(time.Millisecond)
	}, operation.WithTryTimes(0))

	result = New(execCtx, FromExecutor("mail_stuck", stuck), repo).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, operation.StatusRetryExhausted, result.Status)
	assert.ErrorIs(t, result.Err, operation.ErrRetryExhausted)
}
