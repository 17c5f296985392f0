package units

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/mocks"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/operation"
	"github.com/dukex/opflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fastWaits = Waits{Success: 0, Retry: time.Millisecond}

type collaborators struct {
	screen     *mocks.MockScreen
	recognizer *mocks.MockRecognizer
	controller *mocks.MockController
	frame      image.Image
}

func newCollaborators() *collaborators {
	return &collaborators{
		screen:     &mocks.MockScreen{},
		recognizer: &mocks.MockRecognizer{},
		controller: &mocks.MockController{},
		frame:      image.NewRGBA(image.Rect(0, 0, 4, 4)),
	}
}

func (c *collaborators) context() *execution.Context {
	return execution.New(
		execution.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		execution.WithScreen(c.screen),
		execution.WithRecognizer(c.recognizer),
		execution.WithController(c.controller),
	)
}

var startButton = protocol.Area{
	Name: "start",
	Rect: protocol.Rect{Min: protocol.Point{X: 10, Y: 20}, Max: protocol.Point{X: 30, Y: 40}},
}

func TestClickArea_RetriesUntilShownThenClicksCenter(t *testing.T) {
	c := newCollaborators()
	c.screen.On("Screenshot", mock.Anything).Return(c.frame, nil)
	c.recognizer.On("FindArea", mock.Anything, startButton, c.frame).Return(false, nil).Twice()
	c.recognizer.On("FindArea", mock.Anything, startButton, c.frame).Return(true, nil).Once()
	c.controller.On("Click", mock.Anything, protocol.Point{X: 20, Y: 30}).Return(nil).Once()

	result := ClickArea(c.context(), startButton, fastWaits).Execute(context.Background())

	require.True(t, result.Success, result.Message)
	assert.Equal(t, models.Status("start"), result.Status)
	assert.Equal(t, 3, result.Rounds)
	c.controller.AssertExpectations(t)
	c.recognizer.AssertExpectations(t)
}

func TestClickArea_ExhaustsRetries(t *testing.T) {
	c := newCollaborators()
	c.screen.On("Screenshot", mock.Anything).Return(c.frame, nil)
	c.recognizer.On("FindArea", mock.Anything, startButton, c.frame).Return(false, nil)

	result := ClickArea(c.context(), startButton, fastWaits, operation.WithTryTimes(1)).Execute(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, operation.StatusRetryExhausted, result.Status)
	assert.ErrorIs(t, result.Err, operation.ErrRetryExhausted)
	assert.Equal(t, 2, result.Rounds)
	c.controller.AssertNotCalled(t, "Click", mock.Anything, mock.Anything)
}

func TestClickArea_ScreenshotAndInputFailuresRetry(t *testing.T) {
	c := newCollaborators()
	c.screen.On("Screenshot", mock.Anything).Return(nil, errors.New("window lost")).Once()
	c.screen.On("Screenshot", mock.Anything).Return(c.frame, nil)
	c.recognizer.On("FindArea", mock.Anything, startButton, c.frame).Return(true, nil)
	c.controller.On("Click", mock.Anything, mock.Anything).Return(errors.New("busy")).Once()
	c.controller.On("Click", mock.Anything, mock.Anything).Return(nil)

	result := ClickArea(c.context(), startButton, fastWaits).Execute(context.Background())

	require.True(t, result.Success, result.Message)
	assert.Equal(t, 3, result.Rounds)
	assert.Equal(t, 2, result.Retries)
}

func TestClickArea_MissingCollaboratorFails(t *testing.T) {
	execCtx := execution.New(execution.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	result := ClickArea(execCtx, startButton, fastWaits).Execute(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, StatusNoCollaborator, result.Status)
	assert.Equal(t, 1, result.Rounds)
}

func TestWaitForArea_WaitsWithoutConsumingRetries(t *testing.T) {
	c := newCollaborators()
	c.screen.On("Screenshot", mock.Anything).Return(c.frame, nil)
	c.recognizer.On("FindArea", mock.Anything, startButton, c.frame).Return(false, nil).Times(5)
	c.recognizer.On("FindArea", mock.Anything, startButton, c.frame).Return(true, nil).Once()

	result := WaitForArea(c.context(), startButton, fastWaits, operation.WithTryTimes(0)).Execute(context.Background())

	require.True(t, result.Success, result.Message)
	assert.Equal(t, 6, result.Rounds)
	assert.Zero(t, result.Retries)
}

func TestWaitForArea_Timeout(t *testing.T) {
	c := newCollaborators()
	c.screen.On("Screenshot", mock.Anything).Return(c.frame, nil)
	c.recognizer.On("FindArea", mock.Anything, startButton, c.frame).Return(false, nil)

	result := WaitForArea(c.context(), startButton, fastWaits, operation.WithTimeout(20*time.Millisecond)).
		Execute(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, operation.StatusTimeout, result.Status)
	assert.ErrorIs(t, result.Err, operation.ErrTimeout)
}

func TestDetectScreen_RoutesOnFirstVisibleArea(t *testing.T) {
	lobby := protocol.Area{Name: "lobby"}
	battle := protocol.Area{Name: "battle"}

	c := newCollaborators()
	c.screen.On("Screenshot", mock.Anything).Return(c.frame, nil)
	c.recognizer.On("FindArea", mock.Anything, lobby, c.frame).Return(false, nil)
	c.recognizer.On("FindArea", mock.Anything, battle, c.frame).Return(true, nil)

	execCtx := c.context()
	detect := DetectScreenNode("detect", execCtx, []protocol.Area{lobby, battle}, fastWaits)
	assert.Equal(t, []models.Status{"lobby", "battle"}, detect.Emits)

	var visited []string
	mark := func(name string) *operation.Node {
		return operation.NewNode(name, func(context.Context) models.RoundResult {
			visited = append(visited, name)

			return models.RoundSuccess(models.StatusNone)
		})
	}

	graph := operation.NewGraph()
	graph.AddEdge(detect, mark("to_battle"), operation.OnStatus("battle"))
	graph.AddEdge(detect, mark("to_lobby"), operation.OnStatus("lobby"))

	state, err := operation.NewStateOperation(execCtx, "route", graph)
	require.NoError(t, err)

	result := state.Execute(context.Background())

	require.True(t, result.Success, result.Message)
	assert.Equal(t, []string{"to_battle"}, visited)
}

func TestDetectScreen_UnknownScreenRetries(t *testing.T) {
	c := newCollaborators()
	c.screen.On("Screenshot", mock.Anything).Return(c.frame, nil)
	c.recognizer.On("FindArea", mock.Anything, mock.Anything, c.frame).Return(false, nil)

	round := DetectScreenRound(c.context(), []protocol.Area{{Name: "lobby"}}, fastWaits)(context.Background())

	assert.Equal(t, models.OutcomeRetry, round.Outcome)
	assert.Equal(t, StatusUnknownScreen, round.Status)
}

func TestClickText_MatchesSubstringInsideRect(t *testing.T) {
	outside := protocol.OCRMatch{
		Text: "Claim reward",
		Rect: protocol.Rect{Min: protocol.Point{X: 0, Y: 0}, Max: protocol.Point{X: 10, Y: 10}},
	}
	inside := protocol.OCRMatch{
		Text: "Claim all",
		Rect: protocol.Rect{Min: protocol.Point{X: 100, Y: 100}, Max: protocol.Point{X: 120, Y: 110}},
	}
	within := protocol.Rect{Min: protocol.Point{X: 50, Y: 50}, Max: protocol.Point{X: 200, Y: 200}}

	c := newCollaborators()
	c.screen.On("Screenshot", mock.Anything).Return(c.frame, nil)
	c.recognizer.On("RunOCR", mock.Anything, c.frame).Return([]protocol.OCRMatch{outside, inside}, nil)
	c.controller.On("Click", mock.Anything, protocol.Point{X: 110, Y: 105}).Return(nil).Once()

	result := ClickText(c.context(), "Claim", within, fastWaits).Execute(context.Background())

	require.True(t, result.Success, result.Message)
	assert.Equal(t, StatusClicked, result.Status)
	assert.Equal(t, inside, result.Data)
	c.controller.AssertExpectations(t)
}

func TestClickText_NotFound(t *testing.T) {
	c := newCollaborators()
	c.screen.On("Screenshot", mock.Anything).Return(c.frame, nil)
	c.recognizer.On("RunOCR", mock.Anything, c.frame).Return([]protocol.OCRMatch{{Text: "Cancel"}}, nil)

	round := ClickTextRound(c.context(), "Confirm", protocol.Rect{}, fastWaits)(context.Background())

	assert.Equal(t, models.OutcomeRetry, round.Outcome)
	assert.Equal(t, StatusTextNotFound, round.Status)
}

func TestDragAndMove(t *testing.T) {
	from := protocol.Point{X: 1, Y: 2}
	to := protocol.Point{X: 30, Y: 40}

	c := newCollaborators()
	c.controller.On("DragTo", mock.Anything, from, to, 200*time.Millisecond).Return(nil).Once()
	c.controller.On("Move", mock.Anything, protocol.DirectionForward, time.Second).Return(nil).Once()

	execCtx := c.context()

	drag := Drag(execCtx, from, to, 200*time.Millisecond, fastWaits).Execute(context.Background())
	require.True(t, drag.Success)
	assert.Equal(t, StatusDragged, drag.Status)

	move := Move(execCtx, protocol.DirectionForward, time.Second, fastWaits).Execute(context.Background())
	require.True(t, move.Success)
	assert.Equal(t, StatusMoved, move.Status)

	c.controller.AssertExpectations(t)
}

func TestWaitInSeconds(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	handler := &waitHandler{d: 3 * time.Second, now: func() time.Time { return now }}

	assert.Nil(t, handler.Init(context.Background()))

	round := handler.Round(context.Background())
	assert.Equal(t, models.OutcomeWait, round.Outcome)
	assert.Equal(t, 3*time.Second, round.Wait)

	now = now.Add(2 * time.Second)
	round = handler.Round(context.Background())
	assert.Equal(t, time.Second, round.Wait)

	now = now.Add(time.Second)
	round = handler.Round(context.Background())
	assert.Equal(t, models.OutcomeSuccess, round.Outcome)
	assert.Equal(t, StatusWaited, round.Status)
}

func TestWaitInSeconds_Execute(t *testing.T) {
	started := time.Now()

	result := WaitInSeconds(newCollaborators().context(), 30*time.Millisecond).Execute(context.Background())

	require.True(t, result.Success)
	assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)
}
