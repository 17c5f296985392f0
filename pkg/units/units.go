// Package units provides the reusable leaf steps routines are built from:
// waiting, finding and clicking screen areas, reading text and dragging.
//
// Every unit is available as a round function, usable as a graph node, and as
// a ready-made operation.
package units

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/protocol"
)

// Statuses reported by the units when a round does not succeed.
const (
	StatusScreenshotFailed models.Status = "screenshot_failed"
	StatusRecognizeFailed  models.Status = "recognize_failed"
	StatusAreaNotFound     models.Status = "area_not_found"
	StatusTextNotFound     models.Status = "text_not_found"
	StatusUnknownScreen    models.Status = "unknown_screen"
	StatusInputFailed      models.Status = "input_failed"
	StatusNoCollaborator   models.Status = "no_collaborator"
)

// ErrNoCollaborator indicates the execution context lacks the screen,
// recognizer or controller a unit needs.
var ErrNoCollaborator = errors.New("collaborator not configured")

// Waits are the delays applied after a round, mirroring RoundResult.Wait.
type Waits struct {
	Success time.Duration `json:"success,omitempty" yaml:"success,omitempty"`
	Retry   time.Duration `json:"retry,omitempty"   yaml:"retry,omitempty"`
}

// DefaultClickWaits lets the UI react to a click before the next step.
var DefaultClickWaits = Waits{Success: time.Second, Retry: 500 * time.Millisecond}

func (w Waits) success(status models.Status) models.RoundResult {
	return models.RoundSuccess(status).WithWait(w.Success)
}

func (w Waits) retry(status models.Status) models.RoundResult {
	return models.RoundRetry(status).WithWait(w.Retry)
}

// capture takes a screenshot, turning every problem into a retry round.
func capture(ctx context.Context, execCtx *execution.Context, waits Waits) (image.Image, *models.RoundResult) {
	screen := execCtx.Screen()
	if screen == nil {
		failed := models.RoundFail(StatusNoCollaborator).WithMessage("screen: " + ErrNoCollaborator.Error())

		return nil, &failed
	}

	img, err := screen.Screenshot(ctx)
	if err != nil {
		execCtx.Logger().DebugContext(ctx, "Screenshot failed", "error", err)

		retry := waits.retry(StatusScreenshotFailed).WithMessage(err.Error())

		return nil, &retry
	}

	return img, nil
}

func recognizer(execCtx *execution.Context) (protocol.Recognizer, *models.RoundResult) {
	r := execCtx.Recognizer()
	if r == nil {
		failed := models.RoundFail(StatusNoCollaborator).WithMessage("recognizer: " + ErrNoCollaborator.Error())

		return nil, &failed
	}

	return r, nil
}

func controller(execCtx *execution.Context) (protocol.Controller, *models.RoundResult) {
	c := execCtx.Controller()
	if c == nil {
		failed := models.RoundFail(StatusNoCollaborator).WithMessage("controller: " + ErrNoCollaborator.Error())

		return nil, &failed
	}

	return c, nil
}
