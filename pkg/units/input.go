package units

import (
	"context"
	"strings"
	"time"

	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/operation"
	"github.com/dukex/opflow/pkg/protocol"
)

// StatusClicked, StatusDragged and StatusMoved label successful input units.
const (
	StatusClicked models.Status = "clicked"
	StatusDragged models.Status = "dragged"
	StatusMoved   models.Status = "moved"
)

// ClickTextRound runs OCR on a fresh screenshot and clicks the center of the
// first match containing text. When within is not empty only matches whose
// center lies inside it count. The match travels as the round data.
func ClickTextRound(execCtx *execution.Context, text string, within protocol.Rect, waits Waits) operation.RoundFunc {
	return func(ctx context.Context) models.RoundResult {
		img, short := capture(ctx, execCtx, waits)
		if short != nil {
			return *short
		}

		r, short := recognizer(execCtx)
		if short != nil {
			return *short
		}

		matches, err := r.RunOCR(ctx, img)
		if err != nil {
			return waits.retry(StatusRecognizeFailed).WithMessage(err.Error())
		}

		match, ok := findText(matches, text, within)
		if !ok {
			return waits.retry(StatusTextNotFound).WithMessage("text " + text + " not found")
		}

		input, short := controller(execCtx)
		if short != nil {
			return *short
		}

		if err := input.Click(ctx, match.Rect.Center()); err != nil {
			return waits.retry(StatusInputFailed).WithMessage(err.Error())
		}

		execCtx.Logger().DebugContext(ctx, "Clicked text", "text", match.Text)

		return waits.success(StatusClicked).WithData(match)
	}
}

// ClickText is an operation clicking text once OCR finds it.
func ClickText(execCtx *execution.Context, text string, within protocol.Rect, waits Waits, opts ...operation.Option) *operation.Operation {
	return operation.Func(execCtx, "click_text_"+text, ClickTextRound(execCtx, text, within, waits), opts...)
}

func findText(matches []protocol.OCRMatch, text string, within protocol.Rect) (protocol.OCRMatch, bool) {
	for _, match := range matches {
		if !strings.Contains(match.Text, text) {
			continue
		}

		if !within.Empty() && !within.Contains(match.Rect.Center()) {
			continue
		}

		return match, true
	}

	return protocol.OCRMatch{}, false
}

// DragRound drags from one point to another over d.
func DragRound(execCtx *execution.Context, from, to protocol.Point, d time.Duration, waits Waits) operation.RoundFunc {
	return func(ctx context.Context) models.RoundResult {
		input, short := controller(execCtx)
		if short != nil {
			return *short
		}

		if err := input.DragTo(ctx, from, to, d); err != nil {
			return waits.retry(StatusInputFailed).WithMessage(err.Error())
		}

		return waits.success(StatusDragged)
	}
}

// Drag is an operation performing a single drag.
func Drag(execCtx *execution.Context, from, to protocol.Point, d time.Duration, waits Waits, opts ...operation.Option) *operation.Operation {
	return operation.Func(execCtx, "drag", DragRound(execCtx, from, to, d, waits), opts...)
}

// MoveRound holds a movement direction for d.
func MoveRound(execCtx *execution.Context, direction protocol.Direction, d time.Duration, waits Waits) operation.RoundFunc {
	return func(ctx context.Context) models.RoundResult {
		input, short := controller(execCtx)
		if short != nil {
			return *short
		}

		if err := input.Move(ctx, direction, d); err != nil {
			return waits.retry(StatusInputFailed).WithMessage(err.Error())
		}

		return waits.success(StatusMoved)
	}
}

// Move is an operation moving in one direction.
func Move(execCtx *execution.Context, direction protocol.Direction, d time.Duration, waits Waits, opts ...operation.Option) *operation.Operation {
	return operation.Func(execCtx, "move_"+string(direction), MoveRound(execCtx, direction, d, waits), opts...)
}
