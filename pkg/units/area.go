package units

import (
	"context"
	"image"

	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/operation"
	"github.com/dukex/opflow/pkg/protocol"
)

// AreaStatus is the status a unit succeeds with when it sees area.
func AreaStatus(area protocol.Area) models.Status {
	return models.Status(area.Name)
}

// ClickAreaRound finds area on a fresh screenshot and clicks its center.
// A missing area is a retry.
func ClickAreaRound(execCtx *execution.Context, area protocol.Area, waits Waits) operation.RoundFunc {
	return func(ctx context.Context) models.RoundResult {
		img, short := capture(ctx, execCtx, waits)
		if short != nil {
			return *short
		}

		found, short := findArea(ctx, execCtx, area, img, waits)
		if short != nil {
			return *short
		}

		if !found {
			return waits.retry(StatusAreaNotFound).WithMessage("area " + area.Name + " not found")
		}

		input, short := controller(execCtx)
		if short != nil {
			return *short
		}

		err := input.Click(ctx, area.Rect.Center())
		if err != nil {
			return waits.retry(StatusInputFailed).WithMessage(err.Error())
		}

		execCtx.Logger().DebugContext(ctx, "Clicked area", "area", area.Name)

		return waits.success(AreaStatus(area))
	}
}

// ClickArea is an operation clicking area once it is shown.
func ClickArea(execCtx *execution.Context, area protocol.Area, waits Waits, opts ...operation.Option) *operation.Operation {
	return operation.Func(execCtx, "click_"+area.Name, ClickAreaRound(execCtx, area, waits), opts...)
}

// WaitForAreaRound succeeds once area is shown. Until then it waits without
// consuming the retry budget, so pair it with a timeout.
func WaitForAreaRound(execCtx *execution.Context, area protocol.Area, poll Waits) operation.RoundFunc {
	return func(ctx context.Context) models.RoundResult {
		img, short := capture(ctx, execCtx, poll)
		if short != nil {
			return *short
		}

		found, short := findArea(ctx, execCtx, area, img, poll)
		if short != nil {
			return *short
		}

		if !found {
			return models.RoundWait(StatusAreaNotFound).WithWait(poll.Retry)
		}

		return poll.success(AreaStatus(area))
	}
}

// WaitForArea is an operation waiting until area is shown.
func WaitForArea(execCtx *execution.Context, area protocol.Area, poll Waits, opts ...operation.Option) *operation.Operation {
	return operation.Func(execCtx, "wait_"+area.Name, WaitForAreaRound(execCtx, area, poll), opts...)
}

// DetectScreenRound succeeds with the status of the first visible area, in
// the given order, and retries when none is shown.
func DetectScreenRound(execCtx *execution.Context, areas []protocol.Area, waits Waits) operation.RoundFunc {
	return func(ctx context.Context) models.RoundResult {
		img, short := capture(ctx, execCtx, waits)
		if short != nil {
			return *short
		}

		for _, area := range areas {
			found, short := findArea(ctx, execCtx, area, img, waits)
			if short != nil {
				return *short
			}

			if found {
				return waits.success(AreaStatus(area))
			}
		}

		return waits.retry(StatusUnknownScreen)
	}
}

// DetectScreenNode is a graph node routing on which of areas is visible. Its
// Emits set is the area names, so edges can only use them.
func DetectScreenNode(name string, execCtx *execution.Context, areas []protocol.Area, waits Waits) *operation.Node {
	emits := make([]models.Status, len(areas))
	for i, area := range areas {
		emits[i] = AreaStatus(area)
	}

	return operation.NewNode(name, DetectScreenRound(execCtx, areas, waits), emits...)
}

func findArea(ctx context.Context, execCtx *execution.Context, area protocol.Area, img image.Image, waits Waits) (bool, *models.RoundResult) {
	r, short := recognizer(execCtx)
	if short != nil {
		return false, short
	}

	found, err := r.FindArea(ctx, area, img)
	if err != nil {
		execCtx.Logger().DebugContext(ctx, "Area recognition failed", "area", area.Name, "error", err)

		retry := waits.retry(StatusRecognizeFailed).WithMessage(err.Error())

		return false, &retry
	}

	return found, nil
}
