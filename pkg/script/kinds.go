package script

import (
	"fmt"
	"time"

	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/operation"
	"github.com/dukex/opflow/pkg/protocol"
	"github.com/dukex/opflow/pkg/units"
)

// Kind is the action a step performs.
type Kind string

const (
	KindClick     Kind = "click"
	KindClickText Kind = "click_text"
	KindWaitFor   Kind = "wait_for"
	KindDetect    Kind = "detect"
	KindSleep     Kind = "sleep"
	KindDrag      Kind = "drag"
	KindMove      Kind = "move"
)

// DefaultDragDuration is used by drag steps without a duration.
const DefaultDragDuration = 300 * time.Millisecond

// unit is a compiled step. Steps that only exist as whole operations set op;
// the others set round and optionally the statuses they succeed with.
type unit struct {
	name  string
	round operation.RoundFunc
	op    operation.Executor
	emits []models.Status
}

type factory func(b *builder, step Step) (unit, error)

var factories = map[Kind]factory{
	KindClick:     clickFactory,
	KindClickText: clickTextFactory,
	KindWaitFor:   waitForFactory,
	KindDetect:    detectFactory,
	KindSleep:     sleepFactory,
	KindDrag:      dragFactory,
	KindMove:      moveFactory,
}

// Kinds returns every supported step kind.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(factories))
	for kind := range factories {
		kinds = append(kinds, kind)
	}

	return kinds
}

func clickFactory(b *builder, step Step) (unit, error) {
	area, err := b.area(step.Click)
	if err != nil {
		return unit{}, err
	}

	return unit{
		name:  b.name(step, "click_"+area.Name),
		round: units.ClickAreaRound(b.execCtx, area, b.waits(step, units.DefaultClickWaits)),
	}, nil
}

func clickTextFactory(b *builder, step Step) (unit, error) {
	var within protocol.Rect

	if step.Within != "" {
		area, err := b.area(step.Within)
		if err != nil {
			return unit{}, err
		}

		within = area.Rect
	}

	return unit{
		name:  b.name(step, "click_text_"+step.ClickText),
		round: units.ClickTextRound(b.execCtx, step.ClickText, within, b.waits(step, units.DefaultClickWaits)),
	}, nil
}

func waitForFactory(b *builder, step Step) (unit, error) {
	area, err := b.area(step.WaitFor)
	if err != nil {
		return unit{}, err
	}

	return unit{
		name:  b.name(step, "wait_"+area.Name),
		round: units.WaitForAreaRound(b.execCtx, area, b.waits(step, units.Waits{})),
	}, nil
}

func detectFactory(b *builder, step Step) (unit, error) {
	areas := make([]protocol.Area, 0, len(step.Detect))
	emits := make([]models.Status, 0, len(step.Detect))

	for _, name := range step.Detect {
		area, err := b.area(name)
		if err != nil {
			return unit{}, err
		}

		areas = append(areas, area)
		emits = append(emits, units.AreaStatus(area))
	}

	return unit{
		name:  b.name(step, "detect"),
		round: units.DetectScreenRound(b.execCtx, areas, b.waits(step, units.Waits{})),
		emits: emits,
	}, nil
}

func sleepFactory(b *builder, step Step) (unit, error) {
	name := b.name(step, "sleep_"+step.Sleep.String())

	return unit{
		name: name,
		op:   units.WaitInSeconds(b.execCtx, step.Sleep, b.options(step)...),
	}, nil
}

func dragFactory(b *builder, step Step) (unit, error) {
	d := step.Drag.Duration
	if d <= 0 {
		d = DefaultDragDuration
	}

	return unit{
		name:  b.name(step, "drag"),
		round: units.DragRound(b.execCtx, step.Drag.From, step.Drag.To, d, b.waits(step, units.Waits{})),
	}, nil
}

func moveFactory(b *builder, step Step) (unit, error) {
	return unit{
		name:  b.name(step, "move_"+string(step.Move.Direction)),
		round: units.MoveRound(b.execCtx, step.Move.Direction, step.Move.Duration, b.waits(step, units.Waits{})),
	}, nil
}

// builder carries what step factories need while compiling one document.
type builder struct {
	execCtx *execution.Context
	doc     *Document
}

func (b *builder) area(name string) (protocol.Area, error) {
	area, ok := b.doc.Area(name)
	if !ok {
		return protocol.Area{}, fmt.Errorf("%w: unknown area %q", ErrInvalidDocument, name)
	}

	return area, nil
}

func (b *builder) name(step Step, fallback string) string {
	if step.Name != "" {
		return step.Name
	}

	return fallback
}

func (b *builder) waits(step Step, fallback units.Waits) units.Waits {
	if step.Waits != nil {
		return *step.Waits
	}

	return fallback
}

// options returns the operation options of a step, falling back to the
// document defaults.
func (b *builder) options(step Step) []operation.Option {
	var opts []operation.Option

	switch {
	case step.TryTimes != nil:
		opts = append(opts, operation.WithTryTimes(*step.TryTimes))
	case b.doc.TryTimes != nil:
		opts = append(opts, operation.WithTryTimes(*b.doc.TryTimes))
	}

	switch {
	case step.Timeout > 0:
		opts = append(opts, operation.WithTimeout(step.Timeout))
	case b.doc.Timeout > 0:
		opts = append(opts, operation.WithTimeout(b.doc.Timeout))
	}

	return opts
}

func (b *builder) build(step Step) (unit, error) {
	kind := step.Kind()

	create, ok := factories[kind]
	if !ok {
		return unit{}, fmt.Errorf("%w: unsupported step kind %q", ErrInvalidDocument, kind)
	}

	return create(b, step)
}

// executor returns the step as a standalone operation.
func (u unit) executor(b *builder, step Step) operation.Executor {
	if u.op != nil {
		return u.op
	}

	return operation.Func(b.execCtx, u.name, u.round, b.options(step)...)
}

// node returns the step as a graph node. A node with its own retry budget or
// timeout runs as a nested operation.
func (u unit) node(b *builder, step Step) *operation.Node {
	if u.op != nil || step.TryTimes != nil || step.Timeout > 0 {
		return operation.NodeFromExecutor(u.name, u.executor(b, step), u.emits...)
	}

	return operation.NewNode(u.name, u.round, u.emits...)
}
