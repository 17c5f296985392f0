package operation

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dukex/opflow/pkg/events"
	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/models"
)

// StateOperation walks a Graph, running the current node once per round and
// following the edge selected by the node's success status.
type StateOperation struct {
	*Operation

	graph  *Graph
	start  *Node
	strict bool

	mu      sync.Mutex
	current *Node
	trail   []string

	// set by Round, drained by consumeStep on the worker goroutine
	advanced bool
	cause    error
}

// NewStateOperation creates a state operation over graph. The graph is
// validated up front; a broken graph never starts.
func NewStateOperation(execCtx *execution.Context, name string, graph *Graph, opts ...Option) (*StateOperation, error) {
	err := graph.Validate()
	if err != nil {
		return nil, &Error{Op: name, Err: err}
	}

	s := &StateOperation{
		graph: graph,
		start: graph.Start(),
	}
	s.Operation = New(execCtx, name, s, opts...)
	s.strict = s.cfg.strict
	s.current = s.start

	if s.cfg.timeout <= 0 && graph.Cyclic() {
		s.cfg.logger.Warn("State graph has a cycle and no timeout, it may never finish", "operation", name)
	}

	return s, nil
}

// Graph returns the graph the operation walks.
func (s *StateOperation) Graph() *Graph {
	return s.graph
}

// CurrentNode returns the node the next round will run.
func (s *StateOperation) CurrentNode() *Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Trail returns the names of the nodes visited during the current or last run.
func (s *StateOperation) Trail() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.trail)
}

// Init rewinds the walk to the start node. Initialization hooks passed with
// WithInit run afterwards through the embedded Operation.
func (s *StateOperation) Init(context.Context) *models.RoundResult {
	s.mu.Lock()
	s.current = s.start
	s.trail = []string{s.start.Name}
	s.mu.Unlock()

	s.advanced = false
	s.cause = nil

	return nil
}

// Round runs the current node and resolves the transition it asks for.
func (s *StateOperation) Round(ctx context.Context) models.RoundResult {
	node := s.CurrentNode()
	logger := s.cfg.logger.With("operation", s.name, "node", node.Name)

	round := node.Round(ctx)
	if round.Outcome != models.OutcomeSuccess {
		return round
	}

	if !node.declares(round.Status) {
		logger.WarnContext(ctx, "Node returned an undeclared status", "status", round.Status)

		return s.deadEnd(round, fmt.Sprintf("status %q not emitted by node %q", round.Status, node.Name))
	}

	if len(s.graph.Edges(node)) == 0 {
		return round
	}

	edge := s.graph.Match(node, round.Status)
	if edge == nil {
		if s.strict {
			logger.WarnContext(ctx, "No edge accepts status", "status", round.Status)

			return s.deadEnd(round, fmt.Sprintf("no edge leaves %q with status %q", node.Name, round.Status))
		}

		logger.DebugContext(ctx, "No edge accepts status, completing", "status", round.Status)

		return round
	}

	s.transition(ctx, edge, round.Status)

	if edge.To == End {
		return round
	}

	s.advanced = true

	return models.RoundWait(round.Status).
		WithData(round.Data).
		WithMessage(round.Message).
		WithWait(round.Wait)
}

func (s *StateOperation) transition(ctx context.Context, edge *Edge, status models.Status) {
	s.mu.Lock()
	s.current = edge.To
	s.trail = append(s.trail, edge.To.Name)
	s.mu.Unlock()

	s.cfg.logger.DebugContext(ctx, "Node transition",
		"operation", s.name, "from", edge.From.Name, "to", edge.To.Name, "status", status)

	s.execCtx.Publish(ctx, events.NodeTransitioned{
		BaseEvent:   events.NewBaseEvent(events.NodeTransitionedEvent, s.execCtx.RunID()),
		OperationID: s.ID(),
		Operation:   s.name,
		From:        edge.From.Name,
		To:          edge.To.Name,
		Status:      status,
	})
}

func (s *StateOperation) deadEnd(round models.RoundResult, message string) models.RoundResult {
	s.cause = ErrGraphDeadEnd

	failed := round
	failed.Outcome = models.OutcomeFail
	failed.Message = message

	return failed
}

func (s *StateOperation) consumeStep() (bool, error) {
	advanced, cause := s.advanced, s.cause
	s.advanced, s.cause = false, nil

	return advanced, cause
}

func (s *StateOperation) currentNodeName() string {
	node := s.CurrentNode()
	if node == nil {
		return ""
	}

	return node.Name
}
