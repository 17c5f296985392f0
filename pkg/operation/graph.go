package operation

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/opflow/pkg/models"
)

// RoundFunc executes one round of a graph node.
type RoundFunc func(ctx context.Context) models.RoundResult

// Node is a named, reusable step of a state graph.
type Node struct {
	Name  string
	Round RoundFunc

	// Emits optionally declares every status the node can succeed with. When
	// set, labelled edges must use one of them and any other success status
	// is a graph dead end.
	Emits []models.Status
}

// NewNode creates a node. Passing statuses declares the node's Emits set.
func NewNode(name string, round RoundFunc, emits ...models.Status) *Node {
	return &Node{Name: name, Round: round, Emits: emits}
}

// NodeFromExecutor wraps a whole sub-operation as a node: its success becomes
// a SUCCESS round with the same status and data, its failure a FAIL round.
func NodeFromExecutor(name string, executor Executor, emits ...models.Status) *Node {
	return NewNode(name, func(ctx context.Context) models.RoundResult {
		return AsRound(executor.Execute(ctx))
	}, emits...)
}

// AsRound folds a finished operation into a single round: success becomes a
// SUCCESS round, failure a FAIL round whose cause keeps the error kind.
func AsRound(result models.OperationResult) models.RoundResult {
	if !result.Success {
		cause := result.Err
		if cause == nil {
			cause = ErrActionFailed
		}

		return models.RoundFail(result.Status).WithData(result.Data).WithMessage(result.Message).WithCause(cause)
	}

	return models.RoundSuccess(result.Status).WithData(result.Data).WithMessage(result.Message)
}

func (n *Node) declares(status models.Status) bool {
	return len(n.Emits) == 0 || slices.Contains(n.Emits, status)
}

// End is the terminal marker: reaching it completes the state operation successfully.
var End = &Node{Name: "__end__"}

// Edge is a legal transition between two nodes.
type Edge struct {
	From         *Node
	To           *Node
	Status       models.Status
	IgnoreStatus bool
}

func (e *Edge) String() string {
	label := string(e.Status)

	switch {
	case e.IgnoreStatus:
		label = "*"
	case label == "":
		label = "<none>"
	}

	return fmt.Sprintf("%s -[%s]-> %s", e.From.Name, label, e.To.Name)
}

// EdgeOption configures an edge.
type EdgeOption func(*Edge)

// OnStatus makes the edge match only rounds with the given status.
func OnStatus(status models.Status) EdgeOption {
	return func(e *Edge) { e.Status = status }
}

// AnyStatus makes the edge match any success status that no exact edge claimed.
func AnyStatus() EdgeOption {
	return func(e *Edge) { e.IgnoreStatus = true }
}

// Graph is a directed graph of nodes connected by status-labelled edges.
// Build it with AddNode/AddEdge; errors are collected and reported by Validate.
type Graph struct {
	nodes    []*Node
	index    map[string]*Node
	edges    map[*Node][]*Edge
	incoming map[*Node]int
	start    *Node
	errs     []error
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index:    make(map[string]*Node),
		edges:    make(map[*Node][]*Edge),
		incoming: make(map[*Node]int),
	}
}

// AddNode registers a node. Adding the same node twice is a no-op.
func (g *Graph) AddNode(node *Node) *Graph {
	if node == nil {
		g.errs = append(g.errs, errors.New("nil node"))

		return g
	}

	if node == End {
		return g
	}

	existing, ok := g.index[node.Name]
	if ok {
		if existing != node {
			g.errs = append(g.errs, fmt.Errorf("duplicate node name %q", node.Name))
		}

		return g
	}

	g.index[node.Name] = node
	g.nodes = append(g.nodes, node)

	return g
}

// AddEdge registers a transition, adding both nodes if needed. Edges leaving
// one node are tried in registration order. Edges that lead back to an
// earlier node form a cycle; see Cyclic.
func (g *Graph) AddEdge(from, to *Node, opts ...EdgeOption) *Graph {
	if from == nil || to == nil {
		g.errs = append(g.errs, errors.New("edge with nil endpoint"))

		return g
	}

	if from == End {
		g.errs = append(g.errs, fmt.Errorf("edge leaving the end marker towards %q", to.Name))

		return g
	}

	g.AddNode(from)
	g.AddNode(to)

	edge := &Edge{From: from, To: to}
	for _, opt := range opts {
		opt(edge)
	}

	if !edge.IgnoreStatus && edge.Status != models.StatusNone && !from.declares(edge.Status) {
		g.errs = append(g.errs, fmt.Errorf("edge %s uses status not emitted by %q", edge, from.Name))
	}

	g.edges[from] = append(g.edges[from], edge)
	g.incoming[to]++

	return g
}

// SetStart designates the entry node explicitly. Required when every node has
// an incoming edge, as in a polling cycle.
func (g *Graph) SetStart(node *Node) *Graph {
	g.AddNode(node)
	g.start = node

	return g
}

// Validate checks the graph and resolves its entry node.
func (g *Graph) Validate() error {
	errs := slices.Clone(g.errs)

	for _, node := range g.nodes {
		if node.Round == nil {
			errs = append(errs, fmt.Errorf("node %q has no round function", node.Name))
		}
	}

	_, err := g.resolveStart()
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidGraph, errors.Join(errs...))
	}

	return nil
}

// Start returns the entry node, or nil when it cannot be resolved.
func (g *Graph) Start() *Node {
	start, _ := g.resolveStart()

	return start
}

func (g *Graph) resolveStart() (*Node, error) {
	if g.start != nil {
		return g.start, nil
	}

	if len(g.nodes) == 0 {
		return nil, errors.New("graph has no nodes")
	}

	var candidates []*Node

	for _, node := range g.nodes {
		if g.incoming[node] == 0 {
			candidates = append(candidates, node)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return nil, errors.New("no entry node: every node has an incoming edge, use SetStart")
	default:
		names := make([]string, len(candidates))
		for i, node := range candidates {
			names[i] = node.Name
		}

		return nil, fmt.Errorf("several entry nodes %v, use SetStart", names)
	}
}

// Cyclic reports whether some node can reach itself through edges. A
// transition resets the retry count, so a cyclic graph needs a timeout to be
// bounded.
func (g *Graph) Cyclic() bool {
	const (
		unvisited = iota
		visiting
		visited
	)

	marks := make(map[*Node]int, len(g.nodes))

	var visit func(node *Node) bool
	visit = func(node *Node) bool {
		marks[node] = visiting

		for _, edge := range g.edges[node] {
			switch marks[edge.To] {
			case visiting:
				return true
			case unvisited:
				if visit(edge.To) {
					return true
				}
			}
		}

		marks[node] = visited

		return false
	}

	for _, node := range g.nodes {
		if marks[node] == unvisited && visit(node) {
			return true
		}
	}

	return false
}

// Node returns the node registered under name.
func (g *Graph) Node(name string) *Node {
	return g.index[name]
}

// Nodes returns the nodes in registration order.
func (g *Graph) Nodes() []*Node {
	return slices.Clone(g.nodes)
}

// Edges returns the edges leaving node in registration order.
func (g *Graph) Edges(from *Node) []*Edge {
	return slices.Clone(g.edges[from])
}

// Match resolves the edge taken after from succeeded with status: exact
// matches first, then status-ignoring edges, each in registration order.
func (g *Graph) Match(from *Node, status models.Status) *Edge {
	edges := g.edges[from]

	for _, edge := range edges {
		if !edge.IgnoreStatus && edge.Status == status {
			return edge
		}
	}

	for _, edge := range edges {
		if edge.IgnoreStatus {
			return edge
		}
	}

	return nil
}
