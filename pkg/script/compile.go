package script

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/opflow/pkg/application"
	"github.com/dukex/opflow/pkg/execution"
	"github.com/dukex/opflow/pkg/models"
	"github.com/dukex/opflow/pkg/operation"
	"github.com/dukex/opflow/pkg/persistence"
)

// Warmer preloads recognition templates.
type Warmer interface {
	Warm(ctx context.Context, ids []string, concurrency int) error
}

// Script is a compiled document, runnable as an application.App.
type Script struct {
	doc    *Document
	root   operation.Executor
	warmer Warmer
	logger *slog.Logger
}

var (
	_ application.App       = (*Script)(nil)
	_ application.Preheater = (*Script)(nil)
)

type CompileOption func(*Script)

// WithWarmer preheats the document's templates through w when the script runs.
func WithWarmer(w Warmer) CompileOption {
	return func(s *Script) { s.warmer = w }
}

// Compile builds the operations of doc against execCtx.
func Compile(execCtx *execution.Context, doc *Document, opts ...CompileOption) (*Script, error) {
	b := &builder{execCtx: execCtx, doc: doc}

	var (
		root operation.Executor
		err  error
	)

	if doc.Graph != nil {
		root, err = b.compileGraph(doc.Graph)
	} else {
		root, err = b.compileSteps(doc.Steps)
	}

	if err != nil {
		return nil, err
	}

	s := &Script{
		doc:    doc,
		root:   root,
		logger: execCtx.Logger().With("module", "script", "script", doc.ID),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (b *builder) compileSteps(steps []Step) (operation.Executor, error) {
	ops := make([]operation.Executor, 0, len(steps))

	for _, step := range steps {
		u, err := b.build(step)
		if err != nil {
			return nil, err
		}

		ops = append(ops, u.executor(b, step))
	}

	return operation.Combine(b.execCtx, b.doc.ID, ops...), nil
}

func (b *builder) compileGraph(def *Graph) (operation.Executor, error) {
	graph := operation.NewGraph()

	for _, step := range def.Nodes {
		u, err := b.build(step)
		if err != nil {
			return nil, err
		}

		graph.AddNode(u.node(b, step))
	}

	for _, edge := range def.Edges {
		to := operation.End
		if edge.To != EndNode {
			to = graph.Node(edge.To)
		}

		opt := operation.AnyStatus()
		if edge.Status != "" {
			opt = operation.OnStatus(models.Status(edge.Status))
		}

		graph.AddEdge(graph.Node(edge.From), to, opt)
	}

	if def.Start != "" {
		graph.SetStart(graph.Node(def.Start))
	}

	var opts []operation.Option

	if b.doc.TryTimes != nil {
		opts = append(opts, operation.WithTryTimes(*b.doc.TryTimes))
	}

	if b.doc.Timeout > 0 {
		opts = append(opts, operation.WithTimeout(b.doc.Timeout))
	}

	if def.Strict {
		opts = append(opts, operation.WithStrictEdges())
	}

	state, err := operation.NewStateOperation(b.execCtx, b.doc.ID, graph, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	return state, nil
}

func (s *Script) ID() string { return s.doc.ID }

// Document returns the source document.
func (s *Script) Document() *Document { return s.doc }

// Root returns the compiled top-level operation.
func (s *Script) Root() operation.Executor { return s.root }

// ExecuteOneRound runs the whole routine once.
func (s *Script) ExecuteOneRound(ctx context.Context) models.RoundResult {
	return operation.AsRound(s.root.Execute(ctx))
}

// Preheat warms the templates the document lists and those of its areas.
func (s *Script) Preheat(ctx context.Context) {
	if s.warmer == nil {
		return
	}

	ids := s.templates()
	if len(ids) == 0 {
		return
	}

	err := s.warmer.Warm(ctx, ids, 0)
	if err != nil {
		s.logger.DebugContext(ctx, "Preheat incomplete", "error", err)
	}
}

func (s *Script) templates() []string {
	seen := make(map[string]bool)

	var ids []string

	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, id := range s.doc.Preheat {
		add(id)
	}

	for _, area := range s.doc.Areas {
		add(area.TemplateID)
	}

	return ids
}

// Application wraps the script with run-record bookkeeping, using the
// document's reset window.
func (s *Script) Application(execCtx *execution.Context, repo persistence.RunRecordRepository, opts ...application.Option) *application.Application {
	if s.doc.Reset != "" {
		opts = append([]application.Option{application.WithResetSchedule(s.doc.Reset)}, opts...)
	}

	return application.New(execCtx, s, repo, opts...)
}
