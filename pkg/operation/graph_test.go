package operation

import (
	"context"
	"testing"

	"github.com/dukex/opflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constNode(name string, result models.RoundResult, emits ...models.Status) *Node {
	return NewNode(name, func(context.Context) models.RoundResult { return result }, emits...)
}

func TestGraph_StartResolution(t *testing.T) {
	a := constNode("a", models.RoundSuccess(""))
	b := constNode("b", models.RoundSuccess(""))
	c := constNode("c", models.RoundSuccess(""))

	t.Run("unique node without incoming edges", func(t *testing.T) {
		g := NewGraph().AddEdge(a, b).AddEdge(b, c)

		require.NoError(t, g.Validate())
		assert.Same(t, a, g.Start())
	})

	t.Run("cycle needs an explicit start", func(t *testing.T) {
		g := NewGraph().AddEdge(a, b).AddEdge(b, a)

		err := g.Validate()
		require.ErrorIs(t, err, ErrInvalidGraph)
		assert.Nil(t, g.Start())

		g.SetStart(b)
		require.NoError(t, g.Validate())
		assert.Same(t, b, g.Start())
	})

	t.Run("several candidates", func(t *testing.T) {
		g := NewGraph().AddEdge(a, c).AddEdge(b, c)

		assert.ErrorIs(t, g.Validate(), ErrInvalidGraph)
	})

	t.Run("empty graph", func(t *testing.T) {
		assert.ErrorIs(t, NewGraph().Validate(), ErrInvalidGraph)
	})

	t.Run("single node", func(t *testing.T) {
		g := NewGraph().AddNode(a)

		require.NoError(t, g.Validate())
		assert.Same(t, a, g.Start())
	})
}

func TestGraph_ImplicitNodesAndOrder(t *testing.T) {
	a := constNode("a", models.RoundSuccess(""))
	b := constNode("b", models.RoundSuccess(""))
	c := constNode("c", models.RoundSuccess(""))

	g := NewGraph().AddEdge(a, b).AddEdge(a, c).AddEdge(c, End)

	names := []string{}
	for _, node := range g.Nodes() {
		names = append(names, node.Name)
	}

	assert.Equal(t, []string{"a", "b", "c"}, names)
	assert.Same(t, c, g.Node("c"))
	assert.Nil(t, g.Node(End.Name))
	require.Len(t, g.Edges(a), 2)
	assert.Same(t, b, g.Edges(a)[0].To)
}

func TestGraph_Invalid(t *testing.T) {
	t.Run("duplicate names", func(t *testing.T) {
		g := NewGraph().
			AddNode(constNode("same", models.RoundSuccess(""))).
			AddNode(constNode("same", models.RoundSuccess("")))

		assert.ErrorIs(t, g.Validate(), ErrInvalidGraph)
	})

	t.Run("missing round function", func(t *testing.T) {
		g := NewGraph().AddNode(&Node{Name: "empty"})

		assert.ErrorIs(t, g.Validate(), ErrInvalidGraph)
	})

	t.Run("edge leaving end", func(t *testing.T) {
		a := constNode("a", models.RoundSuccess(""))
		g := NewGraph().AddNode(a).AddEdge(End, a)

		assert.ErrorIs(t, g.Validate(), ErrInvalidGraph)
	})

	t.Run("status outside emits", func(t *testing.T) {
		a := constNode("a", models.RoundSuccess("left"), "left", "right")
		b := constNode("b", models.RoundSuccess(""))
		g := NewGraph().AddEdge(a, b, OnStatus("up"))

		err := g.Validate()
		require.ErrorIs(t, err, ErrInvalidGraph)
		assert.Contains(t, err.Error(), "up")
	})
}

func TestGraph_Match(t *testing.T) {
	check := constNode("check", models.RoundSuccess(""))
	wildcard := constNode("wildcard", models.RoundSuccess(""))
	first := constNode("first", models.RoundSuccess(""))
	second := constNode("second", models.RoundSuccess(""))
	unlabelled := constNode("unlabelled", models.RoundSuccess(""))

	g := NewGraph().
		AddEdge(check, wildcard, AnyStatus()).
		AddEdge(check, first, OnStatus("x")).
		AddEdge(check, second, OnStatus("x")).
		AddEdge(check, unlabelled)

	assert.Same(t, first, g.Match(check, "x").To, "exact match wins, first registered")
	assert.Same(t, unlabelled, g.Match(check, models.StatusNone).To, "none matches the unlabelled edge")
	assert.Same(t, wildcard, g.Match(check, "y").To)
	assert.Nil(t, g.Match(first, "x"))
	assert.Equal(t, "check -[*]-> wildcard", g.Edges(check)[0].String())
}

func TestGraph_Cyclic(t *testing.T) {
	a := constNode("a", models.RoundSuccess(""))
	b := constNode("b", models.RoundSuccess(""))
	c := constNode("c", models.RoundSuccess(""))

	assert.False(t, NewGraph().AddEdge(a, b).AddEdge(b, c).AddEdge(c, End).Cyclic())
	assert.False(t, NewGraph().AddEdge(a, b).AddEdge(a, c).AddEdge(b, c).Cyclic())
	assert.True(t, NewGraph().AddEdge(a, b).AddEdge(b, c).AddEdge(c, a, OnStatus("again")).Cyclic())
	assert.True(t, NewGraph().AddEdge(a, a, OnStatus("self")).Cyclic())
}
