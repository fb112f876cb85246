package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func chain3() *Graph {
	g := NewGraph()
	g.Nodes = []Node{
		NewNode("s", KindStart, Position{}),
		NewNode("a", KindAnswer, Position{}),
		NewNode("b", KindAnswer, Position{}),
		NewNode("e", KindEnd, Position{}),
		NewNode("x", KindAnswer, Position{}),
	}
	g.Edges = []Edge{
		{ID: EdgeID("s", "a"), Source: "s", Target: "a"},
		{ID: EdgeID("a", "b"), Source: "a", Target: "b"},
		{ID: EdgeID("a", "e"), Source: "a", Target: "e"},
		{ID: EdgeID("b", "e"), Source: "b", Target: "e"},
	}
	return g
}

func TestGraph_Lookups(t *testing.T) {
	g := chain3()

	n, ok := g.Node("b")
	assert.True(t, ok)
	assert.Equal(t, KindAnswer, n.Kind)

	_, ok = g.Node("missing")
	assert.False(t, ok)

	out := g.Outgoing("a")
	if assert.Len(t, out, 2) {
		assert.Equal(t, "b", out[0].Target, "insertion order is preserved")
		assert.Equal(t, "e", out[1].Target)
	}
	assert.Len(t, g.Incoming("e"), 2)
	assert.Len(t, g.NodesOfKind(KindAnswer), 3)
	assert.True(t, g.HasEdge("s", "a"))
	assert.False(t, g.HasEdge("a", "s"))
}

func TestGraph_CloneIsDeep(t *testing.T) {
	g := chain3()
	c := g.Clone()

	c.Nodes[0].Data.Label = "changed"
	c.Edges[0].Target = "x"

	assert.Equal(t, "Start", g.Nodes[0].Label())
	assert.Equal(t, "a", g.Edges[0].Target)
}

func TestClosures(t *testing.T) {
	g := chain3()

	fwd := ForwardClosure(g, "s")
	assert.Len(t, fwd, 4)
	assert.False(t, fwd.Has("x"))

	back := BackwardClosure(g, "e")
	assert.Len(t, back, 4)
	assert.True(t, back.Has("s"))
	assert.False(t, back.Has("x"))

	t.Run("idempotent", func(t *testing.T) {
		var seeds []string
		for id := range fwd {
			seeds = append(seeds, id)
		}
		assert.Equal(t, fwd, ForwardClosure(g, seeds...))
	})

	t.Run("seeds without edges", func(t *testing.T) {
		assert.Equal(t, NodeSet{"x": {}}, ForwardClosure(g, "x"))
	})
}

func TestHasCycleFrom(t *testing.T) {
	g := chain3()
	assert.False(t, HasCycleFrom(g, "s"), "diamond is not a cycle")

	g.Edges = append(g.Edges, Edge{ID: EdgeID("b", "a"), Source: "b", Target: "a"})
	assert.True(t, HasCycleFrom(g, "s"))

	// A cycle unreachable from the root does not count.
	g = chain3()
	g.Edges = append(g.Edges, Edge{ID: EdgeID("x", "x"), Source: "x", Target: "x"})
	assert.False(t, HasCycleFrom(g, "s"))
}

func TestExecutionContext_Merge(t *testing.T) {
	c := NewExecutionContext()
	c.Variables["keep"] = 1

	intent := "buy"
	conf := 0.8
	c.Merge(ContextUpdate{
		Variables:        map[string]any{"name": "Ana"},
		CurrentIntent:    &intent,
		IntentConfidence: &conf,
	})

	assert.Equal(t, map[string]any{"keep": 1, "name": "Ana"}, c.Variables)
	assert.Equal(t, "buy", c.CurrentIntent)
	assert.Equal(t, 0.8, *c.IntentConfidence)
	assert.Empty(t, c.UserInput)

	snap := ExecutionState{Context: c, History: []string{"s"}}.Snapshot()
	snap.Context.Variables["name"] = "Bia"
	snap.History[0] = "z"
	assert.Equal(t, "Ana", c.Variables["name"])
}
