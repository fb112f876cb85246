package containment

import (
	"testing"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(id string, kind domain.NodeKind, x, y float64) domain.Node {
	return domain.NewNode(id, kind, domain.Position{X: x, Y: y})
}

func child(id string, x, y float64) domain.Node {
	n := at(id, domain.KindQuestion, x, y)
	n.ParentID = "box"
	return n
}

// layout has a 600x500 container at (100,100).
func layout(extra ...domain.Node) []domain.Node {
	box := at("box", domain.KindContainer, 100, 100)
	box.Size = &domain.Size{Width: 600, Height: 500}
	return append([]domain.Node{at("start", domain.KindStart, 250, -100), box}, extra...)
}

func find(t *testing.T, nodes []domain.Node, id string) domain.Node {
	t.Helper()
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	require.Failf(t, "node not found", "id %s", id)
	return domain.Node{}
}

func TestApply_PushesOverlappingNodeOut(t *testing.T) {
	e := New()
	// Fully inside the container, left of center.
	nodes := layout(at("ans", domain.KindAnswer, 150, 300))

	out := e.Apply(nodes)
	got := find(t, out, "ans")

	assert.Equal(t, 100.0-NodeWidth-PushGap, got.Position.X)
	assert.Equal(t, 300.0, got.Position.Y)

	box := rect{100, 100, 600, 500}
	assert.False(t, rect{got.Position.X, got.Position.Y, NodeWidth, NodeHeight}.overlaps(box))
}

func TestApply_PushDirection(t *testing.T) {
	e := New()
	tests := []struct {
		name    string
		x, y    float64
		wantPos domain.Position
	}{
		{"right half", 500, 320, domain.Position{X: 100 + 600 + PushGap, Y: 320}},
		{"top band", 310, 110, domain.Position{X: 310, Y: 100 - NodeHeight - PushGap}},
		{"bottom band", 310, 480, domain.Position{X: 310, Y: 100 + 500 + PushGap}},
		{"dead center moves vertically", 310, 300, domain.Position{X: 310, Y: 100 + 500 + PushGap}},
		{"partial overlap on the left edge", 0, 300, domain.Position{X: 100 - NodeWidth - PushGap, Y: 300}},
		{"outside is left alone", -200, 300, domain.Position{X: -200, Y: 300}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Apply(layout(at("n", domain.KindDelay, tt.x, tt.y)))
			assert.Equal(t, tt.wantPos, find(t, out, "n").Position)
		})
	}
}

func TestApply_DetachesEndFromContainer(t *testing.T) {
	e := New()
	end := at("cta", domain.KindEnd, 50, 50)
	end.ParentID = "box"

	out := e.Apply(layout(end))
	got := find(t, out, "cta")

	assert.Empty(t, got.ParentID)
	assert.Equal(t, domain.Position{X: 100 + 300 - 90, Y: 100 + 500 + EndBelowGap}, got.Position)
}

func TestApply_PlacesEndBelowResizedContainer(t *testing.T) {
	e := New()
	end := at("cta", domain.KindEnd, 50, 50)
	end.ParentID = "box"
	nodes := layout(child("q1", 40, 60), end)

	// q2 is clamped to (400,380) first, which grows the box to 680x640.
	out := e.Apply(nodes, Add(child("q2", 700, 600)))
	require.Equal(t, domain.Size{Width: 680, Height: 640}, *find(t, out, "box").Size)

	got := find(t, out, "cta")
	assert.Empty(t, got.ParentID)
	assert.Equal(t, domain.Position{X: 100 + 340 - 90, Y: 100 + 640 + EndBelowGap}, got.Position)
}

func TestApply_ClampsQuestions(t *testing.T) {
	e := New()
	nodes := layout(child("q1", -50, 10), child("q2", 1000, 1000))

	// A manual resize keeps the container at 600x500 while the clamp runs.
	out := e.Apply(nodes, Resize("box", domain.Size{Width: 600, Height: 500}))

	assert.Equal(t, domain.Position{X: 20, Y: 60}, find(t, out, "q1").Position)
	assert.Equal(t, domain.Position{X: 600 - 180 - 20, Y: 500 - 100 - 20}, find(t, out, "q2").Position)
	assert.Equal(t, domain.Size{Width: 600, Height: 500}, *find(t, out, "box").Size)
}

func TestApply_AutoResize(t *testing.T) {
	e := New()
	nodes := layout(child("q1", 40, 60))

	t.Run("grows around moved question", func(t *testing.T) {
		big := domain.Size{Width: 2000, Height: 2000}
		nodes := e.Apply(nodes, Resize("box", big))
		require.Equal(t, big, *find(t, nodes, "box").Size)

		out := e.Apply(nodes, Move("q1", domain.Position{X: 900, Y: 700}))
		assert.Equal(t, domain.Size{Width: 900 + 200 + 80, Height: 700 + 120 + 60 + 80}, *find(t, out, "box").Size)
	})

	t.Run("floors at the minimum size", func(t *testing.T) {
		out := e.Apply(nodes, Add(child("q2", 240, 60)))
		assert.Equal(t, domain.Size{Width: 600, Height: 500}, *find(t, out, "box").Size)
	})

	t.Run("empty container", func(t *testing.T) {
		out := e.Apply(nodes, Remove("q1"))
		assert.Equal(t, domain.Size{Width: 500, Height: 400}, find(t, out, "box").ContainerSize())
	})

	t.Run("manual resize wins", func(t *testing.T) {
		small := domain.Size{Width: 300, Height: 200}
		out := e.Apply(nodes, Move("q1", domain.Position{X: 40, Y: 60}), Resize("box", small))
		assert.Equal(t, small, *find(t, out, "box").Size)
	})

	t.Run("non-question moves do not resize", func(t *testing.T) {
		big := domain.Size{Width: 2000, Height: 2000}
		sized := e.Apply(nodes, Resize("box", big))
		out := e.Apply(sized, Move("start", domain.Position{X: -500, Y: -500}))
		assert.Equal(t, big, *find(t, out, "box").Size)
	})
}

func TestApply_Idempotent(t *testing.T) {
	e := New()
	end := at("cta", domain.KindEnd, 0, 0)
	end.ParentID = "box"
	nodes := layout(child("q1", -400, 10), child("q2", 500, 900), end, at("ans", domain.KindAnswer, 300, 300))
	change := Move("q2", domain.Position{X: 500, Y: 900})

	once := e.Apply(nodes, change)
	assert.Equal(t, once, e.Apply(once))
	assert.Equal(t, once, e.Normalize(once))
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	e := New()
	nodes := layout(at("ans", domain.KindAnswer, 150, 300))
	before := cloneNodes(nodes)

	_ = e.Apply(nodes, Move("ans", domain.Position{X: 200, Y: 200}))
	assert.Equal(t, before, nodes)
}

func TestApply_WithoutContainer(t *testing.T) {
	e := New()
	nodes := []domain.Node{at("start", domain.KindStart, 0, 0), at("q", domain.KindQuestion, 10, 10)}
	assert.Equal(t, nodes, e.Apply(nodes))
}

func TestFitSize(t *testing.T) {
	assert.Equal(t, domain.Size{Width: 500, Height: 400}, FitSize(nil))
	assert.Equal(t,
		domain.Size{Width: 700 + 200 - (-100) + 80, Height: 500},
		FitSize([]domain.Position{{X: -100, Y: 60}, {X: 700, Y: 60}}),
	)
}
