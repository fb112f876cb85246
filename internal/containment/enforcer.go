// Package containment keeps the Question container and its neighbours in a
// consistent layout after every node mutation.
package containment

import (
	"io"
	"log/slog"
	"math"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Auto-resize geometry.
const (
	questionWidth  = 200
	questionHeight = 120
	resizePadding  = 40
	resizeHeader   = 60
	minContainerW  = domain.DefaultContainerWidth
	minContainerH  = domain.DefaultContainerHeight

	// An empty Container shrinks below the minimum used around Questions.
	emptyContainerW = 500
	emptyContainerH = 400
)

// Boundary geometry, in canvas units. Every node is treated as a
// NodeWidth x NodeHeight box.
const (
	NodeWidth    = 180
	NodeHeight   = 100
	clampPadding = 20
	clampHeader  = 40
	PushGap      = 20
	EndBelowGap  = 50
)

// ChangeKind identifies a node mutation.
type ChangeKind string

const (
	ChangeAdd        ChangeKind = "add"
	ChangeRemove     ChangeKind = "remove"
	ChangePosition   ChangeKind = "position"
	ChangeDimensions ChangeKind = "dimensions"
	ChangeReplace    ChangeKind = "replace"
)

// Change is a single node mutation. Which fields are read depends on Kind:
// Add and Replace use Node, Remove uses ID, Position uses ID and Position,
// Dimensions uses ID and Size.
type Change struct {
	Kind     ChangeKind
	ID       string
	Node     domain.Node
	Position domain.Position
	Size     domain.Size
}

// Add returns a change inserting n.
func Add(n domain.Node) Change { return Change{Kind: ChangeAdd, ID: n.ID, Node: n} }

// Remove returns a change deleting the node id.
func Remove(id string) Change { return Change{Kind: ChangeRemove, ID: id} }

// Move returns a change placing the node id at pos.
func Move(id string, pos domain.Position) Change {
	return Change{Kind: ChangePosition, ID: id, Position: pos}
}

// Resize returns a change setting the explicit size of the node id.
func Resize(id string, size domain.Size) Change {
	return Change{Kind: ChangeDimensions, ID: id, Size: size}
}

// Replace returns a change swapping the node with the same id for n.
func Replace(n domain.Node) Change { return Change{Kind: ChangeReplace, ID: n.ID, Node: n} }

// Enforcer restores the containment and layout rules of a node set.
type Enforcer struct {
	logger *slog.Logger
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enforcer) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Enforcer.
func New(opts ...Option) *Enforcer {
	e := &Enforcer{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply applies changes to nodes and then restores the layout rules:
//
//  1. Questions inside the Container are clamped into its padded bounds.
//  2. The Container is resized around its Questions, unless the change set
//     resizes the Container explicitly.
//  3. End nodes parented to the Container are detached and placed beneath
//     its final bounds.
//  4. Other top-level nodes overlapping the Container are pushed outside it.
//
// The input slice is not modified. Applying the result again without
// changes leaves it untouched.
func (e *Enforcer) Apply(nodes []domain.Node, changes ...Change) []domain.Node {
	out := cloneNodes(nodes)
	for _, c := range changes {
		out = applyChange(out, c)
	}
	return e.enforce(out, needsResize(out, changes))
}

// Normalize restores the layout rules of a whole node set, resizing the
// Container unconditionally. It is used when a graph is loaded or replaced.
func (e *Enforcer) Normalize(nodes []domain.Node) []domain.Node {
	return e.enforce(cloneNodes(nodes), true)
}

func (e *Enforcer) enforce(nodes []domain.Node, resize bool) []domain.Node {
	nodes = clampQuestions(nodes)
	if resize {
		nodes = e.resizeContainers(nodes)
	}
	nodes = e.detachEnds(nodes)
	return e.pushOut(nodes)
}

func cloneNodes(nodes []domain.Node) []domain.Node {
	out := make([]domain.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

func indexOf(nodes []domain.Node, id string) int {
	for i := range nodes {
		if nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func applyChange(nodes []domain.Node, c Change) []domain.Node {
	i := indexOf(nodes, c.ID)
	switch c.Kind {
	case ChangeAdd:
		if i >= 0 {
			nodes[i] = c.Node.Clone()
			return nodes
		}
		return append(nodes, c.Node.Clone())
	case ChangeRemove:
		if i >= 0 {
			return append(nodes[:i], nodes[i+1:]...)
		}
	case ChangePosition:
		if i >= 0 {
			nodes[i].Position = c.Position
		}
	case ChangeDimensions:
		if i >= 0 {
			size := c.Size
			nodes[i].Size = &size
		}
	case ChangeReplace:
		if i >= 0 {
			nodes[i] = c.Node.Clone()
		}
	}
	return nodes
}

// needsResize reports whether the Container should be auto-sized after
// changes. A manual resize of a Container always wins.
func needsResize(nodes []domain.Node, changes []Change) bool {
	kindOf := func(id string) domain.NodeKind {
		if i := indexOf(nodes, id); i >= 0 {
			return nodes[i].Kind
		}
		return ""
	}

	trigger := false
	for _, c := range changes {
		switch c.Kind {
		case ChangeDimensions:
			if kindOf(c.ID) == domain.KindContainer {
				return false
			}
		case ChangePosition:
			if kindOf(c.ID) == domain.KindQuestion {
				trigger = true
			}
		case ChangeAdd, ChangeRemove, ChangeReplace:
			trigger = true
		}
	}
	return trigger
}

func container(nodes []domain.Node) (domain.Node, bool) {
	for _, n := range nodes {
		if n.Is(domain.KindContainer) {
			return n, true
		}
	}
	return domain.Node{}, false
}

func (e *Enforcer) detachEnds(nodes []domain.Node) []domain.Node {
	box, ok := container(nodes)
	if !ok {
		return nodes
	}
	size := box.ContainerSize()

	for i := range nodes {
		n := &nodes[i]
		if !n.Is(domain.KindEnd) || n.ParentID != box.ID {
			continue
		}
		e.logger.Warn("moving end node outside the container", "node", n.ID, "container", box.ID)
		n.ParentID = ""
		n.Position = domain.Position{
			X: box.Position.X + size.Width/2 - NodeWidth/2,
			Y: box.Position.Y + size.Height + EndBelowGap,
		}
	}
	return nodes
}

func clampQuestions(nodes []domain.Node) []domain.Node {
	box, ok := container(nodes)
	if !ok {
		return nodes
	}
	size := box.ContainerSize()

	for i := range nodes {
		n := &nodes[i]
		if !n.Is(domain.KindQuestion) || n.ParentID != box.ID {
			continue
		}
		n.Position = domain.Position{
			X: math.Max(clampPadding, math.Min(n.Position.X, size.Width-NodeWidth-clampPadding)),
			Y: math.Max(clampPadding+clampHeader, math.Min(n.Position.Y, size.Height-NodeHeight-clampPadding)),
		}
	}
	return nodes
}

// FitSize computes the size a Container needs to hold the Questions at the
// given relative positions.
func FitSize(positions []domain.Position) domain.Size {
	if len(positions) == 0 {
		return domain.Size{Width: emptyContainerW, Height: emptyContainerH}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range positions {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X+questionWidth)
		maxY = math.Max(maxY, p.Y+questionHeight)
	}

	width := math.Max(maxX-math.Min(minX, 0)+resizePadding*2, resizePadding*2+questionWidth)
	height := math.Max(maxY-math.Min(minY, 0)+resizeHeader+resizePadding*2, resizeHeader+resizePadding*2+questionHeight)

	return domain.Size{
		Width:  math.Max(width, minContainerW),
		Height: math.Max(height, minContainerH),
	}
}

func (e *Enforcer) resizeContainers(nodes []domain.Node) []domain.Node {
	for i := range nodes {
		box := &nodes[i]
		if !box.Is(domain.KindContainer) {
			continue
		}

		var positions []domain.Position
		for _, n := range nodes {
			if n.Is(domain.KindQuestion) && n.ParentID == box.ID {
				positions = append(positions, n.Position)
			}
		}

		want := FitSize(positions)
		if box.ContainerSize() != want {
			e.logger.Debug("resizing container", "node", box.ID, "width", want.Width, "height", want.Height)
			box.Size = &want
		}
	}
	return nodes
}

// rect is an axis-aligned box in absolute canvas coordinates.
type rect struct {
	x, y, w, h float64
}

func (r rect) overlaps(o rect) bool {
	return r.x < o.x+o.w && o.x < r.x+r.w &&
		r.y < o.y+o.h && o.y < r.y+r.h
}

func (e *Enforcer) pushOut(nodes []domain.Node) []domain.Node {
	box, ok := container(nodes)
	if !ok {
		return nodes
	}
	size := box.ContainerSize()
	bounds := rect{box.Position.X, box.Position.Y, size.Width, size.Height}
	cx, cy := bounds.x+bounds.w/2, bounds.y+bounds.h/2

	for i := range nodes {
		n := &nodes[i]
		if n.Is(domain.KindQuestion) || n.Is(domain.KindContainer) || n.ParentID != "" {
			continue
		}
		r := rect{n.Position.X, n.Position.Y, NodeWidth, NodeHeight}
		if !r.overlaps(bounds) {
			continue
		}

		nx, ny := r.x+r.w/2, r.y+r.h/2
		// Ties move vertically.
		if math.Abs(nx-cx) > math.Abs(ny-cy) {
			if nx < cx {
				n.Position.X = bounds.x - NodeWidth - PushGap
			} else {
				n.Position.X = bounds.x + bounds.w + PushGap
			}
		} else {
			if ny < cy {
				n.Position.Y = bounds.y - NodeHeight - PushGap
			} else {
				n.Position.Y = bounds.y + bounds.h + PushGap
			}
		}
		e.logger.Debug("pushed node outside the container", "node", n.ID, "x", n.Position.X, "y", n.Position.Y)
	}
	return nodes
}
