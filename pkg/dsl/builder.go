package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Layout of the compiled graph.
const (
	containerID = "subflow-1"
	sideColumnX = 750
	sideStartY  = 50
	sideStepY   = 130
	gridX       = 40
	gridY       = 60
	gridStepX   = 200
	gridStepY   = 120
)

// Builder manages the graph construction.
type Builder struct {
	nodes   []*NodeBuilder
	index   map[string]*NodeBuilder
	version string
	errs    []error
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		index:   make(map[string]*NodeBuilder),
		version: domain.CurrentVersion,
	}
}

// Version sets the format version of the built graph. Version "1.x" flows
// are validated without the Container rules.
func (b *Builder) Version(v string) *Builder {
	b.version = v
	return b
}

// Add declares a node of the given kind. Declaring the same id twice is
// reported by Build.
func (b *Builder) Add(id string, kind domain.NodeKind) *NodeBuilder {
	if _, ok := b.index[id]; ok {
		b.errs = append(b.errs, fmt.Errorf("node %q declared twice", id))
	}
	if !kind.Valid() {
		b.errs = append(b.errs, fmt.Errorf("node %q: unknown kind %q", id, kind))
	}
	nb := &NodeBuilder{node: domain.NewNode(id, kind, domain.Position{}), builder: b}
	b.nodes = append(b.nodes, nb)
	b.index[id] = nb
	return nb
}

// Start declares the Start node.
func (b *Builder) Start(id string) *NodeBuilder {
	return b.Add(id, domain.KindStart)
}

// Container declares the Container explicitly. Build adds one when Questions
// exist and none was declared.
func (b *Builder) Container(id string) *NodeBuilder {
	return b.Add(id, domain.KindContainer)
}

// Question declares a Question asking text.
func (b *Builder) Question(id, text string) *NodeBuilder {
	nb := b.Add(id, domain.KindQuestion)
	nb.node.Payload = &domain.QuestionPayload{Question: text, Required: "yes"}
	return nb
}

// Answer declares a canned answer.
func (b *Builder) Answer(id, text string) *NodeBuilder {
	nb := b.Add(id, domain.KindAnswer)
	nb.node.Payload = &domain.AnswerPayload{Answer: text}
	return nb
}

// Condition declares a two-way branch on variables[variable].
func (b *Builder) Condition(id, variable string, op domain.Operator, value string) *NodeBuilder {
	nb := b.Add(id, domain.KindCondition)
	nb.node.Payload = &domain.ConditionPayload{Condition: &domain.Condition{
		Variable: variable,
		Operator: op,
		Value:    value,
	}}
	return nb
}

// End declares a CTA booking the given meeting type.
func (b *Builder) End(id string, meeting domain.MeetingType) *NodeBuilder {
	nb := b.Add(id, domain.KindEnd)
	nb.node.Payload = &domain.EndPayload{MeetingType: meeting}
	return nb
}

// Build compiles the graph. It reports duplicate ids, unknown kinds, edges to
// undeclared nodes and branch labels on nodes that are not Conditions.
func (b *Builder) Build() (*domain.Graph, error) {
	errs := append([]error(nil), b.errs...)

	g := domain.NewGraph()
	g.Version = b.version

	box := ""
	for _, nb := range b.nodes {
		if nb.node.Is(domain.KindContainer) {
			box = nb.node.ID
			break
		}
	}
	hasQuestions := false
	for _, nb := range b.nodes {
		if nb.node.Is(domain.KindQuestion) {
			hasQuestions = true
			break
		}
	}
	if box == "" && hasQuestions {
		if _, taken := b.index[containerID]; taken {
			errs = append(errs, fmt.Errorf("node id %q is reserved for the container", containerID))
		}
		c := domain.NewNode(containerID, domain.KindContainer, domain.Position{X: 50, Y: 150})
		c.Size = &domain.Size{Width: domain.DefaultContainerWidth, Height: domain.DefaultContainerHeight}
		g.Nodes = append(g.Nodes, c)
		box = containerID
	}

	questions, side := 0, 0
	for _, nb := range b.nodes {
		n := nb.node.Clone()
		switch {
		case nb.placed:
		case n.Is(domain.KindStart):
			n.Position = domain.Position{X: 250, Y: 50}
		case n.Is(domain.KindContainer):
			n.Position = domain.Position{X: 50, Y: 150}
			if n.Size == nil {
				n.Size = &domain.Size{Width: domain.DefaultContainerWidth, Height: domain.DefaultContainerHeight}
			}
		case n.Is(domain.KindQuestion):
			n.Position = domain.Position{
				X: gridX + float64(questions%2)*gridStepX,
				Y: gridY + float64(questions/2)*gridStepY,
			}
		default:
			n.Position = domain.Position{X: sideColumnX, Y: sideStartY + float64(side)*sideStepY}
			side++
		}
		if n.Is(domain.KindQuestion) {
			n.ParentID = box
			questions++
		}
		g.Nodes = append(g.Nodes, n)
	}

	for _, nb := range b.nodes {
		for _, e := range nb.edges {
			if _, ok := b.index[e.Target]; !ok {
				errs = append(errs, fmt.Errorf("edge %s -> %s: target not declared", e.Source, e.Target))
				continue
			}
			if e.BranchLabel != "" && !nb.node.Is(domain.KindCondition) {
				errs = append(errs, fmt.Errorf("node %q: branch %q on a %s node", e.Source, e.BranchLabel, nb.node.Kind))
				continue
			}
			g.Edges = append(g.Edges, e)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return g, nil
}

// MustBuild is Build that panics on error, for fixtures.
func (b *Builder) MustBuild() *domain.Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	edges   []domain.Edge
	placed  bool
	builder *Builder
}

// Label overrides the default label.
func (n *NodeBuilder) Label(label string) *NodeBuilder {
	n.node.Data.Label = label
	return n
}

// At fixes the node position instead of the automatic layout. Question
// positions are relative to the Container.
func (n *NodeBuilder) At(x, y float64) *NodeBuilder {
	n.node.Position = domain.Position{X: x, Y: y}
	n.placed = true
	return n
}

// Payload replaces the kind-specific configuration, e.g. an APICallPayload.
func (n *NodeBuilder) Payload(p domain.Payload) *NodeBuilder {
	if p != nil && p.Kind() != n.node.Kind {
		n.builder.errs = append(n.builder.errs,
			fmt.Errorf("node %q: %s payload on a %s node", n.node.ID, p.Kind(), n.node.Kind))
		return n
	}
	n.node.Payload = p
	return n
}

// Go adds an unconditional edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.edge(target, "")
}

// IfTrue adds the "true" exit of a Condition.
func (n *NodeBuilder) IfTrue(target string) *NodeBuilder {
	return n.edge(target, domain.BranchTrue)
}

// IfFalse adds the "false" exit of a Condition.
func (n *NodeBuilder) IfFalse(target string) *NodeBuilder {
	return n.edge(target, domain.BranchFalse)
}

func (n *NodeBuilder) edge(target, label string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{
		ID:          domain.EdgeID(n.node.ID, target),
		Source:      n.node.ID,
		Target:      target,
		BranchLabel: label,
	})
	return n
}
