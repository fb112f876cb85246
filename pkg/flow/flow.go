// Package flow is the editor state of a chatbot flow. A Flow owns its graph,
// keeps the containment rules after every mutation and drives a simulated run
// over the live graph.
//
// A Flow is not safe for concurrent use. Callers that share one (such as the
// HTTP server) serialize access through pkg/session.
package flow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"regexp"
	"strconv"

	"github.com/aretw0/chatflow/internal/containment"
	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/google/uuid"
)

// Grid used to place new Questions inside the Container.
const (
	questionsPerRow = 2
	gridOriginX     = 40
	gridOriginY     = 60
	gridStepX       = 200
	gridStepY       = 120
)

// Flow is the owned editor state.
type Flow struct {
	graph    *domain.Graph
	enforcer *containment.Enforcer
	interp   *runtime.Interpreter

	logger       *slog.Logger
	newID        func() string
	hooks        domain.LifecycleHooks
	evaluator    runtime.ConditionEvaluator
	validateOpts []validator.Option
}

// Option configures a Flow.
type Option func(*Flow)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithLifecycleHooks registers interpreter hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(f *Flow) {
		f.hooks = hooks
	}
}

// WithConditionEvaluator replaces the built-in Condition operators.
func WithConditionEvaluator(eval runtime.ConditionEvaluator) Option {
	return func(f *Flow) {
		f.evaluator = eval
	}
}

// WithIDGenerator replaces the node id generator.
func WithIDGenerator(gen func() string) Option {
	return func(f *Flow) {
		if gen != nil {
			f.newID = gen
		}
	}
}

// WithValidatorOptions sets the options Validate passes to the validator.
func WithValidatorOptions(opts ...validator.Option) Option {
	return func(f *Flow) {
		f.validateOpts = append(f.validateOpts, opts...)
	}
}

// DefaultGraph is the flow a new editor starts with: a Start node, the
// Questions container and a CTA.
func DefaultGraph() *domain.Graph {
	box := domain.NewNode("subflow-1", domain.KindContainer, domain.Position{X: 50, Y: 150})
	box.Size = &domain.Size{Width: domain.DefaultContainerWidth, Height: domain.DefaultContainerHeight}

	g := domain.NewGraph()
	g.Nodes = []domain.Node{
		domain.NewNode("start-1", domain.KindStart, domain.Position{X: 250, Y: 50}),
		box,
		domain.NewNode("end-1", domain.KindEnd, domain.Position{X: 250, Y: 500}),
	}
	return g
}

// New creates a Flow holding the default graph.
func New(opts ...Option) *Flow {
	return FromGraph(DefaultGraph(), opts...)
}

// FromGraph creates a Flow holding a copy of g. g is trusted to come from a
// Flow: the layout rules are re-checked but the Container keeps its size.
// Call Normalize for graphs from outside, such as files.
func FromGraph(g *domain.Graph, opts ...Option) *Flow {
	f := &Flow{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:  func() string { return "node-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(f)
	}

	f.enforcer = containment.New(containment.WithLogger(f.logger))
	f.interp = runtime.New(
		runtime.GraphFunc(func() *domain.Graph { return f.graph }),
		runtime.WithLogger(f.logger),
		runtime.WithLifecycleHooks(f.hooks),
		runtime.WithConditionEvaluator(f.evaluator),
	)

	if g == nil {
		g = domain.NewGraph()
	}
	f.graph = g.Clone()
	f.graph.Nodes = f.enforcer.Apply(f.graph.Nodes)
	return f
}

// Normalize applies every layout rule to the graph, resizing the Container
// around its Questions.
func (f *Flow) Normalize() {
	f.graph.Nodes = f.enforcer.Normalize(f.graph.Nodes)
}

// Graph returns a copy of the current graph.
func (f *Flow) Graph() *domain.Graph {
	return f.graph.Clone()
}

// Node returns a copy of the node with the given id.
func (f *Flow) Node(id string) (domain.Node, bool) {
	n, ok := f.graph.Node(id)
	if !ok {
		return domain.Node{}, false
	}
	return n.Clone(), true
}

// AddNode creates a node of the given kind.
//
// Start and Container are unique. Questions go into the Container on a
// two-column grid and an End is placed beneath the Container; pos is used for
// every other kind. New nodes get a numbered label ("Question 2") when their
// kind is already present, and are wired up: Start -> Question (-> End) for a
// Question, every Question -> End for an End.
func (f *Flow) AddNode(kind domain.NodeKind, pos domain.Position) (domain.Node, error) {
	if !kind.Valid() {
		return domain.Node{}, fmt.Errorf("add node: unknown kind %q", kind)
	}
	g := f.graph

	if kind == domain.KindStart || kind == domain.KindContainer {
		if _, exists := g.First(kind); exists {
			return domain.Node{}, fmt.Errorf("add %s: %w", kind, domain.ErrDuplicateNode)
		}
	}

	n := domain.NewNode(f.newID(), kind, pos)
	n.Data.Label = uniqueLabel(g, kind)

	box, hasBox := g.First(domain.KindContainer)
	switch kind {
	case domain.KindQuestion:
		if !hasBox {
			return domain.Node{}, fmt.Errorf("add question: container %w", domain.ErrNodeNotFound)
		}
		index := 0
		for _, q := range g.NodesOfKind(domain.KindQuestion) {
			if q.ParentID == box.ID {
				index++
			}
		}
		n.ParentID = box.ID
		n.Position = domain.Position{
			X: gridOriginX + float64(index%questionsPerRow)*gridStepX,
			Y: gridOriginY + float64(index/questionsPerRow)*gridStepY,
		}
	case domain.KindEnd:
		if hasBox {
			size := box.ContainerSize()
			n.Position = domain.Position{
				X: box.Position.X + size.Width/2 - containment.NodeWidth/2,
				Y: box.Position.Y + size.Height + containment.EndBelowGap,
			}
		}
	}

	edges := append([]domain.Edge(nil), g.Edges...)
	connect := func(source, target string) {
		for _, e := range edges {
			if e.Source == source && e.Target == target {
				return
			}
		}
		edges = append(edges, domain.Edge{ID: domain.EdgeID(source, target), Source: source, Target: target})
	}

	switch kind {
	case domain.KindQuestion:
		if start, ok := g.First(domain.KindStart); ok {
			connect(start.ID, n.ID)
			if end, ok := g.First(domain.KindEnd); ok {
				connect(n.ID, end.ID)
			}
		}
	case domain.KindEnd:
		for _, q := range g.NodesOfKind(domain.KindQuestion) {
			connect(q.ID, n.ID)
		}
	}

	g.Nodes = f.enforcer.Apply(g.Nodes, containment.Add(n))
	g.Edges = edges

	added, _ := g.Node(n.ID)
	f.logger.Debug("node added", "node", n.ID, "kind", kind)
	return added.Clone(), nil
}

// uniqueLabel numbers the base label of kind past the highest number in use.
func uniqueLabel(g *domain.Graph, kind domain.NodeKind) string {
	base := kind.BaseLabel()
	if kind == domain.KindStart || kind == domain.KindContainer {
		return base
	}
	existing := g.NodesOfKind(kind)
	if len(existing) == 0 {
		return base
	}

	re := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `\s*(\d+)?$`)

	highest := 0
	for _, n := range existing {
		m := re.FindStringSubmatch(n.Label())
		if m == nil {
			continue
		}
		num := 1
		if m[1] != "" {
			num, _ = strconv.Atoi(m[1])
		}
		highest = max(highest, num)
	}
	if highest == 0 {
		highest = 1
	}
	return base + " " + strconv.Itoa(highest+1)
}

// UpdateNodeData merges patch into the data of the node, the way the export
// format lays it out. Keys not in patch are kept.
func (f *Flow) UpdateNodeData(id string, patch map[string]any) (domain.Node, error) {
	i := f.indexOf(id)
	if i < 0 {
		return domain.Node{}, fmt.Errorf("update %s: %w", id, domain.ErrNodeNotFound)
	}
	n := f.graph.Nodes[i]

	data, err := n.DataMap()
	if err != nil {
		return domain.Node{}, fmt.Errorf("update %s: %w", id, err)
	}
	maps.Copy(data, patch)

	updated, err := n.WithDataMap(data)
	if err != nil {
		return domain.Node{}, fmt.Errorf("update %s: %w", id, err)
	}
	f.graph.Nodes[i] = updated
	return updated.Clone(), nil
}

// MoveNode places a node at pos and restores the layout rules, which may
// move it again.
func (f *Flow) MoveNode(id string, pos domain.Position) (domain.Node, error) {
	if f.indexOf(id) < 0 {
		return domain.Node{}, fmt.Errorf("move %s: %w", id, domain.ErrNodeNotFound)
	}
	f.graph.Nodes = f.enforcer.Apply(f.graph.Nodes, containment.Move(id, pos))
	n, _ := f.graph.Node(id)
	return n.Clone(), nil
}

// ResizeContainer sets the Container size by hand. Auto-sizing is skipped
// for this mutation.
func (f *Flow) ResizeContainer(size domain.Size) error {
	box, ok := f.graph.First(domain.KindContainer)
	if !ok {
		return fmt.Errorf("resize: container %w", domain.ErrNodeNotFound)
	}
	f.graph.Nodes = f.enforcer.Apply(f.graph.Nodes, containment.Resize(box.ID, size))
	return nil
}

// DeleteNode removes a node and its edges. Every node that led into it is
// connected to every node it led to, skipping connections that already exist.
func (f *Flow) DeleteNode(id string) error {
	if f.indexOf(id) < 0 {
		return fmt.Errorf("delete %s: %w", id, domain.ErrNodeNotFound)
	}
	g := f.graph
	incoming := g.Incoming(id)
	outgoing := g.Outgoing(id)

	edges := make([]domain.Edge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if e.Source != id && e.Target != id {
			edges = append(edges, e)
		}
	}

	for _, in := range incoming {
		for _, out := range outgoing {
			exists := false
			for _, e := range edges {
				if e.Source == in.Source && e.Target == out.Target {
					exists = true
					break
				}
			}
			if exists {
				continue
			}
			edges = append(edges, domain.Edge{
				ID:          domain.EdgeID(in.Source, out.Target),
				Source:      in.Source,
				Target:      out.Target,
				BranchLabel: in.BranchLabel,
			})
		}
	}

	g.Nodes = f.enforcer.Apply(g.Nodes, containment.Remove(id))
	g.Edges = edges
	f.logger.Debug("node deleted", "node", id, "reconnected", len(incoming)*len(outgoing))
	return nil
}

// Connect adds an edge. branch is the "true"/"false" label of a Condition
// exit and empty otherwise. Connections that would break the flow structure
// are rejected with domain.ErrConnectionRejected.
func (f *Flow) Connect(source, target, branch string) (domain.Edge, error) {
	src, ok := f.graph.Node(source)
	if !ok {
		return domain.Edge{}, fmt.Errorf("connect: source %s: %w", source, domain.ErrNodeNotFound)
	}
	dst, ok := f.graph.Node(target)
	if !ok {
		return domain.Edge{}, fmt.Errorf("connect: target %s: %w", target, domain.ErrNodeNotFound)
	}

	reject := func(reason string) (domain.Edge, error) {
		f.logger.Warn("connection rejected", "source", source, "target", target, "reason", reason)
		return domain.Edge{}, fmt.Errorf("%w: %s", domain.ErrConnectionRejected, reason)
	}

	switch {
	case src.Is(domain.KindStart) && dst.Is(domain.KindEnd):
		return reject("start node cannot connect directly to an end node")
	case src.Is(domain.KindContainer) || dst.Is(domain.KindContainer):
		return reject("the container cannot be connected")
	case dst.Is(domain.KindEnd) && dst.ParentID != "":
		return reject("end nodes cannot be placed inside the container")
	case f.graph.HasEdge(source, target):
		return reject("connection already exists")
	}

	e := domain.Edge{ID: domain.EdgeID(source, target), Source: source, Target: target, BranchLabel: branch}
	f.graph.Edges = append(f.graph.Edges, e)
	return e, nil
}

// Disconnect removes the edge with the given id.
func (f *Flow) Disconnect(edgeID string) error {
	for i, e := range f.graph.Edges {
		if e.ID == edgeID {
			f.graph.Edges = append(f.graph.Edges[:i], f.graph.Edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("disconnect %s: %w", edgeID, domain.ErrEdgeNotFound)
}

// Validate runs the structural validator on the current graph.
func (f *Flow) Validate() validator.Result {
	return validator.Validate(f.graph, f.validateOpts...)
}

// Export renders the graph in the export format.
func (f *Flow) Export() ([]byte, error) {
	return domain.EncodeGraph(f.graph)
}

// Import replaces the whole graph with the serialized flow in data. On error
// the current graph is left untouched.
func (f *Flow) Import(data []byte) error {
	g, err := domain.DecodeGraph(data)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	g.Nodes = f.enforcer.Normalize(g.Nodes)
	f.graph = g
	f.logger.Debug("flow imported", "nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

func (f *Flow) indexOf(id string) int {
	for i := range f.graph.Nodes {
		if f.graph.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// Start begins a simulated run at the Start node.
func (f *Flow) Start(ctx context.Context) { f.interp.Start(ctx) }

// Pause holds the run.
func (f *Flow) Pause() { f.interp.Pause() }

// Resume releases a paused run.
func (f *Flow) Resume() { f.interp.Resume() }

// Stop discards the run.
func (f *Flow) Stop() { f.interp.Stop() }

// Step advances the run by one node.
func (f *Flow) Step(ctx context.Context) { f.interp.Step(ctx) }

// UpdateContext merges u into the run context.
func (f *Flow) UpdateContext(u domain.ContextUpdate) { f.interp.UpdateContext(u) }

// SendMessage records a user message and advances one node.
func (f *Flow) SendMessage(ctx context.Context, message string) { f.interp.SendMessage(ctx, message) }

// Execution returns a snapshot of the run.
func (f *Flow) Execution() domain.ExecutionState { return f.interp.State() }

// CurrentNode returns the node the run is positioned on.
func (f *Flow) CurrentNode() (domain.Node, bool) { return f.interp.CurrentNode() }

// RestoreExecution replaces the run state, e.g. when loading a saved session.
func (f *Flow) RestoreExecution(state domain.ExecutionState) { f.interp.Restore(state) }
