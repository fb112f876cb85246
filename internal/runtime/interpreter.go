package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
)

// MsgFlowIncomplete is the message recorded when a step finds no edge to follow.
const MsgFlowIncomplete = "No next node found - flow incomplete"

// UserInputVariable is the variable SendMessage stores the message under.
const UserInputVariable = "user_input"

// GraphSource gives the interpreter the graph as it is right now. The graph
// may change between steps; each Step reads it afresh.
type GraphSource interface {
	Graph() *domain.Graph
}

// GraphFunc adapts a function to GraphSource.
type GraphFunc func() *domain.Graph

// Graph calls f.
func (f GraphFunc) Graph() *domain.Graph { return f() }

// StaticGraph is a GraphSource over a fixed graph.
func StaticGraph(g *domain.Graph) GraphSource {
	return GraphFunc(func() *domain.Graph { return g })
}

// Interpreter walks a flow one node per Step.
// It is not safe for concurrent use; callers serialize access.
type Interpreter struct {
	source    GraphSource
	state     domain.ExecutionState
	evaluator ConditionEvaluator
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(i *Interpreter) {
		i.hooks = hooks
	}
}

// WithConditionEvaluator replaces the built-in Condition operators.
func WithConditionEvaluator(eval ConditionEvaluator) Option {
	return func(i *Interpreter) {
		if eval != nil {
			i.evaluator = eval
		}
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New creates an idle interpreter reading its graph from source.
func New(source GraphSource, opts ...Option) *Interpreter {
	i := &Interpreter{
		source:    source,
		state:     domain.NewExecutionState(),
		evaluator: DefaultEvaluator,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interpreter) graph() *domain.Graph {
	if i.source == nil {
		return domain.NewGraph()
	}
	if g := i.source.Graph(); g != nil {
		return g
	}
	return domain.NewGraph()
}

// State returns a snapshot of the execution state.
func (i *Interpreter) State() domain.ExecutionState {
	return i.state.Snapshot()
}

// Restore replaces the execution state, e.g. after loading a session.
func (i *Interpreter) Restore(state domain.ExecutionState) {
	i.state = state.Snapshot()
}

// CurrentNode returns the node the run is positioned on.
func (i *Interpreter) CurrentNode() (domain.Node, bool) {
	if i.state.CurrentNodeID == "" {
		return domain.Node{}, false
	}
	return i.graph().Node(i.state.CurrentNodeID)
}

// Start begins a run at the Start node with an empty context.
// Without a Start node the state is reset: not running, no current node.
func (i *Interpreter) Start(ctx context.Context) {
	start, ok := i.graph().First(domain.KindStart)
	if !ok {
		i.logger.Warn("cannot start execution: flow has no start node")
		i.state = domain.NewExecutionState()
		return
	}

	i.state = domain.ExecutionState{
		Running:       true,
		CurrentNodeID: start.ID,
		History:       []string{start.ID},
		Context:       domain.NewExecutionContext(),
	}
	i.logger.Debug("execution started", "node", start.ID)
	i.emitNodeEnter(ctx, start)
}

// Pause holds the run at its current node. It only applies while running.
func (i *Interpreter) Pause() {
	if i.state.Running {
		i.state.Paused = true
	}
}

// Resume releases a paused run.
func (i *Interpreter) Resume() {
	if i.state.Running {
		i.state.Paused = false
	}
}

// Stop discards the run and returns to the idle state. It is always safe.
func (i *Interpreter) Stop() {
	i.state = domain.NewExecutionState()
	i.logger.Debug("execution stopped")
}

// UpdateContext merges u into the execution context. It works in any state.
func (i *Interpreter) UpdateContext(u domain.ContextUpdate) {
	i.state.Context.Merge(u)
}

// SendMessage records a user message as both the current input and the
// "user_input" variable, then advances one step.
func (i *Interpreter) SendMessage(ctx context.Context, message string) {
	i.UpdateContext(domain.ContextUpdate{
		UserInput: &message,
		Variables: map[string]any{UserInputVariable: message},
	})
	i.Step(ctx)
}

// Step advances the run by one node.
//
// A Condition node follows the edge whose branch label matches the evaluated
// rule. An End node finishes the run. Any other node follows its first
// outgoing edge in insertion order. When no edge applies the run halts with
// LastError set and the current node is kept for inspection.
//
// Step does nothing unless the run is active, not paused and positioned on a node.
func (i *Interpreter) Step(ctx context.Context) {
	if !i.state.Running || i.state.Paused || i.state.CurrentNodeID == "" {
		return
	}

	g := i.graph()
	current, ok := g.Node(i.state.CurrentNodeID)
	if !ok {
		i.halt(ctx, i.state.CurrentNodeID, fmt.Sprintf("Current node %q no longer exists in the flow", i.state.CurrentNodeID))
		return
	}

	var (
		next    string
		outcome string
	)
	switch current.Kind {
	case domain.KindEnd:
		i.emitNodeLeave(ctx, current)
		i.state.Running = false
		i.state.CurrentNodeID = ""
		i.logger.Debug("execution completed", "node", current.ID)
		i.emitHalt(ctx, current.ID, "")
		return

	case domain.KindCondition:
		result := false
		if p, ok := domain.PayloadAs[*domain.ConditionPayload](current); ok && p.Condition != nil {
			result = i.evaluator(*p.Condition, i.state.Context)
		}
		outcome = domain.BranchFalse
		if result {
			outcome = domain.BranchTrue
		}
		for _, e := range g.Outgoing(current.ID) {
			if e.BranchLabel == outcome {
				next = e.Target
				break
			}
		}

	default:
		if out := g.Outgoing(current.ID); len(out) > 0 {
			next = out[0].Target
		}
	}

	if next == "" {
		i.halt(ctx, current.ID, MsgFlowIncomplete)
		return
	}

	i.emitNodeLeave(ctx, current)
	i.state.CurrentNodeID = next
	i.state.History = append(i.state.History, next)

	attrs := []any{"from", current.ID, "to", next}
	if outcome != "" {
		attrs = append(attrs, "branch", outcome)
	}
	i.logger.Debug("step", attrs...)

	if n, ok := g.Node(next); ok {
		i.emitNodeEnter(ctx, n)
	}
}

func (i *Interpreter) halt(ctx context.Context, nodeID, reason string) {
	i.state.Running = false
	i.state.LastError = reason
	i.logger.Warn("execution halted", "node", nodeID, "reason", reason)
	i.emitHalt(ctx, nodeID, reason)
}

func (i *Interpreter) emitNodeEnter(ctx context.Context, n domain.Node) {
	if i.hooks.OnNodeEnter != nil {
		i.hooks.OnNodeEnter(ctx, nodeEvent(domain.EventNodeEnter, n))
	}
}

func (i *Interpreter) emitNodeLeave(ctx context.Context, n domain.Node) {
	if i.hooks.OnNodeLeave != nil {
		i.hooks.OnNodeLeave(ctx, nodeEvent(domain.EventNodeLeave, n))
	}
}

func (i *Interpreter) emitHalt(ctx context.Context, nodeID, reason string) {
	if i.hooks.OnHalt != nil {
		i.hooks.OnHalt(ctx, &domain.HaltEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventHalt},
			NodeID:    nodeID,
			Reason:    reason,
		})
	}
}

func nodeEvent(t domain.EventType, n domain.Node) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: t},
		NodeID:    n.ID,
		NodeKind:  n.Kind,
	}
}
