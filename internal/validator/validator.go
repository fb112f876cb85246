package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// IssueKind classifies a validation message so callers can react without
// parsing the text.
type IssueKind string

const (
	IssueDuplicateID        IssueKind = "duplicate_id"
	IssueDanglingEdge       IssueKind = "dangling_edge"
	IssueMissingStart       IssueKind = "missing_start"
	IssueMultipleStart      IssueKind = "multiple_start"
	IssueMissingContainer   IssueKind = "missing_container"
	IssueMultipleContainer  IssueKind = "multiple_container"
	IssueMissingEnd         IssueKind = "missing_end"
	IssueMissingQuestion    IssueKind = "missing_question"
	IssueOutsideContainer   IssueKind = "outside_container"
	IssueForeignInContainer IssueKind = "foreign_in_container"
	IssueEndInContainer     IssueKind = "end_in_container"
	IssueStartToEnd         IssueKind = "start_to_end"
	IssueDisconnected       IssueKind = "disconnected"
	IssueStartUnconnected   IssueKind = "start_unconnected"
	IssueEndUnreached       IssueKind = "end_unreached"
	IssueUnreachable        IssueKind = "unreachable"
	IssueDeadEnd            IssueKind = "dead_end"
	IssueCycle              IssueKind = "cycle"
	IssueConditionBranches  IssueKind = "condition_branches"
	IssueAmbiguousBranching IssueKind = "ambiguous_branching"
)

// Issue is a single structural problem. NodeID is empty for flow-level issues.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	NodeID  string    `json:"nodeId,omitempty"`
	Message string    `json:"message"`
}

// Result is the outcome of Validate. Errors mirrors the messages of Issues,
// in the same order.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
	Issues []Issue  `json:"issues"`
}

// Err returns nil for a valid result, otherwise an error wrapping
// domain.ErrInvalidFlow that lists every message.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: found %d errors:\n- %s", domain.ErrInvalidFlow, len(r.Errors), strings.Join(r.Errors, "\n- "))
}

// Has reports whether the result contains an issue of the given kind.
func (r Result) Has(kind IssueKind) bool {
	for _, i := range r.Issues {
		if i.Kind == kind {
			return true
		}
	}
	return false
}

type options struct {
	container       *bool
	strictBranching bool
}

// Option configures Validate.
type Option func(*options)

// WithContainer forces the Container requirement on or off. By default it is
// required unless the graph declares a 1.x format version.
func WithContainer(required bool) Option {
	return func(o *options) {
		o.container = &required
	}
}

// WithStrictBranching reports non-Condition nodes with more than one outgoing
// edge. The interpreter only ever follows the first of them.
func WithStrictBranching() Option {
	return func(o *options) {
		o.strictBranching = true
	}
}

// containerRequired decides the Container rule for g.
func (o options) containerRequired(g *domain.Graph) bool {
	if o.container != nil {
		return *o.container
	}
	v := strings.TrimSpace(g.Version)
	return !(v == "1" || strings.HasPrefix(v, "1."))
}

type collector struct {
	issues []Issue
}

func (c *collector) add(kind IssueKind, nodeID, format string, args ...any) {
	c.issues = append(c.issues, Issue{Kind: kind, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
}

// Validate inspects the structure of g and reports every rule it breaks.
// It never mutates g and always returns the same result for the same graph.
func Validate(g *domain.Graph, opts ...Option) Result {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if g == nil {
		g = domain.NewGraph()
	}

	c := &collector{}

	checkIntegrity(c, g)

	starts := g.NodesOfKind(domain.KindStart)
	containers := g.NodesOfKind(domain.KindContainer)
	ends := g.NodesOfKind(domain.KindEnd)
	questions := g.NodesOfKind(domain.KindQuestion)
	containerRequired := o.containerRequired(g)

	// Cardinality
	switch {
	case len(starts) == 0:
		c.add(IssueMissingStart, "", "Flow must have a Start node")
	case len(starts) > 1:
		c.add(IssueMultipleStart, starts[1].ID, "Flow can only have one Start node")
	}
	if containerRequired {
		switch {
		case len(containers) == 0:
			c.add(IssueMissingContainer, "", "Flow must have a SubFlow container")
		case len(containers) > 1:
			c.add(IssueMultipleContainer, containers[1].ID, "Flow can only have one SubFlow container")
		}
	}
	if len(ends) == 0 {
		c.add(IssueMissingEnd, "", "Flow must have at least one CTA node")
	}
	if len(questions) == 0 {
		c.add(IssueMissingQuestion, "", "Please add at least one Question node to create a valid flow")
	}

	checkContainment(c, g, containers, questions, ends)

	// Start must not skip the questions.
	if len(starts) > 0 && len(ends) > 0 {
		for _, e := range g.Outgoing(starts[0].ID) {
			if n, ok := g.Node(e.Target); ok && n.Is(domain.KindEnd) {
				c.add(IssueStartToEnd, starts[0].ID,
					"Start node cannot connect directly to End/CTA node. Add at least one Question node between them.")
				break
			}
		}
	}

	if len(questions) > 0 {
		checkConnectivity(c, g, starts, ends, questions)
	}

	if len(starts) > 0 && len(g.Edges) > 0 && domain.HasCycleFrom(g, starts[0].ID) {
		c.add(IssueCycle, "", "Flow contains an infinite loop")
	}

	for _, n := range g.Nodes {
		outgoing := len(g.Outgoing(n.ID))
		if n.Is(domain.KindCondition) {
			if outgoing < 2 {
				c.add(IssueConditionBranches, n.ID, "Condition node %q needs both TRUE and FALSE paths", n.Label())
			}
			continue
		}
		if o.strictBranching && outgoing > 1 {
			c.add(IssueAmbiguousBranching, n.ID,
				"Node %q has %d outgoing connections; only Condition nodes may branch", n.Label(), outgoing)
		}
	}

	return c.result()
}

func (c *collector) result() Result {
	r := Result{
		Valid:  len(c.issues) == 0,
		Errors: make([]string, 0, len(c.issues)),
		Issues: c.issues,
	}
	if r.Issues == nil {
		r.Issues = []Issue{}
	}
	for _, i := range c.issues {
		r.Errors = append(r.Errors, i.Message)
	}
	return r
}

func checkIntegrity(c *collector, g *domain.Graph) {
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if seen[n.ID] {
			c.add(IssueDuplicateID, n.ID, "Node id %q is used more than once", n.ID)
		}
		seen[n.ID] = true
	}
	for _, e := range g.Edges {
		for _, end := range []string{e.Source, e.Target} {
			if !seen[end] {
				c.add(IssueDanglingEdge, end, "Connection %q points to a missing node %q", e.ID, end)
			}
		}
	}
}

func checkContainment(c *collector, g *domain.Graph, containers, questions, ends []domain.Node) {
	if len(containers) > 0 {
		containerID := containers[0].ID
		for _, q := range questions {
			if q.ParentID != containerID {
				c.add(IssueOutsideContainer, q.ID, "Question node %q must be inside the SubFlow container", q.Label())
			}
		}
	}

	isContainer := make(map[string]bool, len(containers))
	for _, n := range containers {
		isContainer[n.ID] = true
	}

	for _, n := range g.Nodes {
		if n.ParentID == "" || !isContainer[n.ParentID] || n.Is(domain.KindQuestion) {
			continue
		}
		c.add(IssueForeignInContainer, n.ID,
			"Only Question nodes are allowed inside the SubFlow container. Found: %s (%s)", n.Label(), n.Kind)
	}
	for _, n := range ends {
		if n.ParentID != "" && isContainer[n.ParentID] {
			c.add(IssueEndInContainer, n.ID, "End/CTA node %q must be outside the SubFlow container", n.Label())
		}
	}
}

func checkConnectivity(c *collector, g *domain.Graph, starts, ends, questions []domain.Node) {
	connected := make(map[string]bool, len(g.Edges)*2)
	for _, e := range g.Edges {
		connected[e.Source] = true
		connected[e.Target] = true
	}
	for _, q := range questions {
		if !connected[q.ID] {
			c.add(IssueDisconnected, q.ID, "Question node %q is not connected", q.Label())
		}
	}

	if len(starts) > 0 && len(g.Outgoing(starts[0].ID)) == 0 {
		c.add(IssueStartUnconnected, starts[0].ID, "Please connect the Start node to at least one Question node")
	}

	if len(ends) > 0 {
		reached := false
		for _, n := range ends {
			if len(g.Incoming(n.ID)) > 0 {
				reached = true
				break
			}
		}
		if !reached {
			c.add(IssueEndUnreached, "", "Please connect at least one Question node to the End/CTA node")
		}
	}

	if len(starts) == 0 || len(ends) == 0 {
		return
	}

	endIDs := make([]string, 0, len(ends))
	for _, n := range ends {
		endIDs = append(endIDs, n.ID)
	}
	fromStart := domain.ForwardClosure(g, starts[0].ID)
	toEnd := domain.BackwardClosure(g, endIDs...)

	for _, q := range questions {
		if !fromStart.Has(q.ID) {
			c.add(IssueUnreachable, q.ID, "Question node %q is not reachable from Start node", q.Label())
		}
		if !toEnd.Has(q.ID) {
			c.add(IssueDeadEnd, q.ID, "Question node %q does not lead to End/CTA node", q.Label())
		}
	}
}
