package domain

// CurrentVersion is the format version written by Export.
const CurrentVersion = "2.0"

// Graph is the authored flow: nodes and edges in insertion order.
// Edge order is meaningful: when a non-Condition node has several outgoing
// edges, the interpreter follows the one inserted first.
type Graph struct {
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
	Version string `json:"version,omitempty"`
}

// NewGraph returns an empty graph at the current format version.
func NewGraph() *Graph {
	return &Graph{
		Nodes:   []Node{},
		Edges:   []Edge{},
		Version: CurrentVersion,
	}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	if i := g.nodeIndex(id); i >= 0 {
		return g.Nodes[i], true
	}
	return Node{}, false
}

func (g *Graph) nodeIndex(id string) int {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// HasNode reports whether a node with the given id exists.
func (g *Graph) HasNode(id string) bool {
	return g.nodeIndex(id) >= 0
}

// NodesOfKind returns the nodes of the given kind in insertion order.
func (g *Graph) NodesOfKind(kind NodeKind) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// First returns the first node of the given kind.
func (g *Graph) First(kind NodeKind) (Node, bool) {
	for _, n := range g.Nodes {
		if n.Kind == kind {
			return n, true
		}
	}
	return Node{}, false
}

// Outgoing returns the edges leaving id, in insertion order.
func (g *Graph) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// Incoming returns the edges entering id, in insertion order.
func (g *Graph) Incoming(id string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// HasEdge reports whether an edge source -> target exists, whatever its label.
func (g *Graph) HasEdge(source, target string) bool {
	for _, e := range g.Edges {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	out := &Graph{
		Nodes:   make([]Node, len(g.Nodes)),
		Edges:   make([]Edge, len(g.Edges)),
		Version: g.Version,
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	copy(out.Edges, g.Edges)
	return out
}

// adjacency indexes edges by endpoint, preserving insertion order.
type adjacency struct {
	out map[string][]string
	in  map[string][]string
}

func (g *Graph) adjacency() adjacency {
	adj := adjacency{
		out: make(map[string][]string, len(g.Nodes)),
		in:  make(map[string][]string, len(g.Nodes)),
	}
	for _, e := range g.Edges {
		adj.out[e.Source] = append(adj.out[e.Source], e.Target)
		adj.in[e.Target] = append(adj.in[e.Target], e.Source)
	}
	return adj
}
