package domain

// NodeSet is a set of node ids.
type NodeSet map[string]struct{}

// Has reports whether id is in the set.
func (s NodeSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// ForwardClosure returns every node reachable from the seeds by following
// outgoing edges. Seeds are always part of the result.
func ForwardClosure(g *Graph, seeds ...string) NodeSet {
	return closure(g.adjacency().out, seeds)
}

// BackwardClosure returns every node that can reach one of the seeds by
// following edges, i.e. the forward closure over incoming edges.
func BackwardClosure(g *Graph, seeds ...string) NodeSet {
	return closure(g.adjacency().in, seeds)
}

// closure walks next with an explicit work-list so large graphs cannot
// exhaust the goroutine stack.
func closure(next map[string][]string, seeds []string) NodeSet {
	seen := make(NodeSet, len(seeds))
	work := make([]string, 0, len(seeds))
	for _, id := range seeds {
		if !seen.Has(id) {
			seen[id] = struct{}{}
			work = append(work, id)
		}
	}

	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]

		for _, n := range next[id] {
			if seen.Has(n) {
				continue
			}
			seen[n] = struct{}{}
			work = append(work, n)
		}
	}
	return seen
}

// HasCycleFrom reports whether a cycle is reachable from root. It is a
// depth-first search that tracks the nodes on the current path; an edge back
// into the path is a cycle.
func HasCycleFrom(g *Graph, root string) bool {
	next := g.adjacency().out

	type frame struct {
		id   string
		edge int
	}

	visited := map[string]bool{root: true}
	onPath := map[string]bool{root: true}
	stack := []frame{{id: root}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		targets := next[top.id]

		if top.edge == len(targets) {
			onPath[top.id] = false
			stack = stack[:len(stack)-1]
			continue
		}

		target := targets[top.edge]
		top.edge++

		if onPath[target] {
			return true
		}
		if !visited[target] {
			visited[target] = true
			onPath[target] = true
			stack = append(stack, frame{id: target})
		}
	}
	return false
}
