package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeGraph renders g in the export format: indented JSON with the
// current format version.
func EncodeGraph(g *Graph) ([]byte, error) {
	out := struct {
		Nodes   []Node `json:"nodes"`
		Edges   []Edge `json:"edges"`
		Version string `json:"version"`
	}{
		Nodes:   g.Nodes,
		Edges:   g.Edges,
		Version: CurrentVersion,
	}
	if out.Nodes == nil {
		out.Nodes = []Node{}
	}
	if out.Edges == nil {
		out.Edges = []Edge{}
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecodeGraph parses the export format. Both "nodes" and "edges" must be
// JSON arrays. Edges without an id get the conventional one. Every failure
// wraps ErrInvalidFlow.
func DecodeGraph(data []byte) (*Graph, error) {
	var raw struct {
		Nodes   json.RawMessage `json:"nodes"`
		Edges   json.RawMessage `json:"edges"`
		Version string          `json:"version"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFlow, err)
	}
	if !isArray(raw.Nodes) {
		return nil, fmt.Errorf("%w: nodes must be an array", ErrInvalidFlow)
	}
	if !isArray(raw.Edges) {
		return nil, fmt.Errorf("%w: edges must be an array", ErrInvalidFlow)
	}

	g := &Graph{Version: raw.Version}
	if err := json.Unmarshal(raw.Nodes, &g.Nodes); err != nil {
		return nil, fmt.Errorf("%w: nodes: %v", ErrInvalidFlow, err)
	}
	if err := json.Unmarshal(raw.Edges, &g.Edges); err != nil {
		return nil, fmt.Errorf("%w: edges: %v", ErrInvalidFlow, err)
	}

	for i := range g.Edges {
		e := &g.Edges[i]
		if e.Source == "" || e.Target == "" {
			return nil, fmt.Errorf("%w: edge %d needs a source and a target", ErrInvalidFlow, i)
		}
		if e.ID == "" {
			e.ID = EdgeID(e.Source, e.Target)
		}
	}
	return g, nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
