// Package graph renders flows as Mermaid flowcharts.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// GraphOverlay contains run state to highlight on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
	Halted       bool
}

// OverlayFrom builds the overlay of an execution state. It returns nil for a
// run that never started.
func OverlayFrom(st domain.ExecutionState) *GraphOverlay {
	if len(st.History) == 0 {
		return nil
	}
	return &GraphOverlay{
		VisitedNodes: st.History,
		CurrentNode:  st.CurrentNodeID,
		Halted:       st.LastError != "",
	}
}

// GenerateMermaid produces a Mermaid flowchart of g.
// Shapes follow the node kind:
// - Start: ((Circle))
// - Question: [/Parallelogram/], drawn inside a subgraph for the Container
// - Condition: {Diamond}
// - API Call: [[Subroutine]]
// - End: ([Stadium])
// - Default: [Rectangle]
// Condition exits carry their true/false label.
func GenerateMermaid(g *domain.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	children := make(map[string][]domain.Node)
	for _, n := range g.Nodes {
		if n.ParentID != "" {
			children[n.ParentID] = append(children[n.ParentID], n)
		}
	}

	for _, n := range g.Nodes {
		switch {
		case n.Is(domain.KindContainer):
			fmt.Fprintf(&sb, "    subgraph %s[\"%s\"]\n", sanitizeMermaidID(n.ID), escapeLabel(n.Label()))
			for _, child := range children[n.ID] {
				sb.WriteString("    " + nodeLine(child))
			}
			sb.WriteString("    end\n")
		case n.ParentID != "" && containerExists(g, n.ParentID):
			// Drawn inside its subgraph.
		default:
			sb.WriteString(nodeLine(n))
		}
	}

	for _, e := range g.Edges {
		arrow := "-->"
		if e.BranchLabel != "" {
			arrow = fmt.Sprintf("-- \"%s\" -->", escapeLabel(e.BranchLabel))
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", sanitizeMermaidID(e.Source), arrow, sanitizeMermaidID(e.Target))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps the highlight readable on light and dark themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef halted fill:#ffcdd2,stroke:#c62828,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			if !g.HasNode(id) {
				continue
			}
			safeID := sanitizeMermaidID(id)
			if !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentNode != "" && g.HasNode(overlay.CurrentNode) {
			class := "current"
			if overlay.Halted {
				class = "halted"
			}
			fmt.Fprintf(&sb, "    class %s %s;\n", sanitizeMermaidID(overlay.CurrentNode), class)
		}
	}

	return sb.String()
}

func nodeLine(n domain.Node) string {
	opener, closer := "[", "]"
	switch n.Kind {
	case domain.KindStart:
		opener, closer = "((", "))"
	case domain.KindQuestion:
		opener, closer = "[/", "/]"
	case domain.KindCondition:
		opener, closer = "{", "}"
	case domain.KindAPICall:
		opener, closer = "[[", "]]"
	case domain.KindEnd:
		opener, closer = "([", "])"
	}

	label := n.Label()
	if label == "" {
		label = n.ID
	}
	label = escapeLabel(label)
	if d, ok := domain.PayloadAs[*domain.DelayPayload](n); ok && d.Config != nil {
		label += " <br/> ⏱️ " + d.Config.AsDuration().String()
	}
	return fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(n.ID), opener, label, closer)
}

func containerExists(g *domain.Graph, id string) bool {
	n, ok := g.Node(id)
	return ok && n.Is(domain.KindContainer)
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	// "end" closes a subgraph in Mermaid.
	if strings.EqualFold(s, "end") {
		s += "_"
	}
	return s
}
