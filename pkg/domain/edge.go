package domain

// Branch labels carried by the outgoing edges of a Condition node.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Edge is a directed connection between two nodes.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`

	// BranchLabel is "true" or "false" on Condition exits and empty elsewhere.
	// The editor stores it as the source handle of the connection.
	BranchLabel string `json:"sourceHandle,omitempty"`
}

// EdgeID builds the conventional id of an edge between two nodes.
func EdgeID(source, target string) string {
	return "edge-" + source + "-" + target
}
