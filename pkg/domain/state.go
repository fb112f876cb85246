package domain

// ExecutionState is the snapshot of a simulated run.
type ExecutionState struct {
	// Running is false before Start, after Stop, after an End and after a halt.
	Running bool `json:"running"`

	// Paused blocks Step while Running stays true.
	Paused bool `json:"paused"`

	// CurrentNodeID is empty when no node is active.
	CurrentNodeID string `json:"currentNodeId,omitempty"`

	// History lists every node entered, in order, starting with Start.
	History []string `json:"history"`

	Context ExecutionContext `json:"context"`

	// LastError is set when a run halts because the graph is incomplete.
	LastError string `json:"lastError,omitempty"`
}

// NewExecutionState returns the idle state: not running, no history, empty context.
func NewExecutionState() ExecutionState {
	return ExecutionState{
		History: []string{},
		Context: NewExecutionContext(),
	}
}

// Snapshot returns a copy that shares no slices or maps with s.
func (s ExecutionState) Snapshot() ExecutionState {
	out := s
	out.History = append([]string{}, s.History...)
	out.Context = s.Context.Clone()
	return out
}

// Finished reports whether the run reached an End or halted after starting.
func (s ExecutionState) Finished() bool {
	return !s.Running && len(s.History) > 0
}
