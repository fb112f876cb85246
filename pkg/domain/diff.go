package domain

import (
	"reflect"
)

// StateDiff represents the changes between two execution states.
// It is serialized to JSON for partial updates on the client.
type StateDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"session_id"`

	Running *bool `json:"running,omitempty"`
	Paused  *bool `json:"paused,omitempty"`

	// CurrentNodeID points at "" when the run left its last node.
	CurrentNodeID *string `json:"current_node_id,omitempty"`

	// Variables and SessionMemory contain only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Variables     map[string]any `json:"variables,omitempty"`
	SessionMemory map[string]any `json:"session_memory,omitempty"`

	UserInput     *string `json:"user_input,omitempty"`
	CurrentIntent *string `json:"current_intent,omitempty"`

	History *HistoryDelta `json:"history,omitempty"`

	LastError *string `json:"last_error,omitempty"`
}

// HistoryDelta represents changes to the history list.
// Reset is set when the new history is not an extension of the old one
// (after Stop or a restart); Appended then holds the whole list.
type HistoryDelta struct {
	Appended []string `json:"appended"`
	Reset    bool     `json:"reset,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState (initial load).
// It returns nil when nothing changed.
func Diff(sessionID string, oldState, newState *ExecutionState) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{SessionID: sessionID}

	if oldState == nil || oldState.Running != newState.Running {
		diff.Running = &newState.Running
	}
	if oldState == nil || oldState.Paused != newState.Paused {
		diff.Paused = &newState.Paused
	}
	if oldState == nil || oldState.CurrentNodeID != newState.CurrentNodeID {
		diff.CurrentNodeID = &newState.CurrentNodeID
	}
	if oldState == nil || oldState.LastError != newState.LastError {
		if oldState != nil || newState.LastError != "" {
			diff.LastError = &newState.LastError
		}
	}

	var oldCtx *ExecutionContext
	if oldState != nil {
		oldCtx = &oldState.Context
	}
	newCtx := &newState.Context

	diff.Variables = diffMap(contextMap(oldCtx, variablesOf), newCtx.Variables, oldCtx == nil)
	diff.SessionMemory = diffMap(contextMap(oldCtx, memoryOf), newCtx.SessionMemory, oldCtx == nil)

	if oldCtx == nil || oldCtx.UserInput != newCtx.UserInput {
		if oldCtx != nil || newCtx.UserInput != "" {
			diff.UserInput = &newCtx.UserInput
		}
	}
	if oldCtx == nil || oldCtx.CurrentIntent != newCtx.CurrentIntent {
		if oldCtx != nil || newCtx.CurrentIntent != "" {
			diff.CurrentIntent = &newCtx.CurrentIntent
		}
	}

	diff.History = diffHistory(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func variablesOf(c *ExecutionContext) map[string]any { return c.Variables }

func memoryOf(c *ExecutionContext) map[string]any { return c.SessionMemory }

func contextMap(c *ExecutionContext, pick func(*ExecutionContext) map[string]any) map[string]any {
	if c == nil {
		return nil
	}
	return pick(c)
}

func diffMap(old, new map[string]any, initial bool) map[string]any {
	delta := make(map[string]any)

	// If old is absent, everything in new is a delta
	if initial {
		for k, v := range new {
			delta[k] = v
		}
	} else {
		for k, newVal := range new {
			oldVal, exists := old[k]
			if !exists || !reflect.DeepEqual(oldVal, newVal) {
				delta[k] = newVal
			}
		}
		for k := range old {
			if _, exists := new[k]; !exists {
				delta[k] = nil
			}
		}
	}

	// Return nil if delta is empty so omitempty can remove the key
	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffHistory(old, new *ExecutionState) *HistoryDelta {
	if old == nil {
		if len(new.History) == 0 {
			return nil
		}
		return &HistoryDelta{Appended: new.History}
	}

	oldLen := len(old.History)
	newLen := len(new.History)

	if newLen >= oldLen && reflect.DeepEqual(old.History, new.History[:oldLen]) {
		if newLen == oldLen {
			return nil
		}
		return &HistoryDelta{Appended: new.History[oldLen:]}
	}

	return &HistoryDelta{Appended: append([]string{}, new.History...), Reset: true}
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *StateDiff) IsEmpty() bool {
	return d.Running == nil &&
		d.Paused == nil &&
		d.CurrentNodeID == nil &&
		len(d.Variables) == 0 &&
		len(d.SessionMemory) == 0 &&
		d.UserInput == nil &&
		d.CurrentIntent == nil &&
		d.History == nil &&
		d.LastError == nil
}
