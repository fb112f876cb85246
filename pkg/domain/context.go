package domain

import "maps"

// ExecutionContext is the conversational state a run carries between steps.
type ExecutionContext struct {
	Variables        map[string]any `json:"variables"`
	SessionMemory    map[string]any `json:"sessionMemory"`
	UserInput        string         `json:"userInput,omitempty"`
	LastResponse     string         `json:"lastResponse,omitempty"`
	CurrentIntent    string         `json:"currentIntent,omitempty"`
	IntentConfidence *float64       `json:"intentConfidence,omitempty"`
	Channel          string         `json:"channel,omitempty"`
}

// NewExecutionContext returns an empty context.
func NewExecutionContext() ExecutionContext {
	return ExecutionContext{
		Variables:     make(map[string]any),
		SessionMemory: make(map[string]any),
	}
}

// ContextUpdate is a partial context. Nil fields are left untouched and map
// entries are merged key by key.
type ContextUpdate struct {
	Variables        map[string]any `json:"variables,omitempty"`
	SessionMemory    map[string]any `json:"sessionMemory,omitempty"`
	UserInput        *string        `json:"userInput,omitempty"`
	LastResponse     *string        `json:"lastResponse,omitempty"`
	CurrentIntent    *string        `json:"currentIntent,omitempty"`
	IntentConfidence *float64       `json:"intentConfidence,omitempty"`
	Channel          *string        `json:"channel,omitempty"`
}

// Merge overlays u onto c.
func (c *ExecutionContext) Merge(u ContextUpdate) {
	if len(u.Variables) > 0 {
		if c.Variables == nil {
			c.Variables = make(map[string]any, len(u.Variables))
		}
		maps.Copy(c.Variables, u.Variables)
	}
	if len(u.SessionMemory) > 0 {
		if c.SessionMemory == nil {
			c.SessionMemory = make(map[string]any, len(u.SessionMemory))
		}
		maps.Copy(c.SessionMemory, u.SessionMemory)
	}
	if u.UserInput != nil {
		c.UserInput = *u.UserInput
	}
	if u.LastResponse != nil {
		c.LastResponse = *u.LastResponse
	}
	if u.CurrentIntent != nil {
		c.CurrentIntent = *u.CurrentIntent
	}
	if u.IntentConfidence != nil {
		v := *u.IntentConfidence
		c.IntentConfidence = &v
	}
	if u.Channel != nil {
		c.Channel = *u.Channel
	}
}

// Clone returns a copy whose maps are independent of c. Map values are
// copied shallowly.
func (c ExecutionContext) Clone() ExecutionContext {
	out := c
	out.Variables = maps.Clone(c.Variables)
	if out.Variables == nil {
		out.Variables = make(map[string]any)
	}
	out.SessionMemory = maps.Clone(c.SessionMemory)
	if out.SessionMemory == nil {
		out.SessionMemory = make(map[string]any)
	}
	if c.IntentConfidence != nil {
		v := *c.IntentConfidence
		out.IntentConfidence = &v
	}
	return out
}
