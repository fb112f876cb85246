package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session is a persisted editing session: the authored graph plus the state
// of its simulated run.
type Session struct {
	ID        string         `json:"id"`
	Graph     *Graph         `json:"graph"`
	Execution ExecutionState `json:"execution"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// NewSession returns a session over g with an idle execution state.
func NewSession(id string, g *Graph) *Session {
	now := time.Now().UTC()
	if g == nil {
		g = NewGraph()
	}
	return &Session{
		ID:        id,
		Graph:     g,
		Execution: NewExecutionState(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Graph = s.Graph.Clone()
	out.Execution = s.Execution.Snapshot()
	return &out
}

// EncodeSession serializes a session for storage.
func EncodeSession(s *Session) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session %s: %w", s.ID, err)
	}
	return data, nil
}

// DecodeSession reads a session written by EncodeSession.
func DecodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.Graph == nil {
		s.Graph = NewGraph()
	}
	if s.Execution.History == nil {
		s.Execution.History = []string{}
	}
	if s.Execution.Context.Variables == nil {
		s.Execution.Context.Variables = make(map[string]any)
	}
	if s.Execution.Context.SessionMemory == nil {
		s.Execution.Context.SessionMemory = make(map[string]any)
	}
	return &s, nil
}
