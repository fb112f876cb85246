package domain

import (
	"encoding/json"
	"fmt"
)

// NodeKind identifies the behavior of a node in the flow.
// The string value is the wire name used by the editor export format.
type NodeKind string

const (
	KindStart     NodeKind = "start"
	KindQuestion  NodeKind = "question"
	KindAnswer    NodeKind = "answer"
	KindCondition NodeKind = "condition"
	KindAPICall   NodeKind = "api"
	KindEnd       NodeKind = "end"
	KindAIPrompt  NodeKind = "ai"
	KindFallback  NodeKind = "fallback"
	KindDelay     NodeKind = "delay"
	KindHandoff   NodeKind = "handoff"
	// KindContainer scopes the Question nodes of a flow. The editor calls it "subflow".
	KindContainer NodeKind = "subflow"
)

// Kinds lists every known node kind in palette order.
var Kinds = []NodeKind{
	KindStart, KindQuestion, KindAnswer, KindCondition, KindAPICall,
	KindEnd, KindAIPrompt, KindFallback, KindDelay, KindHandoff, KindContainer,
}

// Valid reports whether k is a known kind.
func (k NodeKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// BaseLabel is the default label given to new nodes of this kind.
func (k NodeKind) BaseLabel() string {
	switch k {
	case KindStart:
		return "Start"
	case KindQuestion:
		return "Question"
	case KindAnswer:
		return "Answer"
	case KindCondition:
		return "Condition"
	case KindAPICall:
		return "API Call"
	case KindEnd:
		return "CTA"
	case KindAIPrompt:
		return "AI Prompt"
	case KindFallback:
		return "Fallback"
	case KindDelay:
		return "Delay"
	case KindHandoff:
		return "Human Handoff"
	case KindContainer:
		return "Questions"
	}
	return string(k)
}

// Position is a canvas coordinate. Children of the Container use coordinates
// relative to the Container origin.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Size is the explicit width/height of a node. Only the Container carries one.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Node represents a logical unit in the flow.
type Node struct {
	ID       string   `json:"id"`
	Kind     NodeKind `json:"type"`
	Position Position `json:"position"`
	ParentID string   `json:"parentId,omitempty"`

	// Size is nil for every kind except the Container.
	Size *Size `json:"-"`

	// Data holds the fields shared by every kind.
	Data NodeData `json:"-"`

	// Payload holds the kind-specific configuration.
	Payload Payload `json:"-"`
}

// Label is a shortcut for n.Data.Label.
func (n Node) Label() string {
	return n.Data.Label
}

// Is reports whether the node is of the given kind.
func (n Node) Is(kind NodeKind) bool {
	return n.Kind == kind
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	if n.Size != nil {
		s := *n.Size
		out.Size = &s
	}
	out.Data = n.Data.clone()
	if n.Payload != nil {
		out.Payload = n.Payload.clone()
	}
	return out
}

// NewNode builds a node with the default payload for its kind.
func NewNode(id string, kind NodeKind, pos Position) Node {
	return Node{
		ID:       id,
		Kind:     kind,
		Position: pos,
		Data:     NodeData{Label: kind.BaseLabel()},
		Payload:  DefaultPayload(kind),
	}
}

type nodeStyle struct {
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

type wireNode struct {
	ID       string         `json:"id"`
	Kind     NodeKind       `json:"type"`
	Position Position       `json:"position"`
	ParentID string         `json:"parentId,omitempty"`
	Extent   string         `json:"extent,omitempty"`
	Style    *nodeStyle     `json:"style,omitempty"`
	Data     map[string]any `json:"data"`
}

// MarshalJSON writes the node in the editor export format.
func (n Node) MarshalJSON() ([]byte, error) {
	data, err := encodeData(n.Data, n.Payload)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.ID, err)
	}
	w := wireNode{
		ID:       n.ID,
		Kind:     n.Kind,
		Position: n.Position,
		ParentID: n.ParentID,
		Data:     data,
	}
	if n.ParentID != "" {
		w.Extent = "parent"
	}
	if n.Size != nil {
		w.Style = &nodeStyle{Width: &n.Size.Width, Height: &n.Size.Height}
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads a node from the editor export format.
// The open "data" object is decoded into the typed payload for the node kind.
func (n *Node) UnmarshalJSON(b []byte) error {
	var w wireNode
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.ID == "" {
		return fmt.Errorf("node without id")
	}
	if !w.Kind.Valid() {
		return fmt.Errorf("node %s: unknown type %q", w.ID, w.Kind)
	}

	data, payload, err := decodeData(w.Kind, w.Data)
	if err != nil {
		return fmt.Errorf("node %s: %w", w.ID, err)
	}

	*n = Node{
		ID:       w.ID,
		Kind:     w.Kind,
		Position: w.Position,
		ParentID: w.ParentID,
		Data:     data,
		Payload:  payload,
	}
	if w.Style != nil && (w.Style.Width != nil || w.Style.Height != nil) {
		size := Size{Width: DefaultContainerWidth, Height: DefaultContainerHeight}
		if w.Style.Width != nil {
			size.Width = *w.Style.Width
		}
		if w.Style.Height != nil {
			size.Height = *w.Style.Height
		}
		n.Size = &size
	}
	return nil
}

// Default Container dimensions, used when the Container has no explicit size.
const (
	DefaultContainerWidth  = 600
	DefaultContainerHeight = 500
)

// ContainerSize returns the node size, falling back to the Container defaults.
func (n Node) ContainerSize() Size {
	if n.Size != nil {
		return *n.Size
	}
	return Size{Width: DefaultContainerWidth, Height: DefaultContainerHeight}
}
