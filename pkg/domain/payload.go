package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/mitchellh/mapstructure"
)

// NodeData holds the fields every node kind carries.
type NodeData struct {
	Label             string             `json:"label" mapstructure:"label"`
	Weight            *float64           `json:"weight,omitempty" mapstructure:"weight"`
	Threshold         *float64           `json:"threshold,omitempty" mapstructure:"threshold"`
	Channel           string             `json:"channel,omitempty" mapstructure:"channel"`
	Priority          *float64           `json:"priority,omitempty" mapstructure:"priority"`
	ContextOperations *ContextOperations `json:"contextOperations,omitempty" mapstructure:"contextOperations"`

	// Extra keeps unknown keys so that imported files survive a round trip.
	Extra map[string]any `json:"-" mapstructure:",remain"`
}

// ContextOperations declares which context keys a node reads and writes.
type ContextOperations struct {
	Read  []string   `json:"read,omitempty" mapstructure:"read"`
	Write []KeyValue `json:"write,omitempty" mapstructure:"write"`
}

// KeyValue is a single context write.
type KeyValue struct {
	Key   string `json:"key" mapstructure:"key"`
	Value string `json:"value" mapstructure:"value"`
}

func (d NodeData) clone() NodeData {
	out := d
	if d.Weight != nil {
		v := *d.Weight
		out.Weight = &v
	}
	if d.Threshold != nil {
		v := *d.Threshold
		out.Threshold = &v
	}
	if d.Priority != nil {
		v := *d.Priority
		out.Priority = &v
	}
	if d.ContextOperations != nil {
		ops := ContextOperations{
			Read:  append([]string(nil), d.ContextOperations.Read...),
			Write: append([]KeyValue(nil), d.ContextOperations.Write...),
		}
		out.ContextOperations = &ops
	}
	out.Extra = maps.Clone(d.Extra)
	return out
}

// Payload is the kind-specific configuration of a node.
// The set of implementations is closed: one variant per NodeKind.
type Payload interface {
	Kind() NodeKind
	// fields lists the top-level data keys owned by the variant.
	fields() []string
	clone() Payload
}

// StartPayload configures the entry node. It has no fields.
type StartPayload struct{}

func (*StartPayload) Kind() NodeKind   { return KindStart }
func (*StartPayload) fields() []string { return nil }
func (p *StartPayload) clone() Payload {
	c := *p
	return &c
}

// ContainerPayload configures the Question container. It has no fields.
type ContainerPayload struct{}

func (*ContainerPayload) Kind() NodeKind   { return KindContainer }
func (*ContainerPayload) fields() []string { return nil }
func (p *ContainerPayload) clone() Payload {
	c := *p
	return &c
}

// QuestionPayload configures a question asked to the user.
type QuestionPayload struct {
	Question string `json:"question,omitempty" mapstructure:"question"`
	Required string `json:"required,omitempty" mapstructure:"required"`
}

func (*QuestionPayload) Kind() NodeKind   { return KindQuestion }
func (*QuestionPayload) fields() []string { return []string{"question", "required"} }
func (p *QuestionPayload) clone() Payload {
	c := *p
	return &c
}

// AnswerPayload configures a canned bot answer.
type AnswerPayload struct {
	Answer string `json:"answer,omitempty" mapstructure:"answer"`
}

func (*AnswerPayload) Kind() NodeKind   { return KindAnswer }
func (*AnswerPayload) fields() []string { return []string{"answer"} }
func (p *AnswerPayload) clone() Payload {
	c := *p
	return &c
}

// Operator is a Condition comparison operator.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpContains   Operator = "contains"
	OpGreater    Operator = "greater"
	OpLess       Operator = "less"
	OpExists     Operator = "exists"
	OpIntent     Operator = "intent"
	OpConfidence Operator = "confidence"
)

// Condition is the rule evaluated by a Condition node.
// TrueNodeID and FalseNodeID are editor hints; routing uses branch labels on edges.
type Condition struct {
	Variable    string   `json:"variable" mapstructure:"variable"`
	Operator    Operator `json:"operator" mapstructure:"operator"`
	Value       string   `json:"value" mapstructure:"value"`
	TrueNodeID  string   `json:"trueNodeId,omitempty" mapstructure:"trueNodeId"`
	FalseNodeID string   `json:"falseNodeId,omitempty" mapstructure:"falseNodeId"`
}

// ConditionPayload configures a two-way branch.
type ConditionPayload struct {
	Condition *Condition `json:"conditions,omitempty" mapstructure:"conditions"`
}

func (*ConditionPayload) Kind() NodeKind   { return KindCondition }
func (*ConditionPayload) fields() []string { return []string{"conditions"} }
func (p *ConditionPayload) clone() Payload {
	c := *p
	if p.Condition != nil {
		cond := *p.Condition
		c.Condition = &cond
	}
	return &c
}

// APIConfig describes an outbound call. It is never executed by the interpreter.
type APIConfig struct {
	URL             string            `json:"url" mapstructure:"url"`
	Method          string            `json:"method" mapstructure:"method"`
	Headers         map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Body            string            `json:"body,omitempty" mapstructure:"body"`
	ResponseMapping string            `json:"responseMapping,omitempty" mapstructure:"responseMapping"`
	RetryCount      int               `json:"retryCount,omitempty" mapstructure:"retryCount"`
	RetryDelay      int               `json:"retryDelay,omitempty" mapstructure:"retryDelay"`
}

// APICallPayload configures an API call node.
type APICallPayload struct {
	Config *APIConfig `json:"apiConfig,omitempty" mapstructure:"apiConfig"`
}

func (*APICallPayload) Kind() NodeKind   { return KindAPICall }
func (*APICallPayload) fields() []string { return []string{"apiConfig"} }
func (p *APICallPayload) clone() Payload {
	c := *p
	if p.Config != nil {
		cfg := *p.Config
		cfg.Headers = maps.Clone(p.Config.Headers)
		c.Config = &cfg
	}
	return &c
}

// MeetingType is the call-to-action booked by an End node.
type MeetingType string

const (
	MeetingSchedule MeetingType = "meeting-schedule"
	SiteVisit       MeetingType = "site-visit"
	DemoBooking     MeetingType = "demo-booking"
)

// EndPayload configures the terminal call-to-action node.
type EndPayload struct {
	MeetingType MeetingType `json:"meetingType,omitempty" mapstructure:"meetingType"`
}

func (*EndPayload) Kind() NodeKind   { return KindEnd }
func (*EndPayload) fields() []string { return []string{"meetingType"} }
func (p *EndPayload) clone() Payload {
	c := *p
	return &c
}

// AIPromptPayload configures a prompt. It is opaque to the interpreter.
type AIPromptPayload struct {
	Prompt       string `json:"aiPrompt,omitempty" mapstructure:"aiPrompt"`
	SystemPrompt string `json:"systemPrompt,omitempty" mapstructure:"systemPrompt"`
}

func (*AIPromptPayload) Kind() NodeKind   { return KindAIPrompt }
func (*AIPromptPayload) fields() []string { return []string{"aiPrompt", "systemPrompt"} }
func (p *AIPromptPayload) clone() Payload {
	c := *p
	return &c
}

// FallbackConfig configures retries for unrecognized input.
type FallbackConfig struct {
	MaxRetries      int    `json:"maxRetries,omitempty" mapstructure:"maxRetries"`
	FallbackMessage string `json:"fallbackMessage,omitempty" mapstructure:"fallbackMessage"`
}

// FallbackPayload configures a fallback node.
type FallbackPayload struct {
	Config *FallbackConfig `json:"fallbackConfig,omitempty" mapstructure:"fallbackConfig"`
}

func (*FallbackPayload) Kind() NodeKind   { return KindFallback }
func (*FallbackPayload) fields() []string { return []string{"fallbackConfig"} }
func (p *FallbackPayload) clone() Payload {
	c := *p
	if p.Config != nil {
		cfg := *p.Config
		c.Config = &cfg
	}
	return &c
}

// DelayUnit is the unit of a DelayConfig duration.
type DelayUnit string

const (
	UnitSeconds DelayUnit = "seconds"
	UnitMinutes DelayUnit = "minutes"
	UnitHours   DelayUnit = "hours"
)

// DelayConfig describes a pause in the conversation.
type DelayConfig struct {
	Duration float64   `json:"duration" mapstructure:"duration"`
	Unit     DelayUnit `json:"unit" mapstructure:"unit"`
}

// AsDuration converts the configuration to a time.Duration.
// The interpreter never waits on it.
func (c DelayConfig) AsDuration() time.Duration {
	unit := time.Second
	switch c.Unit {
	case UnitMinutes:
		unit = time.Minute
	case UnitHours:
		unit = time.Hour
	}
	return time.Duration(c.Duration * float64(unit))
}

// DelayPayload configures a delay node.
type DelayPayload struct {
	Config *DelayConfig `json:"delayConfig,omitempty" mapstructure:"delayConfig"`
}

func (*DelayPayload) Kind() NodeKind   { return KindDelay }
func (*DelayPayload) fields() []string { return []string{"delayConfig"} }
func (p *DelayPayload) clone() Payload {
	c := *p
	if p.Config != nil {
		cfg := *p.Config
		c.Config = &cfg
	}
	return &c
}

// HandoffConfig describes the transfer to a human agent.
type HandoffConfig struct {
	Department string `json:"department,omitempty" mapstructure:"department"`
	Priority   string `json:"priority,omitempty" mapstructure:"priority"`
	Message    string `json:"message,omitempty" mapstructure:"message"`
}

// HandoffPayload configures a human handoff node.
type HandoffPayload struct {
	Config *HandoffConfig `json:"handoffConfig,omitempty" mapstructure:"handoffConfig"`
}

func (*HandoffPayload) Kind() NodeKind   { return KindHandoff }
func (*HandoffPayload) fields() []string { return []string{"handoffConfig"} }
func (p *HandoffPayload) clone() Payload {
	c := *p
	if p.Config != nil {
		cfg := *p.Config
		c.Config = &cfg
	}
	return &c
}

// newPayload returns the zero variant for kind.
func newPayload(kind NodeKind) Payload {
	switch kind {
	case KindStart:
		return &StartPayload{}
	case KindQuestion:
		return &QuestionPayload{}
	case KindAnswer:
		return &AnswerPayload{}
	case KindCondition:
		return &ConditionPayload{}
	case KindAPICall:
		return &APICallPayload{}
	case KindEnd:
		return &EndPayload{}
	case KindAIPrompt:
		return &AIPromptPayload{}
	case KindFallback:
		return &FallbackPayload{}
	case KindDelay:
		return &DelayPayload{}
	case KindHandoff:
		return &HandoffPayload{}
	case KindContainer:
		return &ContainerPayload{}
	}
	return nil
}

// DefaultPayload returns the payload a freshly added node of kind starts with.
func DefaultPayload(kind NodeKind) Payload {
	switch kind {
	case KindQuestion:
		return &QuestionPayload{Required: "yes"}
	case KindEnd:
		return &EndPayload{MeetingType: MeetingSchedule}
	}
	return newPayload(kind)
}

// PayloadAs returns the payload of n as the concrete variant T.
func PayloadAs[T Payload](n Node) (T, bool) {
	p, ok := n.Payload.(T)
	return p, ok
}

// DataMap renders the shared data and the payload as the flat "data" object
// of the export format.
func (n Node) DataMap() (map[string]any, error) {
	return encodeData(n.Data, n.Payload)
}

// WithDataMap returns a copy of n whose data and payload are decoded from m.
func (n Node) WithDataMap(m map[string]any) (Node, error) {
	data, payload, err := decodeData(n.Kind, m)
	if err != nil {
		return n, fmt.Errorf("node %s: %w", n.ID, err)
	}
	out := n.Clone()
	out.Data = data
	out.Payload = payload
	return out, nil
}

func encodeData(data NodeData, payload Payload) (map[string]any, error) {
	out := maps.Clone(data.Extra)
	if out == nil {
		out = make(map[string]any)
	}
	if err := mergeJSON(out, data); err != nil {
		return nil, err
	}
	if payload != nil {
		if err := mergeJSON(out, payload); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func mergeJSON(dst map[string]any, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	maps.Copy(dst, m)
	return nil
}

func decodeData(kind NodeKind, raw map[string]any) (NodeData, Payload, error) {
	var data NodeData
	payload := newPayload(kind)
	if payload == nil {
		return data, nil, fmt.Errorf("unknown node type %q", kind)
	}
	if raw == nil {
		return data, payload, nil
	}

	if err := weakDecode(raw, &data); err != nil {
		return data, nil, fmt.Errorf("decode data: %w", err)
	}
	if err := weakDecode(raw, payload); err != nil {
		return data, nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}

	for _, key := range payload.fields() {
		delete(data.Extra, key)
	}
	if len(data.Extra) == 0 {
		data.Extra = nil
	}
	return data, payload, nil
}

func weakDecode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}
