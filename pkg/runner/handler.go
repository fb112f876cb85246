package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (structured) modes.
type IOHandler interface {
	// Output presents the node the run just entered.
	Output(ctx context.Context, p Prompt) error

	// Input reads an answer from the user. io.EOF ends the session.
	Input(ctx context.Context) (string, error)

	// SystemOutput presents a meta-message (completion, halts, warnings).
	SystemOutput(ctx context.Context, msg string) error
}

// Prompt is what a node shows to the user when the run enters it.
type Prompt struct {
	NodeID string          `json:"nodeId"`
	Kind   domain.NodeKind `json:"kind"`
	Label  string          `json:"label"`
	Text   string          `json:"text,omitempty"`

	// AwaitsInput is true for Questions: the run only moves on with an answer.
	AwaitsInput bool `json:"awaitsInput"`
}

// Describe builds the prompt of a node from its payload.
func Describe(n domain.Node) Prompt {
	p := Prompt{NodeID: n.ID, Kind: n.Kind, Label: n.Label()}

	switch pl := n.Payload.(type) {
	case *domain.QuestionPayload:
		p.AwaitsInput = true
		p.Text = pl.Question
		if p.Text == "" {
			p.Text = n.Label()
		}
	case *domain.AnswerPayload:
		p.Text = pl.Answer
	case *domain.AIPromptPayload:
		p.Text = pl.Prompt
	case *domain.FallbackPayload:
		if pl.Config != nil {
			p.Text = pl.Config.FallbackMessage
		}
	case *domain.HandoffPayload:
		p.Text = "Transferring you to a human agent."
		if pl.Config != nil && pl.Config.Message != "" {
			p.Text = pl.Config.Message
		}
	case *domain.DelayPayload:
		if pl.Config != nil && pl.Config.Duration > 0 {
			p.Text = fmt.Sprintf("_waits %s_", pl.Config.AsDuration())
		}
	case *domain.APICallPayload:
		if pl.Config != nil && pl.Config.URL != "" {
			method := strings.ToUpper(pl.Config.Method)
			if method == "" {
				method = "GET"
			}
			p.Text = fmt.Sprintf("_calls %s %s_", method, pl.Config.URL)
		}
	case *domain.EndPayload:
		p.Text = ctaText(pl.MeetingType)
	}
	return p
}

func ctaText(t domain.MeetingType) string {
	switch t {
	case domain.SiteVisit:
		return "**Book a site visit**"
	case domain.DemoBooking:
		return "**Book a demo**"
	case domain.MeetingSchedule:
		return "**Schedule a meeting**"
	}
	return "**" + domain.KindEnd.BaseLabel() + "**"
}
