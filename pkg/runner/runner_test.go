package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// branchingFlow asks a question and answers "Great!" only for "yes".
func branchingFlow() *flow.Flow {
	node := func(id string, kind domain.NodeKind, p domain.Payload) domain.Node {
		n := domain.NewNode(id, kind, domain.Position{})
		if p != nil {
			n.Payload = p
		}
		return n
	}
	edge := func(s, t, label string) domain.Edge {
		return domain.Edge{ID: domain.EdgeID(s, t), Source: s, Target: t, BranchLabel: label}
	}

	g := domain.NewGraph()
	g.Nodes = []domain.Node{
		node("start", domain.KindStart, nil),
		node("q1", domain.KindQuestion, &domain.QuestionPayload{Question: "Ready?"}),
		node("cond", domain.KindCondition, &domain.ConditionPayload{Condition: &domain.Condition{
			Variable: "user_input", Operator: domain.OpEquals, Value: "yes",
		}}),
		node("a1", domain.KindAnswer, &domain.AnswerPayload{Answer: "Great!"}),
		node("end", domain.KindEnd, nil),
	}
	g.Edges = []domain.Edge{
		edge("start", "q1", ""),
		edge("q1", "cond", ""),
		edge("cond", "a1", domain.BranchTrue),
		edge("cond", "end", domain.BranchFalse),
		edge("a1", "end", ""),
	}
	return flow.FromGraph(g)
}

func TestRunner_TextConversation(t *testing.T) {
	out := &bytes.Buffer{}
	f := branchingFlow()
	r := runner.NewRunner(runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("yes\n"), out)))

	require.NoError(t, r.Run(context.Background(), f))

	text := out.String()
	assert.Contains(t, text, "Ready?")
	assert.Contains(t, text, "Great!")
	assert.Contains(t, text, "**Schedule a meeting**")
	assert.Contains(t, text, runner.MsgCompleted)

	st := f.Execution()
	assert.False(t, st.Running)
	assert.Empty(t, st.LastError)
	assert.Equal(t, []string{"start", "q1", "cond", "a1", "end"}, st.History)
	assert.Equal(t, "yes", st.Context.Variables["user_input"])
}

func TestRunner_FalseBranch(t *testing.T) {
	out := &bytes.Buffer{}
	f := branchingFlow()
	r := runner.NewRunner(runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("no\n"), out)))

	require.NoError(t, r.Run(context.Background(), f))

	assert.NotContains(t, out.String(), "Great!")
	assert.Equal(t, []string{"start", "q1", "cond", "end"}, f.Execution().History)
}

func TestRunner_ExitWord(t *testing.T) {
	out := &bytes.Buffer{}
	f := branchingFlow()
	r := runner.NewRunner(runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("QUIT\n"), out)))

	require.NoError(t, r.Run(context.Background(), f))

	assert.Contains(t, out.String(), runner.MsgExited)
	st := f.Execution()
	assert.True(t, st.Running, "the run is left where the user stopped")
	assert.Equal(t, "q1", st.CurrentNodeID)
}

func TestRunner_EOFEndsQuietly(t *testing.T) {
	f := branchingFlow()
	r := runner.NewRunner(runner.WithInputHandler(runner.NewTextHandler(strings.NewReader(""), &bytes.Buffer{})))

	require.NoError(t, r.Run(context.Background(), f))
	assert.Equal(t, "q1", f.Execution().CurrentNodeID)
}

func TestRunner_ReportsHalt(t *testing.T) {
	out := &bytes.Buffer{}
	g := domain.NewGraph()
	g.Nodes = []domain.Node{
		domain.NewNode("start", domain.KindStart, domain.Position{}),
		domain.NewNode("a1", domain.KindAnswer, domain.Position{}),
	}
	g.Edges = []domain.Edge{{ID: "e1", Source: "start", Target: "a1"}}
	f := flow.FromGraph(g)

	r := runner.NewRunner(runner.WithInputHandler(runner.NewTextHandler(strings.NewReader(""), out)))
	require.NoError(t, r.Run(context.Background(), f))

	assert.Contains(t, out.String(), "Execution halted: No next node found - flow incomplete")
}

func TestRunner_NoStart(t *testing.T) {
	f := flow.FromGraph(domain.NewGraph())
	r := runner.NewRunner(runner.WithInputHandler(runner.NewTextHandler(strings.NewReader(""), &bytes.Buffer{})))

	assert.ErrorIs(t, r.Run(context.Background(), f), runner.ErrNoStart)
}

func TestRunner_ResumesPausedRun(t *testing.T) {
	out := &bytes.Buffer{}
	f := branchingFlow()
	ctx := context.Background()
	f.Start(ctx)
	f.Step(ctx)
	f.Pause()

	r := runner.NewRunner(runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("yes\n"), out)))
	require.NoError(t, r.Run(ctx, f))

	assert.Contains(t, out.String(), runner.MsgResumed)
	assert.Equal(t, []string{"start", "q1", "cond", "a1", "end"}, f.Execution().History)
}

func TestRunner_PersistsSession(t *testing.T) {
	store := memory.NewStore()
	f := branchingFlow()
	r := runner.NewRunner(
		runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("exit\n"), &bytes.Buffer{})),
		runner.WithStore(store),
		runner.WithSessionID("sim"),
	)

	require.NoError(t, r.Run(context.Background(), f))

	s, err := store.Load(context.Background(), "sim")
	require.NoError(t, err)
	assert.Equal(t, "q1", s.Execution.CurrentNodeID)
	assert.Len(t, s.Graph.Nodes, 5)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestRunner_JSONLines(t *testing.T) {
	out := &bytes.Buffer{}
	f := branchingFlow()
	r := runner.NewRunner(runner.WithInputHandler(runner.NewJSONHandler(strings.NewReader(`"yes"`+"\n"), out)))

	require.NoError(t, r.Run(context.Background(), f))

	var events []runner.Event
	dec := json.NewDecoder(out)
	for dec.More() {
		var ev runner.Event
		require.NoError(t, dec.Decode(&ev))
		events = append(events, ev)
	}

	var visited []string
	for _, ev := range events {
		if ev.Type == runner.EventPrompt {
			visited = append(visited, ev.Prompt.NodeID)
		}
	}
	assert.Equal(t, []string{"start", "q1", "cond", "a1", "end"}, visited)

	last := events[len(events)-1]
	assert.Equal(t, runner.EventSystem, last.Type)
	assert.Equal(t, runner.MsgCompleted, last.Message)
}

func TestTextHandler_UsesRenderer(t *testing.T) {
	out := &bytes.Buffer{}
	h := runner.NewTextHandler(strings.NewReader(""), out, runner.WithTextHandlerRenderer(func(s string) (string, error) {
		return "Rendered: " + s, nil
	}))

	require.NoError(t, h.Output(context.Background(), runner.Prompt{Text: "Hello"}))
	require.NoError(t, h.Output(context.Background(), runner.Prompt{}))

	assert.Equal(t, "Rendered: Hello\n", out.String())
}

func TestTextHandler_RetriesRejectedInput(t *testing.T) {
	t.Setenv(runner.EnvMaxInputSize, "5")
	out := &bytes.Buffer{}
	h := runner.NewTextHandler(strings.NewReader("way too long\nok\n"), out)

	got, err := h.Input(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Contains(t, out.String(), "Please try again")
}

func TestDescribe(t *testing.T) {
	delay := domain.NewNode("d", domain.KindDelay, domain.Position{})
	delay.Payload = &domain.DelayPayload{Config: &domain.DelayConfig{Duration: 2, Unit: domain.UnitMinutes}}

	api := domain.NewNode("api", domain.KindAPICall, domain.Position{})
	api.Payload = &domain.APICallPayload{Config: &domain.APIConfig{URL: "https://example.com", Method: "post"}}

	question := domain.NewNode("q", domain.KindQuestion, domain.Position{})

	tests := []struct {
		node  domain.Node
		text  string
		input bool
	}{
		{delay, "_waits 2m0s_", false},
		{api, "_calls POST https://example.com_", false},
		{question, "Question", true},
		{domain.NewNode("h", domain.KindHandoff, domain.Position{}), "Transferring you to a human agent.", false},
		{domain.NewNode("s", domain.KindStart, domain.Position{}), "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.node.Kind), func(t *testing.T) {
			p := runner.Describe(tt.node)
			assert.Equal(t, tt.text, p.Text)
			assert.Equal(t, tt.input, p.AwaitsInput)
			assert.Equal(t, tt.node.ID, p.NodeID)
		})
	}
}
