package flow

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("n%d", n)
	})
}

func edgePairs(g *domain.Graph) []string {
	out := make([]string, 0, len(g.Edges))
	for _, e := range g.Edges {
		out = append(out, e.Source+"->"+e.Target)
	}
	return out
}

func TestNew_DefaultFlow(t *testing.T) {
	f := New()
	g := f.Graph()

	require.Len(t, g.Nodes, 3)
	assert.Empty(t, g.Edges)

	end, ok := f.Node("end-1")
	require.True(t, ok)
	assert.Equal(t, domain.Position{X: 250, Y: 150 + 500 + 20}, end.Position, "the CTA starts outside the container")

	r := f.Validate()
	assert.False(t, r.Valid)
	assert.True(t, r.Has(validator.IssueMissingQuestion))
}

func TestAddNode_Questions(t *testing.T) {
	f := New(sequentialIDs())

	q1, err := f.AddNode(domain.KindQuestion, domain.Position{X: 999, Y: 999})
	require.NoError(t, err)
	q2, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)
	q3, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)

	assert.Equal(t, "subflow-1", q1.ParentID)
	assert.Equal(t, domain.Position{X: 40, Y: 60}, q1.Position)
	assert.Equal(t, domain.Position{X: 240, Y: 60}, q2.Position)
	assert.Equal(t, domain.Position{X: 40, Y: 180}, q3.Position)

	assert.Equal(t, "Question", q1.Label())
	assert.Equal(t, "Question 2", q2.Label())
	assert.Equal(t, "Question 3", q3.Label())

	p, ok := domain.PayloadAs[*domain.QuestionPayload](q1)
	require.True(t, ok)
	assert.Equal(t, "yes", p.Required)

	assert.Equal(t, []string{
		"start-1->n1", "n1->end-1",
		"start-1->n2", "n2->end-1",
		"start-1->n3", "n3->end-1",
	}, edgePairs(f.Graph()))

	assert.True(t, f.Validate().Valid)
}

func TestAddNode_LabelsSkipPastHighest(t *testing.T) {
	f := New(sequentialIDs())
	_, err := f.AddNode(domain.KindAnswer, domain.Position{X: 900})
	require.NoError(t, err)
	a2, err := f.AddNode(domain.KindAnswer, domain.Position{X: 900, Y: 200})
	require.NoError(t, err)

	_, err = f.UpdateNodeData(a2.ID, map[string]any{"label": "Answer 7"})
	require.NoError(t, err)

	a3, err := f.AddNode(domain.KindAnswer, domain.Position{X: 900, Y: 400})
	require.NoError(t, err)
	assert.Equal(t, "Answer 8", a3.Label())
}

func TestAddNode_Rejections(t *testing.T) {
	f := New()

	_, err := f.AddNode(domain.KindStart, domain.Position{})
	assert.ErrorIs(t, err, domain.ErrDuplicateNode)

	_, err = f.AddNode(domain.KindContainer, domain.Position{})
	assert.ErrorIs(t, err, domain.ErrDuplicateNode)

	_, err = f.AddNode("portal", domain.Position{})
	assert.Error(t, err)

	require.NoError(t, f.DeleteNode("subflow-1"))
	_, err = f.AddNode(domain.KindQuestion, domain.Position{})
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestAddNode_EndConnectsQuestions(t *testing.T) {
	f := New(sequentialIDs())
	_, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)
	_, err = f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)

	end, err := f.AddNode(domain.KindEnd, domain.Position{X: 300, Y: 300})
	require.NoError(t, err)

	assert.Equal(t, "CTA 2", end.Label())
	assert.Empty(t, end.ParentID)
	assert.Equal(t, domain.Position{X: 50 + 300 - 90, Y: 150 + 500 + 50}, end.Position)

	g := f.Graph()
	assert.Len(t, g.Incoming(end.ID), 2)
}

func TestDeleteNode_Reconnects(t *testing.T) {
	f := New(sequentialIDs())
	_, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)
	_, err = f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)

	require.NoError(t, f.DeleteNode("n1"))

	g := f.Graph()
	assert.False(t, g.HasNode("n1"))
	assert.Equal(t, []string{"start-1->n2", "n2->end-1", "start-1->end-1"}, edgePairs(g))

	// A second delete of the same middle node does not duplicate edges.
	require.NoError(t, f.DeleteNode("n2"))
	assert.Equal(t, []string{"start-1->end-1"}, edgePairs(f.Graph()))

	assert.ErrorIs(t, f.DeleteNode("n2"), domain.ErrNodeNotFound)
}

func TestDeleteNode_KeepsBranchLabel(t *testing.T) {
	f := New(sequentialIDs())
	cond, err := f.AddNode(domain.KindCondition, domain.Position{X: 900})
	require.NoError(t, err)
	mid, err := f.AddNode(domain.KindAnswer, domain.Position{X: 900, Y: 300})
	require.NoError(t, err)
	_, err = f.Connect(cond.ID, mid.ID, domain.BranchTrue)
	require.NoError(t, err)
	_, err = f.Connect(mid.ID, "end-1", "")
	require.NoError(t, err)

	require.NoError(t, f.DeleteNode(mid.ID))
	out := f.Graph().Outgoing(cond.ID)
	require.Len(t, out, 1)
	assert.Equal(t, "end-1", out[0].Target)
	assert.Equal(t, domain.BranchTrue, out[0].BranchLabel)
}

func TestConnect(t *testing.T) {
	f := New(sequentialIDs())
	q, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)
	ans, err := f.AddNode(domain.KindAnswer, domain.Position{X: 900})
	require.NoError(t, err)

	e, err := f.Connect(q.ID, ans.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.EdgeID(q.ID, ans.ID), e.ID)

	tests := []struct {
		name           string
		source, target string
		wantErr        error
	}{
		{"start to end", "start-1", "end-1", domain.ErrConnectionRejected},
		{"into container", q.ID, "subflow-1", domain.ErrConnectionRejected},
		{"out of container", "subflow-1", ans.ID, domain.ErrConnectionRejected},
		{"duplicate", q.ID, ans.ID, domain.ErrConnectionRejected},
		{"unknown source", "ghost", ans.ID, domain.ErrNodeNotFound},
		{"unknown target", q.ID, "ghost", domain.ErrNodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.Graph()
			_, err := f.Connect(tt.source, tt.target, "")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, f.Graph())
		})
	}

	require.NoError(t, f.Disconnect(e.ID))
	assert.False(t, f.Graph().HasEdge(q.ID, ans.ID))
	assert.ErrorIs(t, f.Disconnect(e.ID), domain.ErrEdgeNotFound)
}

func TestUpdateNodeData(t *testing.T) {
	f := New(sequentialIDs())
	q, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)

	updated, err := f.UpdateNodeData(q.ID, map[string]any{"question": "What is your name?", "required": "no"})
	require.NoError(t, err)

	p, ok := domain.PayloadAs[*domain.QuestionPayload](updated)
	require.True(t, ok)
	assert.Equal(t, "What is your name?", p.Question)
	assert.Equal(t, "no", p.Required)
	assert.Equal(t, "Question", updated.Label(), "untouched keys are kept")

	_, err = f.UpdateNodeData("ghost", map[string]any{})
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestMoveNode_KeepsLayoutRules(t *testing.T) {
	f := New(sequentialIDs())
	q, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)

	moved, err := f.MoveNode(q.ID, domain.Position{X: -300, Y: -300})
	require.NoError(t, err)
	assert.Equal(t, domain.Position{X: 20, Y: 60}, moved.Position)

	// Dropping the CTA into the middle of the container pushes it out.
	end, err := f.MoveNode("end-1", domain.Position{X: 260, Y: 360})
	require.NoError(t, err)
	assert.Equal(t, domain.Position{X: 260, Y: 150 + 500 + 20}, end.Position)

	_, err = f.MoveNode("ghost", domain.Position{})
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestResizeContainer(t *testing.T) {
	f := New()
	require.NoError(t, f.ResizeContainer(domain.Size{Width: 900, Height: 700}))

	box, _ := f.Node("subflow-1")
	assert.Equal(t, domain.Size{Width: 900, Height: 700}, box.ContainerSize())
}

func TestFromGraph_KeepsManualContainerSize(t *testing.T) {
	f := New(sequentialIDs())
	_, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)
	manual := domain.Size{Width: 900, Height: 700}
	require.NoError(t, f.ResizeContainer(manual))

	reloaded := FromGraph(f.Graph())
	box, _ := reloaded.Node("subflow-1")
	assert.Equal(t, manual, box.ContainerSize())

	_, err = reloaded.MoveNode("start-1", domain.Position{X: 1200, Y: 50})
	require.NoError(t, err)
	box, _ = reloaded.Node("subflow-1")
	assert.Equal(t, manual, box.ContainerSize())

	// Normalize is the explicit full pass.
	reloaded.Normalize()
	box, _ = reloaded.Node("subflow-1")
	assert.Equal(t, domain.Size{Width: 600, Height: 500}, box.ContainerSize())
}

func TestExportImport_RoundTrip(t *testing.T) {
	f := New(sequentialIDs())
	_, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)
	cond, err := f.AddNode(domain.KindCondition, domain.Position{X: 900, Y: 100})
	require.NoError(t, err)
	_, err = f.UpdateNodeData(cond.ID, map[string]any{
		"conditions": map[string]any{"variable": "age", "operator": "greater", "value": "18"},
	})
	require.NoError(t, err)
	_, err = f.Connect(cond.ID, "end-1", domain.BranchTrue)
	require.NoError(t, err)

	data, err := f.Export()
	require.NoError(t, err)

	other := New()
	require.NoError(t, other.Import(data))
	assert.Equal(t, f.Graph(), other.Graph())
}

func TestImport_RejectsAndKeepsState(t *testing.T) {
	f := New(sequentialIDs())
	_, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)
	before := f.Graph()

	for _, raw := range []string{`not json`, `{"nodes": {}, "edges": []}`, `{"nodes": []}`} {
		err := f.Import([]byte(raw))
		assert.ErrorIs(t, err, domain.ErrInvalidFlow, raw)
	}
	assert.Equal(t, before, f.Graph())
}

func TestImport_AppliesLayoutRules(t *testing.T) {
	raw := `{
		"nodes": [
			{"id": "box", "type": "subflow", "position": {"x": 0, "y": 0}, "data": {"label": "Questions"}},
			{"id": "cta", "type": "end", "parentId": "box", "position": {"x": 10, "y": 10}, "data": {"label": "CTA"}}
		],
		"edges": []
	}`
	f := New()
	require.NoError(t, f.Import([]byte(raw)))

	cta, ok := f.Node("cta")
	require.True(t, ok)
	assert.Empty(t, cta.ParentID)
	assert.Equal(t, domain.Position{X: 250 - 90, Y: 400 + 50}, cta.Position, "an empty container shrinks to 500x400")
}

func TestFlow_Execution(t *testing.T) {
	ctx := context.Background()
	f := New(sequentialIDs())
	_, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)

	f.Start(ctx)
	f.SendMessage(ctx, "Ana")
	cur, ok := f.CurrentNode()
	require.True(t, ok)
	assert.Equal(t, "n1", cur.ID)

	f.Step(ctx)
	f.Step(ctx)
	st := f.Execution()
	assert.False(t, st.Running)
	assert.Equal(t, []string{"start-1", "n1", "end-1"}, st.History)
	assert.Equal(t, "Ana", st.Context.Variables["user_input"])

	// The run sees edits made while it is stopped.
	f.Stop()
	require.NoError(t, f.DeleteNode("end-1"))
	f.Start(ctx)
	f.Step(ctx)
	f.Step(ctx)
	assert.NotEmpty(t, f.Execution().LastError)

	saved := f.Execution()
	f.Stop()
	f.RestoreExecution(saved)
	assert.Equal(t, saved, f.Execution())
}
