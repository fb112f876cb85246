package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/chatflow/internal/presentation/graph"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/dsl"
	"github.com/stretchr/testify/assert"
)

func sampleGraph() *domain.Graph {
	b := dsl.New()
	b.Start("start").Go("q1")
	b.Question("q1", "Ready?").Label(`Say "yes"`).Go("check")
	b.Condition("check", "user_input", domain.OpEquals, "yes").IfTrue("api").IfFalse("wait")
	b.Add("api", domain.KindAPICall).Go("end")
	b.Add("wait", domain.KindDelay).
		Payload(&domain.DelayPayload{Config: &domain.DelayConfig{Duration: 2, Unit: domain.UnitMinutes}}).
		Go("end")
	b.End("end", domain.MeetingSchedule)
	return b.MustBuild()
}

func TestGenerateMermaid_Shapes(t *testing.T) {
	out := graph.GenerateMermaid(sampleGraph(), nil)

	for _, want := range []string{
		"graph TD\n",
		`start(("Start"))`,
		`subgraph subflow_1["Questions"]`,
		`q1[/"Say 'yes'"/]`,
		`check{"Condition"}`,
		`api[["API Call"]]`,
		`wait["Delay <br/> ⏱️ 2m0s"]`,
		`end_(["CTA"])`,
		`check -- "true" --> api`,
		`check -- "false" --> wait`,
		"start --> q1",
		"api --> end_",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Overlay")
}

func TestGenerateMermaid_QuestionOnlyInsideSubgraph(t *testing.T) {
	out := graph.GenerateMermaid(sampleGraph(), nil)

	begin := strings.Index(out, "subgraph")
	finish := strings.Index(out, "    end\n")
	q := strings.Index(out, `q1[/`)
	assert.True(t, begin < q && q < finish, out)
	assert.Equal(t, 1, strings.Count(out, `q1[/`))
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	st := domain.ExecutionState{
		Running:       true,
		CurrentNodeID: "check",
		History:       []string{"start", "q1", "check", "ghost"},
	}
	out := graph.GenerateMermaid(sampleGraph(), graph.OverlayFrom(st))

	assert.Contains(t, out, "class start visited;")
	assert.Contains(t, out, "class q1 visited;")
	assert.Contains(t, out, "class check current;")
	assert.NotContains(t, out, "ghost", "deleted nodes are not styled")

	st.LastError = "No next node found - flow incomplete"
	out = graph.GenerateMermaid(sampleGraph(), graph.OverlayFrom(st))
	assert.Contains(t, out, "class check halted;")
}

func TestOverlayFrom_IdleRun(t *testing.T) {
	assert.Nil(t, graph.OverlayFrom(domain.NewExecutionState()))
}
