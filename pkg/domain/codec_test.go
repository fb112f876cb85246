package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeGraph(t *testing.T) {
	g := chain3()
	g.Edges[1].BranchLabel = BranchTrue

	data, err := EncodeGraph(g)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "2.0"`)

	got, err := DecodeGraph(data)
	require.NoError(t, err)
	assert.Equal(t, g.Nodes, got.Nodes)
	assert.Equal(t, g.Edges, got.Edges)
	assert.Equal(t, CurrentVersion, got.Version)
}

func TestDecodeGraph_EditorExport(t *testing.T) {
	// Extra edge attributes written by the canvas are ignored.
	raw := `{
		"nodes": [
			{"id": "start-1", "type": "start", "position": {"x": 250, "y": 50}, "data": {"label": "Start"}},
			{"id": "end-1", "type": "end", "position": {"x": 250, "y": 500}, "data": {"label": "CTA", "meetingType": "site-visit"}}
		],
		"edges": [
			{"source": "start-1", "target": "end-1", "animated": true, "style": {"strokeWidth": 2}}
		]
	}`

	g, err := DecodeGraph([]byte(raw))
	require.NoError(t, err)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "edge-start-1-end-1", g.Edges[0].ID)
	assert.Empty(t, g.Version)

	end, ok := g.Node("end-1")
	require.True(t, ok)
	p, ok := PayloadAs[*EndPayload](end)
	require.True(t, ok)
	assert.Equal(t, SiteVisit, p.MeetingType)
}

func TestDecodeGraph_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{nodes`},
		{"not an object", `[]`},
		{"missing nodes", `{"edges": []}`},
		{"nodes not array", `{"nodes": {}, "edges": []}`},
		{"edges null", `{"nodes": [], "edges": null}`},
		{"edges string", `{"nodes": [], "edges": "x"}`},
		{"bad node", `{"nodes": [{"id": "a", "type": "warp"}], "edges": []}`},
		{"edge without target", `{"nodes": [], "edges": [{"source": "a"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeGraph([]byte(tt.raw))
			assert.ErrorIs(t, err, ErrInvalidFlow)
		})
	}
}
