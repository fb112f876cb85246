package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSessionStoreContract verifies that a SessionStore implementation
// adheres to the ports.SessionStore contract.
func RunSessionStoreContract(t *testing.T, store ports.SessionStore) {
	t.Helper()
	ctx := context.Background()
	sessionID := fmt.Sprintf("contract-%d", time.Now().UnixNano())

	sample := func(id string) *domain.Session {
		g := domain.NewGraph()
		g.Nodes = append(g.Nodes,
			domain.NewNode("start-1", domain.KindStart, domain.Position{X: 250, Y: 50}),
			domain.NewNode("end-1", domain.KindEnd, domain.Position{X: 250, Y: 650}),
		)
		g.Edges = append(g.Edges, domain.Edge{ID: domain.EdgeID("start-1", "end-1"), Source: "start-1", Target: "end-1"})
		s := domain.NewSession(id, g)
		s.Execution.Running = true
		s.Execution.CurrentNodeID = "start-1"
		s.Execution.History = []string{"start-1"}
		s.Execution.Context.Variables["foo"] = "bar"
		s.Execution.Context.Variables["count"] = 42
		return s
	}

	t.Run("Save and Load", func(t *testing.T) {
		s := sample(sessionID)
		require.NoError(t, store.Save(ctx, s))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, sessionID, loaded.ID)
		assert.Equal(t, "start-1", loaded.Execution.CurrentNodeID)
		assert.Equal(t, []string{"start-1"}, loaded.Execution.History)
		assert.Equal(t, "bar", loaded.Execution.Context.Variables["foo"])
		// JSON backends turn ints into float64, only presence is guaranteed.
		assert.NotNil(t, loaded.Execution.Context.Variables["count"])
		require.Len(t, loaded.Graph.Nodes, 2)
		assert.Equal(t, domain.KindEnd, loaded.Graph.Nodes[1].Kind)
		require.Len(t, loaded.Graph.Edges, 1)
	})

	t.Run("Load returns an isolated copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Execution.Context.Variables["foo"] = "mutated"
		loaded.Graph.Nodes[0].Data.Label = "mutated"

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "bar", again.Execution.Context.Variables["foo"])
		assert.Equal(t, "Start", again.Graph.Nodes[0].Label())
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, sample(sessionID)))
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		assert.NoError(t, store.Delete(ctx, sessionID), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1, id2 := sessionID+"-1", sessionID+"-2"
		require.NoError(t, store.Save(ctx, sample(id1)))
		require.NoError(t, store.Save(ctx, sample(id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
