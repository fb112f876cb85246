package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func encrypted(t *testing.T, next ports.SessionStore, cfg middleware.EncryptionConfig) ports.SessionStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return mw(next)
}

func secretSession(id, secret string) *domain.Session {
	s := domain.NewSession(id, nil)
	s.Graph.Nodes = append(s.Graph.Nodes, domain.NewNode("start-1", domain.KindStart, domain.Position{X: 250, Y: 50}))
	s.Execution.Running = true
	s.Execution.History = []string{"start-1"}
	s.Execution.Context.Variables["secret"] = secret
	return s
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := encrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	tests.RunSessionStoreContract(t, store)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	store := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	require.NoError(t, store.Save(ctx, secretSession("s1", "my-secret-sauce")))

	raw, err := underlying.Load(ctx, "s1")
	require.NoError(t, err)
	assert.NotContains(t, raw.Execution.Context.Variables, "secret")
	assert.Empty(t, raw.Graph.Nodes, "the graph is sealed too")
	assert.Empty(t, raw.Execution.History)
	assert.True(t, raw.Execution.Running, "the running flag stays readable")
	assert.Contains(t, raw.Execution.Context.SessionMemory, middleware.EnvelopeKey)

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "my-secret-sauce", loaded.Execution.Context.Variables["secret"])
	assert.Equal(t, []string{"start-1"}, loaded.Execution.History)
	require.Len(t, loaded.Graph.Nodes, 1)
	assert.NotContains(t, loaded.Execution.Context.SessionMemory, middleware.EnvelopeKey)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	oldStore := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	require.NoError(t, oldStore.Save(ctx, secretSession("rot", "encrypted-with-old-key")))

	newStore := encrypted(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := newStore.Load(ctx, "rot")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-with-old-key", loaded.Execution.Context.Variables["secret"])

	loaded.Execution.Context.Variables["secret"] = "encrypted-with-new-key"
	require.NoError(t, newStore.Save(ctx, loaded))

	_, err = oldStore.Load(ctx, "rot")
	assert.Error(t, err, "the old key alone cannot open a session sealed with the new key")
}

func TestEncryptionMiddleware_PlainSession(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewStore()
	require.NoError(t, underlying.Save(ctx, secretSession("plain", "x")))

	store := encrypted(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	_, err := store.Load(ctx, "plain")
	assert.ErrorIs(t, err, middleware.ErrMissingEnvelope)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	assert.ErrorContains(t, err, "32 bytes")

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	assert.ErrorContains(t, err, "fallback key 0")
}
