package chatflow_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadValidate(t *testing.T) {
	f := chatflow.New()
	q, err := f.AddNode(domain.KindQuestion, domain.Position{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, chatflow.Save(f, path))

	res, err := chatflow.ValidateFile(path)
	require.NoError(t, err)
	assert.True(t, res.Valid, res.Errors)

	loaded, err := chatflow.Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Graph().Nodes, len(f.Graph().Nodes))
	_, ok := loaded.Node(q.ID)
	assert.True(t, ok)
}

func TestValidate_DefaultFlowNeedsQuestions(t *testing.T) {
	data, err := chatflow.New().Export()
	require.NoError(t, err)

	res, err := chatflow.Validate(data)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "Please add at least one Question node to create a valid flow")
}

func TestValidate_RejectsMalformed(t *testing.T) {
	_, err := chatflow.Validate([]byte("{"))
	assert.Error(t, err)

	_, err = chatflow.Validate([]byte(`{"nodes": {}, "edges": []}`))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := chatflow.Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
