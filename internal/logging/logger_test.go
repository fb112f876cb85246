package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelInfo, WithOutput(&buf))

	log.Info("save failed", "error", errors.New("disk full"))
	assert.Contains(t, buf.String(), `err="disk full"`)
	assert.NotContains(t, buf.String(), "error=")
}

func TestNew_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelWarn, WithOutput(&buf), WithFormat(FormatJSON))

	log.Info("hidden")
	log.Warn("shown", "node", "q1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "q1", rec["node"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
