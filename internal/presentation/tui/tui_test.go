package tui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3\n")

	assert.Contains(t, buf.String(), "v1.2.3")
	assert.GreaterOrEqual(t, strings.Count(buf.String(), "\n"), 7)
}

func TestNewRenderer(t *testing.T) {
	render, err := NewRenderer()
	require.NoError(t, err)

	out, err := render("**Schedule a meeting**")
	require.NoError(t, err)
	assert.Contains(t, out, "Schedule a meeting")
}
