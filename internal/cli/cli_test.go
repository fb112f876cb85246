package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/dsl"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(t *testing.T, backend string) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Backend = backend
	cfg.Store.Path = filepath.Join(t.TempDir(), "sessions")
	return &App{Config: cfg, Logger: logging.NewNop()}
}

func writeFlow(t *testing.T) string {
	t.Helper()
	b := dsl.New()
	b.Start("start").Go("ask")
	b.Question("ask", "What is your name?").Go("end")
	b.End("end", domain.MeetingSchedule)
	data, err := domain.EncodeGraph(b.MustBuild())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func stdinWith(t *testing.T, content string) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stdin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestSimulate_FlowFile(t *testing.T) {
	app := testApp(t, config.BackendMemory)
	var out bytes.Buffer

	err := Simulate(app, SimulateOptions{
		FlowPath: writeFlow(t),
		Stdin:    stdinWith(t, "Ada\n"),
		Stdout:   &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "What is your name?")
	assert.Contains(t, out.String(), "Flow completed.")
	assert.NotContains(t, out.String(), "chatflow", "no banner without a terminal")
}

func TestSimulate_ResumesStoredSession(t *testing.T) {
	app := testApp(t, config.BackendFile)
	flowPath := writeFlow(t)

	var out bytes.Buffer
	require.NoError(t, Simulate(app, SimulateOptions{
		FlowPath:  flowPath,
		SessionID: "demo",
		Stdin:     stdinWith(t, "exit\n"),
		Stdout:    &out,
	}))
	assert.NotContains(t, out.String(), "Flow completed.")

	storage, err := app.OpenStorage()
	require.NoError(t, err)
	s, err := storage.Store.Load(context.Background(), "demo")
	require.NoError(t, err)
	assert.True(t, s.Execution.Running)
	assert.Equal(t, "ask", s.Execution.CurrentNodeID)

	out.Reset()
	require.NoError(t, Simulate(app, SimulateOptions{
		SessionID: "demo",
		Stdin:     stdinWith(t, "Ada\n"),
		Stdout:    &out,
	}))
	assert.Contains(t, out.String(), "Flow completed.")

	s, err = storage.Store.Load(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "ask", "end"}, s.Execution.History)
	assert.Equal(t, "Ada", s.Execution.Context.Variables["user_input"])
}

func TestSimulate_ContextAndJSON(t *testing.T) {
	app := testApp(t, config.BackendMemory)
	var out bytes.Buffer

	err := Simulate(app, SimulateOptions{
		FlowPath: writeFlow(t),
		Context:  `{"plan": "pro"}`,
		JSON:     true,
		Stdin:    stdinWith(t, "\"Ada\"\n"),
		Stdout:   &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"type":"prompt"`)
	assert.Contains(t, out.String(), "Flow completed.")
}

func TestSimulate_Errors(t *testing.T) {
	app := testApp(t, config.BackendMemory)

	err := Simulate(app, SimulateOptions{Stdin: stdinWith(t, ""), Stdout: &bytes.Buffer{}})
	assert.ErrorContains(t, err, "a flow file is required")

	err = Simulate(app, SimulateOptions{FlowPath: writeFlow(t), Context: "{", Stdin: stdinWith(t, ""), Stdout: &bytes.Buffer{}})
	assert.ErrorContains(t, err, "--context")
}

func TestOpenStorage_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	app := testApp(t, config.BackendRedis)
	app.Config.Store.Redis.Addr = mr.Addr()
	app.Config.Store.Redis.Prefix = "test:"

	storage, err := app.OpenStorage()
	require.NoError(t, err)
	defer storage.Close()
	require.NotNil(t, storage.Locker)

	mgr := app.NewManager(storage, observability.NewMetrics(nil), true)
	ctx := context.Background()
	_, err = mgr.Create(ctx, "s1", nil)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:s1"))

	ids, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

func TestOpenStorage_EncryptedAndMasked(t *testing.T) {
	app := testApp(t, config.BackendFile)
	app.Config.Store.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	app.Config.Store.MaskPatterns = []string{"^email$"}

	storage, err := app.OpenStorage()
	require.NoError(t, err)
	defer storage.Close()

	ctx := context.Background()
	s := domain.NewSession("secure", nil)
	s.Execution.Context.Variables["email"] = "ada@example.com"
	s.Execution.Context.Variables["name"] = "Ada"
	require.NoError(t, storage.Store.Save(ctx, s))

	raw, err := file.New(app.Config.Store.Path).Load(ctx, "secure")
	require.NoError(t, err)
	assert.Empty(t, raw.Execution.Context.Variables)

	loaded, err := storage.Store.Load(ctx, "secure")
	require.NoError(t, err)
	assert.Equal(t, "***", loaded.Execution.Context.Variables["email"])
	assert.Equal(t, "Ada", loaded.Execution.Context.Variables["name"])
}

func TestOpenStorage_BadMaskPattern(t *testing.T) {
	app := testApp(t, config.BackendMemory)
	app.Config.Store.MaskPatterns = []string{"("}
	_, err := app.OpenStorage()
	assert.ErrorContains(t, err, "invalid mask pattern")
}

func TestNewApp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\nvalidator:\n  require_container: false\n"), 0o644))

	var logs bytes.Buffer
	app, err := NewApp(path, false, &logs)
	require.NoError(t, err)
	assert.Len(t, app.ValidatorOptions(), 1)

	app.Logger.Info("hidden")
	app.Logger.Warn("shown")
	assert.NotContains(t, logs.String(), "hidden")
	assert.Contains(t, logs.String(), "shown")

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))
	_, err = NewApp(path, false, &logs)
	assert.ErrorContains(t, err, "unknown log level")
}
