package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/presentation/tui"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/runner"
)

// SimulateOptions configures the interactive simulator.
type SimulateOptions struct {
	// FlowPath is the exported flow to run. It may be empty when SessionID
	// names a stored session.
	FlowPath string

	// SessionID persists the run after every step and resumes it on the
	// next invocation.
	SessionID string

	// Fresh discards the stored session before running.
	Fresh bool

	// Context is a JSON object merged into the run variables.
	Context string

	JSON  bool
	Debug bool

	Stdin  *os.File
	Stdout io.Writer
}

// Simulate runs a flow in the terminal until it completes, halts or the user
// leaves. Interruptions are not errors.
func Simulate(app *App, opts SimulateOptions) error {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	var vars map[string]any
	if opts.Context != "" {
		if err := json.Unmarshal([]byte(opts.Context), &vars); err != nil {
			return fmt.Errorf("error parsing --context JSON: %w", err)
		}
	}

	interactive := !opts.JSON && IsTerminal(opts.Stdin)
	if interactive {
		tui.PrintBanner(opts.Stdout, chatflow.Version)
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	var storage *Storage
	if opts.SessionID != "" {
		var err error
		if storage, err = app.OpenStorage(); err != nil {
			return err
		}
		defer storage.Close()
	}

	f, resumed, err := loadSimulation(sigCtx, app, storage, opts)
	if err != nil {
		return err
	}
	if len(vars) > 0 {
		f.UpdateContext(domain.ContextUpdate{Variables: vars})
	}

	if res := f.Validate(); !res.Valid {
		app.Logger.Warn("Simulating an invalid flow", "errors", len(res.Errors))
		if interactive {
			fmt.Fprintf(opts.Stdout, ">>> The flow has %d validation errors; the run may halt early.\n", len(res.Errors))
		}
	}
	if resumed {
		app.Logger.Info("Session resumed", "session_id", opts.SessionID, "node", f.Execution().CurrentNodeID)
	}

	runnerOpts := []runner.Option{runner.WithLogger(app.Logger)}
	if storage != nil {
		runnerOpts = append(runnerOpts, runner.WithStore(storage.Store), runner.WithSessionID(opts.SessionID))
	}
	if opts.JSON {
		runnerOpts = append(runnerOpts, runner.WithInputHandler(runner.NewJSONHandler(opts.Stdin, opts.Stdout)))
	} else {
		var textOpts []runner.TextHandlerOption
		if interactive {
			if render, err := tui.NewRenderer(); err == nil {
				textOpts = append(textOpts, runner.WithTextHandlerRenderer(render))
			} else {
				app.Logger.Warn("Markdown rendering disabled", "err", err)
			}
		}
		runnerOpts = append(runnerOpts, runner.WithInputHandler(runner.NewTextHandler(opts.Stdin, opts.Stdout, textOpts...)))
	}

	runErr := runner.NewRunner(runnerOpts...).Run(sigCtx, f)
	if sigCtx.Err() != nil && runErr == nil {
		runErr = sigCtx.Err()
	}
	if isInterrupted(runErr) {
		if interactive && sigCtx.Signal() != nil {
			fmt.Fprintf(opts.Stdout, "\n>>> Interrupted at '%s' node.\n", f.Execution().CurrentNodeID)
		}
		return nil
	}
	return runErr
}

// loadSimulation picks the flow to run: the stored session when it exists,
// otherwise the flow file.
func loadSimulation(ctx context.Context, app *App, storage *Storage, opts SimulateOptions) (*flow.Flow, bool, error) {
	flowOpts := app.FlowOptions(nil, opts.Debug)

	if storage != nil {
		if opts.Fresh {
			if err := storage.Store.Delete(ctx, opts.SessionID); err != nil {
				return nil, false, fmt.Errorf("failed to reset session: %w", err)
			}
		}
		s, err := storage.Store.Load(ctx, opts.SessionID)
		switch {
		case err == nil:
			f := flow.FromGraph(s.Graph, flowOpts...)
			f.RestoreExecution(s.Execution)
			if s.Execution.Finished() {
				// A finished run starts over.
				f.Stop()
			}
			return f, s.Execution.Running, nil
		case !errors.Is(err, domain.ErrSessionNotFound):
			return nil, false, fmt.Errorf("failed to load session: %w", err)
		}
	}

	if opts.FlowPath == "" {
		return nil, false, errors.New("a flow file is required unless --session names a stored session")
	}
	f, err := chatflow.Load(opts.FlowPath, flowOpts...)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
