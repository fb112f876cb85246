package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/ports"
)

// Messages reported through IOHandler.SystemOutput.
const (
	MsgCompleted = "Flow completed."
	MsgResumed   = "Resuming paused run."
	MsgExited    = "Simulation ended by user."
)

// ErrNoStart is returned when the flow cannot be started.
var ErrNoStart = errors.New("flow has no start node")

// Runner drives a flow.Flow interactively: it presents each node entered by
// the run, reads an answer whenever a Question is active and steps forward
// otherwise. It uses an IOHandler strategy to abstract the interaction mode.
type Runner struct {
	// Handler is the strategy for IO. If nil, a TextHandler over Input and
	// Output is used.
	Handler IOHandler

	// Logger is used for internal debug logging.
	Logger *slog.Logger

	// Store persists the session after every transition. If nil, runs are
	// ephemeral.
	Store     ports.SessionStore
	SessionID string

	// ExitWords end the simulation when given as an answer (case-insensitive).
	ExitWords []string

	Input    io.Reader
	Output   io.Writer
	Renderer ContentRenderer

	createdAt time.Time
}

// NewRunner creates a Runner with default Stdin/Stdout.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		Input:     os.Stdin,
		Output:    os.Stdout,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		ExitWords: []string{"exit", "quit"},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	var opts []TextHandlerOption
	if r.Renderer != nil {
		opts = append(opts, WithTextHandlerRenderer(r.Renderer))
	}
	return NewTextHandler(r.Input, r.Output, opts...)
}

// Run executes the simulation until the run completes, halts, the user exits
// or the input ends. A flow that is already running (e.g. restored from a
// session) continues where it stopped; a paused run is resumed.
// A halt is reported to the user and is not an error.
func (r *Runner) Run(ctx context.Context, f *flow.Flow) error {
	handler := r.resolveHandler()
	r.createdAt = time.Now().UTC()
	if r.Store != nil && r.SessionID != "" {
		if prev, err := r.Store.Load(ctx, r.SessionID); err == nil && !prev.CreatedAt.IsZero() {
			r.createdAt = prev.CreatedAt
		}
	}

	st := f.Execution()
	switch {
	case !st.Running:
		f.Start(ctx)
		if !f.Execution().Running {
			return ErrNoStart
		}
	case st.Paused:
		f.Resume()
		if err := handler.SystemOutput(ctx, MsgResumed); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}
	if err := r.persist(ctx, f); err != nil {
		return err
	}

	shown := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		st := f.Execution()
		if !st.Running {
			return r.finish(ctx, handler, st)
		}

		node, ok := f.CurrentNode()
		if !ok {
			// Step halts the run with a descriptive error.
			f.Step(ctx)
			continue
		}

		prompt := Describe(node)
		if len(st.History) != shown {
			shown = len(st.History)
			if err := handler.Output(ctx, prompt); err != nil {
				return fmt.Errorf("output error: %w", err)
			}
		}

		if prompt.AwaitsInput {
			answer, err := handler.Input(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) {
					r.Logger.Debug("input closed", "node", node.ID)
					return nil
				}
				if errors.Is(err, ErrInputTooLarge) || errors.Is(err, ErrInvalidUTF8) {
					if err := handler.SystemOutput(ctx, err.Error()); err != nil {
						return fmt.Errorf("output error: %w", err)
					}
					continue
				}
				return fmt.Errorf("input error: %w", err)
			}
			if r.isExit(answer) {
				if err := handler.SystemOutput(ctx, MsgExited); err != nil {
					return fmt.Errorf("output error: %w", err)
				}
				return nil
			}
			r.Logger.Debug("answer received", "node", node.ID)
			f.SendMessage(ctx, answer)
		} else {
			f.Step(ctx)
		}

		if err := r.persist(ctx, f); err != nil {
			return err
		}
	}
}

func (r *Runner) finish(ctx context.Context, handler IOHandler, st domain.ExecutionState) error {
	msg := MsgCompleted
	if st.LastError != "" {
		msg = "Execution halted: " + st.LastError
	}
	if err := handler.SystemOutput(ctx, msg); err != nil {
		return fmt.Errorf("output error: %w", err)
	}
	return nil
}

func (r *Runner) isExit(answer string) bool {
	for _, w := range r.ExitWords {
		if strings.EqualFold(strings.TrimSpace(answer), w) {
			return true
		}
	}
	return false
}

func (r *Runner) persist(ctx context.Context, f *flow.Flow) error {
	if r.Store == nil || r.SessionID == "" {
		return nil
	}
	s := &domain.Session{
		ID:        r.SessionID,
		Graph:     f.Graph(),
		Execution: f.Execution(),
		CreatedAt: r.createdAt,
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.Store.Save(ctx, s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
