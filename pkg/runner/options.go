package runner

import (
	"log/slog"

	"github.com/aretw0/chatflow/pkg/ports"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithStore persists the session after every transition.
// It requires WithSessionID.
func WithStore(store ports.SessionStore) Option {
	return func(r *Runner) {
		r.Store = store
	}
}

// WithSessionID sets the ID under which the session is persisted.
func WithSessionID(id string) Option {
	return func(r *Runner) {
		r.SessionID = id
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.Logger = logger
		}
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithRenderer configures the content renderer of the default TextHandler.
func WithRenderer(renderer ContentRenderer) Option {
	return func(r *Runner) {
		r.Renderer = renderer
	}
}

// WithExitWords replaces the answers that end the simulation ("exit", "quit").
func WithExitWords(words ...string) Option {
	return func(r *Runner) {
		r.ExitWords = words
	}
}
