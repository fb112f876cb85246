package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/internal/validator"
	"github.com/aretw0/chatflow/pkg/adapters/file"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/adapters/redis"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/observability"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/aretw0/chatflow/pkg/session"
	"golang.org/x/term"
)

// App is the shared setup of every command: configuration and logger.
type App struct {
	Config config.Config
	Logger *slog.Logger
}

// NewApp loads the configuration at configPath (or chatflow.yaml when empty).
// debug forces the Debug level. Logs go to logOut, typically Stderr.
func NewApp(configPath string, debug bool, logOut io.Writer) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if debug {
		level = slog.LevelDebug
	}

	return &App{
		Config: cfg,
		Logger: logging.New(level, logging.WithOutput(logOut), logging.WithFormat(format)),
	}, nil
}

// ValidatorOptions translates the validator section of the configuration.
func (a *App) ValidatorOptions() []validator.Option {
	var opts []validator.Option
	if a.Config.Validator.StrictBranching {
		opts = append(opts, validator.WithStrictBranching())
	}
	if rc := a.Config.Validator.RequireContainer; rc != nil {
		opts = append(opts, validator.WithContainer(*rc))
	}
	return opts
}

// FlowOptions builds the options every Flow is created with. Metrics may be
// nil; debug adds per-node logging hooks.
func (a *App) FlowOptions(metrics *observability.Metrics, debug bool) []flow.Option {
	var hooks domain.LifecycleHooks
	if metrics != nil {
		hooks = hooks.Merge(metrics.Hooks())
	}
	if debug {
		hooks = hooks.Merge(observability.LoggingHooks(a.Logger))
	}
	return []flow.Option{
		flow.WithLogger(a.Logger),
		flow.WithLifecycleHooks(hooks),
		flow.WithValidatorOptions(a.ValidatorOptions()...),
	}
}

// Storage is an opened session backend.
type Storage struct {
	Store  ports.SessionStore
	Locker ports.DistributedLocker
	close  func() error
}

// Close releases the backend connection, if any.
func (s *Storage) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStorage opens the configured session backend, wrapped with the
// masking and encryption middlewares when configured. Redis also provides
// the distributed locker.
func (a *App) OpenStorage() (*Storage, error) {
	storage, err := a.openBackend()
	if err != nil {
		return nil, err
	}

	var mws []middleware.Middleware
	if patterns := a.Config.Store.MaskPatterns; len(patterns) > 0 {
		mw, err := middleware.NewPIIMiddleware(patterns)
		if err != nil {
			_ = storage.Close()
			return nil, err
		}
		mws = append(mws, mw)
	}
	active, fallback, err := a.Config.Store.Keys()
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	if active != nil {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		})
		if err != nil {
			_ = storage.Close()
			return nil, err
		}
		mws = append(mws, mw)
	}
	storage.Store = middleware.Chain(storage.Store, mws...)
	return storage, nil
}

func (a *App) openBackend() (*Storage, error) {
	sc := a.Config.Store
	switch sc.Backend {
	case config.BackendMemory:
		return &Storage{Store: memory.NewStore()}, nil
	case config.BackendFile:
		path := sc.Path
		if path == "" {
			path = file.DefaultBasePath
		}
		return &Storage{Store: file.New(path)}, nil
	case config.BackendRedis:
		var opts []redis.Option
		if sc.Redis.Prefix != "" {
			opts = append(opts, redis.WithPrefix(sc.Redis.Prefix))
		}
		if sc.Redis.TTL > 0 {
			opts = append(opts, redis.WithTTL(sc.Redis.TTL))
		}
		store := redis.New(sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB, opts...)
		return &Storage{
			Store:  store,
			Locker: redis.NewLocker(store.Client(), store.Prefix()),
			close:  store.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
}

// NewManager wires a session manager over storage.
func (a *App) NewManager(storage *Storage, metrics *observability.Metrics, debug bool) *session.Manager {
	opts := []session.Option{
		session.WithLogger(a.Logger),
		session.WithLockTTL(a.Config.Store.LockTTL),
		session.WithFlowOptions(a.FlowOptions(metrics, debug)...),
	}
	if storage.Locker != nil {
		opts = append(opts, session.WithLocker(storage.Locker))
	}
	return session.NewManager(storage.Store, opts...)
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
