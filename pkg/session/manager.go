package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/flow"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// subscriberBuffer is the number of diffs a slow subscriber may lag behind
// before new diffs are dropped for it.
const subscriberBuffer = 16

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// Unused locks are garbage collected by reference counting.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger

	flowOpts []flow.Option
	newID    func() string

	subMu sync.Mutex
	subs  map[string]map[chan *domain.StateDiff]struct{}
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithFlowOptions sets the options used to rebuild a Flow for every update,
// e.g. lifecycle hooks or validator settings.
func WithFlowOptions(opts ...flow.Option) Option {
	return func(m *Manager) {
		m.flowOpts = append(m.flowOpts, opts...)
	}
}

// WithIDGenerator replaces the session ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// NewManager creates a Session Manager over the given store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		newID:   uuid.NewString,
		subs:    make(map[string]map[chan *domain.StateDiff]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST lock entry.mu and call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes fn while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Create stores a new session over g, normalized by the layout rules.
// The default flow is stored as is.
// An empty sessionID gets a generated one; a nil graph is replaced by the
// default flow. Returns domain.ErrSessionExists if the ID is taken.
func (m *Manager) Create(ctx context.Context, sessionID string, g *domain.Graph) (*domain.Session, error) {
	if sessionID == "" {
		sessionID = m.newID()
	}
	normalize := g != nil
	if g == nil {
		g = flow.DefaultGraph()
	}

	var created *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, sessionID)
		if err == nil {
			return fmt.Errorf("%w: %s", domain.ErrSessionExists, sessionID)
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to check session existence: %w", err)
		}

		f := flow.FromGraph(g, m.flowOpts...)
		if normalize {
			f.Normalize()
		}
		created = domain.NewSession(sessionID, f.Graph())
		if err := m.store.Save(ctx, created); err != nil {
			return fmt.Errorf("failed to initialize session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Debug("session created", "session_id", sessionID)
	return created, nil
}

// LoadOrCreate loads the session, creating it with the default flow when it
// does not exist yet.
func (m *Manager) LoadOrCreate(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := m.Load(ctx, sessionID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	s, err = m.Create(ctx, sessionID, nil)
	if errors.Is(err, domain.ErrSessionExists) {
		// Lost the race against another creator.
		return m.Load(ctx, sessionID)
	}
	return s, err
}

// Load retrieves an existing session from the store.
func (m *Manager) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		s, err = m.store.Load(ctx, sessionID)
		return err
	})
	return s, err
}

// Save persists the session.
func (m *Manager) Save(ctx context.Context, s *domain.Session) error {
	return m.WithLock(ctx, s.ID, func(ctx context.Context) error {
		return m.store.Save(ctx, s)
	})
}

// Delete removes the session from the store.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return m.store.Delete(ctx, sessionID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// Flow loads the session and rebuilds its Flow with the manager's flow
// options. Changes made to the returned Flow are not persisted.
func (m *Manager) Flow(ctx context.Context, sessionID string) (*flow.Flow, error) {
	s, err := m.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	f := flow.FromGraph(s.Graph, m.flowOpts...)
	f.RestoreExecution(s.Execution)
	return f, nil
}

// Update loads the session, rebuilds its Flow, runs fn on it and persists the
// resulting graph and execution state. Nothing is saved when fn fails.
// Subscribers receive the execution diff when the run state changed.
func (m *Manager) Update(ctx context.Context, sessionID string, fn func(context.Context, *flow.Flow) error) (*domain.Session, error) {
	var (
		updated *domain.Session
		diff    *domain.StateDiff
	)
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return err
		}

		f := flow.FromGraph(s.Graph, m.flowOpts...)
		f.RestoreExecution(s.Execution)
		before := f.Execution()

		if err := fn(ctx, f); err != nil {
			return err
		}

		after := f.Execution()
		s.Graph = f.Graph()
		s.Execution = after
		if err := m.store.Save(ctx, s); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		updated = s
		diff = domain.Diff(sessionID, &before, &after)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if diff != nil {
		m.publish(sessionID, diff)
	}
	return updated, nil
}

// Subscribe returns a channel receiving the execution diffs of a session and
// a function that ends the subscription and closes the channel.
func (m *Manager) Subscribe(sessionID string) (<-chan *domain.StateDiff, func()) {
	ch := make(chan *domain.StateDiff, subscriberBuffer)

	m.subMu.Lock()
	if m.subs[sessionID] == nil {
		m.subs[sessionID] = make(map[chan *domain.StateDiff]struct{})
	}
	m.subs[sessionID][ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			delete(m.subs[sessionID], ch)
			if len(m.subs[sessionID]) == 0 {
				delete(m.subs, sessionID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

func (m *Manager) publish(sessionID string, diff *domain.StateDiff) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for ch := range m.subs[sessionID] {
		select {
		case ch <- diff:
		default:
			m.logger.Warn("dropping state diff for slow subscriber", "session_id", sessionID)
		}
	}
}
