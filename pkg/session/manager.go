package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/aretw0/cadence/internal/logging"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/ports"
)

// lockEntry holds the per-thread mutex and its reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes turns per conversation thread: at most one goroutine (and
// with a distributed locker, one replica) mutates a thread's DialogueState at
// a time. Locks are reference counted so idle threads cost nothing.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides the distributed lock TTL. The TTL is the crash
// recovery bound: a replica that dies mid-turn frees the thread after it.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for deferred errors.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a session manager over the given checkpoint store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must Lock entry.mu and pair with release(threadID).
func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		entry = &lockEntry{}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and garbage collects the entry.
func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// Load retrieves an existing thread state from the store.
func (m *Manager) Load(ctx context.Context, threadID string) (*domain.DialogueState, error) {
	var state *domain.DialogueState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, threadID)
		return err
	})
	return state, err
}

// LoadOrStart loads a thread's state, creating and persisting a fresh idle
// state on first contact.
func (m *Manager) LoadOrStart(ctx context.Context, threadID string) (*domain.DialogueState, error) {
	var state *domain.DialogueState
	err := m.WithLock(ctx, threadID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, threadID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrThreadNotFound) {
			return fmt.Errorf("failed to check thread existence: %w", err)
		}

		state = domain.NewDialogueState(threadID)

		// Persist immediately to reserve the ID.
		if err := m.store.Save(ctx, threadID, state); err != nil {
			return fmt.Errorf("failed to initialize thread: %w", err)
		}
		return nil
	})
	return state, err
}

// Save checkpoints the thread state.
func (m *Manager) Save(ctx context.Context, threadID string, state *domain.DialogueState) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.store.Save(ctx, threadID, state)
	})
}

// Delete removes the thread from the store.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	return m.WithLock(ctx, threadID, func(ctx context.Context) error {
		return m.store.Delete(ctx, threadID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying checkpoint store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock runs fn while holding exclusive ownership of the thread: the local
// per-thread mutex first, then the distributed lock when configured. The whole
// load-advance-save cycle of a turn runs under one WithLock call.
func (m *Manager) WithLock(ctx context.Context, threadID string, fn func(context.Context) error) error {
	entry := m.acquire(threadID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(threadID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, threadID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock, will expire via TTL",
					"thread_id", threadID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
