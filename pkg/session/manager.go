package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/keystone/internal/logging"
	"github.com/aretw0/keystone/internal/runtime"
	"github.com/aretw0/keystone/pkg/domain"
	"github.com/google/uuid"
)

// ErrCapacity is returned by Start when the session limit is reached.
var ErrCapacity = errors.New("too many active sessions")

// Factory builds an unstarted machine for a session ID.
type Factory func(id string) *runtime.Machine

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	factory Factory

	mu       sync.Mutex                  // Global lock for the maps
	sessions map[string]*runtime.Machine // Live machines
	locks    map[string]*lockEntry       // Map of active locks

	maxSessions int
	newID       func() string
	now         func() time.Time
	onChange    func(active int)
	logger      *slog.Logger // Logger for internal events (like evictions)
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMaxSessions caps the number of live sessions. Zero means unlimited.
func WithMaxSessions(n int) Option {
	return func(m *Manager) {
		m.maxSessions = n
	}
}

// WithIDGenerator replaces the uuid session ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithClock overrides the time source used for idle checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithOnChange registers a callback receiving the live session count after every change.
func WithOnChange(fn func(active int)) Option {
	return func(m *Manager) {
		m.onChange = fn
	}
}

// NewManager creates a new Session Manager building machines with factory.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory:  factory,
		sessions: make(map[string]*runtime.Machine),
		locks:    make(map[string]*lockEntry),
		newID:    uuid.NewString,
		now:      time.Now,
		logger:   logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates, starts and registers a new session.
func (m *Manager) Start(ctx context.Context) (*runtime.Machine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, ErrCapacity
	}
	id := m.newID()
	machine := m.factory(id)
	m.sessions[id] = machine
	n := len(m.sessions)
	m.mu.Unlock()

	machine.Start()
	m.changed(n)
	m.logger.DebugContext(ctx, "session started", "session_id", id)
	return machine, nil
}

// Get returns the live machine for id.
func (m *Manager) Get(id string) (*runtime.Machine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	machine, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return machine, nil
}

// Delete tears the session down and forgets it.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	machine, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return domain.ErrSessionNotFound
	}
	machine.Close()
	m.changed(n)
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap closes sessions idle for longer than idle and returns how many were removed.
func (m *Manager) Reap(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	var stale []*runtime.Machine
	for id, machine := range m.sessions {
		if machine.LastActive().Before(cutoff) {
			stale = append(stale, machine)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, machine := range stale {
		machine.Close()
		m.logger.Debug("session reaped", "session_id", machine.ID())
	}
	if len(stale) > 0 {
		m.changed(n)
	}
	return len(stale)
}

// Run reaps idle sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Reap(idle); n > 0 {
				m.logger.Info("reaped idle sessions", "count", n)
			}
		}
	}
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*runtime.Machine)
	m.mu.Unlock()

	for _, machine := range all {
		machine.Close()
	}
	m.changed(0)
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
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

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return // Should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock runs fn with the session's machine while holding the session lock,
// so a compound operation (an intent followed by a View) is not interleaved with another request.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context, *runtime.Machine) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	machine, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	return fn(ctx, machine)
}

func (m *Manager) changed(n int) {
	if m.onChange != nil {
		m.onChange(n)
	}
}
