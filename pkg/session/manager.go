package session

import (
	"context"
	"sync"
	"time"
)

// Manager keys sessions by ID. Every session it creates shares the same
// options. Sessions idle longer than the idle timeout are closed by Sweep,
// and the least recently used session is closed when the cap is reached.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*managed
	opts     []Option

	idleTimeout time.Duration
	maxSessions int
	clock       func() time.Time
}

type managed struct {
	session  *Session
	lastSeen time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithIdleTimeout sets how long an unused session survives. Zero disables
// expiry.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.idleTimeout = d
	}
}

// WithMaxSessions caps open sessions. Zero means no cap.
func WithMaxSessions(n int) ManagerOption {
	return func(m *Manager) {
		m.maxSessions = n
	}
}

// WithManagerClock sets the time source used for idle tracking.
func WithManagerClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// NewManager creates a Manager whose sessions are built with sessionOpts.
func NewManager(sessionOpts []Option, opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*managed),
		opts:     sessionOpts,
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Create opens a new session with a fresh ID.
func (m *Manager) Create() *Session {
	s := New(m.opts...)

	m.mu.Lock()
	evicted := m.addLocked(s)
	m.mu.Unlock()

	closeAll(evicted)
	return s
}

// Get returns the session with the given ID and marks it as used.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.clock()
	return e.session, true
}

// GetOrCreate returns the session with the given ID, creating one under that
// ID when it is unknown. An empty ID always creates a new session.
func (m *Manager) GetOrCreate(id string) (*Session, bool) {
	if id == "" {
		return m.Create(), true
	}

	m.mu.Lock()
	if e, ok := m.sessions[id]; ok {
		e.lastSeen = m.clock()
		m.mu.Unlock()
		return e.session, false
	}
	opts := append(append([]Option(nil), m.opts...), WithID(id))
	s := New(opts...)
	evicted := m.addLocked(s)
	m.mu.Unlock()

	closeAll(evicted)
	return s, true
}

// addLocked registers s, returning the sessions removed to respect the cap.
func (m *Manager) addLocked(s *Session) []*Session {
	var evicted []*Session
	for m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		oldest := ""
		var oldestSeen time.Time
		for id, e := range m.sessions {
			if oldest == "" || e.lastSeen.Before(oldestSeen) {
				oldest, oldestSeen = id, e.lastSeen
			}
		}
		evicted = append(evicted, m.sessions[oldest].session)
		delete(m.sessions, oldest)
	}
	m.sessions[s.ID()] = &managed{session: s, lastSeen: m.clock()}
	return evicted
}

// Delete closes and forgets the session with the given ID.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		e.session.Close()
	}
	return ok
}

// Sweep closes sessions idle for at least the idle timeout and returns how
// many it closed.
func (m *Manager) Sweep() int {
	if m.idleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	now := m.clock()
	var expired []*Session
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) >= m.idleTimeout {
			expired = append(expired, e.session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	closeAll(expired)
	return len(expired)
}

// Run sweeps every interval until ctx ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close closes every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		sessions = append(sessions, e.session)
	}
	m.sessions = make(map[string]*managed)
	m.mu.Unlock()

	closeAll(sessions)
}

func closeAll(sessions []*Session) {
	for _, s := range sessions {
		s.Close()
	}
}
