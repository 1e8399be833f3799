package session

import (
	"sync"
	"time"

	"branchdesk/pkg/records"

	"github.com/google/uuid"
)

// Session is the per-client state every operation receives explicitly: who
// is logged in and which flow they picked. A session only exists once its
// user has logged in; logging out deletes it.
type Session struct {
	ID        string
	CreatedAt time.Time

	identity records.Identity

	mu       sync.Mutex
	function string
}

func (s *Session) Identity() records.Identity {
	return s.identity
}

// SelectFunction records the flow (search, entry, view) the user is in.
func (s *Session) SelectFunction(fn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.function = fn
}

func (s *Session) Function() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.function
}

type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Create issues a fresh session ID for an authenticated identity. IDs are
// never reused, so an ID known before login cannot become authenticated.
func (m *Manager) Create(id records.Identity) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: m.now(),
		identity:  id,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Delete ends a session. Unknown IDs are ignored.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Prune drops sessions created more than maxAge ago.
func (m *Manager) Prune(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-maxAge)
	n := 0
	for id, s := range m.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
