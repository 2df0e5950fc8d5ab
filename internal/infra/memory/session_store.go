package memory

import (
	"context"
	"sync"
	"time"

	"quiz-session-runner/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// With an idle TTL, Sweep closes sessions nobody has touched for that long.
type SessionStore struct {
	idleTTL time.Duration
	clock   func() time.Time

	mu       sync.Mutex
	sessions map[string]*storedSession
}

type storedSession struct {
	session  *app.Session
	lastSeen time.Time
}

type SessionStoreOption func(*SessionStore)

// WithIdleTTL enables eviction of sessions idle for longer than ttl.
func WithIdleTTL(ttl time.Duration) SessionStoreOption {
	return func(s *SessionStore) { s.idleTTL = ttl }
}

// WithSessionClock is test-only for deterministic idle tracking.
func WithSessionClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) { s.clock = now }
}

func NewSessionStore(opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		clock:    time.Now,
		sessions: make(map[string]*storedSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) Put(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &storedSession{session: session, lastSeen: s.clock()}
}

// Get returns the session and marks it as used.
func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	stored.lastSeen = s.clock()
	return stored.session, true
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle past the TTL, stops their runners and returns
// their ids. Without an idle TTL it does nothing.
func (s *SessionStore) Sweep() []string {
	if s.idleTTL <= 0 {
		return nil
	}
	cutoff := s.clock().Add(-s.idleTTL)

	var evicted []*app.Session
	s.mu.Lock()
	for id, stored := range s.sessions {
		if stored.lastSeen.Before(cutoff) {
			evicted = append(evicted, stored.session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for _, session := range evicted {
		session.Runner().Close()
		ids = append(ids, session.ID)
	}
	return ids
}

// Run sweeps every interval until ctx is done.
func (s *SessionStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
