package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const sessionIdleTTL = time.Hour

type session struct {
	createdAt       time.Time
	lastSeen        time.Time
	protocolVersion string
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

func (s *sessionStore) create(protocolVersion string) string {
	id := uuid.NewString()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &session{createdAt: now, lastSeen: now, protocolVersion: protocolVersion}
	return id
}

// touch marks the session as active and reports whether it exists.
func (s *sessionStore) touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.lastSeen = s.now()
	return true
}

func (s *sessionStore) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// sweep drops sessions idle for longer than idle and returns how many were
// removed.
func (s *sessionStore) sweep(idle time.Duration) int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > idle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func (s *sessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
