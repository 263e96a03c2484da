package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

// SessionStore keeps sessions for the process lifetime. All reads return
// copies so callers never alias stored history.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

func (s *SessionStore) GetOrCreate(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = domain.NewSession(sessionID, s.now())
		s.sessions[sessionID] = sess
	}
	return sess.Clone(), nil
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", fmt.Errorf("id %q", sessionID))
	}
	return sess.Clone(), nil
}

// AppendTurn appends messages and counts one completed query.
func (s *SessionStore) AppendTurn(_ context.Context, sessionID string, messages []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = domain.NewSession(sessionID, now)
		s.sessions[sessionID] = sess
	}
	sess.History = append(sess.History, messages...)
	sess.QueryCount++
	sess.UpdatedAt = now
	return nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
