package store

import (
	"context"
	"sync"
	"time"

	"github.com/eldtechnologies/abxy/internal/models"
)

// MemorySessionStore keeps access sessions in process memory. It is used
// when no Redis URL is configured.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.AccessSession
	now      func() time.Time
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]models.AccessSession),
		now:      time.Now,
	}
}

// Ping always succeeds.
func (s *MemorySessionStore) Ping(ctx context.Context) error {
	return nil
}

// SaveSession stores an access session.
func (s *MemorySessionStore) SaveSession(ctx context.Context, sess models.AccessSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

// GetSession returns the session, or nil if unknown or expired.
func (s *MemorySessionStore) GetSession(ctx context.Context, id string) (*models.AccessSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, id)
		return nil, nil
	}
	return &sess, nil
}

// DeleteSession revokes a session.
func (s *MemorySessionStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
