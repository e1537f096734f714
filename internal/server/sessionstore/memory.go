package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/server/models"
)

// MemoryStore is a process-local Store. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.Session), now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, userID string) (*models.Session, error) {
	sess, err := newSession(userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[sess.ID] = *sess
	s.mu.Unlock()
	return sess, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &sess, nil
}

func (s *MemoryStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return common.ErrorNotFound
	}
	sess.LastSeenAt = s.now().UTC()
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) InvalidateUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
