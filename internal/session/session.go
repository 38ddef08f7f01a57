// Package session keeps per-identity conversation state. Sessions are
// ephemeral: losing them only restarts an unfinished flow.
package session

import (
	"context"
	"sync"

	"github.com/uvolbolmasin/boxbot/internal/models"
)

// Store is keyed by Telegram user ID. Get on an unknown identity returns an
// idle session, never an error. Saving an idle session removes the entry.
type Store interface {
	Get(ctx context.Context, id int64) (models.Session, error)
	Save(ctx context.Context, id int64, s models.Session) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[int64]models.Session)}
}

func (m *MemoryStore) Get(_ context.Context, id int64) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || s.State == "" {
		return models.Session{State: models.StateIdle}, nil
	}
	return s, nil
}

func (m *MemoryStore) Save(_ context.Context, id int64, s models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.State == models.StateIdle || s.State == "" {
		delete(m.sessions, id)
		return nil
	}
	m.sessions[id] = s
	return nil
}

// Len returns the number of identities with an unfinished flow.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
