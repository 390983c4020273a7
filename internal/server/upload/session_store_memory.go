package upload

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemorySessionStore keeps sessions in process memory. Sessions are lost on restart.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
	}
}

func (m *MemorySessionStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = s.clone()
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s.clone(), nil
}

func (m *MemorySessionStore) AddChunk(ctx context.Context, id string, index uint32, expiresAt time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if s.Status != StatusOpen {
		return nil, closedError(id, s.Status)
	}
	if index >= s.TotalChunks {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, s.TotalChunks)
	}

	s.Received.Add(index)
	s.ExpiresAt = expiresAt
	s.UpdatedAt = time.Now()
	return s.clone(), nil
}

func (m *MemorySessionStore) Transition(ctx context.Context, id string, t Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if s.Status != t.From {
		return false, nil
	}

	s.Status = t.To
	s.UpdatedAt = time.Now()
	if t.Reason != "" {
		s.Reason = t.Reason
	}
	if t.Artifact != nil {
		a := *t.Artifact
		s.Artifact = &a
	}
	if !t.ExpiresAt.IsZero() {
		s.ExpiresAt = t.ExpiresAt
	}
	return true, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) ListExpired(ctx context.Context, now time.Time) ([]*Session, error) {
	return m.filter(func(s *Session) bool { return s.Expired(now) }), nil
}

func (m *MemorySessionStore) ListByStatus(ctx context.Context, status Status) ([]*Session, error) {
	return m.filter(func(s *Session) bool { return s.Status == status }), nil
}

func (m *MemorySessionStore) CountActive(ctx context.Context) (int, error) {
	return len(m.filter(func(s *Session) bool {
		return s.Status == StatusOpen || s.Status == StatusAssembling
	})), nil
}

func (m *MemorySessionStore) Close() error {
	return nil
}

func (m *MemorySessionStore) filter(keep func(*Session) bool) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, s.clone())
		}
	}
	return out
}

var _ SessionStore = (*MemorySessionStore)(nil)
