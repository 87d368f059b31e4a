package match

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a development-only in-memory store used when no Redis is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	moves    map[string][]MoveRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		moves:    make(map[string][]MoveRecord),
	}
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	id := strings.TrimSpace(s.ID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[id]; exists {
		return fmt.Errorf("create session %s: already exists", id)
	}
	m.sessions[id] = s.Clone()
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Moves(ctx context.Context, id string) ([]MoveRecord, error) {
	id = strings.TrimSpace(id)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[id]; !ok {
		return nil, ErrSessionNotFound
	}
	return append([]MoveRecord{}, m.moves[id]...), nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error) {
	id = strings.TrimSpace(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cur := stored.Clone()
	log := newMoveLog(append([]MoveRecord{}, m.moves[id]...))
	changed, err := fn(cur, log)
	if err != nil {
		return nil, err
	}
	if changed {
		m.sessions[id] = cur.Clone()
		m.moves[id] = log.All()
	}
	return cur, nil
}

func (m *MemoryStore) LiveIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id, s := range m.sessions {
		if !s.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
