// Package session stores assistant chat sessions with a time-to-live.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

// MemoryStore keeps sessions in process. Expired sessions are dropped when
// they are read and on every save.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	session   models.ChatSession
	expiresAt time.Time
}

type MemoryOption func(*MemoryStore)

// WithClock replaces the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{items: map[string]memoryItem{}, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ repository.SessionRepo = (*MemoryStore)(nil)

func (m *MemoryStore) SaveSession(_ context.Context, s *models.ChatSession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, it := range m.items {
		if !now.Before(it.expiresAt) {
			delete(m.items, id)
		}
	}
	m.items[s.SessionID] = memoryItem{session: clone(s), expiresAt: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !m.now().Before(it.expiresAt) {
		delete(m.items, id)
		return nil, repository.ErrNotFound
	}
	s := clone(&it.session)
	return &s, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[id]
	if !ok || !m.now().Before(it.expiresAt) {
		delete(m.items, id)
		return repository.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

// Len reports the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func clone(s *models.ChatSession) models.ChatSession {
	out := *s
	out.Messages = slices.Clone(s.Messages)
	if s.Equipment != nil {
		eq := *s.Equipment
		out.Equipment = &eq
	}
	return out
}
