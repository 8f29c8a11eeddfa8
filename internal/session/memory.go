package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps contexts in process memory.
type MemoryStore struct {
	now      func() time.Time
	contexts map[int64]Context
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts: make(map[int64]Context),
		now:      time.Now,
	}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, userID int64) (Context, error) {
	if err := validateUser(userID); err != nil {
		return Context{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.contexts[userID]; ok {
		return c, nil
	}
	return New(userID), nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, c Context) error {
	if err := validateUser(c.UserID); err != nil {
		return err
	}

	c.UpdatedAt = m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[c.UserID] = c
	return nil
}

// Reset implements Store.
func (m *MemoryStore) Reset(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, userID)
	return nil
}

// Len reports how many users have a stored context.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.contexts)
}
