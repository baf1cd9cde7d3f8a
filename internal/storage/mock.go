package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*Snapshot
	flags     map[string]map[string]string
	pingError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		sessions: make(map[uuid.UUID]*Snapshot),
		flags:    make(map[string]map[string]string),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveSession(ctx context.Context, id uuid.UUID, snap *Snapshot) error {
	if snap == nil {
		return errors.New("snapshot cannot be nil")
	}
	snap.UpdatedAt = time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = snap
	return nil
}

func (m *MockStorage) LoadSession(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, exists := m.sessions[id]
	if !exists {
		return nil, nil // Return nil for not found
	}
	return snap, nil
}

func (m *MockStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MockStorage) GetFlags(ctx context.Context, playerID string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.flags[playerID]))
	for k, v := range m.flags[playerID] {
		out[k] = v
	}
	return out, nil
}

func (m *MockStorage) SetFlag(ctx context.Context, playerID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flags[playerID] == nil {
		m.flags[playerID] = make(map[string]string)
	}
	m.flags[playerID][key] = value
	return nil
}

func (m *MockStorage) SetFlags(ctx context.Context, playerID string, flags map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flags[playerID] == nil {
		m.flags[playerID] = make(map[string]string)
	}
	for k, v := range flags {
		m.flags[playerID][k] = v
	}
	return nil
}
