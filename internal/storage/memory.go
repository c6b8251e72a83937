package storage

import (
	"context"
	"sync"
)

// Memory is an in-memory Store. It is the default when the host application
// provides nothing durable, and the backend used throughout the tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	lists  map[string][]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]string),
		lists:  make(map[string][]string),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) GetList(_ context.Context, key string) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list, ok := m.lists[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out, true, nil
}

func (m *Memory) SetList(_ context.Context, key string, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]string, len(values))
	copy(stored, values)
	m.lists[key] = stored
	return nil
}
