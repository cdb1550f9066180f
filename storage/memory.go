package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryKV is an in-memory KV implementation. It is the storage fake used in
// tests and works as a real store for ephemeral sessions.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // tenant -> key -> value
}

// NewMemoryKV creates an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *MemoryKV) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[tenantID][key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores a copy of value.
func (m *MemoryKV) Set(ctx context.Context, tenantID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(tenantID, key, value)
	return nil
}

func (m *MemoryKV) setLocked(tenantID, key string, value []byte) {
	tenant, ok := m.data[tenantID]
	if !ok {
		tenant = make(map[string][]byte)
		m.data[tenantID] = tenant
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	tenant[key] = stored
}

// Delete removes a key. Deleting a missing key is not an error.
func (m *MemoryKV) Delete(ctx context.Context, tenantID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[tenantID], key)
	return nil
}

// ListKeys returns the tenant's keys in sorted order.
func (m *MemoryKV) ListKeys(ctx context.Context, tenantID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data[tenantID]))
	for key := range m.data[tenantID] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Update applies fn to the current value of key under the store lock.
func (m *MemoryKV) Update(ctx context.Context, tenantID, key string, fn func(old []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var old []byte
	if value, ok := m.data[tenantID][key]; ok {
		old = make([]byte, len(value))
		copy(old, value)
	}

	updated, err := fn(old)
	if err != nil {
		return err
	}
	if updated == nil {
		delete(m.data[tenantID], key)
		return nil
	}
	m.setLocked(tenantID, key, updated)
	return nil
}
