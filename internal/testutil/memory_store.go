package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
)

// MemoryStore implements outbound.SnapshotStore in memory. Documents are
// stored as encoded JSON so round trips exercise the entity codecs.
type MemoryStore struct {
	mu      sync.Mutex
	Docs    map[string][]byte
	SaveErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Docs: make(map[string][]byte)}
}

func (m *MemoryStore) Save(_ context.Context, name string, v any) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Docs[name] = data
	return nil
}

func (m *MemoryStore) Load(_ context.Context, name string, v any) error {
	m.mu.Lock()
	data, ok := m.Docs[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", outbound.ErrSnapshotNotFound, name)
	}
	return json.Unmarshal(data, v)
}

func (m *MemoryStore) Location(name string) string {
	return "memory://" + name
}

// Put stores raw JSON under name.
func (m *MemoryStore) Put(name, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Docs[name] = []byte(raw)
}

// Has reports whether name has been saved.
func (m *MemoryStore) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Docs[name]
	return ok
}
