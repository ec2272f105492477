package graph

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps edges in process memory. Adjacency lists preserve
// insertion order.
type MemoryStore struct {
	mu       sync.RWMutex
	parents  map[uuid.UUID][]uuid.UUID
	children map[uuid.UUID][]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		parents:  make(map[uuid.UUID][]uuid.UUID),
		children: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *MemoryStore) Parents(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pick(m.parents, ids), nil
}

func (m *MemoryStore) Children(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return pick(m.children, ids), nil
}

func (m *MemoryStore) Link(_ context.Context, parent, child uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.parents[child] {
		if p == parent {
			return nil
		}
	}
	m.parents[child] = append(m.parents[child], parent)
	m.children[parent] = append(m.children[parent], child)
	return nil
}

func (m *MemoryStore) Unlink(_ context.Context, parent, child uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parents[child] = without(m.parents[child], parent)
	m.children[parent] = without(m.children[parent], child)
	return nil
}

func pick(adj map[uuid.UUID][]uuid.UUID, ids []uuid.UUID) map[uuid.UUID][]uuid.UUID {
	out := make(map[uuid.UUID][]uuid.UUID, len(ids))
	for _, id := range ids {
		if l := adj[id]; len(l) > 0 {
			out[id] = append([]uuid.UUID(nil), l...)
		}
	}
	return out
}

func without(s []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := s[:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
