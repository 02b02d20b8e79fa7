package registry

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// MemoryBackend implements Backend in memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	refs map[contracts.RefID]contracts.Reference
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{refs: make(map[contracts.RefID]contracts.Reference)}
}

func (m *MemoryBackend) Put(ctx context.Context, ref contracts.Reference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[ref.ID] = ref
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, id contracts.RefID) (contracts.Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.refs[id]
	if !ok {
		return contracts.Reference{}, ErrNotFound
	}
	return ref, nil
}

func (m *MemoryBackend) List(ctx context.Context) ([]contracts.Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]contracts.Reference, 0, len(m.refs))
	for _, r := range m.refs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out, nil
}
