package retirement

import (
	"context"
	"sync"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*contracts.Retirement
	retired map[uint64]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{retired: make(map[uint64]uint64)}
}

func (m *MemoryStore) Create(ctx context.Context, r *contracts.Retirement) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := clone(r)
	cp.Serial = uint64(len(m.records)) + 1
	m.records = append(m.records, cp)
	for i, id := range cp.ActionIDs {
		m.retired[id] += cp.Amounts[i]
	}
	return cp.Serial, nil
}

func (m *MemoryStore) Get(ctx context.Context, serial uint64) (*contracts.Retirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if serial == 0 || serial > uint64(len(m.records)) {
		return nil, ErrNotFound
	}
	return clone(m.records[serial-1]), nil
}

func (m *MemoryStore) Retired(ctx context.Context, actionID uint64) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.retired[actionID], nil
}

func clone(r *contracts.Retirement) *contracts.Retirement {
	cp := *r
	cp.ActionIDs = append([]uint64(nil), r.ActionIDs...)
	cp.Amounts = append([]uint64(nil), r.Amounts...)
	return &cp
}
