package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// MemoryStore implements ActionStore in memory. Records are copied on the
// way in and out.
type MemoryStore struct {
	mu         sync.RWMutex
	actions    map[uint64]*contracts.Action
	challenges map[uint64][]*contracts.Challenge
	receipts   map[uint64]*contracts.SettlementReceipt
	params     *contracts.Params
	lastID     uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions:    make(map[uint64]*contracts.Action),
		challenges: make(map[uint64][]*contracts.Challenge),
		receipts:   make(map[uint64]*contracts.SettlementReceipt),
	}
}

func (s *MemoryStore) CreateAction(ctx context.Context, a *contracts.Action) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	c := a.Clone()
	c.ID = s.lastID
	s.actions[c.ID] = c
	return c.ID, nil
}

func (s *MemoryStore) GetAction(ctx context.Context, id uint64) (*contracts.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) UpdateAction(ctx context.Context, a *contracts.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[a.ID]; !ok {
		return ErrNotFound
	}
	s.actions[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) ActionCount(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID, nil
}

func (s *MemoryStore) ListActions(ctx context.Context, after uint64, limit int) ([]*contracts.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint64, 0, len(s.actions))
	for id := range s.actions {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*contracts.Action, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.actions[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) AppendChallenge(ctx context.Context, c *contracts.Challenge) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[c.ActionID]; !ok {
		return 0, ErrNotFound
	}
	cp := *c
	cp.Index = len(s.challenges[c.ActionID])
	s.challenges[c.ActionID] = append(s.challenges[c.ActionID], &cp)
	return cp.Index, nil
}

func (s *MemoryStore) UpdateChallenge(ctx context.Context, c *contracts.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.challenges[c.ActionID]
	if c.Index < 0 || c.Index >= len(list) {
		return ErrNotFound
	}
	cp := *c
	list[c.Index] = &cp
	return nil
}

func (s *MemoryStore) Challenges(ctx context.Context, actionID uint64) ([]*contracts.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.challenges[actionID]
	out := make([]*contracts.Challenge, len(list))
	for i, c := range list {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) PutReceipt(ctx context.Context, r *contracts.SettlementReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.receipts[r.ActionID] = &cp
	return nil
}

func (s *MemoryStore) Receipt(ctx context.Context, actionID uint64) (*contracts.SettlementReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[actionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) LoadParams(ctx context.Context) (contracts.Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.params == nil {
		return contracts.Params{}, ErrNotFound
	}
	return *s.params, nil
}

func (s *MemoryStore) SaveParams(ctx context.Context, p contracts.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = &p
	return nil
}
