package token

import (
	"context"
	"sync"
)

// MemoryStorage implements Storage in memory.
type MemoryStorage struct {
	mu       sync.RWMutex
	balances map[string]uint64
	supply   uint64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{balances: make(map[string]uint64)}
}

func (s *MemoryStorage) Balance(ctx context.Context, account string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account], nil
}

func (s *MemoryStorage) TotalSupply(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.supply, nil
}

func (s *MemoryStorage) Mint(ctx context.Context, credits []Credit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range credits {
		s.balances[c.Account] += c.Amount
		s.supply += c.Amount
	}
	return nil
}

func (s *MemoryStorage) Transfer(ctx context.Context, from, to string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balances[from] < amount {
		return ErrInsufficientFunds
	}
	s.balances[from] -= amount
	s.balances[to] += amount
	return nil
}
