package bond

import (
	"context"
	"sync"
)

// MemoryStorage implements Storage in memory.
// Thread-safe via RWMutex.
type MemoryStorage struct {
	mu    sync.RWMutex
	books map[Book]map[string]uint64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		books: map[Book]map[string]uint64{
			BookNative: {},
			BookStake:  {},
		},
	}
}

func (s *MemoryStorage) Balance(ctx context.Context, book Book, account string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[book][account], nil
}

func (s *MemoryStorage) SetBalances(ctx context.Context, book Book, balances map[string]uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.books[book]
	if !ok {
		m = make(map[string]uint64)
		s.books[book] = m
	}
	for account, bal := range balances {
		if bal == 0 {
			delete(m, account)
			continue
		}
		m[account] = bal
	}
	return nil
}
