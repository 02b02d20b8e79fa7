package access

import (
	"context"
	"sort"
	"sync"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

// MemoryStorage implements Storage in memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	admin   string
	members map[contracts.Role]map[string]struct{}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{members: make(map[contracts.Role]map[string]struct{})}
}

func (s *MemoryStorage) Admin(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin, nil
}

func (s *MemoryStorage) SetAdmin(ctx context.Context, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin = account
	return nil
}

func (s *MemoryStorage) HasRole(ctx context.Context, role contracts.Role, account string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[role][account]
	return ok, nil
}

func (s *MemoryStorage) Members(ctx context.Context, role contracts.Role) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.members[role]))
	for a := range s.members[role] {
		out = append(out, a)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStorage) Grant(ctx context.Context, role contracts.Role, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[role]
	if !ok {
		set = make(map[string]struct{})
		s.members[role] = set
	}
	set[account] = struct{}{}
	return nil
}

func (s *MemoryStorage) Revoke(ctx context.Context, role contracts.Role, account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[role], account)
	return nil
}
