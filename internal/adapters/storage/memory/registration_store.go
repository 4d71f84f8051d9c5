package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmendiola/wagate/internal/domain"
)

// RegistrationStore is the in-memory backend, enough for dev and tests.
type RegistrationStore struct {
	mu   sync.RWMutex
	regs map[domain.UID]*domain.Registration
}

func NewRegistrationStore() *RegistrationStore {
	return &RegistrationStore{
		regs: make(map[domain.UID]*domain.Registration),
	}
}

func (s *RegistrationStore) Get(ctx context.Context, uid domain.UID) (*domain.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.regs[uid]
	if !ok {
		return nil, domain.ErrNotFound
	}

	cp := *reg
	return &cp, nil
}

func (s *RegistrationStore) Put(ctx context.Context, reg *domain.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *reg
	s.regs[reg.UID] = &cp
	return nil
}

// Delete of an absent uid is a no-op.
func (s *RegistrationStore) Delete(ctx context.Context, uid domain.UID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.regs, uid)
	return nil
}

func (s *RegistrationStore) List(ctx context.Context) ([]*domain.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Registration, 0, len(s.regs))
	for _, reg := range s.regs {
		cp := *reg
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })

	return out, nil
}
