package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"relay/pkg/platform/sentinel"
)

// InMemoryStore is the broker-less store used in tests and dev mode.
type InMemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{accounts: make(map[string]Account)}
}

func (s *InMemoryStore) Create(_ context.Context, acc Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[acc.ID]; exists {
		return fmt.Errorf("account %q: %w", acc.ID, sentinel.ErrConflict)
	}
	s.accounts[acc.ID] = acc
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %q: %w", id, sentinel.ErrNotFound)
	}
	return acc, nil
}

func (s *InMemoryStore) ApplyDelta(_ context.Context, id string, delta int64, at time.Time) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %q: %w", id, sentinel.ErrNotFound)
	}
	if acc.Status != StatusActive {
		return Account{}, fmt.Errorf("account %q is %s: %w", id, acc.Status, sentinel.ErrInvalidState)
	}
	acc.Balance += delta
	acc.UpdatedAt = at
	s.accounts[id] = acc
	return acc, nil
}

func (s *InMemoryStore) SetStatus(_ context.Context, id string, status Status, at time.Time) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %q: %w", id, sentinel.ErrNotFound)
	}
	if acc.Status == status {
		return Account{}, fmt.Errorf("account %q already %s: %w", id, status, sentinel.ErrInvalidState)
	}
	acc.Status = status
	acc.UpdatedAt = at
	s.accounts[id] = acc
	return acc, nil
}
