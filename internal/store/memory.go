package store

import (
	"context"
	"sync"

	"github.com/tanujsinghkushwah/blockchain-payment-processor/internal/domain"
)

// MemoryStore is the default, volatile Store: a snapshot map guarded
// by a mutex. It satisfies the Store contract without requiring any
// external dependency, for deployments that accept losing history on
// restart (spec.md §9: durability is a deployment choice).
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*domain.Session
	transfers map[string]*domain.Transfer
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*domain.Session),
		transfers: make(map[string]*domain.Transfer),
	}
}

func (m *MemoryStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess.Clone()
	return nil
}

func (m *MemoryStore) SaveTransfer(ctx context.Context, t *domain.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) LoadSessions(ctx context.Context) ([]*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (m *MemoryStore) LoadTransfers(ctx context.Context) ([]*domain.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Transfer, 0, len(m.transfers))
	for _, t := range m.transfers {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
