package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory, thread-safe Store implementation. Each
// identity owns one record guarded by its own mutex, so operations on
// different accounts proceed independently while operations on the same
// account are serialised.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]*accountSlot
}

type accountSlot struct {
	mu   sync.Mutex
	acct Account
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]*accountSlot)}
}

// slotFor returns the slot for identity, creating it on first use. Closed
// accounts keep their zeroed slot; the identity is reused on reopen.
func (s *MemoryStore) slotFor(identity string) *accountSlot {
	s.mu.RLock()
	sl, ok := s.slots[identity]
	s.mu.RUnlock()
	if ok {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.slots[identity]; !ok {
		sl = &accountSlot{}
		s.slots[identity] = sl
	}
	return sl
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, identity string) (Account, error) {
	s.mu.RLock()
	sl, ok := s.slots[identity]
	s.mu.RUnlock()
	if !ok {
		return Account{Identity: identity}, nil
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	a := sl.acct
	if a.Identity == "" {
		a.Identity = identity
	}
	return a, nil
}

// Update implements Store. fn runs against a copy of the record; the copy
// replaces the stored record only when fn returns nil.
func (s *MemoryStore) Update(_ context.Context, identity string, fn func(*Account) error) (Account, error) {
	sl := s.slotFor(identity)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := time.Now().UTC()
	a := sl.acct
	if a.Identity == "" {
		a.Identity = identity
		a.CreatedAt = now
	}

	if err := fn(&a); err != nil {
		return Account{}, err
	}

	a.UpdatedAt = now
	if !a.Exists() && a.Balance == 0 {
		// Closed: keep the slot but erase the record.
		sl.acct = Account{}
		a = Account{Identity: identity}
		return a, nil
	}
	sl.acct = a
	return a, nil
}
