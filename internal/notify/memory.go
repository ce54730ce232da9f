package notify

import (
	"context"
	"sync"
)

// MemoryStore is an in-process notification store.
type MemoryStore struct {
	mu     sync.Mutex
	byUser map[string][]*Notification
	byID   map[string]*Notification
}

// NewMemoryStore creates an empty in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[string][]*Notification),
		byID:   make(map[string]*Notification),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, n *Notification) error {
	cp := *n
	s.mu.Lock()
	s.byUser[cp.User] = append(s.byUser[cp.User], &cp)
	s.byID[cp.ID] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.byUser[userID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	// Inserts are chronological; return the tail newest-first.
	out := make([]*Notification, 0, limit)
	for i := len(all) - 1; i >= len(all)-limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byID[id]; ok {
		n.Read = true
	}
	return nil
}
