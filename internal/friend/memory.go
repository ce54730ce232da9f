package friend

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type userRecord struct {
	status   string
	online   bool
	lastSeen time.Time
	friends  map[string]struct{}
}

// MemoryStore is an in-process Store implementation used by tests and
// single-node deployments without a database.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*userRecord
	requests map[string]*Request
}

// NewMemoryStore creates an empty in-memory friend store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*userRecord),
		requests: make(map[string]*Request),
	}
}

func (s *MemoryStore) EnsureUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(userID)
	return nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, userID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(userID).status = status
	return nil
}

func (s *MemoryStore) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.ensureLocked(userID)
	u.online = online
	u.lastSeen = at
	return nil
}

func (s *MemoryStore) Friends(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]string, 0, len(u.friends))
	for f := range u.friends {
		out = append(out, f)
	}
	return out, nil
}

func (s *MemoryStore) PendingFor(ctx context.Context, userID string) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Request
	for _, req := range s.requests {
		if req.To == userID && req.Status == StatusPending {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) SendRequest(ctx context.Context, from, to string) (*Request, error) {
	if from == to {
		return nil, ErrSelfRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[to]; !ok {
		return nil, ErrNotFound
	}
	for _, req := range s.requests {
		if req.From == from && req.To == to && req.Status == StatusPending {
			return nil, ErrDuplicate
		}
	}

	req := &Request{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	s.requests[req.ID] = req
	cp := *req
	return &cp, nil
}

func (s *MemoryStore) AcceptRequest(ctx context.Context, requestID, byID string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok || req.To != byID || req.Status != StatusPending {
		return nil, ErrInvalidRequest
	}
	req.Status = StatusAccepted
	s.unionEdgeLocked(req.From, req.To)
	cp := *req
	return &cp, nil
}

func (s *MemoryStore) AddDirect(ctx context.Context, from, to string) error {
	if from == to {
		return ErrSelfRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[to]; !ok {
		return ErrNotFound
	}
	s.unionEdgeLocked(from, to)
	return nil
}

func (s *MemoryStore) ensureLocked(userID string) *userRecord {
	u, ok := s.users[userID]
	if !ok {
		u = &userRecord{friends: make(map[string]struct{})}
		s.users[userID] = u
	}
	return u
}

// unionEdgeLocked is the shared edge-union primitive: both the accept path
// and the direct-add path land here, adding the friendship to both users'
// sets idempotently.
func (s *MemoryStore) unionEdgeLocked(a, b string) {
	s.ensureLocked(a).friends[b] = struct{}{}
	s.ensureLocked(b).friends[a] = struct{}{}
}
