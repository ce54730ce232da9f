package message

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store implementation. Each message lives in
// its own locked entry so concurrent merges on unrelated messages never
// contend; the outer map lock is held only for lookups and inserts.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Kind]map[string]*entry
}

type entry struct {
	mu  sync.Mutex
	msg *Message
}

// NewMemoryStore creates an empty in-memory message store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[Kind]map[string]*entry{
			KindRoom:    make(map[string]*entry),
			KindPrivate: make(map[string]*entry),
		},
	}
}

func (s *MemoryStore) Append(ctx context.Context, m *Message) (string, error) {
	stored := m.clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Reactions == nil {
		stored.Reactions = make(map[string][]string)
	}
	sort.Strings(stored.ReadBy)

	s.mu.Lock()
	s.entries[stored.Kind][stored.ID] = &entry{msg: stored}
	s.mu.Unlock()
	return stored.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, kind Kind, id string) (*Message, error) {
	e := s.lookup(kind, id)
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msg.clone(), nil
}

func (s *MemoryStore) React(ctx context.Context, kind Kind, id, emoji, userID string) error {
	e := s.upsert(kind, id)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msg.MergeReaction(emoji, userID)
	return nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, kind Kind, id, userID string) error {
	e := s.lookup(kind, id)
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msg.MergeRead(userID)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, kind Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[kind][id]; !ok {
		return ErrNotFound
	}
	delete(s.entries[kind], id)
	return nil
}

func (s *MemoryStore) QueryByRoom(ctx context.Context, code string, before time.Time, limit int) ([]*Message, error) {
	return s.query(KindRoom, before, limit, func(m *Message) bool {
		return m.Room == code
	})
}

func (s *MemoryStore) QueryByPrivatePair(ctx context.Context, userA, userB string, before time.Time, limit int) ([]*Message, error) {
	key := ChannelKey(userA, userB)
	return s.query(KindPrivate, before, limit, func(m *Message) bool {
		return ChannelKey(m.Sender, m.Receiver) == key
	})
}

// lookup returns the live entry for (kind, id), or nil.
func (s *MemoryStore) lookup(kind Kind, id string) *entry {
	s.mu.RLock()
	e := s.entries[kind][id]
	s.mu.RUnlock()
	return e
}

// upsert returns the live entry for (kind, id), creating a skeleton message
// if it is not yet indexed. Reacting to a not-yet-appended ID initializes its
// reaction map rather than failing.
func (s *MemoryStore) upsert(kind Kind, id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[kind][id]
	if !ok {
		e = &entry{msg: &Message{
			ID:        id,
			Kind:      kind,
			CreatedAt: time.Now().UTC(),
			Reactions: make(map[string][]string),
		}}
		s.entries[kind][id] = e
	}
	return e
}

func (s *MemoryStore) query(kind Kind, before time.Time, limit int, match func(*Message) bool) ([]*Message, error) {
	limit = clampLimit(limit)

	s.mu.RLock()
	candidates := make([]*entry, 0, len(s.entries[kind]))
	for _, e := range s.entries[kind] {
		candidates = append(candidates, e)
	}
	s.mu.RUnlock()

	var out []*Message
	for _, e := range candidates {
		e.mu.Lock()
		if match(e.msg) && (before.IsZero() || e.msg.CreatedAt.Before(before)) {
			out = append(out, e.msg.clone())
		}
		e.mu.Unlock()
	}

	// Newest first.
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
