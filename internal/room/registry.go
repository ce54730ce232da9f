// Package room owns the set of live rooms, their membership, and their
// lifecycle: explicit creation with a generated collision-free code,
// idempotent joins, and automatic teardown the moment the last member
// leaves. The registry is the single source of truth for "does this room
// exist" — message history is persisted elsewhere and deliberately outlives
// the room.
package room

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

// codeAlphabet matches the persisted room-code format: upper- and lower-case
// ASCII letters only.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultCodeLength is used when the caller does not care about code length.
const DefaultCodeLength = 6

// MaxCodeLength bounds the code lengths Create accepts. Code length is
// client-suppliable, so the bound keeps key sizes sane.
const MaxCodeLength = 16

// maxCodeAttempts bounds code generation. The check-and-insert holds the
// registry lock, so generation must terminate even when the code space for
// the requested length is completely taken.
const maxCodeAttempts = 256

var (
	// ErrNotFound is returned when a room code is not in the registry.
	ErrNotFound = errors.New("room: not found")

	// ErrInvalidLength is returned by Create for a code length outside
	// [1, MaxCodeLength].
	ErrInvalidLength = errors.New("room: invalid code length")

	// ErrCodeSpaceFull is returned by Create when no free code of the
	// requested length could be generated. Only that Create fails; the
	// registry stays fully usable.
	ErrCodeSpaceFull = errors.New("room: no free code for requested length")
)

// Room is a snapshot of one room's state. Members is a copy; mutating it does
// not affect the registry.
type Room struct {
	Code      string
	Creator   string
	CreatedAt time.Time
	Members   []string
}

type state struct {
	creator   string
	createdAt time.Time
	// members maps each user to the number of their sessions currently bound
	// to the room. A user is a member while their count is positive; the room
	// is torn down when the map empties.
	members map[string]int
}

// Registry is the live-room table. A single registry lock covers code
// generation's check-and-insert and the membership-change/teardown critical
// sections; member sets are small, so room operations never block on I/O
// while holding it.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*state
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*state)}
}

// Create generates a fresh room code of the requested length, registers the
// room with membership = {creator}, and returns the code. The collision check
// and insert happen under the registry lock, so concurrent Create calls can
// never produce duplicate codes. Generation gives up after maxCodeAttempts
// misses and returns ErrCodeSpaceFull.
func (r *Registry) Create(creator string, codeLength int) (string, error) {
	if codeLength <= 0 || codeLength > MaxCodeLength {
		return "", ErrInvalidLength
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var code string
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		candidate := randomCode(codeLength)
		if _, taken := r.rooms[candidate]; !taken {
			code = candidate
			break
		}
	}
	if code == "" {
		return "", ErrCodeSpaceFull
	}

	r.rooms[code] = &state{
		creator:   creator,
		createdAt: time.Now().UTC(),
		members:   map[string]int{creator: 1},
	}
	return code, nil
}

// Join adds one session reference for userID to the room. A user with
// sessions already in the room stays a single member; first reports whether
// this join made them one. Returns ErrNotFound if the code is unknown,
// including a room that was torn down a moment earlier.
func (r *Registry) Join(code, userID string) (first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.rooms[code]
	if !ok {
		return false, ErrNotFound
	}
	st.members[userID]++
	return st.members[userID] == 1, nil
}

// Leave releases one session reference for userID. The user stays a member
// until their last bound session leaves; left reports whether this call
// removed them. When the member set empties the room is torn down in the same
// critical section, making its code immediately reusable. Leaving an unknown
// room or a room the user is not in is a no-op.
func (r *Registry) Leave(code, userID string) (left, torndown bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.rooms[code]
	if !ok {
		return false, false
	}
	if _, member := st.members[userID]; !member {
		return false, false
	}
	st.members[userID]--
	if st.members[userID] > 0 {
		return false, false
	}
	delete(st.members, userID)
	if len(st.members) == 0 {
		delete(r.rooms, code)
		return true, true
	}
	return true, false
}

// Members returns a copy of the room's member set, or ErrNotFound.
func (r *Registry) Members(code string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	members := make([]string, 0, len(st.members))
	for id := range st.members {
		members = append(members, id)
	}
	return members, nil
}

// Exists reports whether the code names a live room.
func (r *Registry) Exists(code string) bool {
	r.mu.RLock()
	_, ok := r.rooms[code]
	r.mu.RUnlock()
	return ok
}

// Get returns a snapshot of the room, or ErrNotFound.
func (r *Registry) Get(code string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.rooms[code]
	if !ok {
		return nil, ErrNotFound
	}
	members := make([]string, 0, len(st.members))
	for id := range st.members {
		members = append(members, id)
	}
	return &Room{Code: code, Creator: st.creator, CreatedAt: st.createdAt, Members: members}, nil
}

// Count returns the number of live rooms.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.rooms)
	r.mu.RUnlock()
	return n
}

func randomCode(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}
