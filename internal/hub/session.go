package hub

import "sync"

// RoomAction selects how a connecting session binds to a room.
type RoomAction int

const (
	// NoRoom leaves the session unbound; it may still carry a private peer.
	NoRoom RoomAction = iota

	// CreateRoom mints a fresh room with the connecting user as creator.
	CreateRoom

	// JoinRoom joins an existing room by code. If the room is gone by the
	// time the session connects, the session degrades to NoRoom silently.
	JoinRoom
)

// Session is one live connection's coordination state. A user may hold many
// sessions at once; each tracks its own room and peer binding.
type Session struct {
	ConnID string
	UserID string

	mu     sync.Mutex
	room   string
	peer   string
	closed bool
}

// Room returns the session's current room code, or "" when unbound.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// clearRoom drops the session's room binding. Used when the bound room turns
// out to be torn down.
func (s *Session) clearRoom() {
	s.mu.Lock()
	s.room = ""
	s.mu.Unlock()
}

// Peer returns the session's private-chat peer, or "" when none is bound.
func (s *Session) Peer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// close marks the session closed. It reports false when the session was
// already closed, making disconnect idempotent.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}
