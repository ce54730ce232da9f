// Package message defines the chat message model shared by room and private
// conversations, the union-merge primitives for per-message reaction and
// read-receipt state, and the persistence boundary used by the session
// coordinator.
package message

import (
	"sort"
	"strings"
	"time"
)

// Kind discriminates room messages from private (1:1) messages. The two kinds
// are stored and queried independently.
type Kind string

const (
	KindRoom    Kind = "room"
	KindPrivate Kind = "private"
)

// SystemSender is the sender identity used for server-generated messages
// ("entered the room", "left the room"). No real user may claim it.
const SystemSender = "system"

// Message is a single chat message. Reactions and ReadBy are set-valued and
// monotone: they only ever grow via union until the message is deleted.
type Message struct {
	ID        string              `json:"id"`
	Kind      Kind                `json:"kind"`
	Room      string              `json:"room,omitempty"`     // room code, KindRoom only
	Sender    string              `json:"sender"`
	Receiver  string              `json:"receiver,omitempty"` // KindPrivate only
	Body      string              `json:"body"`
	CreatedAt time.Time           `json:"created_at"`
	Reactions map[string][]string `json:"reactions"` // emoji -> reactor identities
	ReadBy    []string            `json:"read_by"`
}

// ChannelKey returns the deterministic two-party channel identifier for a
// private conversation. The identities are ordered lexicographically so both
// participants resolve to the same key regardless of who opened the chat.
func ChannelKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// Channel returns the message's fanout scope: the room code for room
// messages, the sorted-pair channel key for private ones.
func (m *Message) Channel() string {
	if m.Kind == KindPrivate {
		return ChannelKey(m.Sender, m.Receiver)
	}
	return m.Room
}

// addToSet unions a single identity into a set-valued slice. It returns the
// (possibly unchanged) slice and whether the identity was newly added. The
// slice is kept sorted so that set state is canonical regardless of the order
// concurrent writers landed in.
func addToSet(set []string, id string) ([]string, bool) {
	i := sort.SearchStrings(set, id)
	if i < len(set) && set[i] == id {
		return set, false
	}
	set = append(set, "")
	copy(set[i+1:], set[i:])
	set[i] = id
	return set, true
}

// MergeRead unions userID into the message's read-by set. Re-marking is a
// no-op; the set never shrinks.
func (m *Message) MergeRead(userID string) bool {
	var added bool
	m.ReadBy, added = addToSet(m.ReadBy, userID)
	return added
}

// MergeReaction unions userID into the reactor set for the given emoji,
// initializing the reaction map on first use.
func (m *Message) MergeReaction(emoji, userID string) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	set, added := addToSet(m.Reactions[emoji], userID)
	m.Reactions[emoji] = set
	return added
}

func (m *Message) clone() *Message {
	out := *m
	out.ReadBy = append([]string(nil), m.ReadBy...)
	if m.Reactions != nil {
		out.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, set := range m.Reactions {
			out.Reactions[emoji] = append([]string(nil), set...)
		}
	}
	return &out
}

// HasReactor reports whether userID has already reacted to the message with
// the given emoji.
func (m *Message) HasReactor(emoji, userID string) bool {
	set := m.Reactions[emoji]
	i := sort.SearchStrings(set, userID)
	return i < len(set) && set[i] == userID
}

// ReadByUser reports whether userID has marked the message read.
func (m *Message) ReadByUser(userID string) bool {
	i := sort.SearchStrings(m.ReadBy, userID)
	return i < len(m.ReadBy) && m.ReadBy[i] == userID
}

// ValidUserID reports whether an identity is usable as a channel-key and
// NATS-subject component: non-empty, no whitespace, none of the reserved
// separator characters.
func ValidUserID(id string) bool {
	if id == "" || id == SystemSender {
		return false
	}
	return !strings.ContainsAny(id, " \t\n.:*>")
}
