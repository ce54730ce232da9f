package message

import (
	"context"
	"errors"
	"time"
)

// PageSize is the maximum (and default) number of messages returned per
// history page.
const PageSize = 50

// ErrNotFound is returned when a message ID does not exist for the given kind.
var ErrNotFound = errors.New("message: not found")

// Store is the persistence boundary for chat messages. Append is append-only;
// React and MarkRead apply union-merges to set-valued fields and never write
// anything else; Delete is a hard remove.
//
// Implementations must keep the merge operations safe under concurrent
// writers to the same message: for any interleaving of React/MarkRead calls
// the resulting sets are the union of all contributed identities.
type Store interface {
	// Append persists a new message and returns its assigned ID. The
	// message's reaction map and read-by set are stored as provided
	// (typically empty reactions, read-by = {sender}).
	Append(ctx context.Context, m *Message) (string, error)

	// Get returns a copy of the message, or ErrNotFound.
	Get(ctx context.Context, kind Kind, id string) (*Message, error)

	// React unions userID into the reactor set keyed by emoji. Reacting to
	// an ID that is not yet indexed initializes the message's reaction map
	// (upsert), so a reaction racing a slow append is never lost.
	React(ctx context.Context, kind Kind, id, emoji, userID string) error

	// MarkRead unions userID into the message's read-by set. Returns
	// ErrNotFound if the message does not exist.
	MarkRead(ctx context.Context, kind Kind, id, userID string) error

	// Delete hard-removes the message. Authorization (sender-only) is the
	// caller's concern.
	Delete(ctx context.Context, kind Kind, id string) error

	// QueryByRoom returns room messages for the code created strictly before
	// the given timestamp, newest first, at most limit (capped at PageSize).
	// History survives room teardown: messages remain queryable by code
	// after the room itself is gone.
	QueryByRoom(ctx context.Context, code string, before time.Time, limit int) ([]*Message, error)

	// QueryByPrivatePair returns private messages between the two users,
	// newest first, with the same paging contract as QueryByRoom.
	QueryByPrivatePair(ctx context.Context, userA, userB string, before time.Time, limit int) ([]*Message, error)
}

// clampLimit normalizes a caller-supplied page size.
func clampLimit(limit int) int {
	if limit <= 0 || limit > PageSize {
		return PageSize
	}
	return limit
}
