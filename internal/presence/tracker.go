// Package presence tracks per-user online/offline state independently of any
// room. Presence is reference-counted across concurrent sessions: a user is
// online while at least one live session exists for the identity, and flips
// offline only when the last one disconnects.
package presence

import (
	"context"
	"sync"
	"time"
)

// Mirror receives presence transitions for out-of-process visibility (the
// dashboard and offline tooling read it). Mirror failures are best-effort:
// the in-memory tracker remains authoritative.
type Mirror interface {
	SetOnline(ctx context.Context, userID string, at time.Time) error
	SetOffline(ctx context.Context, userID string, at time.Time) error
}

// Tracker is the in-process presence table.
type Tracker struct {
	mu       sync.Mutex
	refs     map[string]int
	lastSeen map[string]time.Time
	mirror   Mirror // optional
	now      func() time.Time
}

// NewTracker creates a presence tracker. mirror may be nil.
func NewTracker(mirror Mirror) *Tracker {
	return &Tracker{
		refs:     make(map[string]int),
		lastSeen: make(map[string]time.Time),
		mirror:   mirror,
		now:      time.Now,
	}
}

// Connect records one live session for the identity and returns true when
// this was the transition from offline to online (first session).
func (t *Tracker) Connect(ctx context.Context, userID string) bool {
	t.mu.Lock()
	t.refs[userID]++
	first := t.refs[userID] == 1
	at := t.now().UTC()
	t.lastSeen[userID] = at
	t.mu.Unlock()

	if first && t.mirror != nil {
		_ = t.mirror.SetOnline(ctx, userID, at)
	}
	return first
}

// Disconnect records one session ending and returns true when this was the
// last session for the identity (the offline transition). Disconnecting an
// identity with no recorded sessions is a no-op.
func (t *Tracker) Disconnect(ctx context.Context, userID string) bool {
	t.mu.Lock()
	n, ok := t.refs[userID]
	if !ok || n == 0 {
		t.mu.Unlock()
		return false
	}
	n--
	at := t.now().UTC()
	t.lastSeen[userID] = at
	last := n == 0
	if last {
		delete(t.refs, userID)
	} else {
		t.refs[userID] = n
	}
	t.mu.Unlock()

	if last && t.mirror != nil {
		_ = t.mirror.SetOffline(ctx, userID, at)
	}
	return last
}

// IsOnline reports whether the identity has at least one live session.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	n := t.refs[userID]
	t.mu.Unlock()
	return n > 0
}

// LastSeen returns the identity's last connect/disconnect timestamp, zero if
// the identity has never been seen.
func (t *Tracker) LastSeen(userID string) time.Time {
	t.mu.Lock()
	at := t.lastSeen[userID]
	t.mu.Unlock()
	return at
}

// Sessions returns the current live-session count for the identity.
func (t *Tracker) Sessions(userID string) int {
	t.mu.Lock()
	n := t.refs[userID]
	t.mu.Unlock()
	return n
}

// OnlineCount returns the number of distinct online identities.
func (t *Tracker) OnlineCount() int {
	t.mu.Lock()
	n := len(t.refs)
	t.mu.Unlock()
	return n
}
