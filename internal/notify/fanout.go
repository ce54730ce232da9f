// Package notify turns domain events into per-recipient notification
// records plus a live push when the recipient has a connected session.
// Persistence always happens; the push is best-effort and never retried.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/harborchat/harbor/internal/metrics"
	"github.com/harborchat/harbor/internal/protocol"
)

// Notification is one notification record for one user. Append-only per
// user; the read flag is its only mutation and moves false -> true once.
type Notification struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Store is the notification persistence boundary.
type Store interface {
	Insert(ctx context.Context, n *Notification) error

	// ListRecent returns the user's notifications, newest first, at most
	// limit.
	ListRecent(ctx context.Context, userID string, limit int) ([]*Notification, error)

	// MarkRead flips the read flag to true. Re-marking is a no-op; the flag
	// never reverts.
	MarkRead(ctx context.Context, id string) error
}

// OnlineChecker reports whether a user has at least one connected session;
// satisfied by presence.Tracker.
type OnlineChecker interface {
	IsOnline(userID string) bool
}

// Pusher delivers a live event to all of a user's connected sessions;
// satisfied by the NATS client's push publisher.
type Pusher interface {
	PublishPush(userID string, data []byte) error
}

// Fanout is the notification dispatch component.
type Fanout struct {
	store    Store
	presence OnlineChecker
	pusher   Pusher
}

// NewFanout creates a notification fanout. pusher may be nil (persist only).
func NewFanout(store Store, presence OnlineChecker, pusher Pusher) *Fanout {
	return &Fanout{store: store, presence: presence, pusher: pusher}
}

// Notify persists a notification for the target and, if the target is
// currently online, additionally pushes it live. A failed push is logged and
// swallowed — the persisted record is the delivery of last resort, read on
// the target's next connect.
func (f *Fanout) Notify(ctx context.Context, userID, text string) error {
	n := &Notification{
		ID:        uuid.New().String(),
		User:      userID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.store.Insert(ctx, n); err != nil {
		return fmt.Errorf("notify: persist for %s: %w", userID, err)
	}
	metrics.NotificationsTotal.WithLabelValues("stored").Inc()

	if f.pusher == nil || !f.presence.IsOnline(userID) {
		return nil
	}

	data, err := protocol.NewServerMessage(protocol.TypeNotification, protocol.NotificationMsg{
		ID:   n.ID,
		Text: n.Text,
		Ts:   n.CreatedAt.Unix(),
	})
	if err != nil {
		log.Printf("notify: build push for %s: %v", userID, err)
		return nil
	}
	if err := f.pusher.PublishPush(userID, data); err != nil {
		log.Printf("notify: push to %s failed: %v", userID, err)
		return nil
	}
	metrics.NotificationsTotal.WithLabelValues("pushed").Inc()
	return nil
}

// Recent returns the user's latest notifications for delivery on connect.
func (f *Fanout) Recent(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	return f.store.ListRecent(ctx, userID, limit)
}
