// Package friend owns user records, bidirectional friend edges, and pending
// friend requests. Two add paths coexist: request/accept and direct add. Both
// converge on the same edge-union primitive, so a friendship is always
// symmetric no matter which path created it.
package friend

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSelfRequest rejects friend actions targeting the acting user.
	ErrSelfRequest = errors.New("friend: cannot befriend yourself")

	// ErrNotFound is returned when the target user does not exist.
	ErrNotFound = errors.New("friend: user not found")

	// ErrDuplicate is returned when a pending request for the same ordered
	// (from, to) pair already exists.
	ErrDuplicate = errors.New("friend: request already pending")

	// ErrInvalidRequest is returned by AcceptRequest when the request is
	// unknown, already accepted, or addressed to someone else.
	ErrInvalidRequest = errors.New("friend: invalid request")
)

// Request is a friend request. Status transitions pending -> accepted exactly
// once and never reverts.
type Request struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Status    string    `json:"status"` // "pending" | "accepted"
	CreatedAt time.Time `json:"created_at"`
}

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
)

// Store is the friend-graph persistence boundary.
type Store interface {
	// EnsureUser creates the user record on first sight; existing records
	// are untouched.
	EnsureUser(ctx context.Context, userID string) error

	// SetStatus updates the user's free-text status line.
	SetStatus(ctx context.Context, userID, status string) error

	// SetPresence records the online flag and last-seen timestamp on the
	// user record.
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error

	// Friends returns the user's friend set.
	Friends(ctx context.Context, userID string) ([]string, error)

	// PendingFor returns pending requests addressed to the user.
	PendingFor(ctx context.Context, userID string) ([]*Request, error)

	// SendRequest creates a pending request. Fails with ErrSelfRequest,
	// ErrNotFound (unknown receiver), or ErrDuplicate (pending request for
	// the ordered pair already exists).
	SendRequest(ctx context.Context, from, to string) (*Request, error)

	// AcceptRequest transitions the request to accepted and atomically adds
	// the reciprocal edge to both users. Valid only when byID is the
	// request's receiver and the request is still pending; a second accept
	// fails with ErrInvalidRequest.
	AcceptRequest(ctx context.Context, requestID, byID string) (*Request, error)

	// AddDirect unions the edge into both friend sets without a request.
	// Fails with ErrSelfRequest or ErrNotFound.
	AddDirect(ctx context.Context, from, to string) error
}

// Notifier delivers friend-event notifications; satisfied by notify.Fanout.
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

// Service composes the store with notification fanout: every successful
// request or accept also notifies the affected user, matching the hub's
// behavior for joins and messages.
type Service struct {
	store    Store
	notifier Notifier
}

// NewService creates a friend service. notifier may be nil (no fanout).
func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// SendRequest creates a pending request and notifies the receiver.
func (s *Service) SendRequest(ctx context.Context, from, to string) (*Request, error) {
	req, err := s.store.SendRequest(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, to, from+" sent you a friend request")
	return req, nil
}

// AcceptRequest accepts a pending request on behalf of byID and notifies the
// original sender.
func (s *Service) AcceptRequest(ctx context.Context, requestID, byID string) (*Request, error) {
	req, err := s.store.AcceptRequest(ctx, requestID, byID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, req.From, byID+" accepted your friend request")
	return req, nil
}

// AddDirect adds the friendship without approval and notifies the target.
func (s *Service) AddDirect(ctx context.Context, from, to string) error {
	if err := s.store.AddDirect(ctx, from, to); err != nil {
		return err
	}
	s.notify(ctx, to, from+" added you as a friend")
	return nil
}

func (s *Service) notify(ctx context.Context, userID, text string) {
	if s.notifier == nil {
		return
	}
	// Notification delivery is best-effort relative to the graph mutation,
	// which has already committed.
	_ = s.notifier.Notify(ctx, userID, text)
}
