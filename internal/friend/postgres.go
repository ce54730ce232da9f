package friend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PGStore is the PostgreSQL Store implementation. Pending-request uniqueness
// is enforced by a partial unique index on (from_user, to_user) WHERE
// status = 'pending'; the accept transition and the reciprocal edge insert
// share one transaction.
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a friend store backed by the given database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) EnsureUser(ctx context.Context, userID string) error {
	const query = `
		INSERT INTO users (username, status, online, last_seen)
		VALUES ($1, '', FALSE, NOW())
		ON CONFLICT (username) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("friend: ensure user: %w", err)
	}
	return nil
}

func (s *PGStore) SetStatus(ctx context.Context, userID, status string) error {
	const query = `UPDATE users SET status = $1 WHERE username = $2`

	res, err := s.db.ExecContext(ctx, query, status, userID)
	if err != nil {
		return fmt.Errorf("friend: set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	const query = `UPDATE users SET online = $1, last_seen = $2 WHERE username = $3`

	if _, err := s.db.ExecContext(ctx, query, online, at, userID); err != nil {
		return fmt.Errorf("friend: set presence: %w", err)
	}
	return nil
}

func (s *PGStore) Friends(ctx context.Context, userID string) ([]string, error) {
	exists, err := s.userExists(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	const query = `SELECT friend FROM friendships WHERE username = $1 ORDER BY friend`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("friend: list friends: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("friend: scan friend: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *PGStore) PendingFor(ctx context.Context, userID string) ([]*Request, error) {
	const query = `
		SELECT id, from_user, to_user, status, created_at
		FROM friend_requests
		WHERE to_user = $1 AND status = 'pending'
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("friend: pending requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		var req Request
		if err := rows.Scan(&req.ID, &req.From, &req.To, &req.Status, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("friend: scan request: %w", err)
		}
		out = append(out, &req)
	}
	return out, rows.Err()
}

func (s *PGStore) SendRequest(ctx context.Context, from, to string) (*Request, error) {
	if from == to {
		return nil, ErrSelfRequest
	}
	exists, err := s.userExists(ctx, s.db, to)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}

	req := &Request{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	const query = `
		INSERT INTO friend_requests (id, from_user, to_user, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = s.db.ExecContext(ctx, query, req.ID, req.From, req.To, req.Status, req.CreatedAt)
	if isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("friend: insert request: %w", err)
	}
	return req, nil
}

func (s *PGStore) AcceptRequest(ctx context.Context, requestID, byID string) (*Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("friend: begin accept: %w", err)
	}
	defer tx.Rollback()

	const upd = `
		UPDATE friend_requests
		SET status = 'accepted'
		WHERE id = $1 AND to_user = $2 AND status = 'pending'
		RETURNING id, from_user, to_user, status, created_at`

	var req Request
	err = tx.QueryRowContext(ctx, upd, requestID, byID).
		Scan(&req.ID, &req.From, &req.To, &req.Status, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidRequest
	}
	if err != nil {
		return nil, fmt.Errorf("friend: accept request: %w", err)
	}

	if err := insertEdges(ctx, tx, req.From, req.To); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("friend: commit accept: %w", err)
	}
	return &req, nil
}

func (s *PGStore) AddDirect(ctx context.Context, from, to string) error {
	if from == to {
		return ErrSelfRequest
	}
	exists, err := s.userExists(ctx, s.db, to)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("friend: begin direct add: %w", err)
	}
	defer tx.Rollback()

	if err := insertEdges(ctx, tx, from, to); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("friend: commit direct add: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// insertEdges is the shared edge-union primitive: one idempotent insert per
// direction, used by both the accept and the direct-add paths.
func insertEdges(ctx context.Context, q execer, a, b string) error {
	const query = `
		INSERT INTO friendships (username, friend)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT (username, friend) DO NOTHING`

	if _, err := q.ExecContext(ctx, query, a, b); err != nil {
		return fmt.Errorf("friend: insert edges: %w", err)
	}
	return nil
}

func (s *PGStore) userExists(ctx context.Context, q execer, userID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`

	var exists bool
	if err := q.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("friend: user exists: %w", err)
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
