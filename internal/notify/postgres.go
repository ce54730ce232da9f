package notify

import (
	"context"
	"database/sql"
	"fmt"
)

// PGStore is the PostgreSQL notification store.
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a notification store backed by the given database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Insert(ctx context.Context, n *Notification) error {
	const query = `
		INSERT INTO notifications (id, username, message, created_at, read)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query, n.ID, n.User, n.Text, n.CreatedAt, n.Read)
	if err != nil {
		return fmt.Errorf("notify: insert: %w", err)
	}
	return nil
}

func (s *PGStore) ListRecent(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 10
	}

	const query = `
		SELECT id, username, message, created_at, read
		FROM notifications
		WHERE username = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list recent: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.User, &n.Text, &n.CreatedAt, &n.Read); err != nil {
			return nil, fmt.Errorf("notify: scan: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *PGStore) MarkRead(ctx context.Context, id string) error {
	// Monotone: only ever flips false -> true.
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("notify: mark read: %w", err)
	}
	return nil
}
