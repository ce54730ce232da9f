package message

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PGStore is the PostgreSQL Store implementation. Reaction and read-by sets
// are stored as JSONB and merged inside a row-locked transaction so that
// concurrent writers converge on the union of all contributed identities.
type PGStore struct {
	db *sql.DB
}

// NewPGStore creates a message store backed by the given database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, m *Message) (string, error) {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}

	reactions, readBy, err := marshalSets(m)
	if err != nil {
		return "", err
	}

	const query = `
		INSERT INTO messages (id, kind, room_code, sender, receiver, body, created_at, reactions, read_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = s.db.ExecContext(ctx, query,
		id, string(m.Kind), m.Room, m.Sender, m.Receiver, m.Body, m.CreatedAt, reactions, readBy)
	if err != nil {
		return "", fmt.Errorf("message: insert: %w", err)
	}
	return id, nil
}

func (s *PGStore) Get(ctx context.Context, kind Kind, id string) (*Message, error) {
	const query = `
		SELECT id, kind, room_code, sender, receiver, body, created_at, reactions, read_by
		FROM messages
		WHERE kind = $1 AND id = $2`

	m, err := scanMessage(s.db.QueryRowContext(ctx, query, string(kind), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("message: get: %w", err)
	}
	return m, nil
}

func (s *PGStore) React(ctx context.Context, kind Kind, id, emoji, userID string) error {
	err := s.merge(ctx, kind, id, func(m *Message) {
		m.MergeReaction(emoji, userID)
	})
	if errors.Is(err, ErrNotFound) {
		// Upsert: index the message with just its reaction state. A later
		// Append for the same ID would conflict, which is the desired signal
		// that the writer raced itself.
		skeleton := &Message{
			ID:        id,
			Kind:      kind,
			CreatedAt: time.Now().UTC(),
			Reactions: map[string][]string{emoji: {userID}},
		}
		_, err = s.Append(ctx, skeleton)
	}
	return err
}

func (s *PGStore) MarkRead(ctx context.Context, kind Kind, id, userID string) error {
	return s.merge(ctx, kind, id, func(m *Message) {
		m.MergeRead(userID)
	})
}

func (s *PGStore) Delete(ctx context.Context, kind Kind, id string) error {
	const query = `DELETE FROM messages WHERE kind = $1 AND id = $2`

	res, err := s.db.ExecContext(ctx, query, string(kind), id)
	if err != nil {
		return fmt.Errorf("message: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) QueryByRoom(ctx context.Context, code string, before time.Time, limit int) ([]*Message, error) {
	const query = `
		SELECT id, kind, room_code, sender, receiver, body, created_at, reactions, read_by
		FROM messages
		WHERE kind = 'room' AND room_code = $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3`

	return s.queryPage(ctx, query, code, pageCutoff(before), clampLimit(limit))
}

func (s *PGStore) QueryByPrivatePair(ctx context.Context, userA, userB string, before time.Time, limit int) ([]*Message, error) {
	const query = `
		SELECT id, kind, room_code, sender, receiver, body, created_at, reactions, read_by
		FROM messages
		WHERE kind = 'private'
		  AND ((sender = $1 AND receiver = $2) OR (sender = $2 AND receiver = $1))
		  AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4`

	return s.queryPage(ctx, query, userA, userB, pageCutoff(before), clampLimit(limit))
}

// merge applies a union-only mutation under a row lock. The mutator receives
// the current message state and merges into it; the merged sets are then
// written back in the same transaction.
func (s *PGStore) merge(ctx context.Context, kind Kind, id string, mutate func(*Message)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("message: begin merge: %w", err)
	}
	defer tx.Rollback()

	const sel = `
		SELECT id, kind, room_code, sender, receiver, body, created_at, reactions, read_by
		FROM messages
		WHERE kind = $1 AND id = $2
		FOR UPDATE`

	m, err := scanMessage(tx.QueryRowContext(ctx, sel, string(kind), id))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("message: select for merge: %w", err)
	}

	mutate(m)

	reactions, readBy, err := marshalSets(m)
	if err != nil {
		return err
	}

	const upd = `UPDATE messages SET reactions = $1, read_by = $2 WHERE kind = $3 AND id = $4`
	if _, err := tx.ExecContext(ctx, upd, reactions, readBy, string(kind), id); err != nil {
		return fmt.Errorf("message: write merge: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("message: commit merge: %w", err)
	}
	return nil
}

func (s *PGStore) queryPage(ctx context.Context, query string, args ...interface{}) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("message: query: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("message: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: rows: %w", err)
	}
	return out, nil
}

// pageCutoff turns a zero "before" timestamp into an open upper bound.
func pageCutoff(before time.Time) time.Time {
	if before.IsZero() {
		return time.Now().UTC().Add(time.Hour)
	}
	return before
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m         Message
		kind      string
		reactions []byte
		readBy    []byte
	)
	err := row.Scan(&m.ID, &kind, &m.Room, &m.Sender, &m.Receiver, &m.Body, &m.CreatedAt, &reactions, &readBy)
	if err != nil {
		return nil, err
	}
	m.Kind = Kind(kind)
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
			return nil, fmt.Errorf("decode reactions: %w", err)
		}
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	if len(readBy) > 0 {
		if err := json.Unmarshal(readBy, &m.ReadBy); err != nil {
			return nil, fmt.Errorf("decode read_by: %w", err)
		}
	}
	return &m, nil
}

func marshalSets(m *Message) ([]byte, []byte, error) {
	reactions := m.Reactions
	if reactions == nil {
		reactions = make(map[string][]string)
	}
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	rj, err := json.Marshal(reactions)
	if err != nil {
		return nil, nil, fmt.Errorf("message: marshal reactions: %w", err)
	}
	bj, err := json.Marshal(readBy)
	if err != nil {
		return nil, nil, fmt.Errorf("message: marshal read_by: %w", err)
	}
	return rj, bj, nil
}
