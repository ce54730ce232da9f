package presence

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is the Redis key prefix for mirrored presence hashes.
const KeyPrefix = "presence:"

// RedisMirror writes presence transitions to Redis hashes:
//
//	Key:    presence:<user>
//	Fields: online ("1"/"0"), last_seen (unix seconds)
type RedisMirror struct {
	client *redis.Client
}

// NewRedisMirror creates a mirror using the provided Redis client.
func NewRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client}
}

func (m *RedisMirror) SetOnline(ctx context.Context, userID string, at time.Time) error {
	return m.client.HSet(ctx, KeyPrefix+userID, "online", "1", "last_seen", at.Unix()).Err()
}

func (m *RedisMirror) SetOffline(ctx context.Context, userID string, at time.Time) error {
	return m.client.HSet(ctx, KeyPrefix+userID, "online", "0", "last_seen", at.Unix()).Err()
}

// LastSeen reads the mirrored last-seen timestamp, zero if absent.
func (m *RedisMirror) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	sec, err := m.client.HGet(ctx, KeyPrefix+userID, "last_seen").Int64()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
