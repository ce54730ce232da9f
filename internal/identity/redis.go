package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// TokenPrefix is the Redis key prefix for issued tokens.
	TokenPrefix = "auth:token:"

	// TokenTTL is the time-to-live for token keys in Redis.
	TokenTTL = 24 * time.Hour
)

// RedisResolver resolves tokens against Redis, where the auth service writes
// one string key per issued token.
type RedisResolver struct {
	client *redis.Client
}

// NewRedisResolver creates a resolver backed by an existing Redis client.
func NewRedisResolver(client *redis.Client) *RedisResolver {
	return &RedisResolver{client: client}
}

// Resolve implements Resolver. Unknown and expired tokens both come back as
// ErrUnauthenticated; only transport failures surface as other errors.
func (r *RedisResolver) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthenticated
	}
	userID, err := r.client.Get(ctx, TokenPrefix+token).Result()
	if err == redis.Nil {
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("identity: token lookup failed: %w", err)
	}
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return userID, nil
}

// Issue writes a token for a user with the standard TTL. The hub itself does
// not call this; it exists for dev tooling and tests against a live Redis.
func (r *RedisResolver) Issue(ctx context.Context, token, userID string) error {
	if err := r.client.Set(ctx, TokenPrefix+token, userID, TokenTTL).Err(); err != nil {
		return fmt.Errorf("identity: token issue failed: %w", err)
	}
	return nil
}
