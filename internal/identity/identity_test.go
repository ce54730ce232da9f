package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestStaticResolver(t *testing.T) {
	r := StaticResolver{"tok-alice": "alice"}

	userID, err := r.Resolve(context.Background(), "tok-alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "alice" {
		t.Errorf("expected user %q, got %q", "alice", userID)
	}

	if _, err := r.Resolve(context.Background(), "tok-unknown"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for unknown token, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated for empty token, got %v", err)
	}
}

// newTestRedisResolver connects to a local Redis or skips the test.
func newTestRedisResolver(t *testing.T) *RedisResolver {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedisResolver(client)
}

func TestRedisResolver_IssueAndResolve(t *testing.T) {
	r := newTestRedisResolver(t)
	ctx := context.Background()
	token := uuid.New().String()

	if err := r.Issue(ctx, token, "alice"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	userID, err := r.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if userID != "alice" {
		t.Errorf("expected user %q, got %q", "alice", userID)
	}
}

func TestRedisResolver_UnknownToken(t *testing.T) {
	r := newTestRedisResolver(t)

	_, err := r.Resolve(context.Background(), uuid.New().String())
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}
