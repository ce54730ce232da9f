package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// newTestLimiter connects to a local Redis or skips the test.
func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client)
}

func TestAllowWithinLimit(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	id := uuid.New().String()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: 10 * time.Second}

	for i := 0; i < rule.Limit; i++ {
		ok, err := l.Allow(ctx, id, rule)
		if err != nil {
			t.Fatalf("allow #%d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("request %d should be within the limit", i+1)
		}
	}

	ok, err := l.Allow(ctx, id, rule)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if ok {
		t.Error("request over the limit should be denied")
	}
}

func TestRemaining(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	id := uuid.New().String()
	rule := Rule{Key: "rl:test:", Limit: 5, Window: 10 * time.Second}

	rem, err := l.Remaining(ctx, id, rule)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if rem != rule.Limit {
		t.Errorf("expected full limit %d before any use, got %d", rule.Limit, rem)
	}

	if _, err := l.Allow(ctx, id, rule); err != nil {
		t.Fatalf("allow: %v", err)
	}
	rem, err = l.Remaining(ctx, id, rule)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if rem != rule.Limit-1 {
		t.Errorf("expected %d remaining after one use, got %d", rule.Limit-1, rem)
	}
}

func TestWindowExpires(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	id := uuid.New().String()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: 1 * time.Second}

	if ok, _ := l.Allow(ctx, id, rule); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := l.Allow(ctx, id, rule); ok {
		t.Fatal("second request in the window should be denied")
	}

	time.Sleep(1200 * time.Millisecond)

	if ok, _ := l.Allow(ctx, id, rule); !ok {
		t.Error("request after the window expiry should be allowed")
	}
}
