package presence

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingMirror struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (m *recordingMirror) SetOnline(_ context.Context, userID string, _ time.Time) error {
	m.mu.Lock()
	m.online = append(m.online, userID)
	m.mu.Unlock()
	return nil
}

func (m *recordingMirror) SetOffline(_ context.Context, userID string, _ time.Time) error {
	m.mu.Lock()
	m.offline = append(m.offline, userID)
	m.mu.Unlock()
	return nil
}

func TestSingleSessionLifecycle(t *testing.T) {
	tr := NewTracker(nil)
	ctx := context.Background()

	if tr.IsOnline("alice") {
		t.Fatal("alice online before connect")
	}
	if first := tr.Connect(ctx, "alice"); !first {
		t.Error("first connect should report the online transition")
	}
	if !tr.IsOnline("alice") {
		t.Fatal("alice not online after connect")
	}
	if last := tr.Disconnect(ctx, "alice"); !last {
		t.Error("only disconnect should report the offline transition")
	}
	if tr.IsOnline("alice") {
		t.Error("alice still online after last disconnect")
	}
}

// A user with k concurrent sessions is online until the k-th disconnect, and
// offline immediately and only after it.
func TestMultiSessionRefCounting(t *testing.T) {
	tr := NewTracker(nil)
	ctx := context.Background()

	const k = 5
	for i := 0; i < k; i++ {
		first := tr.Connect(ctx, "alice")
		if (i == 0) != first {
			t.Errorf("connect %d: first=%v", i, first)
		}
	}
	for i := 0; i < k-1; i++ {
		if last := tr.Disconnect(ctx, "alice"); last {
			t.Fatalf("disconnect %d of %d flipped offline early", i+1, k)
		}
		if !tr.IsOnline("alice") {
			t.Fatalf("alice offline with %d sessions remaining", k-i-1)
		}
	}
	if last := tr.Disconnect(ctx, "alice"); !last {
		t.Error("k-th disconnect did not flip offline")
	}
	if tr.IsOnline("alice") {
		t.Error("alice online after k-th disconnect")
	}
}

func TestDisconnectWithoutConnectIsNoop(t *testing.T) {
	tr := NewTracker(nil)
	if last := tr.Disconnect(context.Background(), "ghost"); last {
		t.Error("disconnect of unknown identity reported offline transition")
	}
}

func TestLastSeenUpdates(t *testing.T) {
	tr := NewTracker(nil)
	ctx := context.Background()

	if !tr.LastSeen("alice").IsZero() {
		t.Error("expected zero last-seen for unknown identity")
	}
	tr.Connect(ctx, "alice")
	seen := tr.LastSeen("alice")
	if seen.IsZero() {
		t.Fatal("last-seen not set on connect")
	}
	tr.Disconnect(ctx, "alice")
	if tr.LastSeen("alice").Before(seen) {
		t.Error("last-seen went backwards on disconnect")
	}
}

func TestMirrorSeesOnlyEdgeTransitions(t *testing.T) {
	mirror := &recordingMirror{}
	tr := NewTracker(mirror)
	ctx := context.Background()

	tr.Connect(ctx, "alice")
	tr.Connect(ctx, "alice")
	tr.Disconnect(ctx, "alice")
	tr.Disconnect(ctx, "alice")

	if len(mirror.online) != 1 || len(mirror.offline) != 1 {
		t.Errorf("expected 1 online + 1 offline transition, got %d/%d",
			len(mirror.online), len(mirror.offline))
	}
}

// Interleaved connects and disconnects across goroutines must balance out to
// exactly one online and one offline transition per identity cycle.
func TestConcurrentChurn(t *testing.T) {
	tr := NewTracker(nil)
	ctx := context.Background()

	const sessions = 100
	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Connect(ctx, "alice")
		}()
	}
	wg.Wait()

	if tr.Sessions("alice") != sessions {
		t.Fatalf("expected %d sessions, got %d", sessions, tr.Sessions("alice"))
	}

	lastCount := 0
	var mu sync.Mutex
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Disconnect(ctx, "alice") {
				mu.Lock()
				lastCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if lastCount != 1 {
		t.Errorf("expected exactly one offline transition, got %d", lastCount)
	}
	if tr.IsOnline("alice") {
		t.Error("alice online after all sessions disconnected")
	}
}
