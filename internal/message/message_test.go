package message

import (
	"fmt"
	"sync"
	"testing"
)

func TestChannelKeyOrderIndependent(t *testing.T) {
	k1 := ChannelKey("alice", "bob")
	k2 := ChannelKey("bob", "alice")
	if k1 != k2 {
		t.Fatalf("channel keys differ: %q vs %q", k1, k2)
	}
	if k1 != "alice:bob" {
		t.Errorf("expected lexicographic key %q, got %q", "alice:bob", k1)
	}
}

func TestMergeReadIdempotent(t *testing.T) {
	m := &Message{Sender: "alice", ReadBy: []string{"alice"}}

	if added := m.MergeRead("bob"); !added {
		t.Error("first MergeRead should report added")
	}
	if added := m.MergeRead("bob"); added {
		t.Error("second MergeRead should be a no-op")
	}
	if len(m.ReadBy) != 2 {
		t.Fatalf("expected 2 readers, got %v", m.ReadBy)
	}
	if !m.ReadByUser("alice") || !m.ReadByUser("bob") {
		t.Errorf("read-by set missing a reader: %v", m.ReadBy)
	}
}

func TestMergeReactionInitializesMap(t *testing.T) {
	m := &Message{}

	m.MergeReaction("thumbsup", "alice")
	m.MergeReaction("thumbsup", "alice")
	m.MergeReaction("thumbsup", "bob")
	m.MergeReaction("heart", "bob")

	if got := len(m.Reactions["thumbsup"]); got != 2 {
		t.Errorf("thumbsup: expected 2 reactors, got %d (%v)", got, m.Reactions["thumbsup"])
	}
	if got := len(m.Reactions["heart"]); got != 1 {
		t.Errorf("heart: expected 1 reactor, got %d", got)
	}
	if !m.HasReactor("thumbsup", "alice") {
		t.Error("expected alice in thumbsup reactors")
	}
	if m.HasReactor("heart", "alice") {
		t.Error("alice should not be in heart reactors")
	}
}

// Merging from many goroutines must converge on the union of all contributed
// identities regardless of interleaving.
func TestMergeUnionUnderConcurrency(t *testing.T) {
	m := &Message{Reactions: make(map[string][]string)}
	var mu sync.Mutex

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%02d", n)
			for j := 0; j < 10; j++ {
				mu.Lock()
				m.MergeReaction("wave", user)
				m.MergeRead(user)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if got := len(m.Reactions["wave"]); got != writers {
		t.Errorf("expected %d reactors, got %d", writers, got)
	}
	if got := len(m.ReadBy); got != writers {
		t.Errorf("expected %d readers, got %d", writers, got)
	}
}

func TestValidUserID(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"alice", true},
		{"Alice_99", true},
		{"", false},
		{"system", false},
		{"a b", false},
		{"a.b", false},
		{"a:b", false},
		{"a>b", false},
	}
	for _, tt := range tests {
		if got := ValidUserID(tt.id); got != tt.ok {
			t.Errorf("ValidUserID(%q) = %v, want %v", tt.id, got, tt.ok)
		}
	}
}

func TestValidateBody(t *testing.T) {
	if err := ValidateBody("hi"); err != nil {
		t.Errorf("valid body rejected: %v", err)
	}
	if err := ValidateBody(""); err == nil {
		t.Error("empty body accepted")
	}
	long := make([]byte, MaxBodyBytes+1)
	for i := range long {
		long[i] = 'x'
	}
	if err := ValidateBody(string(long)); err == nil {
		t.Error("oversized body accepted")
	}
	if err := ValidateBody(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("invalid UTF-8 accepted")
	}
}
