package message

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func appendRoomMsg(t *testing.T, s *MemoryStore, room, sender, body string, at time.Time) string {
	t.Helper()
	id, err := s.Append(context.Background(), &Message{
		Kind:      KindRoom,
		Room:      room,
		Sender:    sender,
		Body:      body,
		CreatedAt: at,
		ReadBy:    []string{sender},
	})
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	return id
}

func TestAppendAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id := appendRoomMsg(t, s, "AbCdEf", "alice", "hi", time.Now())

	got, err := s.Get(ctx, KindRoom, id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Body != "hi" || got.Sender != "alice" {
		t.Errorf("unexpected message: %+v", got)
	}
	if len(got.ReadBy) != 1 || got.ReadBy[0] != "alice" {
		t.Errorf("expected read_by={alice}, got %v", got.ReadBy)
	}
	if len(got.Reactions) != 0 {
		t.Errorf("expected empty reactions, got %v", got.Reactions)
	}

	if _, err := s.Get(ctx, KindPrivate, id); err != ErrNotFound {
		t.Errorf("room message visible under private kind: err=%v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id := appendRoomMsg(t, s, "AbCdEf", "alice", "hi", time.Now())

	got, _ := s.Get(ctx, KindRoom, id)
	got.MergeRead("mallory")
	got.MergeReaction("fire", "mallory")

	again, _ := s.Get(ctx, KindRoom, id)
	if again.ReadByUser("mallory") || again.HasReactor("fire", "mallory") {
		t.Error("mutating a Get() result leaked into the store")
	}
}

func TestQueryByRoomNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 60; i++ {
		appendRoomMsg(t, s, "RoomAA", "alice", fmt.Sprintf("msg-%d", i), base.Add(time.Duration(i)*time.Second))
	}
	appendRoomMsg(t, s, "RoomBB", "bob", "other room", base)

	page, err := s.QueryByRoom(ctx, "RoomAA", time.Time{}, 0)
	if err != nil {
		t.Fatalf("QueryByRoom() error: %v", err)
	}
	if len(page) != PageSize {
		t.Fatalf("expected page of %d, got %d", PageSize, len(page))
	}
	if page[0].Body != "msg-59" {
		t.Errorf("expected newest first, got %q", page[0].Body)
	}
	for i := 1; i < len(page); i++ {
		if page[i].CreatedAt.After(page[i-1].CreatedAt) {
			t.Fatalf("page not sorted newest-first at index %d", i)
		}
	}

	// Second page via before-cursor.
	older, err := s.QueryByRoom(ctx, "RoomAA", page[len(page)-1].CreatedAt, PageSize)
	if err != nil {
		t.Fatalf("QueryByRoom() second page error: %v", err)
	}
	if len(older) != 10 {
		t.Errorf("expected 10 remaining messages, got %d", len(older))
	}
}

func TestQueryByPrivatePairEitherDirection(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	s.Append(ctx, &Message{Kind: KindPrivate, Sender: "alice", Receiver: "bob", Body: "hey", CreatedAt: now})
	s.Append(ctx, &Message{Kind: KindPrivate, Sender: "bob", Receiver: "alice", Body: "yo", CreatedAt: now.Add(time.Second)})
	s.Append(ctx, &Message{Kind: KindPrivate, Sender: "alice", Receiver: "carol", Body: "hi carol", CreatedAt: now})

	got, err := s.QueryByPrivatePair(ctx, "bob", "alice", time.Time{}, PageSize)
	if err != nil {
		t.Fatalf("QueryByPrivatePair() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Body != "yo" {
		t.Errorf("expected newest first, got %q", got[0].Body)
	}
}

func TestReactUpsertOnAbsentID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.React(ctx, KindRoom, "ghost-id", "wave", "alice"); err != nil {
		t.Fatalf("React() upsert error: %v", err)
	}
	got, err := s.Get(ctx, KindRoom, "ghost-id")
	if err != nil {
		t.Fatalf("Get() after upsert: %v", err)
	}
	if !got.HasReactor("wave", "alice") {
		t.Errorf("upserted reaction missing: %v", got.Reactions)
	}
}

func TestMarkReadAbsentIsNotFound(t *testing.T) {
	s := NewMemoryStore()
	if err := s.MarkRead(context.Background(), KindRoom, "nope", "alice"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id := appendRoomMsg(t, s, "RoomAA", "alice", "bye", time.Now())

	if err := s.Delete(ctx, KindRoom, id); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get(ctx, KindRoom, id); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, KindRoom, id); err != ErrNotFound {
		t.Errorf("double delete: expected ErrNotFound, got %v", err)
	}
}

// Concurrent reactions and read-marks on one message must end with the union
// of every contributed identity.
func TestConcurrentMergesConverge(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id := appendRoomMsg(t, s, "RoomAA", "alice", "hi", time.Now())

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%02d", n)
			if err := s.React(ctx, KindRoom, id, "wave", user); err != nil {
				t.Errorf("React() error: %v", err)
			}
			if err := s.MarkRead(ctx, KindRoom, id, user); err != nil {
				t.Errorf("MarkRead() error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, KindRoom, id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(got.Reactions["wave"]) != workers {
		t.Errorf("expected %d reactors, got %d", workers, len(got.Reactions["wave"]))
	}
	// alice (sender) plus all workers.
	if len(got.ReadBy) != workers+1 {
		t.Errorf("expected %d readers, got %d", workers+1, len(got.ReadBy))
	}
}
