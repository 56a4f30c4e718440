package message

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestMemoryStoreCreateAssignsID(t *testing.T) {
	store := NewMemoryStore()

	created, err := store.Create(context.Background(), &Message{
		RoomID:   "global",
		SenderID: "u1",
		Content:  "hello",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated message id")
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("expected a creation timestamp")
	}
}

func TestMemoryStoreFindByRoomOrderAndLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		_, err := store.Create(ctx, &Message{
			RoomID:   "global",
			SenderID: "u1",
			Content:  fmt.Sprintf("msg %d", i),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := store.FindByRoom(ctx, "global", FindOptions{Limit: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("expected 100 messages, got %d", len(got))
	}
	// Newest first: the latest message leads.
	if got[0].Content != "msg 119" {
		t.Errorf("expected newest message first, got %q", got[0].Content)
	}
	if got[99].Content != "msg 20" {
		t.Errorf("expected oldest returned message to be msg 20, got %q", got[99].Content)
	}
}

func TestMemoryStoreFindByRoomSkip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		store.Create(ctx, &Message{RoomID: "r", Content: fmt.Sprintf("msg %d", i)})
	}

	got, err := store.FindByRoom(ctx, "r", FindOptions{Limit: 3, Skip: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 || got[0].Content != "msg 7" {
		t.Fatalf("expected window starting at msg 7, got %v", got)
	}
}

func TestMemoryStoreDeleteHidesMessage(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, _ := store.Create(ctx, &Message{RoomID: "r", Content: "bye"})
	if err := store.Delete(ctx, created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.FindByID(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted message should not be findable, got %v", err)
	}
	got, _ := store.FindByRoom(ctx, "r", FindOptions{})
	if len(got) != 0 {
		t.Errorf("deleted message should be excluded from room history, got %d", len(got))
	}
}

func TestMemoryStoreFindByIDUnknown(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.FindByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, _ := store.Create(ctx, &Message{RoomID: "r", Content: "hi"})

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			userID := fmt.Sprintf("u%d", n)
			_, err := store.Update(ctx, created.ID, func(m *Message) {
				m.MarkRead(userID)
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.ReadBy) != 40 {
		t.Fatalf("expected all 40 readers recorded, got %d", len(got.ReadBy))
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, _ := store.Create(ctx, &Message{RoomID: "r", Content: "hi"})
	created.Content = "mutated"

	got, _ := store.FindByID(ctx, created.ID)
	if got.Content != "hi" {
		t.Fatal("mutating a returned message must not affect stored state")
	}
}
