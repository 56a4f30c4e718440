package identity

import (
	"context"
	"errors"
	"testing"
)

func TestResolveCreatesOnFirstJoin(t *testing.T) {
	reg := NewRegistry(NewMemoryStore())
	ctx := context.Background()

	ident, err := reg.Resolve(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.ID == "" {
		t.Fatal("expected a generated identity id")
	}
	if ident.DisplayName != "alice" {
		t.Fatalf("expected display name alice, got %q", ident.DisplayName)
	}
}

func TestResolveByNameIsStable(t *testing.T) {
	reg := NewRegistry(NewMemoryStore())
	ctx := context.Background()

	first, err := reg.Resolve(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := reg.Resolve(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("resolving the same name twice should return the same identity: %s vs %s", first.ID, second.ID)
	}
}

func TestResolveByExistingID(t *testing.T) {
	reg := NewRegistry(NewMemoryStore())
	ctx := context.Background()

	created, err := reg.Resolve(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A returning client reclaims the identity by id; the display name in
	// the request is ignored.
	got, err := reg.Resolve(ctx, "whatever", created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != created.ID || got.DisplayName != "alice" {
		t.Fatalf("expected identity %s/alice, got %s/%s", created.ID, got.ID, got.DisplayName)
	}
}

func TestResolveUnknownIDFails(t *testing.T) {
	reg := NewRegistry(NewMemoryStore())

	_, err := reg.Resolve(context.Background(), "alice", "no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetOnlinePersistsFlag(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store)
	ctx := context.Background()

	ident, err := reg.Resolve(ctx, "alice", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := reg.SetOnline(ctx, ident); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, err := store.FindByID(ctx, ident.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stored.Online {
		t.Error("expected persisted online flag to be true")
	}

	if err := reg.SetOffline(ctx, ident); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, err = store.FindByID(ctx, ident.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Online {
		t.Error("expected persisted online flag to be false")
	}
}
