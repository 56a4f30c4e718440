package message

import "testing"

func TestMarkReadIdempotent(t *testing.T) {
	m := &Message{ID: "m1"}

	if !m.MarkRead("u1") {
		t.Fatal("first mark should report a new entry")
	}
	if m.MarkRead("u1") {
		t.Fatal("second mark for the same user should report no change")
	}
	if len(m.ReadBy) != 1 {
		t.Fatalf("expected a single read entry, got %v", m.ReadBy)
	}
}

func TestMarkDeliveredIdempotent(t *testing.T) {
	m := &Message{ID: "m1"}

	if !m.MarkDelivered("u1") {
		t.Fatal("first mark should report a new entry")
	}
	if m.MarkDelivered("u1") {
		t.Fatal("second mark for the same user should report no change")
	}
	if len(m.DeliveredBy) != 1 {
		t.Fatalf("expected a single delivery entry, got %v", m.DeliveredBy)
	}
}

func TestToggleReaction(t *testing.T) {
	m := &Message{ID: "m1"}

	if !m.ToggleReaction("👍", "u1") {
		t.Fatal("first toggle should add the user")
	}
	if !m.ToggleReaction("👍", "u2") {
		t.Fatal("toggle by a second user should add them")
	}
	if got := m.Reactions["👍"]; len(got) != 2 {
		t.Fatalf("expected two reactors, got %v", got)
	}

	if m.ToggleReaction("👍", "u1") {
		t.Fatal("second toggle by the same user should remove them")
	}
	if got := m.Reactions["👍"]; len(got) != 1 || got[0] != "u2" {
		t.Fatalf("expected only u2 to remain, got %v", got)
	}
}

func TestToggleReactionKeepsEmptyEntry(t *testing.T) {
	m := &Message{ID: "m1"}

	m.ToggleReaction("🔥", "u1")
	m.ToggleReaction("🔥", "u1")

	users, ok := m.Reactions["🔥"]
	if !ok {
		t.Fatal("emoji entry should survive its last reactor leaving")
	}
	if len(users) != 0 {
		t.Fatalf("expected an empty user set, got %v", users)
	}
}

func TestCloneIsDeep(t *testing.T) {
	m := &Message{
		ID:          "m1",
		Recipients:  []string{"u2"},
		Attachments: []Attachment{{URL: "https://cdn/x.png"}},
		ReadBy:      []string{"u2"},
		Reactions:   map[string][]string{"👍": {"u2"}},
	}

	c := m.Clone()
	c.Recipients[0] = "changed"
	c.ReadBy[0] = "changed"
	c.Reactions["👍"][0] = "changed"
	c.Attachments[0].URL = "changed"

	if m.Recipients[0] != "u2" || m.ReadBy[0] != "u2" ||
		m.Reactions["👍"][0] != "u2" || m.Attachments[0].URL != "https://cdn/x.png" {
		t.Fatal("mutating a clone must not touch the original")
	}
}
