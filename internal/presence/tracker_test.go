package presence

import (
	"testing"

	"github.com/courier/chat-relay/internal/identity"
)

type stubConn struct {
	id string
}

func (c *stubConn) SessionID() string              { return c.id }
func (c *stubConn) WriteMessage(data []byte) error { return nil }

func TestBindAndLookup(t *testing.T) {
	tr := NewTracker()
	conn := &stubConn{id: "conn-1"}
	ident := &identity.Identity{ID: "u1", DisplayName: "alice"}

	tr.Bind(conn, ident)

	got, ok := tr.IdentityFor("conn-1")
	if !ok || got.ID != "u1" {
		t.Fatalf("expected identity u1 for conn-1, got %v (ok=%v)", got, ok)
	}

	liveConn, ok := tr.ConnFor("u1")
	if !ok || liveConn.SessionID() != "conn-1" {
		t.Fatalf("expected conn-1 for identity u1")
	}
}

func TestUnbindReturnsIdentity(t *testing.T) {
	tr := NewTracker()
	conn := &stubConn{id: "conn-1"}
	tr.Bind(conn, &identity.Identity{ID: "u1", DisplayName: "alice"})

	ident, ok := tr.Unbind("conn-1")
	if !ok || ident.ID != "u1" {
		t.Fatalf("expected unbind to return identity u1")
	}

	if _, ok := tr.IdentityFor("conn-1"); ok {
		t.Error("connection should no longer be bound")
	}
	if _, ok := tr.ConnFor("u1"); ok {
		t.Error("identity should have no live connection")
	}
}

func TestUnbindNeverBound(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.Unbind("ghost"); ok {
		t.Fatal("unbinding an unknown connection should report not bound")
	}
}

func TestLastJoinWins(t *testing.T) {
	tr := NewTracker()
	ident := &identity.Identity{ID: "u1", DisplayName: "alice"}
	old := &stubConn{id: "conn-old"}
	fresh := &stubConn{id: "conn-new"}

	tr.Bind(old, ident)
	tr.Bind(fresh, ident)

	liveConn, ok := tr.ConnFor("u1")
	if !ok || liveConn.SessionID() != "conn-new" {
		t.Fatalf("expected newest connection to own the presence entry")
	}

	// The superseded connection disconnecting later must not knock out the
	// newer binding.
	if _, ok := tr.Unbind("conn-old"); !ok {
		t.Fatal("stale connection should still unbind its own forward entry")
	}
	liveConn, ok = tr.ConnFor("u1")
	if !ok || liveConn.SessionID() != "conn-new" {
		t.Fatalf("stale unbind must leave the new binding intact")
	}
}

func TestSnapshotSortedAndDeduplicated(t *testing.T) {
	tr := NewTracker()
	tr.Bind(&stubConn{id: "c3"}, &identity.Identity{ID: "u3", DisplayName: "carol"})
	tr.Bind(&stubConn{id: "c1"}, &identity.Identity{ID: "u1", DisplayName: "alice"})
	tr.Bind(&stubConn{id: "c2"}, &identity.Identity{ID: "u2", DisplayName: "bob"})

	// u1 reconnects; the identity must appear once in the snapshot.
	tr.Bind(&stubConn{id: "c4"}, &identity.Identity{ID: "u1", DisplayName: "alice"})

	snapshot := tr.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snapshot))
	}
	for i, want := range []string{"u1", "u2", "u3"} {
		if snapshot[i].ID != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, snapshot[i].ID)
		}
		if !snapshot[i].Online {
			t.Errorf("entry %d: snapshot entries are online by definition", i)
		}
	}
}
