package room

import (
	"sync"
	"testing"
)

// stubConn is a minimal transport.Conn for membership tests.
type stubConn struct {
	id string
}

func (c *stubConn) SessionID() string            { return c.id }
func (c *stubConn) WriteMessage(data []byte) error { return nil }

func TestJoinAndMembers(t *testing.T) {
	idx := NewIndex()
	a := &stubConn{id: "conn-a"}
	b := &stubConn{id: "conn-b"}

	idx.Join("lounge", a)
	idx.Join("lounge", b)

	members := idx.Members("lounge")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	idx := NewIndex()
	a := &stubConn{id: "conn-a"}

	idx.Join("lounge", a)
	idx.Join("lounge", a)

	if n := len(idx.Members("lounge")); n != 1 {
		t.Fatalf("joining twice should not duplicate membership, got %d members", n)
	}
}

func TestLeave(t *testing.T) {
	idx := NewIndex()
	a := &stubConn{id: "conn-a"}

	idx.Join("lounge", a)
	idx.Leave("lounge", a.SessionID())

	if n := len(idx.Members("lounge")); n != 0 {
		t.Fatalf("expected empty room after leave, got %d members", n)
	}
	if idx.Contains("lounge", a.SessionID()) {
		t.Error("connection should no longer be a member")
	}
}

func TestPurgeRemovesFromAllRooms(t *testing.T) {
	idx := NewIndex()
	a := &stubConn{id: "conn-a"}
	b := &stubConn{id: "conn-b"}

	idx.Join(Global, a)
	idx.Join("lounge", a)
	idx.Join(PrivateKey("u1", "u2"), a)
	idx.Join("lounge", b)

	affected := idx.Purge(a.SessionID())
	if len(affected) != 3 {
		t.Fatalf("expected 3 affected rooms, got %d: %v", len(affected), affected)
	}

	for _, roomID := range affected {
		if idx.Contains(roomID, a.SessionID()) {
			t.Errorf("purged connection still in room %q", roomID)
		}
	}
	if !idx.Contains("lounge", b.SessionID()) {
		t.Error("purge should not affect other connections")
	}
}

func TestPurgeUnknownConnection(t *testing.T) {
	idx := NewIndex()
	if affected := idx.Purge("never-joined"); len(affected) != 0 {
		t.Fatalf("expected no affected rooms, got %v", affected)
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	idx := NewIndex()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			conn := &stubConn{id: string(rune('a' + n%26))}
			idx.Join("lounge", conn)
			idx.Members("lounge")
			idx.Leave("lounge", conn.SessionID())
		}(i)
	}
	wg.Wait()

	// All joins were matched by leaves; the room must be empty.
	if n := len(idx.Members("lounge")); n != 0 {
		t.Fatalf("expected empty room, got %d members", n)
	}
}
