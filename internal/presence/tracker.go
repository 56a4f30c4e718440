// Package presence is the single in-memory source of truth for who is online
// right now. It maps live connections to resolved identities and back, both
// directions updated under one mutex so they can never drift apart.
package presence

import (
	"sort"
	"sync"

	"github.com/courier/chat-relay/internal/identity"
	"github.com/courier/chat-relay/internal/transport"
)

// Entry is one row of a presence snapshot.
type Entry struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Online      bool   `json:"online"`
}

// Tracker maps connection ids to identities and identity ids to their live
// connection. An identity has at most one live connection: a newer bind for
// the same identity supersedes the older connection's presence entry without
// touching its transport.
type Tracker struct {
	mu         sync.Mutex
	byConn     map[string]*identity.Identity // connection id -> identity
	byIdentity map[string]transport.Conn     // identity id -> live connection
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byConn:     make(map[string]*identity.Identity),
		byIdentity: make(map[string]transport.Conn),
	}
}

// Bind associates the connection with the identity, overwriting any prior
// mapping for that connection. If the identity already had a different live
// connection, that connection is evicted from the inverse map only; its own
// forward entry stays until its disconnect, where Unbind detects the stale
// inverse reference and leaves the new binding intact.
func (t *Tracker) Bind(conn transport.Conn, ident *identity.Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byConn[conn.SessionID()] = ident
	t.byIdentity[ident.ID] = conn
}

// Unbind removes the connection from both directions and returns the freed
// identity, or false if the connection was never bound (disconnect before a
// join). The inverse entry is only removed when it still points at this
// connection, so a superseded connection unbinding late cannot knock out the
// newer one's presence.
func (t *Tracker) Unbind(connID string) (*identity.Identity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ident, ok := t.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(t.byConn, connID)

	if current, ok := t.byIdentity[ident.ID]; ok && current.SessionID() == connID {
		delete(t.byIdentity, ident.ID)
	}
	return ident, true
}

// ConnFor returns the live connection for an identity id, if any.
func (t *Tracker) ConnFor(identityID string) (transport.Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, ok := t.byIdentity[identityID]
	return conn, ok
}

// IdentityFor returns the identity bound to a connection id, if any.
func (t *Tracker) IdentityFor(connID string) (*identity.Identity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ident, ok := t.byConn[connID]
	return ident, ok
}

// Snapshot returns the currently bound identities sorted by id, for presence
// broadcasts. An identity superseded by a newer connection appears once.
func (t *Tracker) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[string]bool, len(t.byConn))
	entries := make([]Entry, 0, len(t.byConn))
	for _, ident := range t.byConn {
		if seen[ident.ID] {
			continue
		}
		seen[ident.ID] = true
		entries = append(entries, Entry{
			ID:          ident.ID,
			DisplayName: ident.DisplayName,
			Online:      true,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}
