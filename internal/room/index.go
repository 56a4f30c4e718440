package room

import (
	"sync"

	"github.com/courier/chat-relay/internal/transport"
)

// Index is the in-memory room membership registry. It keeps a forward index
// (room -> member connections) for fan-out and a reverse index (connection ->
// rooms) so a disconnecting connection can be purged from every room it
// joined in one pass. Both indexes mutate under one mutex.
type Index struct {
	mu    sync.Mutex
	rooms map[string]map[string]transport.Conn // roomID -> connID -> conn
	conns map[string]map[string]bool           // connID -> set of roomIDs
}

// NewIndex creates an empty Index.
func NewIndex() *Index {
	return &Index{
		rooms: make(map[string]map[string]transport.Conn),
		conns: make(map[string]map[string]bool),
	}
}

// Join subscribes the connection to the room. Joining a room twice is a
// no-op.
func (idx *Index) Join(roomID string, conn transport.Conn) {
	connID := conn.SessionID()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.rooms[roomID] == nil {
		idx.rooms[roomID] = make(map[string]transport.Conn)
	}
	idx.rooms[roomID][connID] = conn

	if idx.conns[connID] == nil {
		idx.conns[connID] = make(map[string]bool)
	}
	idx.conns[connID][roomID] = true
}

// Leave unsubscribes the connection from the room. Empty rooms other than
// the global room cease to exist.
func (idx *Index) Leave(roomID, connID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.leaveLocked(roomID, connID)
}

func (idx *Index) leaveLocked(roomID, connID string) {
	if members, ok := idx.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 && roomID != Global {
			delete(idx.rooms, roomID)
		}
	}
	if rooms, ok := idx.conns[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(idx.conns, connID)
		}
	}
}

// Members returns a snapshot of the room's member connections, safe to
// iterate without holding the index lock.
func (idx *Index) Members(roomID string) []transport.Conn {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	members := idx.rooms[roomID]
	result := make([]transport.Conn, 0, len(members))
	for _, conn := range members {
		result = append(result, conn)
	}
	return result
}

// Contains reports whether the connection is a member of the room.
func (idx *Index) Contains(roomID, connID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	members, ok := idx.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = members[connID]
	return ok
}

// Purge removes the connection from every room it belongs to and returns the
// affected room ids. Called on disconnect; purging an unknown connection is
// a no-op.
func (idx *Index) Purge(connID string) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	rooms := idx.conns[connID]
	affected := make([]string, 0, len(rooms))
	for roomID := range rooms {
		affected = append(affected, roomID)
	}
	for _, roomID := range affected {
		idx.leaveLocked(roomID, connID)
	}
	return affected
}
