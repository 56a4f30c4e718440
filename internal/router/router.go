// Package router is the relay's orchestrator. It receives inbound client
// events, persists messages through the store adapter, resolves fan-out
// targets from the room membership index and presence tracker, pushes
// outbound events to target connections, and drives the acknowledgement
// contract back to senders.
package router

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/courier/chat-relay/internal/identity"
	"github.com/courier/chat-relay/internal/message"
	"github.com/courier/chat-relay/internal/metrics"
	"github.com/courier/chat-relay/internal/notify"
	"github.com/courier/chat-relay/internal/presence"
	"github.com/courier/chat-relay/internal/protocol"
	"github.com/courier/chat-relay/internal/ratelimit"
	"github.com/courier/chat-relay/internal/room"
	"github.com/courier/chat-relay/internal/transport"
)

// DefaultHistoryLimit is how many recent messages are pushed to a connection
// joining a room.
const DefaultHistoryLimit = 100

// ErrRateLimited is the ack error for a sender exceeding the send limit.
var ErrRateLimited = errors.New("router: rate limited")

// ValidationError rejects a malformed send before anything is persisted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "router: invalid send: " + e.Reason
}

// AckFunc receives the exactly-once result of a send: the persisted message
// on success, or a non-nil error on any failure.
type AckFunc func(m *message.Message, err error)

// Config wires the router's collaborators. Limiter and Mirror are optional;
// nil disables them.
type Config struct {
	Identities   *identity.Registry
	Presence     *presence.Tracker
	Rooms        *room.Index
	Store        message.Store
	Notify       *notify.Broadcaster
	Limiter      *ratelimit.Limiter
	Mirror       *presence.Mirror
	HistoryLimit int // 0 means DefaultHistoryLimit
}

// Router holds the relay's shared in-memory state: the set of live
// connections plus the presence and room structures. All of it is mutated
// concurrently by per-connection workers; each structure serializes its own
// mutations and the router serializes its connection set.
type Router struct {
	identities   *identity.Registry
	presence     *presence.Tracker
	rooms        *room.Index
	store        message.Store
	notify       *notify.Broadcaster
	limiter      *ratelimit.Limiter
	mirror       *presence.Mirror
	historyLimit int

	mu    sync.Mutex
	conns map[string]transport.Conn
}

// New creates a Router from the given configuration.
func New(config Config) *Router {
	limit := config.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Router{
		identities:   config.Identities,
		presence:     config.Presence,
		rooms:        config.Rooms,
		store:        config.Store,
		notify:       config.Notify,
		limiter:      config.Limiter,
		mirror:       config.Mirror,
		historyLimit: limit,
		conns:        make(map[string]transport.Conn),
	}
}

// Connect registers a new live connection with the router. Until the
// connection joins, it receives only broadcasts addressed to all connections.
func (r *Router) Connect(conn transport.Conn) {
	r.mu.Lock()
	r.conns[conn.SessionID()] = conn
	total := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectionsTotal.Set(float64(total))
}

// Disconnect tears down everything the router knows about the connection:
// presence binding, room memberships, the durable online flag (best effort),
// followed by a presence broadcast and a "user left" notice. Calling it
// again for the same connection is a no-op.
func (r *Router) Disconnect(ctx context.Context, connID string) {
	r.mu.Lock()
	_, known := r.conns[connID]
	delete(r.conns, connID)
	total := len(r.conns)
	r.mu.Unlock()

	if !known {
		return
	}
	metrics.ConnectionsTotal.Set(float64(total))

	r.rooms.Purge(connID)

	ident, bound := r.presence.Unbind(connID)
	if !bound {
		return
	}
	metrics.OnlineIdentities.Set(float64(len(r.presence.Snapshot())))

	// A newer connection for the same identity keeps it online; only mark
	// the identity offline when this was its live connection.
	if _, stillOnline := r.presence.ConnFor(ident.ID); !stillOnline {
		if err := r.identities.SetOffline(ctx, ident); err != nil {
			log.Printf("[router] set offline %s: %v", ident.ID, err)
		}
		if r.mirror != nil {
			if err := r.mirror.Clear(ctx, ident.ID); err != nil {
				log.Printf("[router] presence mirror clear %s: %v", ident.ID, err)
			}
		}
	}

	r.broadcastPresence()
	r.notify.UserLeft(ident.ID, ident.DisplayName)
}

// ---------------------------------------------------------------------------
// notify.LocalSink implementation
// ---------------------------------------------------------------------------

// Broadcast pushes the frame to every connected client. Write failures are
// per-target and best effort; a dead connection is cleaned up by its own
// read path, not here.
func (r *Router) Broadcast(data []byte) {
	for _, conn := range r.allConns() {
		if err := conn.WriteMessage(data); err != nil {
			log.Printf("[router] broadcast to %s: %v", conn.SessionID(), err)
		}
	}
}

// SendToIdentity pushes the frame to the identity's live connection, if any.
func (r *Router) SendToIdentity(identityID string, data []byte) bool {
	conn, ok := r.presence.ConnFor(identityID)
	if !ok {
		return false
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("[router] send to identity %s: %v", identityID, err)
	}
	return true
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

func (r *Router) allConns() []transport.Conn {
	r.mu.Lock()
	conns := make([]transport.Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.mu.Unlock()
	return conns
}

// pushAll delivers a frame to each target, best effort, and records the
// fan-out size.
func (r *Router) pushAll(targets []transport.Conn, data []byte) {
	metrics.FanoutTargets.Observe(float64(len(targets)))
	for _, conn := range targets {
		if err := conn.WriteMessage(data); err != nil {
			log.Printf("[router] push to %s: %v", conn.SessionID(), err)
		}
	}
}

// broadcastPresence sends the current presence snapshot to all connections.
func (r *Router) broadcastPresence() {
	snapshot := r.presence.Snapshot()
	users := make([]protocol.PresenceUser, len(snapshot))
	for i, entry := range snapshot {
		users[i] = protocol.PresenceUser{
			ID:          entry.ID,
			DisplayName: entry.DisplayName,
			Online:      entry.Online,
		}
	}

	data, err := protocol.NewServerMessage(protocol.TypePresence, protocol.PresenceMsg{Users: users})
	if err != nil {
		log.Printf("[router] encode presence: %v", err)
		return
	}
	r.Broadcast(data)
}

// pushHistory fetches the room's most recent messages and pushes them,
// oldest first, to the single joining connection.
func (r *Router) pushHistory(ctx context.Context, conn transport.Conn, roomID string) {
	msgs, err := r.store.FindByRoom(ctx, roomID, message.FindOptions{Limit: r.historyLimit})
	if err != nil {
		log.Printf("[router] history for %s: %v", roomID, err)
		return
	}

	// The store returns newest first; history is delivered oldest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	data, err := protocol.NewServerMessage(protocol.TypeHistory, protocol.HistoryMsg{
		RoomID:   roomID,
		Messages: msgs,
	})
	if err != nil {
		log.Printf("[router] encode history for %s: %v", roomID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("[router] push history to %s: %v", conn.SessionID(), err)
	}
}
