package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/courier/chat-relay/internal/message"
	"github.com/courier/chat-relay/internal/metrics"
	"github.com/courier/chat-relay/internal/protocol"
	"github.com/courier/chat-relay/internal/ratelimit"
	"github.com/courier/chat-relay/internal/room"
	"github.com/courier/chat-relay/internal/transport"
)

// HandleJoin resolves the claimed identity, binds it to the connection,
// auto-joins the global room, pushes global history to the joiner, and
// broadcasts the updated presence snapshot. A resolution failure is logged
// and leaves the connection unbound and un-joined.
func (r *Router) HandleJoin(ctx context.Context, conn transport.Conn, msg protocol.JoinMsg) {
	metrics.EventsTotal.WithLabelValues(protocol.TypeJoin).Inc()

	ident, err := r.identities.Resolve(ctx, msg.DisplayName, msg.IdentityID)
	if err != nil {
		log.Printf("[router] join session=%s name=%q: %v", conn.SessionID(), msg.DisplayName, err)
		return
	}

	r.presence.Bind(conn, ident)
	metrics.OnlineIdentities.Set(float64(len(r.presence.Snapshot())))

	// The durable online flag is best effort; the tracker is authoritative.
	if err := r.identities.SetOnline(ctx, ident); err != nil {
		log.Printf("[router] set online %s: %v", ident.ID, err)
	}
	if r.mirror != nil {
		if err := r.mirror.Set(ctx, ident.ID, ident.DisplayName); err != nil {
			log.Printf("[router] presence mirror set %s: %v", ident.ID, err)
		}
	}

	r.rooms.Join(room.Global, conn)
	r.pushHistory(ctx, conn, room.Global)
	r.broadcastPresence()
	r.notify.UserJoined(ident.ID, ident.DisplayName)
}

// HandleRoomJoin subscribes the connection to the room, pushes the room's
// recent history to the joiner only, and emits an ambient notice. An empty
// room id is a no-op.
func (r *Router) HandleRoomJoin(ctx context.Context, conn transport.Conn, roomID string) {
	if roomID == "" {
		return
	}
	metrics.EventsTotal.WithLabelValues(protocol.TypeRoomJoin).Inc()

	if r.limiter != nil {
		allowed, _ := r.limiter.Allow(ctx, conn.SessionID(), ratelimit.RuleJoin)
		if !allowed {
			log.Printf("[router] room join rate limited session=%s room=%s", conn.SessionID(), roomID)
			return
		}
	}

	r.rooms.Join(roomID, conn)
	r.pushHistory(ctx, conn, roomID)

	userID, userName := r.boundIdentity(conn.SessionID())
	r.notify.RoomJoined(roomID, userID, userName)
}

// HandleRoomLeave unsubscribes the connection from the room and emits an
// ambient notice. An empty room id is a no-op.
func (r *Router) HandleRoomLeave(ctx context.Context, conn transport.Conn, roomID string) {
	if roomID == "" {
		return
	}
	metrics.EventsTotal.WithLabelValues(protocol.TypeRoomLeave).Inc()

	r.rooms.Leave(roomID, conn.SessionID())

	userID, userName := r.boundIdentity(conn.SessionID())
	r.notify.RoomLeft(roomID, userID, userName)
}

// HandleSend validates and persists the message, fans it out to the resolved
// target set, emits a "new message" notice, and acknowledges the sender. The
// ack fires exactly once per call: with the persisted message on success, or
// with the validation/storage error on failure.
func (r *Router) HandleSend(ctx context.Context, conn transport.Conn, msg protocol.SendMsg, ack AckFunc) {
	metrics.EventsTotal.WithLabelValues(protocol.TypeSend).Inc()
	started := time.Now()
	ack = guardAck(ack)
	defer func() { metrics.DeliveryLatency.Observe(time.Since(started).Seconds()) }()

	if err := message.Validate(msg.Content, msg.Attachments); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		ack(nil, &ValidationError{Reason: err.Error()})
		return
	}

	if r.limiter != nil {
		allowed, _ := r.limiter.Allow(ctx, msg.SenderID, ratelimit.RuleSend)
		if !allowed {
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			ack(nil, ErrRateLimited)
			return
		}
	}

	roomID := msg.RoomID
	if roomID == "" {
		roomID = room.Global
	}

	persisted, err := r.store.Create(ctx, &message.Message{
		RoomID:      roomID,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		Recipients:  msg.Recipients,
		Content:     msg.Content,
		Attachments: msg.Attachments,
	})
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		ack(nil, fmt.Errorf("router: persist message: %w", err))
		return
	}
	metrics.MessagesTotal.WithLabelValues("persisted").Inc()

	data, err := protocol.NewServerMessage(protocol.TypeMessageNew, protocol.MessageNewMsg{Message: persisted})
	if err != nil {
		log.Printf("[router] encode message %s: %v", persisted.ID, err)
	} else {
		r.pushAll(r.sendTargets(conn, roomID, msg.Recipients), data)
	}

	r.notify.NewMessage(roomID, persisted.ID, persisted.SenderID, persisted.SenderName)
	ack(persisted, nil)
}

// sendTargets resolves the fan-out set for a send, in priority order:
// private room members, then named recipients (live connections only, plus
// the sender's echo), then room members, then everyone.
func (r *Router) sendTargets(sender transport.Conn, roomID string, recipients []string) []transport.Conn {
	switch {
	case room.IsPrivate(roomID):
		return r.rooms.Members(roomID)

	case len(recipients) > 0:
		targets := []transport.Conn{sender}
		seen := map[string]bool{sender.SessionID(): true}
		for _, identityID := range recipients {
			conn, ok := r.presence.ConnFor(identityID)
			if !ok || seen[conn.SessionID()] {
				// Identities with no live connection are silently skipped;
				// they catch up from room history.
				continue
			}
			seen[conn.SessionID()] = true
			targets = append(targets, conn)
		}
		return targets

	case roomID != room.Global:
		return r.rooms.Members(roomID)

	default:
		return r.allConns()
	}
}

// HandlePrivate persists a direct message under the canonical private room
// key, auto-joins both participants' live connections to that room, fans the
// message out to the room, and notifies the recipient identity only.
func (r *Router) HandlePrivate(ctx context.Context, conn transport.Conn, msg protocol.PrivateMsg) {
	metrics.EventsTotal.WithLabelValues(protocol.TypePrivate).Inc()

	if err := message.Validate(msg.Content, msg.Attachments); err != nil {
		log.Printf("[router] private message session=%s: %v", conn.SessionID(), err)
		return
	}

	key := room.PrivateKey(msg.SenderID, msg.ToUserID)

	persisted, err := r.store.Create(ctx, &message.Message{
		RoomID:      key,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		Recipients:  []string{msg.ToUserID},
		Content:     msg.Content,
		Attachments: msg.Attachments,
	})
	if err != nil {
		log.Printf("[router] persist private message: %v", err)
		return
	}
	metrics.MessagesTotal.WithLabelValues("persisted").Inc()

	r.rooms.Join(key, conn)
	if peer, ok := r.presence.ConnFor(msg.ToUserID); ok {
		r.rooms.Join(key, peer)
	}

	data, err := protocol.NewServerMessage(protocol.TypeMessageNew, protocol.MessageNewMsg{Message: persisted})
	if err != nil {
		log.Printf("[router] encode message %s: %v", persisted.ID, err)
	} else {
		r.pushAll(r.rooms.Members(key), data)
	}

	r.notify.NewPrivateMessage(msg.ToUserID, key, persisted.ID, persisted.SenderID, persisted.SenderName)
}

// HandleRead records a read receipt and re-broadcasts the {message, user}
// pair to the message's room. The broadcast happens even when the user had
// already read the message, so clients can reconcile idempotently. A missing
// message is a silent no-op.
func (r *Router) HandleRead(ctx context.Context, messageID, userID string) {
	metrics.EventsTotal.WithLabelValues(protocol.TypeRead).Inc()

	m, err := r.store.FindByID(ctx, messageID)
	if errors.Is(err, message.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("[router] read receipt %s: %v", messageID, err)
		return
	}

	if !containsString(m.ReadBy, userID) {
		if _, err := r.store.Update(ctx, messageID, func(m *message.Message) {
			m.MarkRead(userID)
		}); err != nil {
			log.Printf("[router] mark read %s: %v", messageID, err)
			return
		}
	}

	data, err := protocol.NewServerMessage(protocol.TypeRead, protocol.ReceiptBroadcastMsg{
		MessageID: messageID,
		UserID:    userID,
	})
	if err != nil {
		log.Printf("[router] encode read receipt: %v", err)
		return
	}
	r.pushAll(r.rooms.Members(m.RoomID), data)
}

// HandleReaction toggles the user's membership in the emoji's reaction set
// and broadcasts the message's full updated reaction state to all
// connections. An emoji entry whose user set empties out is kept. A missing
// message is a silent no-op.
func (r *Router) HandleReaction(ctx context.Context, messageID, emoji, userID string) {
	metrics.EventsTotal.WithLabelValues(protocol.TypeReact).Inc()

	updated, err := r.store.Update(ctx, messageID, func(m *message.Message) {
		m.ToggleReaction(emoji, userID)
	})
	if errors.Is(err, message.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("[router] reaction %s: %v", messageID, err)
		return
	}

	reactions := updated.Reactions
	if reactions == nil {
		reactions = map[string][]string{}
	}
	data, err := protocol.NewServerMessage(protocol.TypeReaction, protocol.ReactionBroadcastMsg{
		MessageID: messageID,
		Reactions: reactions,
	})
	if err != nil {
		log.Printf("[router] encode reaction: %v", err)
		return
	}
	r.Broadcast(data)
}

// HandleDelivered records a delivery receipt and broadcasts the {message,
// user} pair to all connections. A missing message is a silent no-op.
func (r *Router) HandleDelivered(ctx context.Context, messageID, userID string) {
	metrics.EventsTotal.WithLabelValues(protocol.TypeDelivered).Inc()

	_, err := r.store.Update(ctx, messageID, func(m *message.Message) {
		m.MarkDelivered(userID)
	})
	if errors.Is(err, message.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("[router] delivered receipt %s: %v", messageID, err)
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeDelivered, protocol.ReceiptBroadcastMsg{
		MessageID: messageID,
		UserID:    userID,
	})
	if err != nil {
		log.Printf("[router] encode delivered receipt: %v", err)
		return
	}
	r.Broadcast(data)
}

// HandleDelete logically deletes a message on behalf of its sender and
// announces the deletion to the message's room. Requests from anyone other
// than the sender are refused; a missing message is a silent no-op.
func (r *Router) HandleDelete(ctx context.Context, messageID, userID string) {
	metrics.EventsTotal.WithLabelValues(protocol.TypeDelete).Inc()

	m, err := r.store.FindByID(ctx, messageID)
	if errors.Is(err, message.ErrNotFound) {
		return
	}
	if err != nil {
		log.Printf("[router] delete %s: %v", messageID, err)
		return
	}
	if m.SenderID != userID {
		log.Printf("[router] delete %s refused: %s is not the sender", messageID, userID)
		return
	}

	if err := r.store.Delete(ctx, messageID); err != nil {
		log.Printf("[router] delete %s: %v", messageID, err)
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeDeleted, protocol.DeletedMsg{
		MessageID: messageID,
		RoomID:    m.RoomID,
	})
	if err != nil {
		log.Printf("[router] encode deleted: %v", err)
		return
	}
	r.pushAll(r.rooms.Members(m.RoomID), data)
}

// HandleTyping relays a typing indicator to every other member of the room.
// Nothing is persisted and the sender never sees its own indicator. An empty
// room id means the global room.
func (r *Router) HandleTyping(conn transport.Conn, msgType string, roomID, user string) {
	metrics.EventsTotal.WithLabelValues(msgType).Inc()

	if roomID == "" {
		roomID = room.Global
	}

	data, err := protocol.NewServerMessage(msgType, protocol.TypingRelayMsg{
		RoomID: roomID,
		User:   user,
	})
	if err != nil {
		log.Printf("[router] encode typing: %v", err)
		return
	}

	for _, member := range r.rooms.Members(roomID) {
		if member.SessionID() == conn.SessionID() {
			continue
		}
		if err := member.WriteMessage(data); err != nil {
			log.Printf("[router] typing relay to %s: %v", member.SessionID(), err)
		}
	}
}

// boundIdentity returns the identity id and name bound to the connection,
// or empty strings when the connection never joined.
func (r *Router) boundIdentity(connID string) (string, string) {
	ident, ok := r.presence.IdentityFor(connID)
	if !ok {
		return "", ""
	}
	return ident.ID, ident.DisplayName
}

// guardAck wraps an ack callback so it can fire at most once, keeping the
// exactly-once contract even if a handler path regresses into acking twice.
func guardAck(ack AckFunc) AckFunc {
	var once sync.Once
	return func(m *message.Message, err error) {
		once.Do(func() { ack(m, err) })
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
