// Package notify emits the relay's ambient status events: best-effort,
// fire-and-forget notices derived from delivery router actions (user
// joined/left, room joined/left, new message). Each notice goes two places:
// to the locally connected clients as a "notice" event, and onto the NATS
// bus for out-of-process consumers. Failures on either path are logged and
// never propagate into the handler that triggered them.
package notify

import (
	"log"

	"github.com/courier/chat-relay/internal/messaging"
	"github.com/courier/chat-relay/internal/protocol"
)

// Publisher is the bus side of the broadcaster, satisfied by
// messaging.Client. A nil Publisher disables bus publishing.
type Publisher interface {
	Publish(subject string, data []byte) error
	PublishRoom(roomID string, data []byte) error
	PublishUser(identityID string, data []byte) error
}

// LocalSink delivers notices to connected clients. The delivery router
// implements it.
type LocalSink interface {
	// Broadcast pushes the frame to every connected client, best effort.
	Broadcast(data []byte)

	// SendToIdentity pushes the frame to the identity's live connection.
	// Returns false if the identity has no live connection.
	SendToIdentity(identityID string, data []byte) bool
}

// Broadcaster builds and emits ambient notices.
type Broadcaster struct {
	bus   Publisher
	local LocalSink
}

// NewBroadcaster creates a Broadcaster publishing to the given bus. Pass a
// nil bus to run without NATS.
func NewBroadcaster(bus Publisher) *Broadcaster {
	return &Broadcaster{bus: bus}
}

// SetLocal assigns the local delivery sink. This supports the initialization
// order where the broadcaster is created before the router that implements
// the sink.
func (b *Broadcaster) SetLocal(local LocalSink) {
	b.local = local
}

// UserJoined announces that an identity came online.
func (b *Broadcaster) UserJoined(userID, userName string) {
	data := b.encode(protocol.NoticeMsg{
		Event:    protocol.NoticeUserJoined,
		UserID:   userID,
		UserName: userName,
	})
	if data == nil {
		return
	}
	b.broadcastLocal(data)
	b.publish(messaging.SubjectPresence, data)
}

// UserLeft announces that an identity went offline.
func (b *Broadcaster) UserLeft(userID, userName string) {
	data := b.encode(protocol.NoticeMsg{
		Event:    protocol.NoticeUserLeft,
		UserID:   userID,
		UserName: userName,
	})
	if data == nil {
		return
	}
	b.broadcastLocal(data)
	b.publish(messaging.SubjectPresence, data)
}

// RoomJoined announces that a connection subscribed to a room.
func (b *Broadcaster) RoomJoined(roomID, userID, userName string) {
	data := b.encode(protocol.NoticeMsg{
		Event:    protocol.NoticeRoomJoined,
		RoomID:   roomID,
		UserID:   userID,
		UserName: userName,
	})
	if data == nil {
		return
	}
	b.broadcastLocal(data)
	b.publishRoom(roomID, data)
}

// RoomLeft announces that a connection unsubscribed from a room.
func (b *Broadcaster) RoomLeft(roomID, userID, userName string) {
	data := b.encode(protocol.NoticeMsg{
		Event:    protocol.NoticeRoomLeft,
		RoomID:   roomID,
		UserID:   userID,
		UserName: userName,
	})
	if data == nil {
		return
	}
	b.broadcastLocal(data)
	b.publishRoom(roomID, data)
}

// NewMessage announces that a message was persisted, to all connections.
func (b *Broadcaster) NewMessage(roomID, messageID, senderID, senderName string) {
	data := b.encode(protocol.NoticeMsg{
		Event:     protocol.NoticeNewMessage,
		RoomID:    roomID,
		UserID:    senderID,
		UserName:  senderName,
		MessageID: messageID,
	})
	if data == nil {
		return
	}
	b.broadcastLocal(data)
	b.publish(messaging.SubjectMessage, data)
}

// NewPrivateMessage announces a private message to the recipient identity
// only, never as a global broadcast.
func (b *Broadcaster) NewPrivateMessage(toUserID, roomID, messageID, senderID, senderName string) {
	data := b.encode(protocol.NoticeMsg{
		Event:     protocol.NoticeNewMessage,
		RoomID:    roomID,
		UserID:    senderID,
		UserName:  senderName,
		MessageID: messageID,
	})
	if data == nil {
		return
	}
	if b.local != nil {
		b.local.SendToIdentity(toUserID, data)
	}
	if b.bus != nil {
		if err := b.bus.PublishUser(toUserID, data); err != nil {
			log.Printf("[notify] publish user %s: %v", toUserID, err)
		}
	}
}

func (b *Broadcaster) encode(notice protocol.NoticeMsg) []byte {
	data, err := protocol.NewServerMessage(protocol.TypeNotice, notice)
	if err != nil {
		log.Printf("[notify] encode %s: %v", notice.Event, err)
		return nil
	}
	return data
}

func (b *Broadcaster) broadcastLocal(data []byte) {
	if b.local != nil {
		b.local.Broadcast(data)
	}
}

func (b *Broadcaster) publish(subject string, data []byte) {
	if b.bus == nil {
		return
	}
	if err := b.bus.Publish(subject, data); err != nil {
		log.Printf("[notify] publish %s: %v", subject, err)
	}
}

func (b *Broadcaster) publishRoom(roomID string, data []byte) {
	if b.bus == nil {
		return
	}
	if err := b.bus.PublishRoom(roomID, data); err != nil {
		log.Printf("[notify] publish room %s: %v", roomID, err)
	}
}
