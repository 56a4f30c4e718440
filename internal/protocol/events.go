// Package protocol defines the WebSocket event types and structures exchanged
// between clients and the relay. All events are serialized as JSON and follow
// a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/courier/chat-relay/internal/message"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Client -> Server event types.
const (
	TypeJoin        = "join"
	TypeRoomJoin    = "room:join"
	TypeRoomLeave   = "room:leave"
	TypeSend        = "message:send"
	TypePrivate     = "private_message"
	TypeRead        = "message:read"
	TypeReact       = "message:react"
	TypeDelivered   = "message:delivered"
	TypeDelete      = "message:delete"
	TypeTypingStart = "typing:start"
	TypeTypingStop  = "typing:stop"
	TypePing        = "ping"
)

// Server -> Client event types. TypeRead and TypeDelivered double as server
// broadcasts carrying the {message_id, user_id} pair back out.
const (
	TypeSessionCreated = "session_created"
	TypeHistory        = "history"
	TypePresence       = "presence"
	TypeMessageNew     = "message:new"
	TypeMessageAck     = "message:ack"
	TypeReaction       = "message:reaction"
	TypeDeleted        = "message:deleted"
	TypeNotice         = "notice"
	TypeError          = "error"
	TypePong           = "pong"
)

// Ambient notice kinds carried in NoticeMsg.Event.
const (
	NoticeUserJoined = "user_joined"
	NoticeUserLeft   = "user_left"
	NoticeRoomJoined = "room_joined"
	NoticeRoomLeft   = "room_left"
	NoticeNewMessage = "new_message"
)

// ---------------------------------------------------------------------------
// Envelope — used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred parsing
// into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server event structs
// ---------------------------------------------------------------------------

// JoinMsg is sent by the client to claim an identity. IdentityID is set when
// a returning client reclaims a previously resolved identity; otherwise the
// display name is resolved (and registered on first use).
type JoinMsg struct {
	Type        string `json:"type"`
	DisplayName string `json:"display_name"`
	IdentityID  string `json:"identity_id,omitempty"`
}

// RoomMsg is sent by the client to join or leave a named room.
type RoomMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

// SendMsg is a message send request. AckID correlates the server's
// message:ack response back to this request. Retried sends reuse the same
// AckID but are persisted again — the server keeps no dedup key.
type SendMsg struct {
	Type        string               `json:"type"`
	AckID       string               `json:"ack_id"`
	RoomID      string               `json:"room_id,omitempty"`
	SenderID    string               `json:"sender_id"`
	SenderName  string               `json:"sender_name"`
	Content     string               `json:"content,omitempty"`
	Attachments []message.Attachment `json:"attachments,omitempty"`
	Recipients  []string             `json:"recipients,omitempty"`
}

// PrivateMsg is a direct message to a single identity. The server derives
// the canonical private room key from the two participant ids.
type PrivateMsg struct {
	Type        string               `json:"type"`
	ToUserID    string               `json:"to_user_id"`
	SenderID    string               `json:"sender_id"`
	SenderName  string               `json:"sender_name"`
	Content     string               `json:"content"`
	Attachments []message.Attachment `json:"attachments,omitempty"`
}

// ReceiptMsg reports a read or delivered receipt, or requests a message
// delete, depending on the envelope type.
type ReceiptMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// ReactMsg toggles the user's membership in an emoji reaction on a message.
type ReactMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"user_id"`
}

// TypingMsg signals that the user started or stopped typing in a room.
type TypingMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id,omitempty"`
	User   string `json:"user"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client event structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a new connection is
// established.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// HistoryMsg carries a room's recent messages, oldest first, pushed to a
// connection that just joined the room.
type HistoryMsg struct {
	Type     string             `json:"type"`
	RoomID   string             `json:"room_id"`
	Messages []*message.Message `json:"messages"`
}

// PresenceUser is one entry of a presence broadcast.
type PresenceUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Online      bool   `json:"online"`
}

// PresenceMsg is the full presence snapshot broadcast to all connections.
type PresenceMsg struct {
	Type  string         `json:"type"`
	Users []PresenceUser `json:"users"`
}

// MessageNewMsg delivers a persisted message to its fan-out targets.
type MessageNewMsg struct {
	Type    string           `json:"type"`
	Message *message.Message `json:"message"`
}

// AckError describes why a send was rejected.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MessageAckMsg is the exactly-once response to a message:send, correlated by
// AckID. On success Message holds the persisted message; on failure Error is
// set and Message is nil.
type MessageAckMsg struct {
	Type    string           `json:"type"`
	AckID   string           `json:"ack_id"`
	OK      bool             `json:"ok"`
	Message *message.Message `json:"message,omitempty"`
	Error   *AckError        `json:"error,omitempty"`
}

// ReceiptBroadcastMsg re-broadcasts a read or delivered receipt.
type ReceiptBroadcastMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// ReactionBroadcastMsg carries the full updated reaction state of a message.
type ReactionBroadcastMsg struct {
	Type      string              `json:"type"`
	MessageID string              `json:"message_id"`
	Reactions map[string][]string `json:"reactions"`
}

// DeletedMsg announces that a message was deleted from its room.
type DeletedMsg struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
}

// TypingRelayMsg relays a typing indicator to the other members of a room.
type TypingRelayMsg struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	User   string `json:"user"`
}

// NoticeMsg is a best-effort ambient status event, distinct from message
// payloads.
type NoticeMsg struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	RoomID    string `json:"room_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client event.
// It returns the event type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only event types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeJoin:
		var m JoinMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRoomJoin, TypeRoomLeave:
		var m RoomMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSend:
		var m SendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePrivate:
		var m PrivateMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeRead, TypeDelivered, TypeDelete:
		var m ReceiptMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReact:
		var m ReactMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTypingStart, TypeTypingStop:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client event type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server event. The
// msgType is injected into the payload under the "type" key. The payload
// should be one of the server event structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server event: %w", err)
	}
	return out, nil
}
