// Package message defines the persisted chat message model and the store
// adapter it is read and written through. The store is the sole authority for
// persisted state; callers only ever hold copies returned by store calls.
package message

import (
	"time"
)

// Attachment is upload metadata carried on a message. The relay treats it as
// opaque beyond requiring a URL; the upload service that produced it owns the
// actual bytes.
type Attachment struct {
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Message is one chat message. Receipt and reaction fields grow append-only:
// entries are unioned in, never overwritten or removed (with the single
// exception of a reaction toggle removing a user from an emoji's set).
type Message struct {
	ID          string              `json:"id"`
	RoomID      string              `json:"room_id"`
	SenderID    string              `json:"sender_id"`
	SenderName  string              `json:"sender_name"`
	Recipients  []string            `json:"recipients,omitempty"`
	Content     string              `json:"content"`
	Attachments []Attachment        `json:"attachments,omitempty"`
	ReadBy      []string            `json:"read_by,omitempty"`
	Reactions   map[string][]string `json:"reactions,omitempty"`
	DeliveredBy []string            `json:"delivered_by,omitempty"`
	Deleted     bool                `json:"deleted,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Clone returns a deep copy. Stores hand out clones so no two callers ever
// share a mutable message.
func (m *Message) Clone() *Message {
	out := *m
	out.Recipients = append([]string(nil), m.Recipients...)
	out.Attachments = append([]Attachment(nil), m.Attachments...)
	out.ReadBy = append([]string(nil), m.ReadBy...)
	out.DeliveredBy = append([]string(nil), m.DeliveredBy...)
	if m.Reactions != nil {
		out.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			out.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	return &out
}

// MarkRead records that userID has read the message. Returns false if the
// user was already recorded (the entry is never duplicated).
func (m *Message) MarkRead(userID string) bool {
	if contains(m.ReadBy, userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}

// MarkDelivered records that userID received the message. Returns false if
// already recorded.
func (m *Message) MarkDelivered(userID string) bool {
	if contains(m.DeliveredBy, userID) {
		return false
	}
	m.DeliveredBy = append(m.DeliveredBy, userID)
	return true
}

// ToggleReaction flips userID's membership in the emoji's user set: present
// is removed, absent is added. The emoji entry itself survives even when its
// user set empties out. Returns true if the user is a member after the call.
func (m *Message) ToggleReaction(emoji, userID string) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	users, ok := m.Reactions[emoji]
	if !ok {
		m.Reactions[emoji] = []string{userID}
		return true
	}
	for i, u := range users {
		if u == userID {
			m.Reactions[emoji] = append(users[:i:i], users[i+1:]...)
			return false
		}
	}
	m.Reactions[emoji] = append(users, userID)
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
