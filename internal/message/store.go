package message

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a message id does not exist (or the message
// has been deleted).
var ErrNotFound = errors.New("message: not found")

// FindOptions controls pagination for FindByRoom. Results are ordered by
// creation time, newest first, so Limit selects the most recent messages;
// callers wanting chronological order reverse the slice.
type FindOptions struct {
	Limit int // max messages to return; 0 means no limit
	Skip  int // messages to skip from the newest end
}

// Store is the adapter to durable message storage. Implementations must make
// Update atomic with respect to concurrent updates of the same message id:
// the mutator's read-modify-write must not lose updates when, for example,
// two reaction toggles race on the same message.
type Store interface {
	// Create persists a new message, assigning its ID and CreatedAt if
	// unset, and returns the stored copy.
	Create(ctx context.Context, m *Message) (*Message, error)

	// FindByRoom returns the room's messages, newest first, honoring opts.
	// Deleted messages are excluded.
	FindByRoom(ctx context.Context, roomID string, opts FindOptions) ([]*Message, error)

	// FindByID returns the message with the given id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Message, error)

	// Update applies mutate to the message under the store's write lock for
	// that id and persists the result, returning the updated copy. Returns
	// ErrNotFound if the id does not exist.
	Update(ctx context.Context, id string, mutate func(*Message)) (*Message, error)

	// Delete logically deletes the message. Deleted messages disappear from
	// FindByRoom and FindByID.
	Delete(ctx context.Context, id string) error
}
