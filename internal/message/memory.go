package message

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used in tests and single-process
// deployments without PostgreSQL. All mutators run under the store mutex, so
// read-modify-write sequences on a message are serialized.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string]*Message
	byRoom   map[string][]string // roomID -> message ids in creation order
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]*Message),
		byRoom:   make(map[string][]string),
	}
}

// Create stores a copy of m, assigning ID and CreatedAt when unset.
func (s *MemoryStore) Create(ctx context.Context, m *Message) (*Message, error) {
	stored := m.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.messages[stored.ID] = stored
	s.byRoom[stored.RoomID] = append(s.byRoom[stored.RoomID], stored.ID)
	s.mu.Unlock()

	return stored.Clone(), nil
}

// FindByRoom returns the room's messages newest first, excluding deleted ones.
func (s *MemoryStore) FindByRoom(ctx context.Context, roomID string, opts FindOptions) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byRoom[roomID]
	result := make([]*Message, 0, len(ids))
	skipped := 0
	// Walk from the newest end.
	for i := len(ids) - 1; i >= 0; i-- {
		m, ok := s.messages[ids[i]]
		if !ok || m.Deleted {
			continue
		}
		if skipped < opts.Skip {
			skipped++
			continue
		}
		result = append(result, m.Clone())
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}
	return result, nil
}

// FindByID returns a copy of the message, or ErrNotFound.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.Deleted {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

// Update runs mutate on the stored message under the store lock.
func (s *MemoryStore) Update(ctx context.Context, id string, mutate func(*Message)) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok || m.Deleted {
		return nil, ErrNotFound
	}
	mutate(m)
	return m.Clone(), nil
}

// Delete marks the message deleted. Deleting an unknown id is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.messages[id]; ok {
		m.Deleted = true
	}
	return nil
}
