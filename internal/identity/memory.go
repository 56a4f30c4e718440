package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and storage-less deployments.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Identity
	byName map[string]*Identity
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Identity),
		byName: make(map[string]*Identity),
	}
}

// FindByName returns the identity registered under name, or ErrNotFound.
func (s *MemoryStore) FindByName(ctx context.Context, name string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *ident
	return &copy, nil
}

// FindByID returns the identity with the given id, or ErrNotFound.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *ident
	return &copy, nil
}

// Create registers a new identity, or returns the existing one when the name
// is already taken.
func (s *MemoryStore) Create(ctx context.Context, name string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byName[name]; ok {
		copy := *existing
		return &copy, nil
	}

	ident := &Identity{ID: uuid.New().String(), DisplayName: name}
	s.byID[ident.ID] = ident
	s.byName[name] = ident
	copy := *ident
	return &copy, nil
}

// Save persists the identity's online flag. Unknown identities are inserted,
// which keeps Save usable after a Resolve from another store instance.
func (s *MemoryStore) Save(ctx context.Context, ident *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *ident
	s.byID[copy.ID] = &copy
	s.byName[copy.DisplayName] = &copy
	return nil
}
