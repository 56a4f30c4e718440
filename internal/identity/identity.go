// Package identity resolves human-readable display names to durable chat
// identities and tracks their persisted online flag. Identities are never
// deleted; presence is soft (the flag plus the in-memory presence tracker).
package identity

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when an identity id or display name is unknown.
var ErrNotFound = errors.New("identity: not found")

// Identity is a registered chat participant, durable across connections.
// DisplayName is unique across all identities.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Online      bool   `json:"online"`
}

// Store is the adapter to durable identity storage.
type Store interface {
	// FindByName returns the identity with the given display name, or
	// ErrNotFound.
	FindByName(ctx context.Context, name string) (*Identity, error)

	// FindByID returns the identity with the given id, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Identity, error)

	// Create registers a new identity for the display name. If the name is
	// already taken the existing identity is returned (names are unique).
	Create(ctx context.Context, name string) (*Identity, error)

	// Save persists the identity's mutable state (the online flag).
	Save(ctx context.Context, ident *Identity) error
}

// Registry resolves names and ids to identities and updates their durable
// online flag. Persistence failures on the online flag are the caller's to
// log and ignore; the in-memory presence tracker stays authoritative.
type Registry struct {
	store Store
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Resolve returns the identity for the given display name, creating it on
// first join. When existingID is non-empty the lookup goes by id instead and
// an unknown id is an error (a reconnecting client claimed an identity that
// does not exist).
func (r *Registry) Resolve(ctx context.Context, displayName, existingID string) (*Identity, error) {
	if existingID != "" {
		ident, err := r.store.FindByID(ctx, existingID)
		if err != nil {
			return nil, fmt.Errorf("identity: resolve id %s: %w", existingID, err)
		}
		return ident, nil
	}

	ident, err := r.store.FindByName(ctx, displayName)
	if errors.Is(err, ErrNotFound) {
		return r.store.Create(ctx, displayName)
	}
	if err != nil {
		return nil, fmt.Errorf("identity: resolve name %q: %w", displayName, err)
	}
	return ident, nil
}

// SetOnline marks the identity online and persists the flag.
func (r *Registry) SetOnline(ctx context.Context, ident *Identity) error {
	ident.Online = true
	return r.store.Save(ctx, ident)
}

// SetOffline marks the identity offline and persists the flag.
func (r *Registry) SetOffline(ctx context.Context, ident *Identity) error {
	ident.Online = false
	return r.store.Save(ctx, ident)
}
