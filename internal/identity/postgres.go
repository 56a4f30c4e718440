package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore is the production identity store. The identities table has a
// unique constraint on display_name, which is what enforces the name
// uniqueness invariant under concurrent first joins.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an identity store backed by the given database
// handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindByName returns the identity registered under name, or ErrNotFound.
func (s *PostgresStore) FindByName(ctx context.Context, name string) (*Identity, error) {
	const query = `SELECT id, display_name, online FROM identities WHERE display_name = $1`
	return s.scan(s.db.QueryRowContext(ctx, query, name))
}

// FindByID returns the identity with the given id, or ErrNotFound.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	const query = `SELECT id, display_name, online FROM identities WHERE id = $1`
	return s.scan(s.db.QueryRowContext(ctx, query, id))
}

// Create registers a new identity. A concurrent create for the same name
// resolves to the single winning row via the upsert, so both callers get the
// same identity back.
func (s *PostgresStore) Create(ctx context.Context, name string) (*Identity, error) {
	const query = `
		INSERT INTO identities (id, display_name, online)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (display_name) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING id, display_name, online`
	return s.scan(s.db.QueryRowContext(ctx, query, uuid.New().String(), name))
}

// Save persists the identity's online flag.
func (s *PostgresStore) Save(ctx context.Context, ident *Identity) error {
	const query = `UPDATE identities SET online = $2 WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, ident.ID, ident.Online); err != nil {
		return fmt.Errorf("identity: save %s: %w", ident.ID, err)
	}
	return nil
}

func (s *PostgresStore) scan(row *sql.Row) (*Identity, error) {
	var ident Identity
	err := row.Scan(&ident.ID, &ident.DisplayName, &ident.Online)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity: scan: %w", err)
	}
	return &ident, nil
}
