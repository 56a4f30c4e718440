package message

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresStore is the production Store backed by PostgreSQL. Set fields
// (recipients, read_by, reactions, delivered_by, attachments) are stored as
// JSONB. Update serializes concurrent mutators on the same message with
// SELECT ... FOR UPDATE inside a transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a message store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const messageColumns = `id, room_id, sender_id, sender_name, recipients, content,
	attachments, read_by, reactions, delivered_by, deleted, created_at`

// Create inserts a new message row, assigning ID and CreatedAt when unset.
func (s *PostgresStore) Create(ctx context.Context, m *Message) (*Message, error) {
	stored := m.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	recipients, attachments, readBy, reactions, deliveredBy, err := marshalSets(stored)
	if err != nil {
		return nil, err
	}

	const query = `
		INSERT INTO messages (id, room_id, sender_id, sender_name, recipients, content,
			attachments, read_by, reactions, delivered_by, deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, query,
		stored.ID, stored.RoomID, stored.SenderID, stored.SenderName,
		recipients, stored.Content, attachments, readBy, reactions, deliveredBy,
		stored.Deleted, stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("message: insert: %w", err)
	}
	return stored, nil
}

// FindByRoom returns the room's messages newest first.
func (s *PostgresStore) FindByRoom(ctx context.Context, roomID string, opts FindOptions) ([]*Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages WHERE room_id = $1 AND NOT deleted
		ORDER BY created_at DESC, id DESC`
	args := []interface{}{roomID}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Skip > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Skip)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("message: find by room: %w", err)
	}
	defer rows.Close()

	var result []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("message: find by room: %w", err)
	}
	return result, nil
}

// FindByID returns the message with the given id, or ErrNotFound.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1 AND NOT deleted`
	m, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Update locks the row, applies mutate, and writes back the mutable set
// fields. The row lock is what makes concurrent reaction toggles and receipt
// appends on the same message safe.
func (s *PostgresStore) Update(ctx context.Context, id string, mutate func(*Message)) (*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("message: update begin: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1 AND NOT deleted FOR UPDATE`
	m, err := scanMessage(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	mutate(m)

	recipients, attachments, readBy, reactions, deliveredBy, err := marshalSets(m)
	if err != nil {
		return nil, err
	}

	const update = `
		UPDATE messages
		SET recipients = $2, attachments = $3, read_by = $4, reactions = $5,
			delivered_by = $6, deleted = $7
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, id,
		recipients, attachments, readBy, reactions, deliveredBy, m.Deleted); err != nil {
		return nil, fmt.Errorf("message: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("message: update commit: %w", err)
	}
	return m, nil
}

// Delete marks the message deleted. Deleting an unknown id is a no-op.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const query = `UPDATE messages SET deleted = TRUE WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("message: delete: %w", err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		m           Message
		recipients  []byte
		attachments []byte
		readBy      []byte
		reactions   []byte
		deliveredBy []byte
	)
	err := row.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &recipients,
		&m.Content, &attachments, &readBy, &reactions, &deliveredBy,
		&m.Deleted, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, field := range []struct {
		raw  []byte
		dest interface{}
	}{
		{recipients, &m.Recipients},
		{attachments, &m.Attachments},
		{readBy, &m.ReadBy},
		{reactions, &m.Reactions},
		{deliveredBy, &m.DeliveredBy},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return nil, fmt.Errorf("message: scan %s: %w", m.ID, err)
		}
	}
	return &m, nil
}

// marshalSets encodes the JSONB columns. Nil slices/maps are stored as SQL
// NULL rather than the JSON literal "null".
func marshalSets(m *Message) (recipients, attachments, readBy, reactions, deliveredBy []byte, err error) {
	enc := func(v interface{}, empty bool) []byte {
		if err != nil || empty {
			return nil
		}
		var raw []byte
		raw, err = json.Marshal(v)
		return raw
	}
	recipients = enc(m.Recipients, len(m.Recipients) == 0)
	attachments = enc(m.Attachments, len(m.Attachments) == 0)
	readBy = enc(m.ReadBy, len(m.ReadBy) == 0)
	reactions = enc(m.Reactions, m.Reactions == nil)
	deliveredBy = enc(m.DeliveredBy, len(m.DeliveredBy) == 0)
	if err != nil {
		err = fmt.Errorf("message: marshal sets: %w", err)
	}
	return
}
