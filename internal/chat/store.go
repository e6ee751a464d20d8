package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a message id does not exist in the store.
var ErrNotFound = errors.New("chat: message not found")

// ErrConstraint is returned for PostgreSQL integrity constraint violations
// (error class 23) so callers can report them distinctly.
var ErrConstraint = errors.New("chat: constraint violation")

// Store persists chat messages in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a message store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const messageColumns = `id, content, sender_id, sender_username, recipient_id,
		message_type, status, sent_at, delivered_at, read_at, deleted`

// Create inserts a new message with a freshly assigned id, SENT status and
// the current time as sent_at, and returns the stored entity.
func (s *Store) Create(ctx context.Context, m *Message) (*Message, error) {
	stored := *m
	stored.ID = uuid.New().String()
	stored.Status = StatusSent
	stored.SentAt = time.Now().UTC()
	stored.DeliveredAt = nil
	stored.ReadAt = nil
	stored.Deleted = false

	const query = `
		INSERT INTO chat_messages (id, content, sender_id, sender_username, recipient_id,
			message_type, status, sent_at, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		stored.ID,
		stored.Content,
		stored.SenderID,
		stored.SenderUsername,
		stored.RecipientID,
		stored.MessageType,
		stored.Status,
		stored.SentAt,
		stored.Deleted,
	)
	if err != nil {
		return nil, wrapStoreErr("insert", err)
	}
	return &stored, nil
}

// Get loads a message by id. Returns ErrNotFound if no row exists.
func (s *Store) Get(ctx context.Context, id string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM chat_messages WHERE id = $1`

	var m Message
	var deliveredAt, readAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID,
		&m.Content,
		&m.SenderID,
		&m.SenderUsername,
		&m.RecipientID,
		&m.MessageType,
		&m.Status,
		&m.SentAt,
		&deliveredAt,
		&readAt,
		&m.Deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapStoreErr("get", err)
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		m.DeliveredAt = &t
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return &m, nil
}

// Update persists the message's status and timestamps. Only the mutable
// delivery-state columns are written; content and addressing are immutable.
func (s *Store) Update(ctx context.Context, m *Message) error {
	const query = `
		UPDATE chat_messages
		SET status = $2, delivered_at = $3, read_at = $4
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, m.ID, m.Status, m.DeliveredAt, m.ReadAt)
	if err != nil {
		return wrapStoreErr("update", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UnreadByRecipient returns all messages addressed to userID that have not
// been read and are not soft-deleted, oldest first.
func (s *Store) UnreadByRecipient(ctx context.Context, userID string) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE recipient_id = $1
		  AND status <> $2
		  AND deleted = FALSE
		ORDER BY sent_at ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, StatusRead)
	if err != nil {
		return nil, wrapStoreErr("unread query", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		var deliveredAt, readAt sql.NullTime
		if err := rows.Scan(
			&m.ID,
			&m.Content,
			&m.SenderID,
			&m.SenderUsername,
			&m.RecipientID,
			&m.MessageType,
			&m.Status,
			&m.SentAt,
			&deliveredAt,
			&readAt,
			&m.Deleted,
		); err != nil {
			return nil, wrapStoreErr("unread scan", err)
		}
		if deliveredAt.Valid {
			t := deliveredAt.Time
			m.DeliveredAt = &t
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("unread rows", err)
	}
	return out, nil
}

// wrapStoreErr maps PostgreSQL integrity violations (class 23) onto
// ErrConstraint and wraps everything else with the failing operation.
func wrapStoreErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return fmt.Errorf("chat: %s: %w: %v", op, ErrConstraint, err)
	}
	return fmt.Errorf("chat: %s: %w", op, err)
}
