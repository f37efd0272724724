package message

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmchat/internal/app/db"
)

// PostgresStore is the Store backed by the messages table. The seq column fixes the
// persisted order, so Thread never depends on timestamp resolution.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const messageColumns = `id::text, sender_id::text, receiver_id::text, text, image, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.CreatedAt)
	return m, err
}

func (s *PostgresStore) Create(ctx context.Context, m Message) (Message, error) {
	stored, err := scanMessage(s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, image)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+messageColumns,
		m.ID, m.SenderID, m.ReceiverID, m.Text, m.Image,
	))
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) || db.IsInvalidText(err) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) Thread(ctx context.Context, a, b string) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY seq`, a, b)
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		return scanMessage(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteThread(ctx context.Context, a, b string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)`, a, b)
	if err != nil {
		return 0, fmt.Errorf("delete thread: %w", err)
	}
	return tag.RowsAffected(), nil
}
