// Package postgres is the production MessageStore on PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and makes sure the messages table exists.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &Store{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_messages (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			channel_key TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			client_message_id TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_channel ON chat_messages (channel_key, seq);
	`)
	return err
}

// insertMessage returns the new seq, or the stored one when id already exists.
const insertMessage = `
	WITH ins AS (
		INSERT INTO chat_messages (id, channel_key, sender_id, receiver_id, body, created_at, client_message_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
		RETURNING seq
	)
	SELECT seq FROM ins
	UNION ALL
	SELECT seq FROM chat_messages WHERE id = $1
	LIMIT 1
`

// SaveBatch inserts msgs in one transaction, pipelined as a single pgx batch.
func (s *Store) SaveBatch(ctx context.Context, msgs []domain.Message) ([]domain.Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(insertMessage,
			m.ID,
			string(m.ChannelKey),
			string(m.SenderID),
			string(m.ReceiverID),
			m.Body,
			m.CreatedAt,
			m.ClientMessageID,
		)
	}

	out := make([]domain.Message, len(msgs))
	results := tx.SendBatch(ctx, batch)
	for i, m := range msgs {
		if err := results.QueryRow().Scan(&m.Seq); err != nil {
			results.Close()
			return nil, fmt.Errorf("insert %s: %w", m.ID, err)
		}
		out[i] = m
	}
	if err := results.Close(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindByChannel(ctx context.Context, key domain.ChannelKey) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, id, channel_key, sender_id, receiver_id, body, created_at, client_message_id
		FROM chat_messages WHERE channel_key = $1 ORDER BY seq ASC
	`, string(key))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m        domain.Message
			channel  string
			sender   string
			receiver string
		)
		if err := rows.Scan(&m.Seq, &m.ID, &channel, &sender, &receiver, &m.Body, &m.CreatedAt, &m.ClientMessageID); err != nil {
			return nil, err
		}
		m.ChannelKey = domain.ChannelKey(channel)
		m.SenderID = domain.ParticipantID(sender)
		m.ReceiverID = domain.ParticipantID(receiver)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteByID(ctx context.Context, key domain.ChannelKey, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_messages WHERE id = $1 AND channel_key = $2`, id, string(key))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
