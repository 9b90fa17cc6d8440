// Package sqlite is an embedded MessageStore backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MonuChaudhary14/SpaceHub-Backend-sub000/internal/domain"
)

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" keeps everything
// in a single in-process connection.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "./data/messages.db"
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		channel_key TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		client_message_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_key, seq);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) SaveBatch(ctx context.Context, msgs []domain.Message) ([]domain.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, channel_key, sender_id, receiver_id, body, created_at, client_message_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	existing, err := tx.PrepareContext(ctx, `SELECT seq FROM messages WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	defer existing.Close()

	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		res, err := stmt.ExecContext(ctx,
			m.ID,
			string(m.ChannelKey),
			string(m.SenderID),
			string(m.ReceiverID),
			m.Body,
			m.CreatedAt.UnixMilli(),
			m.ClientMessageID,
		)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", m.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// already stored by an earlier attempt
			if err := existing.QueryRowContext(ctx, m.ID).Scan(&m.Seq); err != nil {
				return nil, fmt.Errorf("lookup %s: %w", m.ID, err)
			}
		} else if m.Seq, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		out[i] = m
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) FindByChannel(ctx context.Context, key domain.ChannelKey) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, channel_key, sender_id, receiver_id, body, created_at, client_message_id
		FROM messages WHERE channel_key = ? ORDER BY seq ASC
	`, string(key))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m         domain.Message
			channel   string
			sender    string
			receiver  string
			createdAt int64
		)
		if err := rows.Scan(&m.Seq, &m.ID, &channel, &sender, &receiver, &m.Body, &createdAt, &m.ClientMessageID); err != nil {
			return nil, err
		}
		m.ChannelKey = domain.ChannelKey(channel)
		m.SenderID = domain.ParticipantID(sender)
		m.ReceiverID = domain.ParticipantID(receiver)
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteByID(ctx context.Context, key domain.ChannelKey, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ? AND channel_key = ?`, strings.TrimSpace(id), string(key))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
