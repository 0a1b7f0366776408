package core

import (
	"context"
	"fmt"
	"time"
)

// SQLMessageStore persists messages and group members in a sqlite3 or mysql database.
type SQLMessageStore struct {
	db  *DB
	now func() time.Time
}

func NewSQLMessageStore(db *DB) *SQLMessageStore {
	return &SQLMessageStore{db: db, now: time.Now}
}

func (s *SQLMessageStore) AppendMessage(ctx context.Context, input MessageCreateInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	m := input.message(s.now())

	query := `INSERT INTO messages (group_id, user_name, is_anon, message, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, m.GroupID, m.UserName, m.IsAnon, m.Body, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ExecContext: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("LastInsertId: %w", err)
	}
	m.ID = &id
	return &m, nil
}

func (s *SQLMessageStore) ListMessages(ctx context.Context, groupID string) ([]Message, error) {
	query := `SELECT id, group_id, user_name, is_anon, message, created_at FROM messages
		WHERE group_id = ? ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			m  Message
			id int64
		)
		if err := rows.Scan(&id, &m.GroupID, &m.UserName, &m.IsAnon, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("Scan: %w", err)
		}
		m.ID = &id
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return messages, nil
}

func (s *SQLMessageStore) JoinGroup(ctx context.Context, groupID, userName string) error {
	query := `INSERT INTO group_members (group_id, user_name, joined_at) VALUES (?, ?, ?)
		ON CONFLICT (group_id, user_name) DO UPDATE SET joined_at = excluded.joined_at`
	if s.db.Dialect() == DialectMySQL {
		query = `INSERT INTO group_members (group_id, user_name, joined_at) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE joined_at = VALUES(joined_at)`
	}
	if _, err := s.db.ExecContext(ctx, query, groupID, userName, s.now().UTC()); err != nil {
		return fmt.Errorf("ExecContext: %w", err)
	}
	return nil
}

// IsMember reports whether userName has joined the group through JoinGroup.
func (s *SQLMessageStore) IsMember(ctx context.Context, groupID, userName string) (bool, error) {
	query := `SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_name = ?`
	var n int
	if err := s.db.QueryRowContext(ctx, query, groupID, userName).Scan(&n); err != nil {
		return false, fmt.Errorf("QueryRowContext: %w", err)
	}
	return n > 0, nil
}

func (s *SQLMessageStore) Persistent() bool { return true }

func (s *SQLMessageStore) Name() string {
	if s.db.Dialect() == DialectMySQL {
		return "mysql"
	}
	return "sqlite"
}

func (s *SQLMessageStore) Close() error {
	return s.db.Close()
}
