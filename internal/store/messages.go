package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRecord is a stored message. Content is whatever the caller stored,
// normally a sealed body.
type MessageRecord struct {
	ID         string
	ChannelID  string
	SenderID   string
	SenderName string
	Avatar     string
	Content    string
	ReplyTo    string
	CreatedAt  time.Time
	EditedAt   *time.Time
}

// CreateMessage stores m. Ids are UUIDv7 so they sort by creation time.
func (s *Store) CreateMessage(ctx context.Context, m *MessageRecord) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	m.ID = id.String()
	m.CreatedAt = time.Now().UTC()

	if _, err := s.exec(ctx, `
		INSERT INTO messages (id, channel_id, sender_id, content, reply_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChannelID, m.SenderID, m.Content, m.ReplyTo, m.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := s.exec(ctx, `UPDATE channels SET updated_at = ? WHERE id = ?`, m.CreatedAt, m.ChannelID); err != nil {
		return fmt.Errorf("touch channel: %w", err)
	}
	return nil
}

const messageColumns = `m.id, m.channel_id, m.sender_id, u.name, u.avatar, m.content, m.reply_to, m.created_at, m.edited_at`

func scanMessage(row interface{ Scan(...any) error }) (*MessageRecord, error) {
	m := &MessageRecord{}
	var edited sql.NullTime
	err := row.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.SenderName, &m.Avatar,
		&m.Content, &m.ReplyTo, &m.CreatedAt, &edited)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if edited.Valid {
		t := edited.Time
		m.EditedAt = &t
	}
	return m, nil
}

// Message loads a message of the given channel.
func (s *Store) Message(ctx context.Context, channelID, id string) (*MessageRecord, error) {
	return scanMessage(s.queryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.channel_id = ? AND m.id = ?`, channelID, id))
}

// ListMessages returns the latest limit messages of a channel, oldest first.
// A non-positive limit returns the whole history.
func (s *Store) ListMessages(ctx context.Context, channelID string, limit int) ([]*MessageRecord, error) {
	q := `
		SELECT ` + messageColumns + `
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.channel_id = ?
		ORDER BY m.id DESC`
	args := []any{channelID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*MessageRecord
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpdateMessage replaces the content of a message.
func (s *Store) UpdateMessage(ctx context.Context, channelID, id, content string) error {
	res, err := s.exec(ctx, `UPDATE messages SET content = ?, edited_at = ? WHERE channel_id = ? AND id = ?`,
		content, time.Now().UTC(), channelID, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return expectOne(res)
}

func (s *Store) DeleteMessage(ctx context.Context, channelID, id string) error {
	res, err := s.exec(ctx, `DELETE FROM messages WHERE channel_id = ? AND id = ?`, channelID, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return expectOne(res)
}

// PruneMessages deletes all but the newest keep messages of a channel.
func (s *Store) PruneMessages(ctx context.Context, channelID string, keep int) (int64, error) {
	res, err := s.exec(ctx, `
		DELETE FROM messages
		WHERE channel_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE channel_id = ? ORDER BY id DESC LIMIT ?
		)`, channelID, channelID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
