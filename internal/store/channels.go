package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"client_go/internal/domain"
)

func directKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// CreateChannel creates a group channel owned by createdBy with the given
// extra members.
func (s *Store) CreateChannel(ctx context.Context, name, description, createdBy string, memberIDs ...string) (*domain.Channel, error) {
	now := time.Now().UTC()
	ch := &domain.Channel{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO channels (id, name, description, created_by, direct_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, NULL, ?, ?)`),
		ch.ID, name, description, createdBy, now, now); err != nil {
		return nil, fmt.Errorf("insert channel: %w", err)
	}

	roles := map[string]string{createdBy: "owner"}
	for _, id := range memberIDs {
		if _, ok := roles[id]; !ok {
			roles[id] = "member"
		}
	}
	for id, role := range roles {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO channel_members (channel_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`),
			ch.ID, id, role, now); err != nil {
			return nil, fmt.Errorf("insert member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ch, nil
}

// DirectChannelID returns the id of the direct channel between a and b.
func (s *Store) DirectChannelID(ctx context.Context, a, b string) (string, error) {
	var id string
	err := s.queryRow(ctx, `SELECT id FROM channels WHERE direct_key = ?`, directKey(a, b)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find direct channel: %w", err)
	}
	return id, nil
}

// EnsureDirect returns the direct channel between a and b, creating it if
// needed. created reports whether this call created it.
func (s *Store) EnsureDirect(ctx context.Context, a, b string) (id string, created bool, err error) {
	if id, err := s.DirectChannelID(ctx, a, b); err == nil {
		return id, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", false, err
	}

	now := time.Now().UTC()
	id = uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO channels (id, name, description, created_by, direct_key, created_at, updated_at)
		VALUES (?, '', '', ?, ?, ?, ?)`),
		id, a, directKey(a, b), now, now)
	if isUniqueViolation(err) {
		tx.Rollback()
		existing, err := s.DirectChannelID(ctx, a, b)
		return existing, false, err
	}
	if err != nil {
		return "", false, fmt.Errorf("insert direct channel: %w", err)
	}
	members := []string{a}
	if b != a {
		members = append(members, b)
	}
	for _, uid := range members {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO channel_members (channel_id, user_id, role, joined_at) VALUES (?, ?, 'member', ?)`),
			id, uid, now); err != nil {
			return "", false, fmt.Errorf("insert direct member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit: %w", err)
	}
	return id, true, nil
}

// Channel loads a group channel with its members. Direct channels are not
// returned.
func (s *Store) Channel(ctx context.Context, id string) (*domain.Channel, error) {
	ch := &domain.Channel{}
	err := s.queryRow(ctx, `
		SELECT id, name, description, created_by, created_at, updated_at
		FROM channels WHERE id = ? AND direct_key IS NULL`, id).
		Scan(&ch.ID, &ch.Name, &ch.Description, &ch.CreatedBy, &ch.CreatedAt, &ch.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	members, err := s.Members(ctx, id)
	if err != nil {
		return nil, err
	}
	ch.Members = members
	return ch, nil
}

// ChannelsForUser lists the group channels userID belongs to, oldest first,
// with the user's role filled in.
func (s *Store) ChannelsForUser(ctx context.Context, userID string) ([]domain.Channel, error) {
	rows, err := s.query(ctx, `
		SELECT c.id, c.name, c.description, c.created_by, c.created_at, c.updated_at, m.role
		FROM channels c
		JOIN channel_members m ON m.channel_id = c.id
		WHERE m.user_id = ? AND c.direct_key IS NULL
		ORDER BY c.created_at ASC, c.name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	var out []domain.Channel
	for rows.Next() {
		var ch domain.Channel
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.CreatedBy, &ch.CreatedAt, &ch.UpdatedAt, &ch.Role); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, ch)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		members, err := s.Members(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Members = members
	}
	return out, nil
}

// Members lists the members of a channel.
func (s *Store) Members(ctx context.Context, channelID string) ([]domain.Member, error) {
	rows, err := s.query(ctx, `
		SELECT u.id, u.name, u.avatar, u.is_online, m.role
		FROM channel_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.channel_id = ?
		ORDER BY m.joined_at ASC, u.name ASC`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Avatar, &m.IsOnline, &m.Role); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) IsMember(ctx context.Context, channelID, userID string) (bool, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM channel_members WHERE channel_id = ? AND user_id = ?`, channelID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return n > 0, nil
}

// AddMember adds userID to a channel. ErrExists if already a member.
func (s *Store) AddMember(ctx context.Context, channelID, userID string) error {
	_, err := s.exec(ctx, `
		INSERT INTO channel_members (channel_id, user_id, role, joined_at) VALUES (?, ?, 'member', ?)`,
		channelID, userID, time.Now().UTC())
	if isUniqueViolation(err) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}
