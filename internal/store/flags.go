package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Flags are one user's sidebar flags for a conversation. Targets are channel
// ids for groups and peer user ids for direct chats.
type Flags struct {
	Unread     int
	IsArchived bool
	IsStarred  bool
	IsMuted    bool
}

type Flag string

const (
	FlagArchived Flag = "is_archived"
	FlagStarred  Flag = "is_starred"
	FlagMuted    Flag = "is_muted"
)

func (s *Store) ensureFlags(ctx context.Context, userID, targetID string) error {
	q := `INSERT INTO conversation_flags (user_id, target_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
	if _, err := s.exec(ctx, q, userID, targetID); err != nil {
		return fmt.Errorf("ensure flags: %w", err)
	}
	return nil
}

// Flags returns the user's flags for target, zero if none were stored.
func (s *Store) Flags(ctx context.Context, userID, targetID string) (Flags, error) {
	var f Flags
	err := s.queryRow(ctx, `
		SELECT unread, is_archived, is_starred, is_muted
		FROM conversation_flags WHERE user_id = ? AND target_id = ?`, userID, targetID).
		Scan(&f.Unread, &f.IsArchived, &f.IsStarred, &f.IsMuted)
	if errors.Is(err, sql.ErrNoRows) {
		return Flags{}, nil
	}
	if err != nil {
		return Flags{}, fmt.Errorf("get flags: %w", err)
	}
	return f, nil
}

// AllFlags returns every flag row of a user keyed by target.
func (s *Store) AllFlags(ctx context.Context, userID string) (map[string]Flags, error) {
	rows, err := s.query(ctx, `
		SELECT target_id, unread, is_archived, is_starred, is_muted
		FROM conversation_flags WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Flags)
	for rows.Next() {
		var (
			target string
			f      Flags
		)
		if err := rows.Scan(&target, &f.Unread, &f.IsArchived, &f.IsStarred, &f.IsMuted); err != nil {
			return nil, fmt.Errorf("scan flags: %w", err)
		}
		out[target] = f
	}
	return out, rows.Err()
}

// ToggleFlag flips one boolean flag and returns the updated row.
func (s *Store) ToggleFlag(ctx context.Context, userID, targetID string, flag Flag) (Flags, error) {
	switch flag {
	case FlagArchived, FlagStarred, FlagMuted:
	default:
		return Flags{}, fmt.Errorf("unknown flag %q", flag)
	}
	if err := s.ensureFlags(ctx, userID, targetID); err != nil {
		return Flags{}, err
	}
	col := string(flag)
	if _, err := s.exec(ctx, `UPDATE conversation_flags SET `+col+` = NOT `+col+` WHERE user_id = ? AND target_id = ?`,
		userID, targetID); err != nil {
		return Flags{}, fmt.Errorf("toggle %s: %w", col, err)
	}
	return s.Flags(ctx, userID, targetID)
}

// MarkRead clears the unread counter.
func (s *Store) MarkRead(ctx context.Context, userID, targetID string) error {
	if _, err := s.exec(ctx, `UPDATE conversation_flags SET unread = 0 WHERE user_id = ? AND target_id = ?`,
		userID, targetID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// BumpUnread increments the unread counter of each user for target.
func (s *Store) BumpUnread(ctx context.Context, targetID string, userIDs ...string) error {
	for _, uid := range userIDs {
		if err := s.ensureFlags(ctx, uid, targetID); err != nil {
			return err
		}
		if _, err := s.exec(ctx, `UPDATE conversation_flags SET unread = unread + 1 WHERE user_id = ? AND target_id = ?`,
			uid, targetID); err != nil {
			return fmt.Errorf("bump unread: %w", err)
		}
	}
	return nil
}
