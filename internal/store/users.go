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

// UserRecord is a stored account.
type UserRecord struct {
	domain.User
	Username       string
	HashedPassword string
	CreatedAt      time.Time
}

const userColumns = `id, username, name, COALESCE(email, ''), avatar, bio, hashed_password, is_online, created_at, last_seen`

func scanUser(row interface{ Scan(...any) error }) (*UserRecord, error) {
	u := &UserRecord{}
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.Avatar, &u.Bio,
		&u.HashedPassword, &u.IsOnline, &u.CreatedAt, &u.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// CreateUser inserts u, assigning an id when it has none.
func (s *Store) CreateUser(ctx context.Context, u *UserRecord) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Name == "" {
		u.Name = u.Username
	}
	now := time.Now().UTC()
	u.CreatedAt, u.LastSeen = now, now

	var email any
	if u.Email != "" {
		email = u.Email
	}
	_, err := s.exec(ctx, `
		INSERT INTO users (id, username, name, email, avatar, bio, hashed_password, is_online, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Name, email, u.Avatar, u.Bio, u.HashedPassword, false, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %q: %w", u.Username, ErrExists)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*UserRecord, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// ListUsers returns every account ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]*UserRecord, error) {
	rows, err := s.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*UserRecord
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) SetOnline(ctx context.Context, id string, online bool) error {
	_, err := s.exec(ctx, `UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?`, online, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}
