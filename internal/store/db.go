// Package store persists the development backend's users, channels and
// messages in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// Store wraps a database handle and the SQL dialect it speaks.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open picks the driver from the DSN: postgres:// and postgresql:// URLs use
// pgx, anything else is a SQLite DSN.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dialect, driver := SQLite, "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect, driver = Postgres, "pgx"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if dialect == SQLite {
		// a single writer avoids SQLITE_BUSY under concurrent handlers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return &Store{db: db, dialect: dialect}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Dialect() Dialect { return s.dialect }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// Migrate creates the schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	ts, boolean := "DATETIME", "BOOLEAN"
	if s.dialect == Postgres {
		ts = "TIMESTAMPTZ"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id              VARCHAR(64)  PRIMARY KEY,
			username        VARCHAR(50)  UNIQUE NOT NULL,
			name            VARCHAR(100) NOT NULL,
			email           VARCHAR(100),
			avatar          TEXT         NOT NULL DEFAULT '',
			bio             TEXT         NOT NULL DEFAULT '',
			hashed_password VARCHAR(255) NOT NULL,
			is_online       ` + boolean + ` NOT NULL DEFAULT FALSE,
			created_at      ` + ts + ` NOT NULL,
			last_seen       ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS channels (
			id          VARCHAR(64)  PRIMARY KEY,
			name        VARCHAR(100) NOT NULL,
			description TEXT         NOT NULL DEFAULT '',
			created_by  VARCHAR(64)  NOT NULL REFERENCES users(id),
			direct_key  VARCHAR(140) UNIQUE,
			created_at  ` + ts + ` NOT NULL,
			updated_at  ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS channel_members (
			channel_id VARCHAR(64) NOT NULL REFERENCES channels(id),
			user_id    VARCHAR(64) NOT NULL REFERENCES users(id),
			role       VARCHAR(20) NOT NULL DEFAULT 'member',
			joined_at  ` + ts + ` NOT NULL,
			PRIMARY KEY (channel_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id         VARCHAR(64) PRIMARY KEY,
			channel_id VARCHAR(64) NOT NULL REFERENCES channels(id),
			sender_id  VARCHAR(64) NOT NULL REFERENCES users(id),
			content    TEXT        NOT NULL,
			reply_to   VARCHAR(64) NOT NULL DEFAULT '',
			created_at ` + ts + ` NOT NULL,
			edited_at  ` + ts + `
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_flags (
			user_id     VARCHAR(64) NOT NULL REFERENCES users(id),
			target_id   VARCHAR(64) NOT NULL,
			unread      INTEGER     NOT NULL DEFAULT 0,
			is_archived ` + boolean + ` NOT NULL DEFAULT FALSE,
			is_starred  ` + boolean + ` NOT NULL DEFAULT FALSE,
			is_muted    ` + boolean + ` NOT NULL DEFAULT FALSE,
			PRIMARY KEY (user_id, target_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_members_user ON channel_members(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// isUniqueViolation recognizes duplicate-key errors from either driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
