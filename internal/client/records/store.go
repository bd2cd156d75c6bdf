// Package records is the client's persistent catalog: one row per item plus
// a small key/value table for settings and sync history. It runs on SQLite
// by default and on Postgres through the pgx stdlib driver.
package records

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"

	timeLayout = "2006-01-02T15:04:05.000Z"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db       *sqlx.DB
	mu       sync.Mutex
	defaults Settings
	now      func() time.Time
}

type Option func(*Store)

// WithDefaultSettings sets the values Settings falls back to for fields
// that were never saved.
func WithDefaultSettings(s Settings) Option {
	return func(st *Store) { st.defaults = s }
}

// Open connects to driver/dsn and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string, maxConns int, opts ...Option) (*Store, error) {
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite && dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=5000;`} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("sqlite pragma: %w", err)
			}
		}
	} else if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}

	s := &Store{db: db, defaults: DefaultSettings(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			channel_id TEXT NOT NULL DEFAULT '',
			channel_name TEXT NOT NULL DEFAULT '',
			published_at TEXT NOT NULL DEFAULT '',
			is_short BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL DEFAULT 'queued',
			file_path TEXT NOT NULL DEFAULT '',
			thumbnail_path TEXT NOT NULL DEFAULT '',
			file_size BIGINT NOT NULL DEFAULT 0,
			duration BIGINT NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			error_kind TEXT NOT NULL DEFAULT '',
			watched BOOLEAN NOT NULL DEFAULT FALSE,
			downloaded_at TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_published_at ON items (published_at)`,
		`CREATE INDEX IF NOT EXISTS idx_items_status ON items (status)`,
		`CREATE TABLE IF NOT EXISTS kv (
			name TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
