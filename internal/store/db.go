package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB for Postgres (pgx) or a local sqlite3 file in development.
type DB struct {
	Client *sql.DB
	Driver string
}

// NewDB opens a connection with sane defaults. driver is "pgx" or "sqlite3".
func NewDB(ctx context.Context, driver, connString string) (*DB, error) {
	switch driver {
	case "", "pgx", "postgres":
		driver = "pgx"
	case "sqlite3", "sqlite":
		driver = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, connString)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}
	return &DB{Client: db, Driver: driver}, db.PingContext(ctx)
}

// Wrap adapts an existing handle, mainly for tests.
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{Client: db, Driver: driver}
}

// schema is portable between Postgres and sqlite3.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		device_id  TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		device_id  TEXT NOT NULL REFERENCES devices(device_id),
		session_id TEXT NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS refresh_tokens_device_idx ON refresh_tokens (device_id)`,
}

// EnsureSchema creates the tables the service needs if they are missing.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
