package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // registers the "postgres" driver

	"github.com/ferme-mv/pahou/internal/config"
)

// ErrNotConfigured is returned when DATABASE_URL is empty.
var ErrNotConfigured = errors.New("database: DATABASE_URL is not set")

const maxOpenConns = 10

// Open connects to PostgreSQL and verifies the connection with a ping.
func Open(ctx context.Context, settings config.DatabaseSettings) (*sql.DB, error) {
	if !settings.Configured() {
		return nil, ErrNotConfigured
	}
	dsn, err := settings.DSN()
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	if settings.ConnMaxAge > 0 {
		db.SetConnMaxLifetime(settings.ConnMaxAge)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Close closes db, ignoring a nil handle.
func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// Migrate creates the tables owned by this repository.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createSessionTable); err != nil {
		return fmt.Errorf("create session table: %w", err)
	}
	if _, err := db.ExecContext(ctx, createSessionExpiryIndex); err != nil {
		return fmt.Errorf("create session index: %w", err)
	}
	return nil
}

const createSessionTable = `CREATE TABLE IF NOT EXISTS django_session (
	session_key  VARCHAR(40) PRIMARY KEY,
	session_data TEXT NOT NULL,
	expire_date  TIMESTAMPTZ NOT NULL
)`

const createSessionExpiryIndex = `CREATE INDEX IF NOT EXISTS django_session_expire_date_idx
	ON django_session (expire_date)`
