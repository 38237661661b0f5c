package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore persists sessions in the django_session table.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore returns a store backed by db. The table is created by
// database.Migrate.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Load returns the unexpired session stored under key.
func (s *SQLStore) Load(ctx context.Context, key string) (*Session, error) {
	var (
		data    string
		expires time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_data, expire_date FROM django_session WHERE session_key = $1 AND expire_date > $2`,
		key, s.now(),
	).Scan(&data, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	values, err := decodeValues(data)
	if err != nil {
		return nil, err
	}
	return &Session{Key: key, Values: values, ExpiresAt: expires}, nil
}

// Save inserts or replaces the session row.
func (s *SQLStore) Save(ctx context.Context, sess *Session) error {
	data, err := encodeValues(sess.Values)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO django_session (session_key, session_data, expire_date) VALUES ($1, $2, $3)
		ON CONFLICT (session_key) DO UPDATE SET session_data = EXCLUDED.session_data, expire_date = EXCLUDED.expire_date`,
		sess.Key, data, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes the session row.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM django_session WHERE session_key = $1`, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ClearExpired removes expired rows and returns how many were deleted.
func (s *SQLStore) ClearExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM django_session WHERE expire_date <= $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("clear expired sessions: %w", err)
	}
	return res.RowsAffected()
}
