package config

import (
	"net/url"
	"time"

	"github.com/lib/pq"
)

// DatabaseSettings describes the primary PostgreSQL connection.
type DatabaseSettings struct {
	// URL is the raw DATABASE_URL; empty means the database is not configured.
	URL string
	// ConnMaxAge bounds how long a pooled connection is reused.
	ConnMaxAge time.Duration
	// SSLRequire forces sslmode=require regardless of the URL query.
	SSLRequire bool
}

// Configured reports whether a connection string was provided.
func (d DatabaseSettings) Configured() bool {
	return d.URL != ""
}

// DSN converts URL into a lib/pq key/value connection string.
func (d DatabaseSettings) DSN() (string, error) {
	dsn, err := pq.ParseURL(d.URL)
	if err != nil {
		return "", err
	}
	if d.SSLRequire {
		// lib/pq keeps the last occurrence of a key.
		dsn += " sslmode=require"
	}
	return dsn, nil
}

// Redacted returns URL with the password masked, suitable for logs.
func (d DatabaseSettings) Redacted() string {
	if d.URL == "" {
		return ""
	}
	u, err := url.Parse(d.URL)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}
