package config

import (
	"fmt"
	"strings"
	"time"
)

// SessionEngine selects the session store.
type SessionEngine string

const (
	// SessionEngineDB stores sessions in the primary database.
	SessionEngineDB SessionEngine = "db"
	// SessionEngineCache stores sessions in Redis.
	SessionEngineCache SessionEngine = "cache"
)

// SessionSettings is the browser session policy.
type SessionSettings struct {
	Engine     SessionEngine
	CookieName string
	// CookieAge is the server-side lifetime, refreshed on every save.
	CookieAge time.Duration
	// ExpireAtBrowserClose issues cookies without Max-Age.
	ExpireAtBrowserClose bool
	SaveEveryRequest     bool
	CookieHTTPOnly       bool
	CookieSameSite       string
	CookieSecure         bool
}

func parseSessionEngine(raw string) (SessionEngine, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case "", "db":
		return SessionEngineDB, nil
	case "cache":
		return SessionEngineCache, nil
	default:
		return "", fmt.Errorf("unsupported SESSION_ENGINE %q", raw)
	}
}

// Static file storage backends.
const (
	StorageCompressedManifest = "compressed-manifest"
)
