package session

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Session is the server-side state attached to one browser.
type Session struct {
	Key       string
	Values    map[string]string
	ExpiresAt time.Time

	isNew    bool
	modified bool
	// previousKey is the key replaced by Flush; its record must be deleted.
	previousKey string
}

// New returns an empty session with a fresh random key.
func New() *Session {
	return &Session{
		Key:    newKey(),
		Values: make(map[string]string),
		isNew:  true,
	}
}

func newKey() string {
	return uuid.NewString()
}

// Get returns the value stored under key.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Set stores value under key.
func (s *Session) Set(key, value string) {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[key] = value
	s.modified = true
}

// Delete removes key.
func (s *Session) Delete(key string) {
	if _, ok := s.Values[key]; !ok {
		return
	}
	delete(s.Values, key)
	s.modified = true
}

// Flush drops every value and rotates the key. The old record is removed
// when the response completes.
func (s *Session) Flush() {
	if !s.isNew && s.previousKey == "" {
		s.previousKey = s.Key
	}
	s.Key = newKey()
	s.Values = make(map[string]string)
	s.isNew = true
	s.modified = true
}

// Empty reports whether the session holds no values.
func (s *Session) Empty() bool {
	return len(s.Values) == 0
}

// IsNew reports whether the session was created during this request.
func (s *Session) IsNew() bool {
	return s.isNew
}

// Modified reports whether values changed during this request.
func (s *Session) Modified() bool {
	return s.modified
}

// clone returns a copy detached from s, as handed out by stores.
func (s *Session) clone() *Session {
	return &Session{
		Key:       s.Key,
		Values:    maps.Clone(s.Values),
		ExpiresAt: s.ExpiresAt,
	}
}

type contextKey struct{}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached by the middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok && s != nil
}
