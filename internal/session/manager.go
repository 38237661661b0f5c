package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ferme-mv/pahou/internal/config"
)

// Manager applies the session policy to HTTP requests.
type Manager struct {
	store   Store
	policy  config.SessionSettings
	logger  *zap.Logger
	now     func() time.Time
	observe func(op string, err error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithWriteObserver registers a callback invoked after each store save or delete.
func WithWriteObserver(observe func(op string, err error)) ManagerOption {
	return func(m *Manager) {
		m.observe = observe
	}
}

// NewManager returns a Manager persisting sessions in store.
func NewManager(store Store, policy config.SessionSettings, logger *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:   store,
		policy:  policy,
		logger:  logger,
		now:     time.Now,
		observe: func(string, error) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// Middleware loads the request's session, exposes it through the context
// and persists it once the handler returns.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := m.load(r)
		expires := m.now().Add(m.policy.CookieAge)

		cw := &cookieWriter{ResponseWriter: w}
		cw.commit = func() { m.writeCookie(w, sess, expires) }

		next.ServeHTTP(cw, r.WithContext(WithSession(r.Context(), sess)))
		cw.commitOnce()

		// The request context may already be cancelled by a disconnecting
		// client; the write still has to happen.
		m.persist(context.WithoutCancel(r.Context()), sess, expires)
	})
}

func (m *Manager) load(r *http.Request) *Session {
	cookie, err := r.Cookie(m.policy.CookieName)
	if err != nil || cookie.Value == "" {
		return New()
	}
	sess, err := m.store.Load(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("session load failed", zap.Error(err))
		}
		return New()
	}
	return sess
}

func (m *Manager) shouldSave(sess *Session) bool {
	return !sess.Empty() && (sess.modified || m.policy.SaveEveryRequest)
}

func (m *Manager) shouldExpire(sess *Session) bool {
	return sess.Empty() && (!sess.isNew || sess.previousKey != "")
}

func (m *Manager) writeCookie(w http.ResponseWriter, sess *Session, expires time.Time) {
	switch {
	case m.shouldExpire(sess):
		http.SetCookie(w, &http.Cookie{
			Name:     m.policy.CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: m.policy.CookieHTTPOnly,
			Secure:   m.policy.CookieSecure,
			SameSite: sameSite(m.policy.CookieSameSite),
		})
	case m.shouldSave(sess):
		cookie := &http.Cookie{
			Name:     m.policy.CookieName,
			Value:    sess.Key,
			Path:     "/",
			HttpOnly: m.policy.CookieHTTPOnly,
			Secure:   m.policy.CookieSecure,
			SameSite: sameSite(m.policy.CookieSameSite),
		}
		if !m.policy.ExpireAtBrowserClose {
			cookie.MaxAge = int(m.policy.CookieAge.Seconds())
			cookie.Expires = expires.UTC()
		}
		http.SetCookie(w, cookie)
	}
}

func (m *Manager) persist(ctx context.Context, sess *Session, expires time.Time) {
	if sess.previousKey != "" {
		err := m.store.Delete(ctx, sess.previousKey)
		m.observe("delete", err)
		if err != nil {
			m.logger.Warn("session delete failed", zap.Error(err))
		}
		sess.previousKey = ""
	}

	switch {
	case sess.Empty() && !sess.isNew:
		err := m.store.Delete(ctx, sess.Key)
		m.observe("delete", err)
		if err != nil {
			m.logger.Warn("session delete failed", zap.Error(err))
		}
	case m.shouldSave(sess):
		sess.ExpiresAt = expires
		err := m.store.Save(ctx, sess)
		m.observe("save", err)
		if err != nil {
			m.logger.Error("session save failed", zap.Error(err))
		}
	}
}

func sameSite(raw string) http.SameSite {
	switch strings.ToLower(raw) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// cookieWriter emits the session cookie right before the response headers.
type cookieWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (c *cookieWriter) commitOnce() {
	if c.committed {
		return
	}
	c.committed = true
	c.commit()
}

func (c *cookieWriter) WriteHeader(status int) {
	c.commitOnce()
	c.ResponseWriter.WriteHeader(status)
}

func (c *cookieWriter) Write(b []byte) (int, error) {
	c.commitOnce()
	return c.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (c *cookieWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}
