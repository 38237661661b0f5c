package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ferme-mv/pahou/internal/config"
	"github.com/ferme-mv/pahou/internal/passwords"
	"github.com/ferme-mv/pahou/internal/session"
)

var settingsVars = []string{
	"DEBUG", "SECRET_KEY", "ALLOWED_HOSTS", "ADMIN_RESET_CODE", "DATABASE_URL",
	"EMAIL_BACKEND", "EMAIL_HOST", "EMAIL_PORT", "EMAIL_HOST_USER",
	"EMAIL_HOST_PASSWORD", "EMAIL_USE_TLS", "DEFAULT_FROM_EMAIL",
	"PORT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "SESSION_ENGINE", "REDIS_URL",
}

// loadSettings builds Settings in a temporary base dir with only env set.
func loadSettings(t *testing.T, env map[string]string) config.Settings {
	t.Helper()
	for _, key := range settingsVars {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}
	for key, value := range env {
		t.Setenv(key, value)
	}
	s, err := config.Load(&config.CLIOverrides{BaseDir: t.TempDir()})
	if err != nil {
		t.Fatalf("config.Load returned error: %v", err)
	}
	return s
}

type testRouter struct {
	http.Handler
	store *session.MemoryStore
}

func newTestRouter(t *testing.T, settings config.Settings, opts ...RouterOption) *testRouter {
	t.Helper()

	validators, err := passwords.FromSettings(settings.PasswordValidators)
	if err != nil {
		t.Fatalf("passwords.FromSettings returned error: %v", err)
	}
	logger := zaptest.NewLogger(t)
	store := session.NewMemoryStore()
	manager := session.NewManager(store, settings.Session, logger)
	handler := NewHandler(settings,
		WithClock(func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }),
		WithPasswordValidators(validators),
	)

	base := []RouterOption{WithLogging(false), WithSessionManager(manager), WithRateLimit(0, 0)}
	router, err := NewRouter(settings, handler, logger, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}
	return &testRouter{Handler: router, store: store}
}

// loggedIn stores a session for userID and returns its cookie.
func (r *testRouter) loggedIn(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	sess := session.New()
	session.Login(sess, userID)
	sess.ExpiresAt = time.Now().Add(time.Hour)
	if err := r.store.Save(context.Background(), sess); err != nil {
		t.Fatalf("save session: %v", err)
	}
	return &http.Cookie{Name: "sessionid", Value: sess.Key}
}

func localRequest(method, target string, cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Host = "localhost"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
