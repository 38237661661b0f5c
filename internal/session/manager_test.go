package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ferme-mv/pahou/internal/config"
)

func testPolicy() config.SessionSettings {
	return config.SessionSettings{
		Engine:               config.SessionEngineDB,
		CookieName:           "sessionid",
		CookieAge:            2 * time.Hour,
		ExpireAtBrowserClose: true,
		SaveEveryRequest:     true,
		CookieHTTPOnly:       true,
		CookieSameSite:       "Lax",
	}
}

func newTestManager(t *testing.T, policy config.SessionSettings, store Store, now time.Time) *Manager {
	t.Helper()
	return NewManager(store, policy, zaptest.NewLogger(t), WithClock(func() time.Time { return now }))
}

func serve(m *Manager, h http.HandlerFunc, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	m.Middleware(h).ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "sessionid" {
			return c
		}
	}
	return nil
}

func TestEmptySessionSetsNoCookie(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, testPolicy(), store, time.Now())

	rec := serve(m, func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			t.Fatalf("expected session in context")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if c := sessionCookie(t, rec); c != nil {
		t.Fatalf("did not expect a cookie for an empty session, got %v", c)
	}
	if store.Len() != 0 {
		t.Fatalf("expected nothing stored, got %d sessions", store.Len())
	}
}

func TestModifiedSessionIssuesBrowserSessionCookie(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := newTestManager(t, testPolicy(), store, now)

	rec := serve(m, func(w http.ResponseWriter, r *http.Request) {
		sess, _ := FromContext(r.Context())
		sess.Set("herd", "42")
		_, _ = w.Write([]byte("ok"))
	})

	c := sessionCookie(t, rec)
	if c == nil {
		t.Fatalf("expected a session cookie")
	}
	if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode || c.Secure {
		t.Fatalf("unexpected cookie attributes: %+v", c)
	}
	if c.MaxAge != 0 || !c.Expires.IsZero() {
		t.Fatalf("expected a browser-session cookie, got MaxAge=%d Expires=%v", c.MaxAge, c.Expires)
	}

	stored, err := store.Load(context.Background(), c.Value)
	if err != nil {
		t.Fatalf("expected stored session: %v", err)
	}
	if v, _ := stored.Get("herd"); v != "42" {
		t.Fatalf("unexpected stored value %q", v)
	}
	if want := now.Add(2 * time.Hour); !stored.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, stored.ExpiresAt)
	}
}

func TestPersistentCookieWhenBrowserCloseDisabled(t *testing.T) {
	policy := testPolicy()
	policy.ExpireAtBrowserClose = false
	policy.CookieSecure = true
	m := newTestManager(t, policy, NewMemoryStore(), time.Now())

	rec := serve(m, func(_ http.ResponseWriter, r *http.Request) {
		sess, _ := FromContext(r.Context())
		sess.Set("k", "v")
	})

	c := sessionCookie(t, rec)
	if c == nil {
		t.Fatalf("expected a session cookie")
	}
	if c.MaxAge != int((2 * time.Hour).Seconds()) {
		t.Fatalf("expected MaxAge of two hours, got %d", c.MaxAge)
	}
	if !c.Secure {
		t.Fatalf("expected secure cookie")
	}
}

func TestSaveEveryRequestRefreshesExpiry(t *testing.T) {
	store := NewMemoryStore()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := New()
	sess.Set("k", "v")
	sess.ExpiresAt = start.Add(time.Minute)
	if err := store.Save(context.Background(), sess); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	later := start.Add(30 * time.Second)
	store.now = func() time.Time { return later }
	m := newTestManager(t, testPolicy(), store, later)

	rec := serve(m, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, &http.Cookie{Name: "sessionid", Value: sess.Key})

	if c := sessionCookie(t, rec); c == nil || c.Value != sess.Key {
		t.Fatalf("expected cookie to be re-issued for %s, got %v", sess.Key, c)
	}
	stored, err := store.Load(context.Background(), sess.Key)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if want := later.Add(2 * time.Hour); !stored.ExpiresAt.Equal(want) {
		t.Fatalf("expected refreshed expiry %v, got %v", want, stored.ExpiresAt)
	}
}

func TestUnmodifiedSessionNotSavedWithoutSaveEveryRequest(t *testing.T) {
	policy := testPolicy()
	policy.SaveEveryRequest = false
	store := NewMemoryStore()
	sess := New()
	sess.Set("k", "v")
	sess.ExpiresAt = time.Now().Add(time.Minute)
	_ = store.Save(context.Background(), sess)

	m := newTestManager(t, policy, store, time.Now())
	rec := serve(m, func(http.ResponseWriter, *http.Request) {}, &http.Cookie{Name: "sessionid", Value: sess.Key})

	if c := sessionCookie(t, rec); c != nil {
		t.Fatalf("did not expect cookie for untouched session, got %v", c)
	}
}

func TestFlushDeletesSessionAndExpiresCookie(t *testing.T) {
	store := NewMemoryStore()
	sess := New()
	sess.Set("_auth_user_id", "7")
	sess.ExpiresAt = time.Now().Add(time.Hour)
	_ = store.Save(context.Background(), sess)

	m := newTestManager(t, testPolicy(), store, time.Now())
	rec := serve(m, func(_ http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		Logout(s)
	}, &http.Cookie{Name: "sessionid", Value: sess.Key})

	c := sessionCookie(t, rec)
	if c == nil || c.MaxAge >= 0 {
		t.Fatalf("expected the cookie to be expired, got %v", c)
	}
	if store.Len() != 0 {
		t.Fatalf("expected stored session to be removed, %d left", store.Len())
	}
}

func TestLoginRotatesKey(t *testing.T) {
	store := NewMemoryStore()
	sess := New()
	sess.Set("cart", "1")
	sess.ExpiresAt = time.Now().Add(time.Hour)
	_ = store.Save(context.Background(), sess)

	m := newTestManager(t, testPolicy(), store, time.Now())
	rec := serve(m, func(_ http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		Login(s, "12")
	}, &http.Cookie{Name: "sessionid", Value: sess.Key})

	c := sessionCookie(t, rec)
	if c == nil || c.Value == sess.Key {
		t.Fatalf("expected a rotated session key, got %v", c)
	}
	if _, err := store.Load(context.Background(), sess.Key); err == nil {
		t.Fatalf("expected old session to be deleted")
	}
	rotated, err := store.Load(context.Background(), c.Value)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if id, ok := UserID(rotated); !ok || id != "12" {
		t.Fatalf("expected user 12, got %q", id)
	}
	if v, _ := rotated.Get("cart"); v != "1" {
		t.Fatalf("expected values to survive login, got %q", v)
	}
}

func TestUnknownCookieStartsFreshSession(t *testing.T) {
	m := newTestManager(t, testPolicy(), NewMemoryStore(), time.Now())
	serve(m, func(_ http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		if !s.IsNew() || s.Key == "stale" {
			t.Fatalf("expected a new session, got %+v", s)
		}
	}, &http.Cookie{Name: "sessionid", Value: "stale"})
}

func TestMessagesRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, testPolicy(), store, time.Now())

	rec := serve(m, func(_ http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		AddMessage(s, LevelSuccess, "Animal enregistré")
		AddMessage(s, LevelWarning, "Vaccin en retard")
	})
	c := sessionCookie(t, rec)
	if c == nil {
		t.Fatalf("expected a cookie after queuing messages")
	}

	var got []Message
	serve(m, func(w http.ResponseWriter, r *http.Request) {
		MessagesMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got = MessagesFromContext(r.Context())
		})).ServeHTTP(w, r)
	}, c)

	if len(got) != 2 || got[0].Level != LevelSuccess || got[1].Text != "Vaccin en retard" {
		t.Fatalf("unexpected messages: %+v", got)
	}

	stored, err := store.Load(context.Background(), c.Value)
	if err == nil {
		if _, ok := stored.Get(messagesKey); ok {
			t.Fatalf("expected messages to be consumed")
		}
	}
}

func TestMessagesSurviveRequestsThatDoNotReadThem(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(t, testPolicy(), store, time.Now())

	rec := serve(m, func(_ http.ResponseWriter, r *http.Request) {
		s, _ := FromContext(r.Context())
		AddMessage(s, LevelInfo, "Vous êtes déconnecté.")
	})
	c := sessionCookie(t, rec)
	if c == nil {
		t.Fatalf("expected a cookie after queuing a message")
	}

	withMessages := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			MessagesMiddleware(h).ServeHTTP(w, r)
		}
	}

	serve(m, withMessages(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}), c)

	stored, err := store.Load(context.Background(), c.Value)
	if err != nil {
		t.Fatalf("expected session to remain stored: %v", err)
	}
	if _, ok := stored.Get(messagesKey); !ok {
		t.Fatalf("expected message to survive a request that never read it")
	}

	var first, second []Message
	serve(m, withMessages(func(_ http.ResponseWriter, r *http.Request) {
		first = MessagesFromContext(r.Context())
		second = MessagesFromContext(r.Context())
	}), c)

	if len(first) != 1 || first[0].Text != "Vous êtes déconnecté." {
		t.Fatalf("unexpected messages: %+v", first)
	}
	if len(second) != 1 {
		t.Fatalf("expected repeated reads to return the same messages, got %+v", second)
	}
}

func TestSameSiteParsing(t *testing.T) {
	cases := map[string]http.SameSite{
		"Lax":    http.SameSiteLaxMode,
		"strict": http.SameSiteStrictMode,
		"None":   http.SameSiteNoneMode,
		"":       http.SameSiteLaxMode,
	}
	for raw, want := range cases {
		if got := sameSite(raw); got != want {
			t.Fatalf("sameSite(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestWriteObserverSeesSaves(t *testing.T) {
	var ops []string
	m := NewManager(NewMemoryStore(), testPolicy(), zaptest.NewLogger(t),
		WithWriteObserver(func(op string, err error) {
			if err != nil {
				t.Fatalf("unexpected store error: %v", err)
			}
			ops = append(ops, op)
		}),
	)

	serve(m, func(w http.ResponseWriter, r *http.Request) {
		sess, _ := FromContext(r.Context())
		sess.Set("herd", "A12")
	})

	if len(ops) != 1 || ops[0] != "save" {
		t.Fatalf("expected a single save, got %v", ops)
	}
}
