package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/ferme-mv/pahou/internal/config"
	"github.com/ferme-mv/pahou/internal/metrics"
)

func TestLoggingMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	var called bool
	handler := loggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := recoveryMiddleware(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestResponseRecorderWriteHeader(t *testing.T) {
	underlying := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: underlying}
	rec.WriteHeader(http.StatusTeapot)

	if rec.status != http.StatusTeapot {
		t.Fatalf("expected status to be recorded")
	}
	if underlying.Code != http.StatusTeapot {
		t.Fatalf("expected status to propagate to ResponseWriter")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = requestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected generated request id to be a UUID, got %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("expected response header to echo request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "vaccination-run-7")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "vaccination-run-7" {
		t.Fatalf("expected incoming request id to be kept, got %q", seen)
	}
}

func TestWithRateLimiterOptionAppliesLimiter(t *testing.T) {
	router := newTestRouter(t, loadSettings(t, nil), WithRateLimiter(&staticLimiter{allow: false}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/api/health"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limiter to block request, got %d", rec.Code)
	}
}

func TestWithRateLimitDisablesLimiterWhenZero(t *testing.T) {
	router := newTestRouter(t, loadSettings(t, nil), WithRateLimiter(&staticLimiter{allow: false}), WithRateLimit(0, 0))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/api/health"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected limiter to be disabled, got %d", rec.Code)
	}
}

func TestNewRouterRejectsUnknownStage(t *testing.T) {
	settings := loadSettings(t, nil)
	settings.Middleware = append(settings.Middleware, "gzip")

	_, err := NewRouter(settings, NewHandler(settings), zaptest.NewLogger(t), WithSessionManager(nil))
	if !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}
}

func TestNewRouterRequiresSessionManager(t *testing.T) {
	settings := loadSettings(t, nil)

	if _, err := NewRouter(settings, NewHandler(settings), zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected error without a session manager")
	}

	settings.Middleware = []string{config.StageSecurity, config.StageCommon}
	if _, err := NewRouter(settings, NewHandler(settings), zaptest.NewLogger(t)); err != nil {
		t.Fatalf("expected pipeline without session stage to build, got %v", err)
	}
}

func TestPipelineSetsSecurityHeaders(t *testing.T) {
	router := newTestRouter(t, loadSettings(t, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/api/health"))

	want := map[string]string{
		"X-Content-Type-Options":     "nosniff",
		"Referrer-Policy":            "same-origin",
		"Cross-Origin-Opener-Policy": "same-origin",
		"X-Frame-Options":            "DENY",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Fatalf("expected %s %q, got %q", header, value, got)
		}
	}
}

func TestStagesRunInConfiguredOrder(t *testing.T) {
	settings := loadSettings(t, nil)
	settings.Middleware = []string{config.StageClickjacking}
	router := newTestRouter(t, settings)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/api/health"))

	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected clickjacking stage to run")
	}
	if rec.Header().Get("X-Content-Type-Options") != "" {
		t.Fatalf("expected security stage to be absent")
	}
}

func TestCommonStageRejectsUnknownHost(t *testing.T) {
	router := newTestRouter(t, loadSettings(t, map[string]string{"DEBUG": "false", "ALLOWED_HOSTS": "pahou.example.org"}))

	req := localRequest(http.MethodGet, "/api/health")
	req.Host = "evil.example.com"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown host, got %d", rec.Code)
	}

	req.Host = "pahou.example.org:443"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected allowed host to pass, got %d", rec.Code)
	}
}

func TestCSRFStageChecksOrigin(t *testing.T) {
	router := newTestRouter(t, loadSettings(t, nil))
	body := `{"password":"Zebu-Troupeau-2026!"}`

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusForbidden},
		{"foreign origin", "Origin", "https://evil.example.com", http.StatusForbidden},
		{"same origin", "Origin", "http://localhost", http.StatusOK},
		{"allowed referer", "Referer", "http://127.0.0.1:8000/troupeau/", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/passwords/validate", strings.NewReader(body))
		req.Host = "localhost"
		if tc.header != "" {
			req.Header.Set(tc.header, tc.value)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}
}

func TestRequireLoginRedirectsAnonymous(t *testing.T) {
	router := newTestRouter(t, loadSettings(t, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/vaccination/"))

	if rec.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/accounts/login/?next=%2Fvaccination%2F" {
		t.Fatalf("unexpected redirect target %q", got)
	}
}

func TestLoggedInUserReachesModule(t *testing.T) {
	router := newTestRouter(t, loadSettings(t, nil))
	cookie := router.loggedIn(t, "42")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/vaccination/", cookie))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"user":"42"`) || !strings.Contains(rec.Body.String(), `"module":"vaccination"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestLogoutFlashesMessage(t *testing.T) {
	router := newTestRouter(t, loadSettings(t, nil))
	cookie := router.loggedIn(t, "42")

	req := localRequest(http.MethodPost, "/accounts/logout/", cookie)
	req.Header.Set("Origin", "http://localhost")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
	next := responseCookie(rec, "sessionid")
	if next == nil || next.Value == cookie.Value {
		t.Fatalf("expected a rotated session cookie, got %+v", next)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/accounts/login/", next))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login page, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "déconnecté") {
		t.Fatalf("expected logout message, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/vaccination/", next))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected logged out session to be redirected, got %d", rec.Code)
	}
}

func TestLogoutMessageSurvivesUnrelatedRequests(t *testing.T) {
	router := newTestRouter(t, loadSettings(t, nil))
	cookie := router.loggedIn(t, "42")

	req := localRequest(http.MethodPost, "/accounts/logout/", cookie)
	req.Header.Set("Origin", "http://localhost")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	next := responseCookie(rec, "sessionid")
	if next == nil {
		t.Fatalf("expected a session cookie after logout")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/favicon.ico", next))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected favicon 404, got %d", rec.Code)
	}
	if c := responseCookie(rec, "sessionid"); c != nil {
		next = c
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/api/health", next))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", rec.Code)
	}
	if c := responseCookie(rec, "sessionid"); c != nil {
		next = c
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/accounts/login/", next))
	if !strings.Contains(rec.Body.String(), "déconnecté") {
		t.Fatalf("expected logout message after unrelated requests, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/accounts/login/", next))
	if strings.Contains(rec.Body.String(), "déconnecté") {
		t.Fatalf("expected logout message to be shown once, got %s", rec.Body.String())
	}
}

func TestStaticStageServesDebugFiles(t *testing.T) {
	settings := loadSettings(t, nil)
	dir := filepath.Join(settings.BaseDir, "static", "css")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "herd.css"), []byte("h1{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	router := newTestRouter(t, settings)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/static/css/herd.css"))

	if rec.Code != http.StatusOK || rec.Body.String() != "h1{}" {
		t.Fatalf("expected static file, got %d %q", rec.Code, rec.Body.String())
	}
	if responseCookie(rec, "sessionid") != nil {
		t.Fatalf("static responses must not touch the session")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	settings := loadSettings(t, nil)
	m := metrics.New(metrics.WithPathClassifier(PathClassifier(settings)))
	router := newTestRouter(t, settings, WithMetrics(m))

	req := localRequest(http.MethodGet, "/api/health")
	req.Host = "evil.example.com"
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), localRequest(http.MethodGet, "/api/health"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, localRequest(http.MethodGet, "/metrics"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`http_requests_total{method="GET",path="/api/health",status="200"} 1`,
		`http_rejections_total{reason="host"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

func TestPathClassifier(t *testing.T) {
	classify := PathClassifier(loadSettings(t, nil))
	cases := map[string]string{
		"/api/health":       "/api/health",
		"/troupeau/":        "/troupeau/",
		"/static/css/a.css": "/static/",
		"/media/photo.jpg":  "/media/",
		"/wp-login.php":     "other",
		"/accounts/login/":  "/accounts/login/",
	}
	for path, want := range cases {
		if got := classify(path); got != want {
			t.Fatalf("%s: expected %q, got %q", path, want, got)
		}
	}
}
