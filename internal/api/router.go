package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ferme-mv/pahou/internal/config"
	"github.com/ferme-mv/pahou/internal/metrics"
	"github.com/ferme-mv/pahou/internal/session"
)

// RouterOption configures the behaviour of NewRouter.
type RouterOption func(*routerConfig)

// WithLogging controls whether access logs are emitted.
func WithLogging(enabled bool) RouterOption {
	return func(cfg *routerConfig) {
		cfg.enableLogging = enabled
	}
}

// WithRateLimiter overrides the default request rate limiter (primarily for tests).
func WithRateLimiter(limiter rateLimiter) RouterOption {
	return func(cfg *routerConfig) {
		cfg.rateLimiter = limiter
	}
}

// WithRateLimit sets the token bucket parameters. A zero rate or burst
// disables limiting.
func WithRateLimit(rps float64, burst int) RouterOption {
	return func(cfg *routerConfig) {
		if rps <= 0 || burst <= 0 {
			cfg.rateLimiter = nil
			return
		}
		cfg.rateLimiter = newTokenBucketLimiter(rps, burst)
	}
}

// WithSessionManager sets the manager used by the session stage.
func WithSessionManager(m *session.Manager) RouterOption {
	return func(cfg *routerConfig) {
		cfg.sessions = m
	}
}

// WithMetrics records request metrics and exposes them on /metrics.
func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(cfg *routerConfig) {
		cfg.metrics = m
	}
}

type routerConfig struct {
	enableLogging bool
	logger        *zap.Logger
	rateLimiter   rateLimiter
	sessions      *session.Manager
	metrics       *metrics.Metrics
}

// NewRouter creates the HTTP handler: the endpoints wrapped in the
// configured middleware stages and the ambient request middleware.
func NewRouter(settings config.Settings, handler *Handler, logger *zap.Logger, opts ...RouterOption) (http.Handler, error) {
	cfg := routerConfig{
		enableLogging: true,
		logger:        logger,
		rateLimiter:   newTokenBucketLimiter(25, 50),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/health", http.HandlerFunc(handler.handleHealth))
	mux.Handle("GET /api/modules", http.HandlerFunc(handler.handleModules))
	mux.Handle("GET /api/settings", http.HandlerFunc(handler.handleSettings))
	mux.Handle("POST /api/passwords/validate", http.HandlerFunc(handler.handleValidatePassword))
	if cfg.metrics != nil {
		mux.Handle("GET /metrics", cfg.metrics.Handler())
	}

	loginURL := settings.Auth.LoginURL.Path
	if loginURL == "" {
		loginURL = "/accounts/login/"
	}
	mux.Handle("GET "+loginURL, http.HandlerFunc(handler.handleLogin))
	if logout, ok := config.Reverse(config.RouteLogout); ok {
		mux.Handle("POST "+logout, http.HandlerFunc(handler.handleLogout))
	}
	home, _ := settings.App("troupeau")
	mux.Handle("GET /{$}", RequireLogin(loginURL, handler.handleModuleIndex(home)))
	for _, app := range settings.FeatureModules() {
		if app.Label == "accounts" {
			continue
		}
		mux.Handle("GET "+modulePath(app)+"{$}", RequireLogin(loginURL, handler.handleModuleIndex(app)))
	}

	reject := func(string) {}
	if cfg.metrics != nil {
		reject = cfg.metrics.Reject
	}
	p := &pipeline{
		settings: settings,
		sessions: cfg.sessions,
		logger:   cfg.logger,
		reject:   reject,
	}
	root, err := buildStages(p, settings.Middleware, mux)
	if err != nil {
		return nil, err
	}

	root = recoveryMiddleware(cfg.logger, root)
	if cfg.enableLogging {
		root = loggingMiddleware(cfg.logger, root)
	}
	if cfg.metrics != nil {
		root = cfg.metrics.Middleware(root)
	}
	root = rateLimitMiddleware(cfg.rateLimiter, reject, root)
	root = requestIDMiddleware(root)

	return root, nil
}

// PathClassifier maps request paths to the bounded label set used by metrics.
func PathClassifier(settings config.Settings) func(string) string {
	known := map[string]struct{}{
		"/api/health":             {},
		"/api/modules":            {},
		"/api/settings":           {},
		"/api/passwords/validate": {},
		"/metrics":                {},
		"/":                       {},
	}
	known[settings.Auth.LoginURL.Path] = struct{}{}
	for _, app := range settings.FeatureModules() {
		known[modulePath(app)] = struct{}{}
	}
	return func(path string) string {
		if _, ok := known[path]; ok {
			return path
		}
		switch {
		case settings.Static.URL != "" && strings.HasPrefix(path, settings.Static.URL):
			return settings.Static.URL
		case settings.Media.URL != "" && strings.HasPrefix(path, settings.Media.URL):
			return settings.Media.URL
		}
		return "other"
	}
}

func loggingMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("host", r.Host),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestIDFromContext(r.Context())),
		)
	})
}

func recoveryMiddleware(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.String("request_id", requestIDFromContext(r.Context())),
				)
				writeError(w, http.StatusInternalServerError, "Internal error", "unexpected server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		ctx := contextWithRequestID(r.Context(), requestID)

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
