package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ferme-mv/pahou/internal/config"
	"github.com/ferme-mv/pahou/internal/session"
	"github.com/ferme-mv/pahou/internal/staticfiles"
)

// ErrUnknownStage is returned by NewRouter for a middleware name it cannot build.
var ErrUnknownStage = errors.New("unknown middleware stage")

type middleware func(http.Handler) http.Handler

// pipeline holds what the stages need to build themselves.
type pipeline struct {
	settings config.Settings
	sessions *session.Manager
	logger   *zap.Logger
	reject   func(reason string)
}

type stageBuilder func(p *pipeline) (middleware, error)

var stageBuilders = map[string]stageBuilder{
	config.StageSecurity:     buildSecurity,
	config.StageStatic:       buildStatic,
	config.StageSession:      buildSession,
	config.StageCommon:       buildCommon,
	config.StageCSRF:         buildCSRF,
	config.StageAuth:         buildAuth,
	config.StageMessages:     buildMessages,
	config.StageClickjacking: buildClickjacking,
}

// buildStages resolves names, outermost first, and wraps next with them.
func buildStages(p *pipeline, names []string, next http.Handler) (http.Handler, error) {
	builders := make([]stageBuilder, 0, len(names))
	for _, name := range names {
		build, ok := stageBuilders[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
		}
		builders = append(builders, build)
	}

	built := make([]middleware, 0, len(names))
	for i, build := range builders {
		mw, err := build(p)
		if err != nil {
			return nil, fmt.Errorf("build %s stage: %w", names[i], err)
		}
		built = append(built, mw)
	}
	h := next
	for i := len(built) - 1; i >= 0; i-- {
		h = built[i](h)
	}
	return h, nil
}

func buildSecurity(_ *pipeline) (middleware, error) {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			next.ServeHTTP(w, r)
		})
	}, nil
}

func buildStatic(p *pipeline) (middleware, error) {
	return staticfiles.Middleware(p.settings.Static, p.settings.Media, p.settings.Debug), nil
}

func buildSession(p *pipeline) (middleware, error) {
	if p.sessions == nil {
		return nil, errors.New("no session manager configured")
	}
	return p.sessions.Middleware, nil
}

func buildCommon(p *pipeline) (middleware, error) {
	allowed := p.settings.EffectiveAllowedHosts()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.HostAllowed(r.Host, allowed) {
				p.logger.Warn("invalid host header", zap.String("host", r.Host))
				p.reject("host")
				writeError(w, http.StatusBadRequest, "Bad request", "invalid host header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func buildCSRF(p *pipeline) (middleware, error) {
	allowed := p.settings.EffectiveAllowedHosts()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if reason := csrfFailure(r, allowed); reason != "" {
				p.logger.Warn("csrf check failed", zap.String("reason", reason), zap.String("path", r.URL.Path))
				p.reject("csrf")
				writeError(w, http.StatusForbidden, "Forbidden", "CSRF verification failed: "+reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

// csrfFailure returns why the request's origin is not trusted, or "".
func csrfFailure(r *http.Request, allowed []string) string {
	source := r.Header.Get("Origin")
	kind := "origin"
	if source == "" || source == "null" {
		source = r.Header.Get("Referer")
		kind = "referer"
	}
	if source == "" {
		return "origin and referer missing"
	}
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return kind + " is malformed"
	}
	if !strings.EqualFold(u.Host, r.Host) && !config.HostAllowed(u.Host, allowed) {
		return kind + " " + u.Host + " is not trusted"
	}
	return ""
}

func buildAuth(_ *pipeline) (middleware, error) {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess, ok := session.FromContext(r.Context()); ok {
				if id, ok := session.UserID(sess); ok {
					r = r.WithContext(context.WithValue(r.Context(), userContextKey, id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

func buildMessages(_ *pipeline) (middleware, error) {
	return session.MessagesMiddleware, nil
}

func buildClickjacking(_ *pipeline) (middleware, error) {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if w.Header().Get("X-Frame-Options") == "" {
				w.Header().Set("X-Frame-Options", "DENY")
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}

// UserFromContext returns the authenticated user id set by the auth stage.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userContextKey).(string)
	return id, ok && id != ""
}

// RequireLogin redirects anonymous requests to loginURL with a next parameter.
func RequireLogin(loginURL string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); ok {
			next.ServeHTTP(w, r)
			return
		}
		target := loginURL + "?next=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusFound)
	})
}
