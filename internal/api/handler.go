package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ferme-mv/pahou/internal/config"
	"github.com/ferme-mv/pahou/internal/passwords"
	"github.com/ferme-mv/pahou/internal/session"
)

type contextKey string

const (
	requestIDContextKey contextKey = "requestID"
	userContextKey      contextKey = "user"
)

// Handler serves the JSON endpoints and the module index pages.
type Handler struct {
	settings   config.Settings
	validators passwords.Set

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithPasswordValidators sets the validators used by the password check endpoint.
func WithPasswordValidators(set passwords.Set) HandlerOption {
	return func(h *Handler) {
		h.validators = set
	}
}

// NewHandler constructs a Handler for the provided settings.
func NewHandler(settings config.Settings, opts ...HandlerOption) *Handler {
	h := &Handler{
		settings: settings,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	})
}

func (h *Handler) handleModules(w http.ResponseWriter, _ *http.Request) {
	apps := h.settings.FeatureModules()
	resp := modulesResponse{Modules: make([]moduleResponse, 0, len(apps))}
	for _, app := range apps {
		resp.Modules = append(resp.Modules, moduleResponse{
			Label: app.Label,
			Name:  app.Name,
			Path:  modulePath(app),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSettings(w http.ResponseWriter, _ *http.Request) {
	if !h.settings.Debug {
		writeError(w, http.StatusNotFound, "Not found", "settings are only exposed in debug mode")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Settings: h.settings.Summary(),
		Warnings: h.settings.Warnings(),
	})
}

func (h *Handler) handleValidatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	err := h.validators.Validate(req.Password, passwords.User{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err == nil {
		writeJSON(w, http.StatusOK, passwordResponse{Valid: true})
		return
	}

	resp := passwordResponse{}
	for _, e := range unwrapAll(err) {
		resp.Errors = append(resp.Errors, e.Error())
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func (h *Handler) handleModuleIndex(app config.AppConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := UserFromContext(r.Context())
		writeJSON(w, http.StatusOK, moduleIndexResponse{
			Module:   app.Label,
			Name:     app.Name,
			User:     user,
			Messages: session.MessagesFromContext(r.Context()),
		})
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	if next == "" {
		next = h.settings.Auth.LoginRedirectURL.Path
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Next:     next,
		Messages: session.MessagesFromContext(r.Context()),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session.FromContext(r.Context()); ok {
		session.Logout(sess)
		session.AddMessage(sess, session.LevelInfo, "Vous êtes déconnecté.")
	}
	http.Redirect(w, r, h.settings.Auth.LogoutRedirectURL.Path, http.StatusFound)
}

func modulePath(app config.AppConfig) string {
	return "/" + app.Label + "/"
}

func unwrapAll(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type moduleResponse struct {
	Label string `json:"label"`
	Name  string `json:"name"`
	Path  string `json:"path"`
}

type modulesResponse struct {
	Modules []moduleResponse `json:"modules"`
}

type settingsResponse struct {
	Settings config.Summary `json:"settings"`
	Warnings []string       `json:"warnings"`
}

type passwordRequest struct {
	Password  string `json:"password"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type passwordResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type moduleIndexResponse struct {
	Module   string            `json:"module"`
	Name     string            `json:"name"`
	User     string            `json:"user"`
	Messages []session.Message `json:"messages"`
}

type loginResponse struct {
	Next     string            `json:"next"`
	Messages []session.Message `json:"messages"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{
		Error:   message,
		Details: details,
	})
}
