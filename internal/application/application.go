package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ferme-mv/pahou/internal/api"
	"github.com/ferme-mv/pahou/internal/config"
	"github.com/ferme-mv/pahou/internal/database"
	"github.com/ferme-mv/pahou/internal/mail"
	"github.com/ferme-mv/pahou/internal/metrics"
	"github.com/ferme-mv/pahou/internal/passwords"
	"github.com/ferme-mv/pahou/internal/session"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	settings   config.Settings
	db         *sql.DB
	redis      *redis.Client
	store      session.Store
	sessions   *session.Manager
	mailer     mail.Sender
	validators passwords.Set
	metrics    *metrics.Metrics
	handler    *api.Handler
	router     http.Handler
	logger     *zap.Logger
	server     *http.Server
}

// Option customises New, primarily for tests.
type Option func(*options)

type options struct {
	store      session.Store
	mailer     mail.Sender
	mailOutput io.Writer
}

// WithSessionStore bypasses the engine selection and uses store.
func WithSessionStore(store session.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithMailer replaces the sender built from the email settings.
func WithMailer(sender mail.Sender) Option {
	return func(o *options) {
		o.mailer = sender
	}
}

// WithMailOutput sets where the console mail backend writes.
func WithMailOutput(w io.Writer) Option {
	return func(o *options) {
		o.mailOutput = w
	}
}

// New initializes the application with all dependencies from the provided settings.
func New(ctx context.Context, settings config.Settings, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{mailOutput: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{settings: settings, logger: logger}
	if err := app.openSessionStore(ctx, o.store); err != nil {
		_ = app.Close()
		return nil, err
	}

	mailer := o.mailer
	if mailer == nil {
		var err error
		mailer, err = mail.New(settings.Email, o.mailOutput)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("failed to build mailer: %w", err)
		}
	}
	app.mailer = mailer

	validators, err := passwords.FromSettings(settings.PasswordValidators)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to build password validators: %w", err)
	}
	app.validators = validators

	app.metrics = metrics.New(metrics.WithPathClassifier(api.PathClassifier(settings)))
	app.sessions = session.NewManager(app.store, settings.Session, logger,
		session.WithWriteObserver(app.metrics.SessionWrite),
	)
	app.handler = api.NewHandler(settings, api.WithPasswordValidators(validators))

	router, err := api.NewRouter(settings, app.handler, logger,
		api.WithLogging(settings.Server.EnableRequestLogging),
		api.WithRateLimit(settings.Server.RateLimitRPS, settings.Server.RateLimitBurst),
		api.WithSessionManager(app.sessions),
		api.WithMetrics(app.metrics),
	)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}
	app.router = router
	app.server = NewServer(settings.Server, router)

	return app, nil
}

// openSessionStore picks the store for the configured engine. Without a
// database the db engine falls back to memory so development still works.
func (a *App) openSessionStore(ctx context.Context, override session.Store) error {
	if override != nil {
		a.store = override
		return nil
	}

	switch a.settings.Session.Engine {
	case config.SessionEngineCache:
		client, err := session.NewRedisClient(ctx, a.settings.Cache.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redis = client
		a.store = session.NewRedisStore(client)
	default:
		db, err := database.Open(ctx, a.settings.Database)
		switch {
		case errors.Is(err, database.ErrNotConfigured):
			a.logger.Warn("DATABASE_URL is not set; sessions are kept in memory")
			a.store = session.NewMemoryStore()
		case err != nil:
			return fmt.Errorf("failed to open database: %w", err)
		default:
			a.db = db
			a.store = session.NewSQLStore(db)
		}
	}
	return nil
}

// NewServer creates and configures an HTTP server from the provided settings.
func NewServer(cfg config.ServerSettings, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Mailer returns the configured mail sender.
func (a *App) Mailer() mail.Sender {
	return a.mailer
}

// SessionStore returns the store backing the session engine.
func (a *App) SessionStore() session.Store {
	return a.store
}

// Close releases the database and Redis connections. It is safe to call
// more than once.
func (a *App) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, database.Close(a.db))
		a.db = nil
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	return errors.Join(errs...)
}
