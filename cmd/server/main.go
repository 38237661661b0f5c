package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // Africa/Lagos must resolve on hosts without zoneinfo

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/ferme-mv/pahou/internal/application"
	"github.com/ferme-mv/pahou/internal/config"
	"github.com/ferme-mv/pahou/internal/database"
	"github.com/ferme-mv/pahou/internal/logging"
	"github.com/ferme-mv/pahou/internal/mail"
	"github.com/ferme-mv/pahou/internal/session"
	"github.com/ferme-mv/pahou/internal/staticfiles"
)

var signalNotify = signal.Notify

// errDeployWarnings is returned by check --deploy when warnings remain.
var errDeployWarnings = errors.New("deployment checks reported warnings")

type cli struct {
	app *kingpin.Application

	configFile *string
	baseDir    *string
	envFile    *string

	serve          *kingpin.CmdClause
	port           *string
	rateLimitRPS   *float64
	rateLimitBurst *int

	check  *kingpin.CmdClause
	deploy *bool

	collectStatic *kingpin.CmdClause
	migrate       *kingpin.CmdClause
	clearSessions *kingpin.CmdClause

	sendTestEmail *kingpin.CmdClause
	recipients    *[]string
}

func newCLI() *cli {
	c := &cli{app: kingpin.New("pahou", "Ferme MV Pahou - livestock management server")}
	c.configFile = c.app.Flag("config", "Path to YAML configuration file").String()
	c.baseDir = c.app.Flag("base-dir", "Project root holding static, media and templates").String()
	c.envFile = c.app.Flag("env-file", "Dotenv file loaded before reading the environment").Default(".env").String()

	c.serve = c.app.Command("serve", "Run the HTTP server").Default()
	c.port = c.serve.Flag("port", "HTTP port exposed by the service").String()
	c.rateLimitRPS = c.serve.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	c.rateLimitBurst = c.serve.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	c.check = c.app.Command("check", "Validate the configuration and report problems")
	c.deploy = c.check.Flag("deploy", "Treat deployment warnings as failures").Bool()

	c.collectStatic = c.app.Command("collectstatic", "Collect static files into the static root")
	c.migrate = c.app.Command("migrate", "Create the database tables")
	c.clearSessions = c.app.Command("clearsessions", "Delete expired sessions from the database")

	c.sendTestEmail = c.app.Command("sendtestemail", "Send a test message through the configured mail backend")
	c.recipients = c.sendTestEmail.Arg("to", "Recipient addresses").Required().Strings()
	return c
}

// overrides converts parsed flags into config overrides. Negative rate
// values mean the flag was not given.
func (c *cli) overrides() *config.CLIOverrides {
	o := &config.CLIOverrides{
		ConfigFile: *c.configFile,
		BaseDir:    *c.baseDir,
	}
	if *c.port != "" {
		o.Port = c.port
	}
	if *c.rateLimitRPS >= 0 {
		o.RateLimitRPS = c.rateLimitRPS
	}
	if *c.rateLimitBurst >= 0 {
		o.RateLimitBurst = c.rateLimitBurst
	}
	return o
}

func main() {
	c := newCLI()
	command := kingpin.MustParse(c.app.Parse(os.Args[1:]))

	if err := config.LoadDotEnv(*c.envFile); err != nil {
		panic(fmt.Sprintf("failed to load env file: %v", err))
	}

	settings, err := config.Load(c.overrides())
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(settings.Logging.Level)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()
	switch command {
	case c.serve.FullCommand():
		err = runServe(ctx, settings, logger)
	case c.check.FullCommand():
		err = runCheck(ctx, settings, logger, *c.deploy)
	case c.collectStatic.FullCommand():
		err = runCollectStatic(settings, logger)
	case c.migrate.FullCommand():
		err = runMigrate(ctx, settings, logger)
	case c.clearSessions.FullCommand():
		err = runClearSessions(ctx, settings, logger)
	case c.sendTestEmail.FullCommand():
		err = runSendTestEmail(ctx, settings, os.Stdout, *c.recipients)
	}
	if err != nil {
		logger.Fatal("command failed", zap.String("command", command), zap.Error(err))
	}
}

func runServe(ctx context.Context, settings config.Settings, logger *zap.Logger) error {
	logger.Info("configuration loaded", zap.Any("settings", settings.Summary()))
	for _, warning := range settings.Warnings() {
		logger.Warn(warning)
	}

	app, err := application.New(ctx, settings, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("closing resources failed", zap.Error(err))
		}
	}()

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdown(app.Server(), settings.Server.ShutdownGracePeriod, logger)
	return nil
}

func runCheck(ctx context.Context, settings config.Settings, logger *zap.Logger, deploy bool) error {
	if _, err := settings.I18N.Location(); err != nil {
		return fmt.Errorf("time zone %q: %w", settings.I18N.TimeZone, err)
	}

	app, err := application.New(ctx, settings, logger, application.WithSessionStore(session.NewMemoryStore()))
	if err != nil {
		return err
	}
	_ = app.Close()

	warnings := settings.Warnings()
	for _, warning := range warnings {
		logger.Warn(warning)
	}
	logger.Info("system check finished", zap.Int("warnings", len(warnings)))
	if deploy && len(warnings) > 0 {
		return errDeployWarnings
	}
	return nil
}

func runCollectStatic(settings config.Settings, logger *zap.Logger) error {
	res, err := staticfiles.Collect(settings.Static)
	if err != nil {
		return err
	}
	logger.Info("static files collected",
		zap.Int("files", res.Copied),
		zap.String("root", settings.Static.Root),
	)
	return nil
}

func runMigrate(ctx context.Context, settings config.Settings, logger *zap.Logger) error {
	db, err := database.Open(ctx, settings.Database)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("migrations applied", zap.String("database", settings.Database.Redacted()))
	return nil
}

func runClearSessions(ctx context.Context, settings config.Settings, logger *zap.Logger) error {
	if settings.Session.Engine == config.SessionEngineCache {
		logger.Info("cache sessions expire on their own; nothing to clear")
		return nil
	}
	db, err := database.Open(ctx, settings.Database)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	n, err := session.NewSQLStore(db).ClearExpired(ctx)
	if err != nil {
		return err
	}
	logger.Info("expired sessions cleared", zap.Int64("deleted", n))
	return nil
}

func runSendTestEmail(ctx context.Context, settings config.Settings, out io.Writer, to []string) error {
	sender, err := mail.New(settings.Email, out)
	if err != nil {
		return err
	}
	host, _ := os.Hostname()
	return sender.Send(ctx, mail.Message{
		To:      to,
		Subject: "Test email from " + host + " on " + time.Now().Format(time.RFC3339),
		Body:    "If you're reading this, it was successful.",
	})
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
