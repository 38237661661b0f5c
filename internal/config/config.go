package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = "8000"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50

	defaultSecretKey      = "django-insecure-dev-only-change-me"
	defaultAdminResetCode = "CHANGE-MOI-EN-PROD"
	defaultAllowedHosts   = "127.0.0.1,localhost"

	defaultConnMaxAge = 600 * time.Second
	defaultCookieAge  = 2 * time.Hour
)

// Settings is the process-wide configuration. It is built once by Load and
// never mutated afterwards.
type Settings struct {
	BaseDir        string
	Debug          bool
	SecretKey      string
	AllowedHosts   []string
	AdminResetCode string

	Auth               AuthSettings
	InstalledApps      []AppConfig
	Middleware         []string
	Templates          TemplateSettings
	Database           DatabaseSettings
	PasswordValidators []ValidatorSpec
	I18N               I18NSettings
	Static             StaticSettings
	Media              MediaSettings
	Email              EmailSettings
	Session            SessionSettings
	Cache              CacheSettings
	Logging            LoggingSettings
	Server             ServerSettings
}

// TemplateSettings lists where HTML templates are looked up.
type TemplateSettings struct {
	Dirs              []string
	AppDirs           bool
	ContextProcessors []string
}

// I18NSettings holds locale and date formatting preferences.
type I18NSettings struct {
	LanguageCode     string
	TimeZone         string
	UseI18N          bool
	UseTZ            bool
	DateInputFormats []string
	DateFormat       string
}

// Location resolves TimeZone.
func (s I18NSettings) Location() (*time.Location, error) {
	return time.LoadLocation(s.TimeZone)
}

// StaticSettings describes static asset sources and the collection output.
type StaticSettings struct {
	URL     string
	Dirs    []string
	Root    string
	Storage string
}

// MediaSettings describes where user uploads live.
type MediaSettings struct {
	URL  string
	Root string
}

// CacheSettings points at the Redis instance used by the cache session engine.
type CacheSettings struct {
	URL string
}

// LoggingSettings controls logger verbosity.
type LoggingSettings struct {
	Level string
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
}

// yamlConfig represents the YAML overlay. Only structural values can be
// tuned here; installed apps and the middleware order are fixed.
type yamlConfig struct {
	Server  yamlServer  `yaml:"server"`
	Session yamlSession `yaml:"session"`
	I18N    yamlI18N    `yaml:"i18n"`
}

type yamlServer struct {
	Port                 string        `yaml:"port"`
	ShutdownGracePeriod  string        `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string        `yaml:"read_header_timeout"`
	WriteTimeout         string        `yaml:"write_timeout"`
	IdleTimeout          string        `yaml:"idle_timeout"`
	EnableRequestLogging *bool         `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit `yaml:"rate_limit"`
}

type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlSession struct {
	CookieName           string `yaml:"cookie_name"`
	CookieAge            string `yaml:"cookie_age"`
	CookieSameSite       string `yaml:"cookie_samesite"`
	ExpireAtBrowserClose *bool  `yaml:"expire_at_browser_close"`
	SaveEveryRequest     *bool  `yaml:"save_every_request"`
}

type yamlI18N struct {
	LanguageCode     string   `yaml:"language_code"`
	TimeZone         string   `yaml:"time_zone"`
	DateInputFormats []string `yaml:"date_input_formats"`
	DateFormat       string   `yaml:"date_format"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	BaseDir        string
	Port           *string
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load builds Settings from multiple sources with precedence:
// CLI flags > Environment variables > YAML config > Defaults
//
// Missing environment variables fall back to their defaults; malformed
// values are reported as errors.
func Load(overrides *CLIOverrides) (Settings, error) {
	baseDir, err := baseDirFor(overrides)
	if err != nil {
		return Settings{}, err
	}
	s := defaultSettings(baseDir)

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Settings{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&s, yamlCfg); err != nil {
			return Settings{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	if err := applyEnvConfig(&s); err != nil {
		return Settings{}, fmt.Errorf("load environment: %w", err)
	}

	if overrides != nil {
		applyCLIOverrides(&s, overrides)
	}

	if err := validateSettings(s); err != nil {
		return Settings{}, err
	}

	return s, nil
}

func baseDirFor(overrides *CLIOverrides) (string, error) {
	if overrides != nil && strings.TrimSpace(overrides.BaseDir) != "" {
		return absPath(overrides.BaseDir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return ResolveBaseDir(wd), nil
}

// defaultSettings returns Settings with every default applied for baseDir.
func defaultSettings(baseDir string) Settings {
	login := mustRoute(RouteLogin)
	return Settings{
		BaseDir:        baseDir,
		Debug:          true,
		SecretKey:      defaultSecretKey,
		AllowedHosts:   splitHosts(defaultAllowedHosts),
		AdminResetCode: defaultAdminResetCode,
		Auth: AuthSettings{
			LoginURL:          login,
			LoginRedirectURL:  mustRoute(RouteHome),
			LogoutRedirectURL: login,
		},
		InstalledApps: installedApps(),
		Middleware:    middlewareStages(),
		Templates: TemplateSettings{
			Dirs:              templateDirs(baseDir),
			AppDirs:           true,
			ContextProcessors: []string{"debug", "request", "auth", "messages"},
		},
		Database: DatabaseSettings{
			ConnMaxAge: defaultConnMaxAge,
			SSLRequire: true,
		},
		PasswordValidators: defaultPasswordValidators(),
		I18N: I18NSettings{
			LanguageCode:     "fr-fr",
			TimeZone:         "Africa/Lagos",
			UseI18N:          true,
			UseTZ:            true,
			DateInputFormats: []string{"02/01/2006"},
			DateFormat:       "02/01/2006",
		},
		Static: StaticSettings{
			URL:     "/static/",
			Dirs:    staticDirs(baseDir),
			Root:    staticRoot(baseDir),
			Storage: StorageCompressedManifest,
		},
		Media: MediaSettings{
			URL:  "/media/",
			Root: mediaRoot(baseDir),
		},
		Email: debugEmail(),
		Session: SessionSettings{
			Engine:               SessionEngineDB,
			CookieName:           "sessionid",
			CookieAge:            defaultCookieAge,
			ExpireAtBrowserClose: true,
			SaveEveryRequest:     true,
			CookieHTTPOnly:       true,
			CookieSameSite:       "Lax",
		},
		Logging: LoggingSettings{Level: "debug"},
		Server: ServerSettings{
			Port:                 defaultPort,
			ShutdownGracePeriod:  10 * time.Second,
			ReadHeaderTimeout:    5 * time.Second,
			WriteTimeout:         15 * time.Second,
			IdleTimeout:          60 * time.Second,
			EnableRequestLogging: true,
			RateLimitRPS:         defaultRateLimitRPS,
			RateLimitBurst:       defaultRateLimitBurst,
		},
	}
}

// loadFromFile loads the YAML overlay.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies the YAML overlay to s. Malformed durations are
// reported rather than ignored.
func applyYAMLConfig(s *Settings, yamlCfg *yamlConfig) error {
	srv := yamlCfg.Server
	if srv.Port != "" {
		s.Server.Port = srv.Port
	}
	durations := []struct {
		key string
		dst *time.Duration
		raw string
	}{
		{"server.shutdown_grace_period", &s.Server.ShutdownGracePeriod, srv.ShutdownGracePeriod},
		{"server.read_header_timeout", &s.Server.ReadHeaderTimeout, srv.ReadHeaderTimeout},
		{"server.write_timeout", &s.Server.WriteTimeout, srv.WriteTimeout},
		{"server.idle_timeout", &s.Server.IdleTimeout, srv.IdleTimeout},
		{"session.cookie_age", &s.Session.CookieAge, yamlCfg.Session.CookieAge},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.raw); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	if srv.EnableRequestLogging != nil {
		s.Server.EnableRequestLogging = *srv.EnableRequestLogging
	}
	if srv.RateLimit.RPS != nil && *srv.RateLimit.RPS >= 0 {
		s.Server.RateLimitRPS = *srv.RateLimit.RPS
	}
	if srv.RateLimit.Burst != nil && *srv.RateLimit.Burst >= 0 {
		s.Server.RateLimitBurst = *srv.RateLimit.Burst
	}

	sess := yamlCfg.Session
	if sess.CookieName != "" {
		s.Session.CookieName = sess.CookieName
	}
	if sess.CookieSameSite != "" {
		s.Session.CookieSameSite = sess.CookieSameSite
	}
	if sess.ExpireAtBrowserClose != nil {
		s.Session.ExpireAtBrowserClose = *sess.ExpireAtBrowserClose
	}
	if sess.SaveEveryRequest != nil {
		s.Session.SaveEveryRequest = *sess.SaveEveryRequest
	}

	i18n := yamlCfg.I18N
	if i18n.LanguageCode != "" {
		s.I18N.LanguageCode = i18n.LanguageCode
	}
	if i18n.TimeZone != "" {
		s.I18N.TimeZone = i18n.TimeZone
	}
	if len(i18n.DateInputFormats) > 0 {
		s.I18N.DateInputFormats = append([]string(nil), i18n.DateInputFormats...)
	}
	if i18n.DateFormat != "" {
		s.I18N.DateFormat = i18n.DateFormat
	}
	return nil
}

func setDuration(dst *time.Duration, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(s *Settings, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		s.Server.Port = *overrides.Port
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		s.Server.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		s.Server.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// validateSettings validates the final settings.
func validateSettings(s Settings) error {
	if s.Server.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if s.Server.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if s.Session.CookieAge <= 0 {
		return fmt.Errorf("session cookie age must be positive")
	}
	if s.Database.Configured() {
		if _, err := s.Database.DSN(); err != nil {
			return fmt.Errorf("DATABASE_URL: %w", err)
		}
	}
	if s.Session.Engine == SessionEngineCache && s.Cache.URL == "" {
		return fmt.Errorf("SESSION_ENGINE=cache requires REDIS_URL")
	}
	if s.Email.Backend == EmailBackendSMTP && (s.Email.Port <= 0 || s.Email.Port > 65535) {
		return fmt.Errorf("EMAIL_PORT must be between 1 and 65535, got %d", s.Email.Port)
	}
	return nil
}
