package config

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Flag is a boolean read from the environment. Only the literal "true",
// compared case-insensitively, is true; every other value is false.
type Flag bool

// Decode implements envconfig.Decoder.
func (f *Flag) Decode(value string) error {
	*f = Flag(strings.EqualFold(value, "true"))
	return nil
}

// HostList is a comma-separated list of host names.
type HostList []string

// Decode implements envconfig.Decoder.
func (h *HostList) Decode(value string) error {
	*h = splitHosts(value)
	return nil
}

// environment declares the variables read in every mode.
type environment struct {
	Debug          Flag     `envconfig:"DEBUG" default:"True"`
	SecretKey      string   `envconfig:"SECRET_KEY" default:"django-insecure-dev-only-change-me"`
	AllowedHosts   HostList `envconfig:"ALLOWED_HOSTS" default:"127.0.0.1,localhost"`
	AdminResetCode string   `envconfig:"ADMIN_RESET_CODE" default:"CHANGE-MOI-EN-PROD"`
	DatabaseURL    string   `envconfig:"DATABASE_URL"`
	SessionEngine  string   `envconfig:"SESSION_ENGINE" default:"db"`
	RedisURL       string   `envconfig:"REDIS_URL"`

	// Unset server variables keep the YAML or default value.
	Port           *string  `envconfig:"PORT"`
	RateLimitRPS   *float64 `envconfig:"RATE_LIMIT_RPS"`
	RateLimitBurst *int     `envconfig:"RATE_LIMIT_BURST"`
}

// smtpEnvironment declares the mail variables, read only outside debug mode.
type smtpEnvironment struct {
	Backend          string `envconfig:"EMAIL_BACKEND" default:"smtp"`
	Host             string `envconfig:"EMAIL_HOST" default:"smtp.example.com"`
	Port             int    `envconfig:"EMAIL_PORT" default:"587"`
	HostUser         string `envconfig:"EMAIL_HOST_USER"`
	HostPassword     string `envconfig:"EMAIL_HOST_PASSWORD"`
	UseTLS           Flag   `envconfig:"EMAIL_USE_TLS" default:"True"`
	DefaultFromEmail string `envconfig:"DEFAULT_FROM_EMAIL" default:"no-reply@ferme-mv-pahou.com"`
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(s *Settings) error {
	var env environment
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	s.Debug = bool(env.Debug)
	s.SecretKey = env.SecretKey
	s.AllowedHosts = []string(env.AllowedHosts)
	s.AdminResetCode = env.AdminResetCode
	s.Database.URL = strings.TrimSpace(env.DatabaseURL)
	s.Cache.URL = strings.TrimSpace(env.RedisURL)

	engine, err := parseSessionEngine(env.SessionEngine)
	if err != nil {
		return err
	}
	s.Session.Engine = engine
	s.Session.CookieSecure = !s.Debug

	if env.Port != nil {
		if port := strings.TrimSpace(*env.Port); port != "" {
			s.Server.Port = port
		}
	}
	if env.RateLimitRPS != nil && *env.RateLimitRPS >= 0 {
		s.Server.RateLimitRPS = *env.RateLimitRPS
	}
	if env.RateLimitBurst != nil && *env.RateLimitBurst >= 0 {
		s.Server.RateLimitBurst = *env.RateLimitBurst
	}

	if s.Debug {
		s.Logging.Level = "debug"
		s.Email = debugEmail()
		return nil
	}

	s.Logging.Level = "info"
	var smtpEnv smtpEnvironment
	if err := envconfig.Process("", &smtpEnv); err != nil {
		return err
	}
	backend, err := parseEmailBackend(smtpEnv.Backend)
	if err != nil {
		return err
	}
	s.Email = EmailSettings{
		Backend:          backend,
		Host:             smtpEnv.Host,
		Port:             smtpEnv.Port,
		HostUser:         smtpEnv.HostUser,
		HostPassword:     smtpEnv.HostPassword,
		UseTLS:           bool(smtpEnv.UseTLS),
		DefaultFromEmail: smtpEnv.DefaultFromEmail,
	}
	return nil
}

// splitHosts splits a comma-separated host list, dropping blank entries.
func splitHosts(raw string) []string {
	parts := strings.Split(raw, ",")
	hosts := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hosts = append(hosts, part)
	}
	return hosts
}
