package config

import (
	"strings"
	"time"
)

const insecureKeyPrefix = "django-insecure-"

// Warnings lists deployment problems. Settings are never rejected for these;
// operators decide whether to act on them.
func (s Settings) Warnings() []string {
	var warnings []string
	if weakSecretKey(s.SecretKey) {
		warnings = append(warnings, "SECRET_KEY is the development default or too weak; set a long random value")
	}
	if s.AdminResetCode == defaultAdminResetCode {
		warnings = append(warnings, "ADMIN_RESET_CODE still uses the placeholder value")
	}
	if s.Debug {
		warnings = append(warnings, "DEBUG is enabled; set DEBUG=false in production")
	}
	if !s.Database.Configured() {
		warnings = append(warnings, "DATABASE_URL is not set")
	}
	for _, host := range s.AllowedHosts {
		if host == "*" {
			warnings = append(warnings, "ALLOWED_HOSTS accepts any host")
			break
		}
	}
	if s.Email.Backend == EmailBackendSMTP && s.Email.Host == "smtp.example.com" {
		warnings = append(warnings, "EMAIL_HOST still points at smtp.example.com")
	}
	return warnings
}

func weakSecretKey(key string) bool {
	if strings.HasPrefix(key, insecureKeyPrefix) || len(key) < 50 {
		return true
	}
	unique := make(map[rune]struct{})
	for _, r := range key {
		unique[r] = struct{}{}
	}
	return len(unique) < 5
}

// Summary is a log-safe view of Settings with credentials removed.
type Summary struct {
	BaseDir        string        `json:"baseDir"`
	Debug          bool          `json:"debug"`
	AllowedHosts   []string      `json:"allowedHosts"`
	InstalledApps  []AppConfig   `json:"installedApps"`
	Middleware     []string      `json:"middleware"`
	Database       string        `json:"database"`
	EmailBackend   EmailBackend  `json:"emailBackend"`
	EmailHost      string        `json:"emailHost,omitempty"`
	EmailPort      int           `json:"emailPort,omitempty"`
	SessionEngine  SessionEngine `json:"sessionEngine"`
	SessionAge     time.Duration `json:"sessionAge"`
	StaticRoot     string        `json:"staticRoot"`
	MediaRoot      string        `json:"mediaRoot"`
	LanguageCode   string        `json:"languageCode"`
	TimeZone       string        `json:"timeZone"`
	LogLevel       string        `json:"logLevel"`
	Port           string        `json:"port"`
	LoginURL       string        `json:"loginUrl"`
	LoginRedirect  string        `json:"loginRedirectUrl"`
	LogoutRedirect string        `json:"logoutRedirectUrl"`
}

// Summary returns the redacted view of s.
func (s Settings) Summary() Summary {
	return Summary{
		BaseDir:        s.BaseDir,
		Debug:          s.Debug,
		AllowedHosts:   append([]string(nil), s.AllowedHosts...),
		InstalledApps:  append([]AppConfig(nil), s.InstalledApps...),
		Middleware:     append([]string(nil), s.Middleware...),
		Database:       s.Database.Redacted(),
		EmailBackend:   s.Email.Backend,
		EmailHost:      s.Email.Host,
		EmailPort:      s.Email.Port,
		SessionEngine:  s.Session.Engine,
		SessionAge:     s.Session.CookieAge,
		StaticRoot:     s.Static.Root,
		MediaRoot:      s.Media.Root,
		LanguageCode:   s.I18N.LanguageCode,
		TimeZone:       s.I18N.TimeZone,
		LogLevel:       s.Logging.Level,
		Port:           s.Server.Port,
		LoginURL:       s.Auth.LoginURL.Path,
		LoginRedirect:  s.Auth.LoginRedirectURL.Path,
		LogoutRedirect: s.Auth.LogoutRedirectURL.Path,
	}
}
