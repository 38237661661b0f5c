package config

import (
	"fmt"
	"strings"
)

// EmailBackend selects how outbound mail is delivered.
type EmailBackend string

const (
	// EmailBackendConsole prints messages instead of sending them.
	EmailBackendConsole EmailBackend = "console"
	// EmailBackendMemory keeps messages in an in-process outbox.
	EmailBackendMemory EmailBackend = "memory"
	// EmailBackendSMTP delivers through an SMTP relay.
	EmailBackendSMTP EmailBackend = "smtp"
)

const debugFromEmail = "no-reply@ferme-mv-pahou.local"

// EmailSettings configures outbound mail. The SMTP fields are only populated
// outside debug mode.
type EmailSettings struct {
	Backend          EmailBackend
	Host             string
	Port             int
	HostUser         string
	HostPassword     string
	UseTLS           bool
	DefaultFromEmail string
}

func debugEmail() EmailSettings {
	return EmailSettings{
		Backend:          EmailBackendConsole,
		DefaultFromEmail: debugFromEmail,
	}
}

// parseEmailBackend accepts short names and dotted framework names such as
// "django.core.mail.backends.smtp.EmailBackend".
func parseEmailBackend(raw string) (EmailBackend, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimSuffix(name, ".emailbackend")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	switch name {
	case "smtp":
		return EmailBackendSMTP, nil
	case "console":
		return EmailBackendConsole, nil
	case "memory", "locmem":
		return EmailBackendMemory, nil
	default:
		return "", fmt.Errorf("unsupported EMAIL_BACKEND %q", raw)
	}
}
