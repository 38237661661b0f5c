package config

import (
	"net"
	"strings"
)

var debugHosts = []string{".localhost", "127.0.0.1", "[::1]"}

// EffectiveAllowedHosts returns AllowedHosts, or the loopback names when the
// list is empty in debug mode.
func (s Settings) EffectiveAllowedHosts() []string {
	if len(s.AllowedHosts) == 0 && s.Debug {
		return append([]string(nil), debugHosts...)
	}
	return append([]string(nil), s.AllowedHosts...)
}

// HostAllowed reports whether a Host header value matches one of the
// patterns. "*" matches anything, a leading dot matches the domain and all
// of its subdomains, anything else must match exactly. Ports are ignored.
func HostAllowed(host string, patterns []string) bool {
	domain := hostDomain(host)
	if domain == "" {
		return false
	}
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "*":
			return true
		case strings.HasPrefix(pattern, "."):
			if domain == pattern[1:] || strings.HasSuffix(domain, pattern) {
				return true
			}
		case strings.Trim(pattern, "[]") == domain:
			return true
		}
	}
	return false
}

func hostDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(host, ".")
}
