package config

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the public base URL of the application.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for auth cookies.
	// Leave empty to use the request host. Public suffixes (e.g. "co.uk") are rejected.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// RoutesFile optionally points at a YAML route policy table; built-in defaults apply when empty.
	RoutesFile string `env:"HTTP_ROUTES_FILE" envDefault:""`

	// CompressionEnabled enables gzip compression for text-based responses.
	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`

	// CompressionLevel is the gzip compression level (1-9).
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.CompressionLevel < 1 {
		h.CompressionLevel = 1
	}
	if h.CompressionLevel > 9 {
		h.CompressionLevel = 9
	}
	h.CookieDomain = SanitizeCookieDomain(h.CookieDomain)
}

// SanitizeCookieDomain lowercases the domain, strips a leading dot, and returns ""
// for values that are themselves a public suffix (browsers reject such cookies).
func SanitizeCookieDomain(domain string) string {
	d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if d == "" || d == "localhost" {
		return d
	}
	suffix, _ := publicsuffix.PublicSuffix(d)
	if suffix == d {
		return ""
	}
	return d
}
