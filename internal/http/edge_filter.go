package httpx

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/asktourist/marketplace/internal/guard"
)

// EdgeFilterConfig lists the path prefixes the edge filter covers and the cookies whose presence
// lets a request through.
type EdgeFilterConfig struct {
	ProtectedPrefixes []string
	CookieNames       []string
}

// DefaultEdgeFilterConfig returns the built-in prefixes and cookie names.
func DefaultEdgeFilterConfig() EdgeFilterConfig {
	return EdgeFilterConfig{
		ProtectedPrefixes: []string{
			"/vendor/dashboard",
			"/customer/dashboard",
			"/admin/dashboard",
			"/profile",
		},
		CookieNames: []string{DefaultAccessCookie, DefaultRefreshCookie},
	}
}

// withDefaults fills each empty list from DefaultEdgeFilterConfig on its own.
func (c EdgeFilterConfig) withDefaults() EdgeFilterConfig {
	def := DefaultEdgeFilterConfig()
	if len(c.ProtectedPrefixes) == 0 {
		c.ProtectedPrefixes = def.ProtectedPrefixes
	}
	if len(c.CookieNames) == 0 {
		c.CookieNames = def.CookieNames
	}
	return c
}

// EdgeFilter is a coarse pre-filter that looks only at the path and cookie presence. Requests for
// a protected prefix that carry none of the cookies are sent to the login page with the original
// path in ?redirect=. It never resolves or attaches an identity; the route guard still runs for
// every request it lets through.
func EdgeFilter(cfg EdgeFilterConfig) func(http.Handler) http.Handler {
	cfg = cfg.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if !hasAnyPrefix(path, cfg.ProtectedPrefixes) || hasAnyCookie(r, cfg.CookieNames) {
				next.ServeHTTP(w, r)
				return
			}

			q := url.Values{}
			q.Set("redirect", path)
			target := url.URL{Path: guard.LoginPathFor(path), RawQuery: q.Encode()}
			http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func hasAnyCookie(r *http.Request, names []string) bool {
	for _, n := range names {
		if _, err := r.Cookie(n); err == nil {
			return true
		}
	}
	return false
}
