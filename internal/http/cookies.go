package httpx

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

const (
	// DefaultAccessCookie and DefaultRefreshCookie are the names the edge filter looks for.
	DefaultAccessCookie  = "sb-access-token"
	DefaultRefreshCookie = "sb-refresh-token"

	// RedirectAfterLoginCookie remembers the path a signed-out viewer tried to open.
	RedirectAfterLoginCookie = "redirectAfterLogin"

	oauthStateCookie    = "oauth_state"
	oauthNonceCookie    = "oauth_nonce"
	postLoginSSOCookie  = "post_login_redirect"
	shortLivedCookieAge = 600 // 10 minutes
)

// CookieConfig names the auth cookies and the domain they are scoped to.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Domain      string
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.AccessName == "" {
		c.AccessName = DefaultAccessCookie
	}
	if c.RefreshName == "" {
		c.RefreshName = DefaultRefreshCookie
	}
	return c
}

// credentials reads the two auth cookies from r.
func (c CookieConfig) credentials(r *http.Request) (access, refresh string) {
	if ck, err := r.Cookie(c.AccessName); err == nil {
		access = ck.Value
	}
	if ck, err := r.Cookie(c.RefreshName); err == nil {
		refresh = ck.Value
	}
	return access, refresh
}

// setSession writes both auth cookies. The access cookie lapses with the access token so the next
// request presents only the refresh cookie and triggers a rotation.
func (c CookieConfig) setSession(w http.ResponseWriter, r *http.Request, sess domainauth.Session) {
	now := time.Now()
	c.set(w, r, c.AccessName, sess.AccessToken, maxAgeUntil(now, sess.ExpiresAt))
	c.set(w, r, c.RefreshName, sess.RefreshToken, maxAgeUntil(now, sess.RefreshExpiresAt))
}

func (c CookieConfig) clearSession(w http.ResponseWriter, r *http.Request) {
	c.clear(w, r, c.AccessName)
	c.clear(w, r, c.RefreshName)
}

func (c CookieConfig) set(w http.ResponseWriter, r *http.Request, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// clear expires a cookie, mirroring the attributes used when it was set.
func (c CookieConfig) clear(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// rememberPath stores the attempted path for post-login return navigation.
func (c CookieConfig) rememberPath(w http.ResponseWriter, r *http.Request, path string) {
	if p := safeRedirectPath(path); p != "/" {
		c.set(w, r, RedirectAfterLoginCookie, p, shortLivedCookieAge)
	}
}

// takeRemembered returns the remembered path (or "") and clears the cookie.
func (c CookieConfig) takeRemembered(w http.ResponseWriter, r *http.Request) string {
	ck, err := r.Cookie(RedirectAfterLoginCookie)
	if err != nil {
		return ""
	}
	c.clear(w, r, RedirectAfterLoginCookie)
	if p := safeRedirectPath(ck.Value); p != "/" {
		return p
	}
	return ""
}

func maxAgeUntil(now, t time.Time) int {
	secs := int(t.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || isForwardedHTTPS(r)
}

// isForwardedHTTPS checks X-Forwarded-Proto, which may carry a comma-separated list.
func isForwardedHTTPS(r *http.Request) bool {
	xfProto := r.Header.Get("X-Forwarded-Proto")
	if xfProto == "" {
		return false
	}
	for _, proto := range strings.Split(xfProto, ",") {
		if strings.EqualFold(strings.TrimSpace(proto), "https") {
			return true
		}
	}
	return false
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute or scheme-relative URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" || strings.HasPrefix(candidate, "//") || strings.Contains(candidate, `\`) {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}

// postLoginTarget picks where to send a viewer after a successful log-in: an explicit redirect
// parameter, then the remembered path, then fallback.
func (c CookieConfig) postLoginTarget(w http.ResponseWriter, r *http.Request, fallback string) string {
	remembered := c.takeRemembered(w, r)
	if p := safeRedirectPath(r.FormValue("redirect")); p != "/" {
		return p
	}
	if remembered != "" {
		return remembered
	}
	return fallback
}
