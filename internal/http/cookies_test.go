package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

func TestSafeRedirectPath(t *testing.T) {
	tests := map[string]string{
		"":                         "/",
		"/vendor/dashboard":        "/vendor/dashboard",
		"/profile?tab=1":           "/profile?tab=1",
		"//evil.example.com":       "/",
		"https://evil.example.com": "/",
		`/\evil.example.com`:       "/",
		"relative/path":            "/",
		"javascript:alert(1)":      "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeRedirectPath(in), "input %q", in)
	}
}

func TestCookieConfig_SetSession(t *testing.T) {
	c := CookieConfig{Domain: "example.com"}.withDefaults()
	now := time.Now()
	sess := domainauth.Session{
		AccessToken:      "acc",
		RefreshToken:     "ref",
		ExpiresAt:        now.Add(time.Hour),
		RefreshExpiresAt: now.Add(24 * time.Hour),
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "http, https")
	rec := httptest.NewRecorder()
	c.setSession(rec, req, sess)

	access := findCookie(rec, DefaultAccessCookie)
	refresh := findCookie(rec, DefaultRefreshCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.Equal(t, "acc", access.Value)
	assert.Equal(t, "ref", refresh.Value)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, "example.com", access.Domain)
	assert.InDelta(t, 3600, access.MaxAge, 5)
	assert.Greater(t, refresh.MaxAge, access.MaxAge)
}

func TestCookieConfig_ClearSession(t *testing.T) {
	c := CookieConfig{}.withDefaults()
	rec := httptest.NewRecorder()
	c.clearSession(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, name := range []string{DefaultAccessCookie, DefaultRefreshCookie} {
		ck := findCookie(rec, name)
		require.NotNil(t, ck, name)
		assert.Empty(t, ck.Value)
		assert.Negative(t, ck.MaxAge)
	}
}

func TestCookieConfig_RememberPathIgnoresRoot(t *testing.T) {
	c := CookieConfig{}.withDefaults()
	rec := httptest.NewRecorder()
	c.rememberPath(rec, httptest.NewRequest(http.MethodGet, "/", nil), "//evil.example.com")
	assert.Nil(t, findCookie(rec, RedirectAfterLoginCookie))

	rec = httptest.NewRecorder()
	c.rememberPath(rec, httptest.NewRequest(http.MethodGet, "/", nil), "/vendor/dashboard")
	ck := findCookie(rec, RedirectAfterLoginCookie)
	require.NotNil(t, ck)
	assert.Equal(t, "/vendor/dashboard", ck.Value)
}

func TestCookieConfig_PostLoginTarget(t *testing.T) {
	c := CookieConfig{}.withDefaults()

	newReq := func(redirect, remembered string) *http.Request {
		form := url.Values{}
		if redirect != "" {
			form.Set("redirect", redirect)
		}
		req := httptest.NewRequest(http.MethodPost, "/login/customer", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if remembered != "" {
			req.AddCookie(&http.Cookie{Name: RedirectAfterLoginCookie, Value: remembered})
		}
		return req
	}

	t.Run("fallback", func(t *testing.T) {
		rec := httptest.NewRecorder()
		assert.Equal(t, "/customer/dashboard", c.postLoginTarget(rec, newReq("", ""), "/customer/dashboard"))
	})

	t.Run("remembered path wins over fallback and is cleared", func(t *testing.T) {
		rec := httptest.NewRecorder()
		assert.Equal(t, "/profile", c.postLoginTarget(rec, newReq("", "/profile"), "/customer/dashboard"))
		ck := findCookie(rec, RedirectAfterLoginCookie)
		require.NotNil(t, ck)
		assert.Negative(t, ck.MaxAge)
	})

	t.Run("explicit redirect wins", func(t *testing.T) {
		rec := httptest.NewRecorder()
		assert.Equal(t, "/customer/dashboard/trips", c.postLoginTarget(rec, newReq("/customer/dashboard/trips", "/profile"), "/"))
	})

	t.Run("unsafe redirect ignored", func(t *testing.T) {
		rec := httptest.NewRecorder()
		assert.Equal(t, "/customer/dashboard", c.postLoginTarget(rec, newReq("https://evil.example.com", ""), "/customer/dashboard"))
	})
}
