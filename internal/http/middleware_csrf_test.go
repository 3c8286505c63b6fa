package httpx

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csrfEcho() http.Handler {
	return CSRFProtection(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetCSRFToken(r)))
	}))
}

func TestCSRFProtection_GetIssuesToken(t *testing.T) {
	rec := httptest.NewRecorder()
	csrfEcho().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	ck := findCookie(rec, DefaultCSRFCookieName)
	require.NotNil(t, ck)
	assert.NotEmpty(t, ck.Value)
	assert.False(t, ck.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	assert.Equal(t, ck.Value, rec.Body.String())
}

func TestCSRFProtection_ReusesExistingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: "existing"})
	rec := httptest.NewRecorder()
	csrfEcho().ServeHTTP(rec, req)

	assert.Nil(t, findCookie(rec, DefaultCSRFCookieName))
	assert.Equal(t, "existing", rec.Body.String())
}

func TestCSRFProtection_Post(t *testing.T) {
	tests := []struct {
		name     string
		cookie   string
		header   string
		field    string
		wantCode int
	}{
		{name: "no cookie", field: "tok", wantCode: http.StatusForbidden},
		{name: "no token", cookie: "tok", wantCode: http.StatusForbidden},
		{name: "mismatched field", cookie: "tok", field: "other", wantCode: http.StatusForbidden},
		{name: "form field", cookie: "tok", field: "tok", wantCode: http.StatusOK},
		{name: "header", cookie: "tok", header: "tok", wantCode: http.StatusOK},
		{name: "mismatched header", cookie: "tok", header: "nope", field: "tok", wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{}
			if tt.field != "" {
				form.Set(DefaultCSRFCookieName, tt.field)
			}
			req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(DefaultCSRFHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			csrfEcho().ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
