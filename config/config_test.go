package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "both services with spaces",
			input:    " http , orphan-reaper ",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeOrphanReaper: true},
		},
		{
			name:     "duplicate services",
			input:    "http,http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only commas", input: ",,", expectError: true},
		{name: "unknown service", input: "http,scheduler", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestConfig_ServiceEnabledMethods(t *testing.T) {
	cfg := AppConfig{Services: "orphan-reaper"}
	assert.False(t, cfg.IsHTTPServerEnabled())
	assert.True(t, cfg.IsOrphanReaperEnabled())

	cfg.Services = "bogus"
	assert.False(t, cfg.IsHTTPServerEnabled())
	assert.False(t, cfg.IsOrphanReaperEnabled())
}

func TestValidServiceModes(t *testing.T) {
	assert.ElementsMatch(t, []ServiceMode{ServiceModeHTTP, ServiceModeOrphanReaper}, ValidServiceModes())
}

func TestAppConfig_ParseAuthEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "MOCK")
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("SSO_ENABLED", "true")
	t.Setenv("SSO_ADMIN_GROUP", "ops")
	t.Setenv("SESSION_ACCESS_TTL", "15m")
	t.Setenv("SESSION_REFRESH_TTL", "1m")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, AuthModeMock, cfg.Auth.Mode)
	assert.Equal(t, "https://proj.supabase.co", cfg.Auth.Supabase.URL)
	assert.Equal(t, "https://proj.supabase.co/auth/v1/.well-known/jwks.json", cfg.Auth.Supabase.JWKSURL)
	assert.Equal(t, "user_metadata.name || email", cfg.Auth.Supabase.NameClaim)
	assert.True(t, cfg.Auth.SSO.Enabled)
	assert.Equal(t, "ops", cfg.Auth.SSO.AdminGroup)
	assert.Equal(t, "sb-access-token", cfg.Auth.Session.AccessCookie)
	assert.Equal(t, "sb-refresh-token", cfg.Auth.Session.RefreshCookie)
	assert.Equal(t, 15*time.Minute, cfg.Auth.Session.AccessTTL)
	// refresh TTL is clamped to never undercut the access TTL
	assert.Equal(t, 15*time.Minute, cfg.Auth.Session.RefreshTTL)
}

func TestAuthMode_UnmarshalText(t *testing.T) {
	var m AuthMode
	require.NoError(t, m.UnmarshalText([]byte("supabase")))
	assert.Equal(t, AuthModeSupabase, m)
	require.Error(t, m.UnmarshalText([]byte("oauth")))
}

func TestSanitizeCookieDomain(t *testing.T) {
	tests := map[string]string{
		"":                    "",
		"localhost":           "localhost",
		".Example.com":        "example.com",
		"app.example.com":     "app.example.com",
		"co.uk":               "",
		"com":                 "",
		"tours.example.co.uk": "tours.example.co.uk",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeCookieDomain(in), "input %q", in)
	}
}

func TestOrphanReaperConfig_Sanitize(t *testing.T) {
	c := OrphanReaperConfig{Interval: -1, BatchSize: 0, MaxAttempts: 0}
	c.Sanitize()
	assert.Equal(t, time.Minute, c.Interval)
	assert.Equal(t, 1, c.BatchSize)
	assert.Equal(t, 1, c.MaxAttempts)
}

func TestHTTPConfig_SanitizeClampsCompression(t *testing.T) {
	h := HTTPConfig{CompressionLevel: 42}
	h.Sanitize()
	assert.Equal(t, 9, h.CompressionLevel)
}
