package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode selects the identity service backing email/password auth.
type AuthMode string

const (
	// AuthModeSupabase talks to a hosted Supabase (GoTrue) auth service.
	AuthModeSupabase AuthMode = "supabase"
	// AuthModeMock uses the in-process development identity service.
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "supabase", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: supabase, mock)", v)
	}
}

// SupabaseConfig configures the hosted identity service.
type SupabaseConfig struct {
	URL            string `env:"URL"`
	AnonKey        string `env:"ANON_KEY"`
	ServiceRoleKey string `env:"SERVICE_ROLE_KEY"`
	// JWKSURL defaults to <URL>/auth/v1/.well-known/jwks.json.
	JWKSURL string `env:"JWKS_URL"`
	// Claim expressions (JMESPath) used to read display name from access token claims.
	NameClaim string        `env:"NAME_CLAIM"  envDefault:"user_metadata.name || email"`
	Timeout   time.Duration `env:"TIMEOUT"     envDefault:"10s"`
}

// SSOConfig configures operator sign-in through an OIDC provider.
type SSOConfig struct {
	Enabled      bool   `env:"ENABLED"       envDefault:"false"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/sso/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups offline_access"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// AdminGroup is the group that maps to the admin role.
	AdminGroup string `env:"ADMIN_GROUP" envDefault:"marketplace-admins"`
}

// DevAuthConfig seeds the development identity service (AUTH_MODE=mock).
type DevAuthConfig struct {
	AdminEmail    string `env:"ADMIN_EMAIL"    envDefault:"admin@example.com"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"admin-password"`
	// SeedDemo also creates a customer, an approved vendor and a pending vendor.
	SeedDemo     bool   `env:"SEED_DEMO"     envDefault:"true"`
	DemoPassword string `env:"DEMO_PASSWORD" envDefault:"password123"`
}

// SessionConfig controls session lifetimes, cookies and the state store.
type SessionConfig struct {
	AccessCookie  string        `env:"ACCESS_COOKIE"  envDefault:"sb-access-token"`
	RefreshCookie string        `env:"REFRESH_COOKIE" envDefault:"sb-refresh-token"`
	AccessTTL     time.Duration `env:"ACCESS_TTL"     envDefault:"1h"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL"    envDefault:"720h"`

	// FetchTimeout bounds each remote call made by a state store.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"5s"`
	// SettleTimeout bounds how long the guard waits for a store to settle before rendering a placeholder.
	SettleTimeout time.Duration `env:"SETTLE_TIMEOUT" envDefault:"2s"`
	// StoreIdleTTL evicts state stores that have not been used for this long.
	StoreIdleTTL time.Duration `env:"STORE_IDLE_TTL" envDefault:"30m"`

	// LoginRate is the sustained login attempts per minute allowed per email.
	LoginRate  float64 `env:"LOGIN_RATE_PER_MIN" envDefault:"10"`
	LoginBurst int     `env:"LOGIN_BURST"        envDefault:"5"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	Mode AuthMode `env:"AUTH_MODE" envDefault:"supabase"`

	Supabase SupabaseConfig `envPrefix:"SUPABASE_"`
	SSO      SSOConfig      `envPrefix:"SSO_"`
	DevAuth  DevAuthConfig  `envPrefix:"DEV_AUTH_"`
	Session  SessionConfig  `envPrefix:"SESSION_"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.Supabase.URL = strings.TrimRight(strings.TrimSpace(a.Supabase.URL), "/")
	if a.Supabase.JWKSURL == "" && a.Supabase.URL != "" {
		a.Supabase.JWKSURL = a.Supabase.URL + "/auth/v1/.well-known/jwks.json"
	}
	if a.Supabase.Timeout <= 0 {
		a.Supabase.Timeout = 10 * time.Second
	}

	s := &a.Session
	if s.AccessTTL <= 0 {
		s.AccessTTL = time.Hour
	}
	if s.RefreshTTL < s.AccessTTL {
		s.RefreshTTL = s.AccessTTL
	}
	if s.FetchTimeout <= 0 {
		s.FetchTimeout = 5 * time.Second
	}
	if s.SettleTimeout <= 0 {
		s.SettleTimeout = 2 * time.Second
	}
	if s.StoreIdleTTL <= 0 {
		s.StoreIdleTTL = 30 * time.Minute
	}
	if s.LoginRate <= 0 {
		s.LoginRate = 10
	}
	if s.LoginBurst < 1 {
		s.LoginBurst = 1
	}
}
