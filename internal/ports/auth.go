package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"
	"time"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

// SignUpInput carries what the identity service needs to create an identity.
type SignUpInput struct {
	Email    string
	Password string
	Metadata map[string]any
}

// IdentityProvider is the remote email/password identity service.
type IdentityProvider interface {
	// SignUp creates a new identity and returns it.
	SignUp(ctx context.Context, in SignUpInput) (domainauth.Identity, error)

	// SignInWithPassword verifies credentials and returns the authenticated identity.
	SignInWithPassword(ctx context.Context, email, password string) (domainauth.Identity, error)

	// Refresh exchanges a provider refresh token for a fresh identity.
	Refresh(ctx context.Context, refreshToken string) (domainauth.Identity, error)

	// SignOut invalidates the provider-side session bound to the access token.
	SignOut(ctx context.Context, accessToken string) error

	// DeleteUser removes an identity. Used to compensate a failed sign-up.
	DeleteUser(ctx context.Context, userID string) error
}

// BeginInput carries inputs for initiating an SSO flow.
type BeginInput struct {
	RedirectURL string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// SSOProvider initiates and completes an OIDC authorization code flow.
type SSOProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)

	// Refresh exchanges a refresh token for a fresh identity.
	Refresh(ctx context.Context, refreshToken string) (domainauth.Identity, error)
}

// RoleMapper maps SSO groups to an application role. An empty role denies access.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}

// SessionStore persists and retrieves sessions by access token and by refresh token.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	GetByAccessToken(ctx context.Context, accessToken string) (domainauth.Session, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (domainauth.Session, error)
	Delete(ctx context.Context, sess domainauth.Session) error
}

// CreateProfileInput is the row inserted at sign-up.
type CreateProfileInput struct {
	UserID      string
	Name        string
	Role        domainauth.Role
	IsVendor    bool
	IsApproved  bool
	CompanyName *string
	Location    *string
	SocialLinks map[string]string
}

// SetApprovalInput changes a vendor's approval flag.
type SetApprovalInput struct {
	UserID   string
	Approved bool
	Actor    string
}

// ProfileRepository is the row store of profiles keyed by identity id.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*domainauth.Profile, error)
	Create(ctx context.Context, in CreateProfileInput) (*domainauth.Profile, error)
	EnsureAdmin(ctx context.Context, userID, name string) (*domainauth.Profile, error)
	ListPendingVendors(ctx context.Context, limit int) ([]domainauth.Profile, error)
	SetApproval(ctx context.Context, in SetApprovalInput) (*domainauth.Profile, error)
}

// AuthEventBus fans session change notifications out to every web process.
type AuthEventBus interface {
	Publish(ctx context.Context, evt domainauth.Event) error
	// Subscribe returns a channel of events and a function that ends the subscription.
	Subscribe(ctx context.Context) (<-chan domainauth.Event, func() error, error)
}

// Orphan is an identity whose profile could not be created and whose compensation failed.
type Orphan struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Reason     string    `json:"reason"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// OrphanQueue holds identities awaiting asynchronous repair.
type OrphanQueue interface {
	Enqueue(ctx context.Context, o Orphan) error
	Dequeue(ctx context.Context, n int) ([]Orphan, error)
	Len(ctx context.Context) (int64, error)
}

// VendorStats are the counters shown on the vendor dashboard.
type VendorStats struct {
	Packages  int64 `json:"packages"`
	Bookings  int64 `json:"bookings"`
	Reviews   int64 `json:"reviews"`
	Inquiries int64 `json:"inquiries"`
}

// DashboardRepository reads aggregate counters.
type DashboardRepository interface {
	VendorStats(ctx context.Context, vendorUserID string) (VendorStats, error)
}
