package auth

// Package auth contains domain-level types for identities, profiles, sessions and auth events.
// It is pure and free of framework/adapter concerns.

import (
	"fmt"
	"strings"
	"time"
)

// Role represents a marketplace role stored on the profile.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// ParseRole converts a string into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// User is the identity record as reported by the identity service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Profile is the application-level record of role and approval status.
// One profile exists per identity; it is created at sign-up.
type Profile struct {
	ID           string            `json:"id"           db:"id"`
	UserID       string            `json:"user_id"      db:"user_id"`
	Name         string            `json:"name"         db:"name"`
	Role         Role              `json:"role"         db:"role"`
	IsVendor     bool              `json:"is_vendor"    db:"is_vendor"`
	IsApproved   bool              `json:"is_approved"  db:"is_approved"`
	SocialLinks  map[string]string `json:"social_links,omitempty"  db:"social_links"`
	CompanyName  *string           `json:"company_name,omitempty"  db:"company_name"`
	Location     *string           `json:"location,omitempty"      db:"location"`
	ProfileImage *string           `json:"profile_image,omitempty" db:"profile_image"`
	CreatedAt    time.Time         `json:"created_at"   db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"   db:"updated_at"`
}

// NeedsApproval reports whether the profile is a vendor still awaiting admin approval.
func (p *Profile) NeedsApproval() bool {
	return p != nil && p.Role == RoleVendor && !p.IsApproved
}

// Provider names the identity provider that issued a session.
type Provider string

const (
	ProviderPassword Provider = "password"
	ProviderSSO      Provider = "sso"
)

// Session is the credential bundle persisted server-side for a signed-in browser.
// AccessToken and RefreshToken are the opaque values carried by the two auth cookies.
type Session struct {
	ID                   string    `json:"id"`
	User                 User      `json:"user"`
	AccessToken          string    `json:"access_token"`
	RefreshToken         string    `json:"refresh_token"`
	Provider             Provider  `json:"provider"`
	ProviderAccessToken  string    `json:"provider_access_token,omitempty"`
	ProviderRefreshToken string    `json:"provider_refresh_token,omitempty"`
	ExpiresAt            time.Time `json:"expires_at"`
	RefreshExpiresAt     time.Time `json:"refresh_expires_at"`
}

// Expired reports whether the access portion of the session has lapsed at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Identity is the principal returned by an identity provider after a successful credential check.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID       string
	Email        string
	Name         string
	Groups       []string
	ExpiresAt    time.Time // access expiry reported by the provider
	RefreshToken string    // provider refresh token, if any
	AccessToken  string    // provider access token, needed for remote sign-out
}

// User projects the identity into a User.
func (i Identity) User() User {
	return User{ID: i.UserID, Email: i.Email, Name: i.Name}
}

// EventKind enumerates session change notifications.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Event is a push notification of a session or profile change.
// SessionID is empty for USER_UPDATED events that apply to every session of UserID.
type Event struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`
}
