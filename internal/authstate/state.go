// Package authstate holds the per-browser-session auth state container.
//
// A Store owns one State and mutates it only from its own update loop, so
// listener-driven re-syncs and imperative calls (Init, SignOut, RefreshProfile)
// never interleave. Remote calls run off-loop under a timeout and report back
// with a sequence token; results whose token has been superseded are dropped.
package authstate

import (
	"context"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

// State is an immutable snapshot of a store.
// Profile is non-nil only when User is non-nil and Profile.UserID == User.ID.
type State struct {
	Session *domainauth.Session `json:"-"`
	User    *domainauth.User    `json:"user"`
	Profile *domainauth.Profile `json:"profile"`
	Loading bool                `json:"loading"`
	Err     string              `json:"error,omitempty"`
	Version uint64              `json:"version"`
}

// Role returns the profile role, or "" when no profile is loaded.
func (s State) Role() domainauth.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

// SessionSource resolves a session by id. It returns (nil, nil) when the session does not exist.
type SessionSource interface {
	Session(ctx context.Context, id string) (*domainauth.Session, error)
}

// ProfileSource reads the profile row for an identity.
type ProfileSource interface {
	GetByUserID(ctx context.Context, userID string) (*domainauth.Profile, error)
}

// SignOuter invalidates a session remotely.
type SignOuter interface {
	SignOut(ctx context.Context, sess domainauth.Session) error
}
