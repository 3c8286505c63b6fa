package httpx

import (
	"context"

	"github.com/asktourist/marketplace/internal/authstate"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

// viewerKey is an unexported context key type to avoid collisions across packages.
// Centralized in this file so all handlers/middleware use the same key.
type viewerKey struct{}

// Viewer is what the guard resolved for the current request.
type Viewer struct {
	State authstate.State
	Store *authstate.Store // nil for signed-out viewers

	// Session is the session behind the request cookies, known even while Store is loading.
	Session *domainauth.Session
}

// SetViewerInContext returns a child context that carries v.
func SetViewerInContext(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// GetViewerFromContext returns the viewer and whether one was attached.
func GetViewerFromContext(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerKey{}).(Viewer)
	return v, ok
}

// GetSessionFromContext returns the signed-in session, or nil.
func GetSessionFromContext(ctx context.Context) *domainauth.Session {
	if v, ok := GetViewerFromContext(ctx); ok {
		return v.State.Session
	}
	return nil
}

// GetProfileFromContext returns the signed-in profile, or nil.
func GetProfileFromContext(ctx context.Context) *domainauth.Profile {
	if v, ok := GetViewerFromContext(ctx); ok {
		return v.State.Profile
	}
	return nil
}
