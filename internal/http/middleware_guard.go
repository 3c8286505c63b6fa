package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/asktourist/marketplace/internal/authstate"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	"github.com/asktourist/marketplace/internal/guard"
	"github.com/asktourist/marketplace/internal/service"
)

const defaultSettleTimeout = 2 * time.Second

// AuthServiceInterface is the slice of service.AuthService the HTTP layer uses.
type AuthServiceInterface interface {
	SignUp(ctx context.Context, req domainauth.SignUpRequest) (domainauth.User, error)
	LogIn(ctx context.Context, req domainauth.LoginRequest) (domainauth.Session, error)
	VendorLogIn(ctx context.Context, req domainauth.LoginRequest) (*service.VendorLoginResult, error)
	CurrentSession(ctx context.Context, c service.Credentials) (*domainauth.Session, bool, error)
	BeginSSO(ctx context.Context, redirectURL string) (*service.BeginLoginResult, error)
	CompleteSSO(ctx context.Context, in service.CompleteLoginInput) (domainauth.Session, error)
}

// StateManager hands out the per-session auth state stores.
type StateManager interface {
	Get(sessionID string) (*authstate.Store, error)
	Forget(sessionID string)
}

// viewerResolver turns the auth cookies of a request into a settled auth state.
type viewerResolver struct {
	auth    AuthServiceInterface
	states  StateManager
	cookies CookieConfig
}

// resolve looks up the session behind the cookies (rotating them when the access token lapsed),
// then waits up to wait for the session's store to settle. A store still loading after wait is
// returned as is. Requests without a usable session get a settled signed-out state.
func (v *viewerResolver) resolve(w http.ResponseWriter, r *http.Request, wait time.Duration) (Viewer, error) {
	access, refresh := v.cookies.credentials(r)
	if access == "" && refresh == "" {
		return Viewer{}, nil
	}

	ctx := r.Context()
	sess, refreshed, err := v.auth.CurrentSession(ctx, service.Credentials{AccessToken: access, RefreshToken: refresh})
	switch {
	case errors.Is(err, service.ErrNoSession):
		v.cookies.clearSession(w, r)
		return Viewer{}, nil
	case err != nil:
		return Viewer{}, err
	}
	if refreshed {
		v.cookies.setSession(w, r, *sess)
	}

	if wait <= 0 {
		store, err := v.states.Get(sess.ID)
		if err != nil {
			return Viewer{}, err
		}
		return Viewer{State: store.Snapshot(), Store: store, Session: sess}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	// A store evicted between Get and WaitSettled is closed; the next Get starts a fresh one.
	for attempt := 0; ; attempt++ {
		store, err := v.states.Get(sess.ID)
		if err != nil {
			return Viewer{}, err
		}
		st, err := store.WaitSettled(waitCtx)
		switch {
		case errors.Is(err, authstate.ErrClosed) && attempt == 0:
			continue
		case err != nil && !errors.Is(err, context.DeadlineExceeded):
			return Viewer{}, err
		}
		return Viewer{State: st, Store: store, Session: sess}, nil
	}
}

// GuardConfig configures the route guard middleware.
type GuardConfig struct {
	Auth          AuthServiceInterface // Required
	States        StateManager         // Required
	Table         *guard.Table         // Defaults to guard.DefaultTable()
	Cookies       CookieConfig
	SettleTimeout time.Duration
	Renderer      *TemplateRenderer // Loading and error pages; plain text when nil
	Logger        *slog.Logger
}

// Guard enforces the route table. For a matching route it waits for the viewer's auth state to
// settle (bounded by SettleTimeout) and then either renders a self-refreshing placeholder, redirects
// (remembering the attempted path for signed-out viewers), or lets the request through with the
// viewer in its context. Unmatched paths pass through, carrying the viewer when it settled in time.
func Guard(cfg GuardConfig) func(http.Handler) http.Handler {
	if cfg.Auth == nil || cfg.States == nil {
		//nolint:forbidigo // wiring error, caught at startup
		panic("Guard requires Auth and States")
	}
	if cfg.Table == nil {
		cfg.Table = guard.DefaultTable()
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Cookies = cfg.Cookies.withDefaults()
	viewers := &viewerResolver{auth: cfg.Auth, states: cfg.States, cookies: cfg.Cookies}
	logger := cfg.Logger.With("component", "route_guard")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, matched := cfg.Table.Lookup(r.URL.Path)

			viewer, err := viewers.resolve(w, r, cfg.SettleTimeout)
			if err != nil {
				logger.ErrorContext(r.Context(), "resolve auth state", "path", r.URL.Path, "error", err)
				renderAuthUnavailable(w, r, cfg.Renderer)
				return
			}

			if !matched {
				if !viewer.State.Loading {
					r = r.WithContext(SetViewerInContext(r.Context(), viewer))
				}
				next.ServeHTTP(w, r)
				return
			}

			d := guard.Evaluate(viewer.State, policy, r.URL.Path)
			switch d.Action {
			case guard.Wait:
				renderLoading(w, r, cfg.Renderer)
			case guard.Redirect:
				if d.RememberPath != "" {
					cfg.Cookies.rememberPath(w, r, r.URL.RequestURI())
				}
				logger.DebugContext(r.Context(), "guard redirect", "path", r.URL.Path, "location", d.Location)
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			default:
				next.ServeHTTP(w, r.WithContext(SetViewerInContext(r.Context(), viewer)))
			}
		})
	}
}

func renderLoading(w http.ResponseWriter, r *http.Request, renderer *TemplateRenderer) {
	if renderer != nil {
		data := NewTemplateData(r, PageMeta{Title: "Loading"}).With("RefreshURL", r.URL.RequestURI()).Build()
		if err := renderer.RenderLoading(w, data); err == nil {
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Refresh", "1")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Loading..."))
}

func renderAuthUnavailable(w http.ResponseWriter, r *http.Request, renderer *TemplateRenderer) {
	const msg = "We could not verify your session right now. Please try again in a moment."
	if wantsJSON(r) || renderer == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "auth_unavailable",
			Err:     errors.New(msg),
		})
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Service unavailable"}).WithError(msg).Build()
	if err := renderer.RenderError(w, http.StatusServiceUnavailable, data); err != nil {
		http.Error(w, msg, http.StatusServiceUnavailable)
	}
}
