package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asktourist/marketplace/config"
	"github.com/asktourist/marketplace/internal/authstate"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	fakes "github.com/asktourist/marketplace/internal/mocks/auth"
	"github.com/asktourist/marketplace/internal/ports"
	"github.com/asktourist/marketplace/internal/service"
)

const testCSRFToken = "test-csrf-token"

// requireTemplateRenderer parses the page templates from the working tree.
func requireTemplateRenderer(t *testing.T) *TemplateRenderer {
	t.Helper()
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: os.DirFS(TemplatePathFromTest)})
	require.NoError(t, err)
	return tr
}

type stubDashboard struct {
	stats ports.VendorStats
	err   error
}

func (s stubDashboard) VendorStats(context.Context, string) (ports.VendorStats, error) {
	return s.stats, s.err
}

// app wires the real auth service and state manager over in-memory fakes behind the router.
type app struct {
	t        *testing.T
	identity *fakes.FakeIdentityProvider
	sessions *fakes.MemorySessionStore
	profiles *fakes.MemoryProfileRepo
	events   *fakes.MemoryEventBus
	svc      *service.AuthService
	states   *authstate.Manager
	services RouterServices
	handler  http.Handler
}

func newApp(t *testing.T, mutate ...func(*RouterServices)) *app {
	t.Helper()
	a := &app{
		t:        t,
		identity: fakes.NewFakeIdentityProvider(),
		sessions: fakes.NewMemorySessionStore(),
		profiles: fakes.NewMemoryProfileRepo(),
		events:   fakes.NewMemoryEventBus(),
	}
	sessCfg := config.SessionConfig{
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		FetchTimeout:  time.Second,
		SettleTimeout: 2 * time.Second,
	}
	a.svc = service.NewAuthService(service.AuthServiceOptions{
		Identity: a.identity,
		Sessions: a.sessions,
		Profiles: a.profiles,
		Events:   a.events,
		Session:  sessCfg,
	})
	a.states = authstate.NewManager(authstate.ManagerOptions{
		Sessions:     a.svc,
		Profiles:     a.profiles,
		SignOuter:    a.svc,
		Events:       a.events,
		FetchTimeout: sessCfg.FetchTimeout,
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.states.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = a.states.Close()
	})

	services := RouterServices{
		Auth:       a.svc,
		States:     a.states,
		Approvals:  service.NewApprovalService(service.ApprovalServiceOptions{Profiles: a.profiles, Events: a.events}),
		Dashboard:  stubDashboard{stats: ports.VendorStats{Packages: 3, Bookings: 1200}},
		Session:    sessCfg,
		TemplateFS: os.DirFS(TemplatePathFromTest),
		StaticFS:   os.DirFS("../../web/static"),
	}
	a.services = services
	a.reroute(mutate...)
	return a
}

// reroute rebuilds the handler after applying mutate to the router services.
func (a *app) reroute(mutate ...func(*RouterServices)) {
	a.t.Helper()
	for _, m := range mutate {
		m(&a.services)
	}
	h, err := NewRouter(a.services)
	require.NoError(a.t, err)
	a.handler = h
}

// useStates swaps in a state manager whose stores read sessions from src.
func (a *app) useStates(src authstate.SessionSource, fetchTimeout time.Duration) *authstate.Manager {
	a.t.Helper()
	m := authstate.NewManager(authstate.ManagerOptions{
		Sessions:     src,
		Profiles:     a.profiles,
		SignOuter:    a.svc,
		FetchTimeout: fetchTimeout,
	})
	a.t.Cleanup(func() { _ = m.Close() })
	a.reroute(func(rs *RouterServices) { rs.States = m })
	return m
}

type sessionSourceFunc func(ctx context.Context, id string) (*domainauth.Session, error)

func (f sessionSourceFunc) Session(ctx context.Context, id string) (*domainauth.Session, error) {
	return f(ctx, id)
}

// account signs up an identity with the given role and logs it in.
func (a *app) account(email string, role domainauth.Role, approved bool) domainauth.Session {
	a.t.Helper()
	ctx := context.Background()
	req := domainauth.SignUpRequest{Name: "Test User", Email: email, Password: "password1"}
	if role == domainauth.RoleVendor {
		req.IsVendor = true
		req.CompanyName = "Sol Tours"
		req.Location = "Lisbon"
	}
	user, err := a.svc.SignUp(ctx, req)
	require.NoError(a.t, err)

	switch {
	case role == domainauth.RoleAdmin:
		_, err = a.profiles.EnsureAdmin(ctx, user.ID, "Admin")
		require.NoError(a.t, err)
	case role == domainauth.RoleVendor && approved:
		_, err = a.profiles.SetApproval(ctx, ports.SetApprovalInput{UserID: user.ID, Approved: true})
		require.NoError(a.t, err)
	}

	sess, err := a.svc.LogIn(ctx, domainauth.LoginRequest{Email: email, Password: "password1"})
	require.NoError(a.t, err)
	return sess
}

func (a *app) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *app) get(path string, sess *domainauth.Session) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	withSession(req, sess)
	return a.do(req)
}

func (a *app) post(path string, form url.Values, sess *domainauth.Session) *httptest.ResponseRecorder {
	return a.do(newFormRequest(path, form, sess))
}

// newFormRequest builds a form POST that passes CSRF validation.
func newFormRequest(path string, form url.Values, sess *domainauth.Session) *http.Request {
	if form == nil {
		form = url.Values{}
	}
	form.Set(DefaultCSRFCookieName, testCSRFToken)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: DefaultCSRFCookieName, Value: testCSRFToken})
	withSession(req, sess)
	return req
}

func withSession(req *http.Request, sess *domainauth.Session) {
	if sess == nil {
		return
	}
	req.AddCookie(&http.Cookie{Name: DefaultAccessCookie, Value: sess.AccessToken})
	req.AddCookie(&http.Cookie{Name: DefaultRefreshCookie, Value: sess.RefreshToken})
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
