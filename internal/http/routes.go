package httpx

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	marketplace "github.com/asktourist/marketplace"
	"github.com/asktourist/marketplace/config"
	"github.com/asktourist/marketplace/internal/guard"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth      AuthServiceInterface      // Required
	States    StateManager              // Required
	Approvals ApprovalServiceInterface  // Optional
	Dashboard DashboardServiceInterface // Optional
	Table     *guard.Table              // Defaults to guard.DefaultTable()
	Edge      EdgeFilterConfig          // Defaults to DefaultEdgeFilterConfig()

	HealthChecks map[string]HealthCheck // Optional readiness probes

	Session config.SessionConfig
	HTTP    config.HTTPConfig

	// TemplateFS and StaticFS override the embedded assets; IsDev reads them from disk instead.
	TemplateFS fs.FS
	StaticFS   fs.FS
	IsDev      bool
	Logger     *slog.Logger
}

// NewRouter builds the application handler: the edge filter and CSRF protection in front of a
// mux whose page routes sit behind the route guard.
func NewRouter(services RouterServices) (http.Handler, error) {
	if services.Auth == nil || services.States == nil {
		return nil, errors.New("router requires Auth and States")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if services.Table == nil {
		services.Table = guard.DefaultTable()
	}

	templateFS, staticFS, err := resolveAssets(services)
	if err != nil {
		return nil, err
	}
	tr, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("template renderer: %w", err)
	}

	cookies := CookieConfig{
		AccessName:  services.Session.AccessCookie,
		RefreshName: services.Session.RefreshCookie,
		Domain:      services.HTTP.CookieDomain,
	}.withDefaults()

	guarded := Guard(GuardConfig{
		Auth:          services.Auth,
		States:        services.States,
		Table:         services.Table,
		Cookies:       cookies,
		SettleTimeout: services.Session.SettleTimeout,
		Renderer:      tr,
		Logger:        logger,
	})
	pages := &PageHandlers{T: tr, Dashboard: services.Dashboard, Approvals: services.Approvals, Logger: logger}
	auth := NewAuthHandlers(AuthHandlersOptions{
		Svc:           services.Auth,
		States:        services.States,
		Table:         services.Table,
		Cookies:       cookies,
		Renderer:      tr,
		BaseURL:       services.HTTP.BaseURL,
		SettleTimeout: services.Session.SettleTimeout,
		FetchTimeout:  services.Session.FetchTimeout,
		Logger:        logger,
	})

	mux := http.NewServeMux()
	registerPageRoutes(mux, pages, guarded)
	registerAuthRoutes(mux, auth)
	registerHealthRoutes(mux, services.HealthChecks)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	edge := services.Edge
	if len(edge.CookieNames) == 0 {
		edge.CookieNames = []string{cookies.AccessName, cookies.RefreshName}
	}

	var h http.Handler = mux
	h = CSRFProtection(CSRFConfig{CookieDomain: services.HTTP.CookieDomain, Logger: logger})(h)
	h = EdgeFilter(edge)(h)
	h = SecurityHeaders()(h)
	return h, nil
}

func registerPageRoutes(mux *http.ServeMux, h *PageHandlers, guarded func(http.Handler) http.Handler) {
	page := func(pattern string, fn http.HandlerFunc) { mux.Handle(pattern, guarded(fn)) }

	page("GET /{$}", h.Static(PageMeta{Title: "AskTourist", CurrentPage: PageHome}))
	page("GET /signup/customer", h.Static(PageMeta{Title: "Create your account", CurrentPage: PageSignupCustomer}))
	page("GET /signup/vendor", h.Static(PageMeta{Title: "Become a Vendor", CurrentPage: PageSignupVendor}))
	page("GET /signup/verify", h.Static(PageMeta{Title: "Check your email", CurrentPage: PageSignupVerify}))
	page("GET /signup/pending-approval", h.Static(PageMeta{Title: "Awaiting Approval", CurrentPage: PageSignupPending}))
	page("GET /login/customer", h.Static(PageMeta{Title: "Log in", CurrentPage: PageLoginCustomer}))
	page("GET /login/vendor", h.Static(PageMeta{Title: "Vendor Login", CurrentPage: PageLoginVendor}))
	page("GET "+guard.PendingApprovalPath, h.LoginPending)

	page("GET /vendor/dashboard", h.VendorDashboard)
	page("GET /customer/dashboard", h.Static(PageMeta{Title: "My Trips", CurrentPage: PageCustomerDashboard}))
	page("GET /admin/dashboard", h.AdminDashboard)
	page("POST /admin/dashboard/vendors/{id}/approve", h.ApproveVendor)
	page("POST /admin/dashboard/vendors/{id}/reject", h.RejectVendor)
	page("GET /profile", h.Static(PageMeta{Title: "Your profile", CurrentPage: PageProfile}))

	page("/", h.NotFound)
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers) {
	mux.HandleFunc("POST /signup/customer", h.SignUpCustomer)
	mux.HandleFunc("POST /signup/vendor", h.SignUpVendor)
	mux.HandleFunc("POST /login/customer", h.LogInCustomer)
	mux.HandleFunc("POST /login/vendor", h.LogInVendor)

	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("GET /auth/watch", h.Watch)
	mux.HandleFunc("POST /auth/profile/refresh", h.RefreshProfile)
	mux.HandleFunc("GET /auth/sso/login", h.SSOLogin)
	mux.HandleFunc("GET "+ssoCallbackPath, h.SSOCallback)
}

func registerHealthRoutes(mux *http.ServeMux, checks map[string]HealthCheck) {
	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)
	ready := readinessHandler(checks)
	mux.HandleFunc("GET /readyz", ready)
	mux.HandleFunc("HEAD /readyz", ready)
}

// resolveAssets picks the template and static filesystems: explicit overrides first, then the
// working tree in dev mode, then the embedded copies.
func resolveAssets(s RouterServices) (fs.FS, fs.FS, error) {
	templateFS, staticFS := s.TemplateFS, s.StaticFS
	if s.IsDev {
		if templateFS == nil {
			templateFS = os.DirFS(TemplatePathFromRoot)
		}
		if staticFS == nil {
			staticFS = os.DirFS(StaticPathFromRoot)
		}
	}

	var err error
	if templateFS == nil {
		if templateFS, err = fs.Sub(marketplace.TemplateFS, TemplatePathFromRoot); err != nil {
			return nil, nil, fmt.Errorf("embedded templates: %w", err)
		}
	}
	if staticFS == nil {
		if staticFS, err = fs.Sub(marketplace.StaticFS, StaticPathFromRoot); err != nil {
			return nil, nil, fmt.Errorf("embedded static assets: %w", err)
		}
	}
	return templateFS, staticFS, nil
}
