package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/asktourist/marketplace/internal/authstate"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/guard"
	"github.com/asktourist/marketplace/internal/service"
)

const (
	defaultFetchTimeout = 5 * time.Second
	watchKeepAlive      = 25 * time.Second
	ssoCallbackPath     = "/auth/sso/callback"
)

// AuthHandlersOptions groups dependencies for AuthHandlers.
type AuthHandlersOptions struct {
	Svc      AuthServiceInterface // Required
	States   StateManager         // Required
	Table    *guard.Table
	Cookies  CookieConfig
	Renderer *TemplateRenderer
	BaseURL  string // public base URL, used to build the SSO callback

	SettleTimeout time.Duration
	FetchTimeout  time.Duration
	Logger        *slog.Logger
}

// AuthHandlers provides the form posts and endpoints that create, inspect and end sessions.
type AuthHandlers struct {
	svc      AuthServiceInterface
	states   StateManager
	table    *guard.Table
	cookies  CookieConfig
	renderer *TemplateRenderer
	baseURL  string
	settle   time.Duration
	fetch    time.Duration
	viewers  *viewerResolver
	logger   *slog.Logger
}

// NewAuthHandlers constructs AuthHandlers.
func NewAuthHandlers(opts AuthHandlersOptions) *AuthHandlers {
	if opts.Svc == nil || opts.States == nil {
		//nolint:forbidigo // wiring error, caught at startup
		panic("AuthHandlers requires Svc and States")
	}
	if opts.Table == nil {
		opts.Table = guard.DefaultTable()
	}
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = defaultSettleTimeout
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cookies := opts.Cookies.withDefaults()
	return &AuthHandlers{
		svc:      opts.Svc,
		states:   opts.States,
		table:    opts.Table,
		cookies:  cookies,
		renderer: opts.Renderer,
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		settle:   opts.SettleTimeout,
		fetch:    opts.FetchTimeout,
		viewers:  &viewerResolver{auth: opts.Svc, states: opts.States, cookies: cookies},
		logger:   opts.Logger.With("component", "auth_handlers"),
	}
}

// formPage identifies the page a form post re-renders on failure.
type formPage struct {
	meta     PageMeta
	fallback string
}

// renderFormError re-renders a form with the banner and field errors derived from err. Submitted
// values are echoed back, except the password.
func (h *AuthHandlers) renderFormError(w http.ResponseWriter, r *http.Request, page formPage, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "form submission failed", "page", page.meta.CurrentPage, "error", err)
	}

	form := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		if k != "password" && k != DefaultCSRFCookieName {
			form[k] = r.PostForm.Get(k)
		}
	}
	var fieldErrs map[string]string
	if field := apperrors.GetField(err); field != "" {
		fieldErrs = map[string]string{field: apperrors.UserMessage(err, "")}
	}

	data := NewTemplateData(r, page.meta).
		WithError(apperrors.UserMessage(err, page.fallback)).
		WithFieldErrors(fieldErrs).
		WithForm(form).
		With("Redirect", safeRedirectOrEmpty(r.PostFormValue("redirect"))).
		Build()
	if h.renderer == nil {
		WriteAppError(w, err)
		return
	}
	if renderErr := h.renderer.RenderFull(w, status, data); renderErr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *AuthHandlers) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return false
	}
	return true
}

// SignUpCustomer handles POST /signup/customer.
func (h *AuthHandlers) SignUpCustomer(w http.ResponseWriter, r *http.Request) {
	h.signUp(w, r, false)
}

// SignUpVendor handles POST /signup/vendor.
func (h *AuthHandlers) SignUpVendor(w http.ResponseWriter, r *http.Request) {
	h.signUp(w, r, true)
}

func (h *AuthHandlers) signUp(w http.ResponseWriter, r *http.Request, vendor bool) {
	if !h.parseForm(w, r) {
		return
	}
	req := domainauth.SignUpRequest{
		Name:     r.PostForm.Get("name"),
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
		IsVendor: vendor,
	}
	page := formPage{meta: PageMeta{Title: "Create your account", CurrentPage: PageSignupCustomer}, fallback: "An error occurred during sign up"}
	next := "/signup/verify"
	if vendor {
		req.CompanyName = r.PostForm.Get("company_name")
		req.Location = r.PostForm.Get("location")
		req.SocialLinks = map[string]string{
			"website":   r.PostForm.Get("website"),
			"instagram": r.PostForm.Get("instagram"),
			"facebook":  r.PostForm.Get("facebook"),
		}
		page.meta = PageMeta{Title: "Become a Vendor", CurrentPage: PageSignupVendor}
		next = "/signup/pending-approval"
	}

	if _, err := h.svc.SignUp(r.Context(), req); err != nil {
		h.renderFormError(w, r, page, err)
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func loginRequest(r *http.Request) domainauth.LoginRequest {
	return domainauth.LoginRequest{Email: r.PostForm.Get("email"), Password: r.PostForm.Get("password")}
}

// LogInCustomer handles POST /login/customer.
func (h *AuthHandlers) LogInCustomer(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	sess, err := h.svc.LogIn(r.Context(), loginRequest(r))
	if err != nil {
		h.renderFormError(w, r, formPage{
			meta:     PageMeta{Title: "Log in", CurrentPage: PageLoginCustomer},
			fallback: "An error occurred during login",
		}, err)
		return
	}
	h.cookies.setSession(w, r, sess)
	http.Redirect(w, r, h.cookies.postLoginTarget(w, r, "/customer/dashboard"), http.StatusSeeOther)
}

// LogInVendor handles POST /login/vendor. Accounts without the vendor flag are signed out again
// and shown the vendor error; unapproved vendors land on the pending-approval page.
func (h *AuthHandlers) LogInVendor(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	res, err := h.svc.VendorLogIn(r.Context(), loginRequest(r))
	if err != nil {
		h.renderFormError(w, r, formPage{
			meta:     PageMeta{Title: "Vendor Login", CurrentPage: PageLoginVendor},
			fallback: "An error occurred during login",
		}, err)
		return
	}
	h.cookies.setSession(w, r, res.Session)
	if res.Next == guard.PendingApprovalPath {
		h.cookies.takeRemembered(w, r)
		http.Redirect(w, r, guard.PendingApprovalPath, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.cookies.postLoginTarget(w, r, res.Next), http.StatusSeeOther)
}

// Logout handles POST /auth/logout. The session behind the cookies is invalidated through the
// viewer's state store, even when that store has not finished loading it. When that fails the
// cookies are kept and the error is reported, so nothing is half signed out.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	viewer, err := h.viewers.resolve(w, r, h.fetch)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "resolve session for logout", "error", err)
		renderAuthUnavailable(w, r, h.renderer)
		return
	}

	if viewer.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.fetch)
		defer cancel()
		signOut := viewer.Store.SignOut
		if viewer.Session != nil {
			known := *viewer.Session
			signOut = func(ctx context.Context) error { return viewer.Store.SignOutSession(ctx, known) }
		}
		if err := signOut(ctx); err != nil {
			h.logger.WarnContext(r.Context(), "sign out failed", "session_id", viewer.Store.ID(), "error", err)
			h.signOutFailed(w, r)
			return
		}
		h.states.Forget(viewer.Store.ID())
	}
	h.cookies.clearSession(w, r)

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "redirect_to": guard.RootPath})
		return
	}
	http.Redirect(w, r, guard.RootPath, http.StatusSeeOther)
}

func (h *AuthHandlers) signOutFailed(w http.ResponseWriter, r *http.Request) {
	const msg = "We could not sign you out. Please try again."
	if wantsJSON(r) || h.renderer == nil {
		WriteError(w, ErrorParams{Code: http.StatusBadGateway, ErrCode: "sign_out_failed", Err: errors.New(msg)})
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Sign out failed"}).WithError(msg).With("ShowSignOut", true).Build()
	if err := h.renderer.RenderError(w, http.StatusBadGateway, data); err != nil {
		http.Error(w, msg, http.StatusBadGateway)
	}
}

// statusResponse is the JSON body of GET /auth/status.
type statusResponse struct {
	Authenticated bool   `json:"authenticated"`
	Home          string `json:"home"`
	authstate.State
}

// Status handles GET /auth/status with a snapshot of the viewer's auth state.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	viewer, err := h.viewers.resolve(w, r, h.settle)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "resolve auth status", "error", err)
		WriteAppError(w, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "Authentication service unavailable"))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, statusResponse{
		Authenticated: viewer.State.User != nil,
		Home:          guard.HomeFor(viewer.State.Profile),
		State:         viewer.State,
	})
}

// Watch handles GET /auth/watch?path=<path>. It streams guard decisions for path as server-sent
// events, emitting a new event only when the decision changes.
func (h *AuthHandlers) Watch(w http.ResponseWriter, r *http.Request) {
	path := safeRedirectPath(r.URL.Query().Get("path"))
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	policy, _ := h.table.Lookup(path)

	viewer, err := h.viewers.resolve(w, r, 0)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "resolve watcher session", "error", err)
		WriteAppError(w, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "Authentication service unavailable"))
		return
	}

	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if viewer.Store == nil {
		_ = writeDecisionEvent(w, rc, guard.Evaluate(viewer.State, policy, path))
		return
	}

	decisions := guard.Watch(r.Context(), viewer.Store, policy, path)
	keepAlive := time.NewTicker(watchKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case d, ok := <-decisions:
			if !ok {
				return
			}
			if err := writeDecisionEvent(w, rc, d); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeDecisionEvent(w http.ResponseWriter, rc *http.ResponseController, d guard.Decision) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: decision\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return rc.Flush()
}

// RefreshProfile handles POST /auth/profile/refresh: it re-reads the viewer's profile and sends
// them back to the page they came from.
func (h *AuthHandlers) RefreshProfile(w http.ResponseWriter, r *http.Request) {
	viewer, err := h.viewers.resolve(w, r, h.settle)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "resolve session for profile refresh", "error", err)
		renderAuthUnavailable(w, r, h.renderer)
		return
	}
	back := safeRedirectPath(r.PostFormValue("redirect"))
	if viewer.Store == nil || viewer.State.User == nil {
		http.Redirect(w, r, guard.LoginPathFor(back), http.StatusSeeOther)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.fetch)
	defer cancel()
	if err := viewer.Store.RefreshProfile(ctx, viewer.State.User.ID); err != nil {
		h.logger.WarnContext(r.Context(), "profile refresh failed", "user_id", viewer.State.User.ID, "error", err)
	}

	if wantsJSON(r) {
		WriteJSON(w, http.StatusOK, statusResponse{
			Authenticated: true,
			Home:          guard.HomeFor(viewer.Store.Snapshot().Profile),
			State:         viewer.Store.Snapshot(),
		})
		return
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// SSOLogin handles GET /auth/sso/login: it starts the operator sign-in flow.
func (h *AuthHandlers) SSOLogin(w http.ResponseWriter, r *http.Request) {
	redirect := safeRedirectPath(r.URL.Query().Get("redirect"))
	if redirect == "/" {
		redirect = guard.AdminHomePath
	}

	result, err := h.svc.BeginSSO(r.Context(), h.baseURL+ssoCallbackPath)
	if err != nil {
		if !apperrors.IsNotFound(err) {
			h.logger.ErrorContext(r.Context(), "begin sso", "error", err)
		}
		WriteAppError(w, err)
		return
	}

	h.cookies.set(w, r, oauthStateCookie, result.State, shortLivedCookieAge)
	h.cookies.set(w, r, oauthNonceCookie, result.Nonce, shortLivedCookieAge)
	h.cookies.set(w, r, postLoginSSOCookie, redirect, shortLivedCookieAge)
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// SSOCallback handles GET /auth/sso/callback?code=<code>&state=<state>.
func (h *AuthHandlers) SSOCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_parameters",
			Err:     errors.New("authorization code and state are required"),
		})
		return
	}
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie(oauthNonceCookie)
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}

	sess, err := h.svc.CompleteSSO(r.Context(), service.CompleteLoginInput{
		Code:  code,
		State: state,
		Nonce: nonceCookie.Value,
	})
	h.cookies.clear(w, r, oauthStateCookie)
	h.cookies.clear(w, r, oauthNonceCookie)
	if err != nil {
		h.logger.WarnContext(r.Context(), "sso callback failed", "error", err)
		WriteAppError(w, err)
		return
	}
	h.cookies.setSession(w, r, sess)

	redirect := guard.AdminHomePath
	if c, err := r.Cookie(postLoginSSOCookie); err == nil {
		if p := safeRedirectPath(c.Value); p != "/" {
			redirect = p
		}
		h.cookies.clear(w, r, postLoginSSOCookie)
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}
