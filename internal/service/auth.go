package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/asktourist/marketplace/config"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/guard"
	"github.com/asktourist/marketplace/internal/ports"
)

var (
	// ErrNoSession is returned when the presented credentials do not resolve to a live session.
	ErrNoSession = errors.New("no session")

	// ErrNotVendor is returned by VendorLogIn for accounts that are not registered as vendors.
	ErrNotVendor = apperrors.Forbidden(
		"This account is not registered as a vendor. Please log in as a customer or register as a vendor.",
	)

	// ErrForbidden is returned when an SSO identity does not map to the admin role.
	ErrForbidden = apperrors.Forbidden("Your account is not allowed to access the admin console.")

	// ErrSSODisabled is returned by the SSO flow when no provider is configured.
	ErrSSODisabled = apperrors.NotFound("Single sign-on is not configured")
)

const compensationTimeout = 10 * time.Second

// SSOOptions groups the optional operator sign-in dependencies.
type SSOOptions struct {
	Provider ports.SSOProvider
	Roles    ports.RoleMapper
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Identity ports.IdentityProvider    // Required
	Sessions ports.SessionStore        // Required
	Profiles ports.ProfileRepository   // Required
	SSO      SSOOptions                // Optional
	Events   ports.AuthEventBus        // Optional: SIGNED_IN/SIGNED_OUT/TOKEN_REFRESHED fan-out
	Orphans  ports.OrphanQueue         // Optional: repair queue for failed sign-up compensation
	Limiter  *LoginLimiter             // Optional
	Session  config.SessionConfig
	Logger   *slog.Logger
}

// AuthService orchestrates sign-up, log-in, session refresh and sign-out against the identity
// service, the profile table and the session store.
type AuthService struct {
	identity ports.IdentityProvider
	sessions ports.SessionStore
	profiles ports.ProfileRepository
	sso      SSOOptions
	events   ports.AuthEventBus
	orphans  ports.OrphanQueue
	limiter  *LoginLimiter
	cfg      config.SessionConfig
	logger   *slog.Logger
	now      func() time.Time

	refreshes singleflight.Group
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.Identity == nil || opts.Sessions == nil || opts.Profiles == nil {
		//nolint:forbidigo // wiring error, caught at startup
		panic("AuthService requires Identity, Sessions and Profiles")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Session
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		cfg.RefreshTTL = cfg.AccessTTL
	}
	return &AuthService{
		identity: opts.Identity,
		sessions: opts.Sessions,
		profiles: opts.Profiles,
		sso:      opts.SSO,
		events:   opts.Events,
		orphans:  opts.Orphans,
		limiter:  opts.Limiter,
		cfg:      cfg,
		logger:   logger.With("component", "auth_service"),
		now:      time.Now,
	}
}

// SignUp creates the remote identity and then its profile. Vendors start unapproved; customers are
// approved immediately. If the profile insert fails the identity is deleted again, and if that
// fails too it is queued for the orphan reaper. The caller always gets the profile error.
func (s *AuthService) SignUp(ctx context.Context, req domainauth.SignUpRequest) (domainauth.User, error) {
	req.Normalize()
	if fe := req.Validate(); fe != nil {
		return domainauth.User{}, apperrors.ValidationField(fe.Field, fe.Message)
	}

	ident, err := s.identity.SignUp(ctx, ports.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Metadata: map[string]any{"name": req.Name, "is_vendor": req.IsVendor},
	})
	if err != nil {
		return domainauth.User{}, fmt.Errorf("sign up: %w", err)
	}

	in := ports.CreateProfileInput{
		UserID:     ident.UserID,
		Name:       req.Name,
		Role:       req.Role(),
		IsVendor:   req.IsVendor,
		IsApproved: !req.IsVendor,
	}
	if req.IsVendor {
		in.CompanyName = &req.CompanyName
		in.Location = &req.Location
		in.SocialLinks = cleanLinks(req.SocialLinks)
	}
	if _, createErr := s.profiles.Create(ctx, in); createErr != nil {
		s.compensateSignUp(ctx, ident, createErr)
		return domainauth.User{}, fmt.Errorf("create profile: %w", createErr)
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", ident.UserID, "role", in.Role)
	user := ident.User()
	if user.Name == "" {
		user.Name = req.Name
	}
	return user, nil
}

func (s *AuthService) compensateSignUp(ctx context.Context, ident domainauth.Identity, cause error) {
	s.logger.WarnContext(ctx, "profile insert failed, deleting identity",
		"user_id", ident.UserID, "error", cause)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	delErr := s.identity.DeleteUser(cctx, ident.UserID)
	if delErr == nil || apperrors.IsNotFound(delErr) {
		return
	}

	if s.orphans == nil {
		s.logger.ErrorContext(ctx, "identity left without profile",
			"user_id", ident.UserID, "error", delErr)
		return
	}
	orphan := ports.Orphan{
		UserID:     ident.UserID,
		Email:      ident.Email,
		Reason:     cause.Error(),
		Attempts:   1,
		EnqueuedAt: s.now().UTC(),
	}
	if qErr := s.orphans.Enqueue(cctx, orphan); qErr != nil {
		s.logger.ErrorContext(ctx, "identity left without profile, enqueue failed",
			"user_id", ident.UserID, "delete_error", delErr, "error", qErr)
		return
	}
	s.logger.WarnContext(ctx, "identity queued for repair", "user_id", ident.UserID, "error", delErr)
}

func cleanLinks(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	return out
}

// LogIn verifies email and password with the identity service and starts a session.
func (s *AuthService) LogIn(ctx context.Context, req domainauth.LoginRequest) (domainauth.Session, error) {
	req.Normalize()
	if fe := req.Validate(); fe != nil {
		return domainauth.Session{}, apperrors.ValidationField(fe.Field, fe.Message)
	}
	if s.limiter != nil && !s.limiter.Allow(req.Email) {
		return domainauth.Session{}, ErrRateLimited
	}

	ident, err := s.identity.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("log in: %w", err)
	}
	return s.startSession(ctx, ident, domainauth.ProviderPassword)
}

// VendorLoginResult is the outcome of a vendor log-in: the session and where to go next.
type VendorLoginResult struct {
	Session domainauth.Session
	Profile *domainauth.Profile
	Next    string
}

// VendorLogIn logs in and then checks the vendor flags on the profile. Non-vendors are signed out
// again and get ErrNotVendor. Unapproved vendors are sent to the pending-approval page.
func (s *AuthService) VendorLogIn(ctx context.Context, req domainauth.LoginRequest) (*VendorLoginResult, error) {
	sess, err := s.LogIn(ctx, req)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetByUserID(ctx, sess.User.ID)
	switch {
	case err != nil:
		s.revoke(ctx, sess)
		return nil, fmt.Errorf("load vendor profile: %w", err)
	case !profile.IsVendor:
		s.revoke(ctx, sess)
		return nil, ErrNotVendor
	}

	next := guard.VendorHomePath
	if !profile.IsApproved {
		next = guard.PendingApprovalPath
	}
	return &VendorLoginResult{Session: sess, Profile: profile, Next: next}, nil
}

// revoke signs a session out, logging rather than returning failures.
func (s *AuthService) revoke(ctx context.Context, sess domainauth.Session) {
	if err := s.SignOut(ctx, sess); err != nil {
		s.logger.WarnContext(ctx, "failed to revoke session", "session_id", sess.ID, "error", err)
	}
}

// Credentials are the two cookie values a browser presents.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// CurrentSession resolves the browser's session. A missing or lapsed access token is renewed
// through the refresh token; refreshed reports whether the tokens were rotated.
func (s *AuthService) CurrentSession(ctx context.Context, c Credentials) (*domainauth.Session, bool, error) {
	if c.AccessToken != "" {
		sess, err := s.sessions.GetByAccessToken(ctx, c.AccessToken)
		switch {
		case err == nil:
			return &sess, false, nil
		case !apperrors.IsNotFound(err):
			return nil, false, fmt.Errorf("get session: %w", err)
		}
	}
	if c.RefreshToken == "" {
		return nil, false, ErrNoSession
	}

	v, err, _ := s.refreshes.Do(c.RefreshToken, func() (any, error) {
		return s.refresh(ctx, c.RefreshToken)
	})
	if err != nil {
		return nil, false, err
	}
	sess := v.(domainauth.Session)
	return &sess, true, nil
}

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (domainauth.Session, error) {
	sess, err := s.sessions.GetByRefreshToken(ctx, refreshToken)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return domainauth.Session{}, ErrNoSession
		}
		return domainauth.Session{}, fmt.Errorf("get session by refresh token: %w", err)
	}

	if sess.ProviderRefreshToken != "" {
		ident, refreshErr := s.providerRefresh(ctx, sess)
		if refreshErr != nil {
			if apperrors.IsCode(refreshErr, apperrors.ErrCodeUnauthorized) {
				s.dropSession(ctx, sess)
				return domainauth.Session{}, ErrNoSession
			}
			return domainauth.Session{}, fmt.Errorf("refresh with identity provider: %w", refreshErr)
		}
		applyIdentity(&sess, ident)
	}

	now := s.now()
	sess.AccessToken = rand.Text()
	sess.RefreshToken = rand.Text()
	sess.ExpiresAt = now.Add(s.cfg.AccessTTL)
	sess.RefreshExpiresAt = now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("save session: %w", err)
	}

	s.publish(ctx, domainauth.EventTokenRefreshed, sess)
	return sess, nil
}

func (s *AuthService) providerRefresh(ctx context.Context, sess domainauth.Session) (domainauth.Identity, error) {
	if sess.Provider == domainauth.ProviderSSO {
		if s.sso.Provider == nil {
			return domainauth.Identity{}, apperrors.Unauthorized("single sign-on is no longer configured")
		}
		return s.sso.Provider.Refresh(ctx, sess.ProviderRefreshToken)
	}
	return s.identity.Refresh(ctx, sess.ProviderRefreshToken)
}

func applyIdentity(sess *domainauth.Session, ident domainauth.Identity) {
	if ident.Email != "" {
		sess.User.Email = ident.Email
	}
	if ident.Name != "" {
		sess.User.Name = ident.Name
	}
	if ident.AccessToken != "" {
		sess.ProviderAccessToken = ident.AccessToken
	}
	if ident.RefreshToken != "" {
		sess.ProviderRefreshToken = ident.RefreshToken
	}
}

func (s *AuthService) dropSession(ctx context.Context, sess domainauth.Session) {
	if err := s.sessions.Delete(ctx, sess); err != nil {
		s.logger.WarnContext(ctx, "failed to delete session", "session_id", sess.ID, "error", err)
		return
	}
	s.publish(ctx, domainauth.EventSignedOut, sess)
}

// Session returns the session by id, or nil when it does not exist. It backs the per-browser
// auth state stores.
func (s *AuthService) Session(ctx context.Context, id string) (*domainauth.Session, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// SignOut invalidates the session with the identity service first. Only when that succeeds is the
// local session deleted and SIGNED_OUT published; a remote failure leaves everything in place.
func (s *AuthService) SignOut(ctx context.Context, sess domainauth.Session) error {
	if sess.Provider != domainauth.ProviderSSO && sess.ProviderAccessToken != "" {
		if err := s.identity.SignOut(ctx, sess.ProviderAccessToken); err != nil {
			return fmt.Errorf("sign out: %w", err)
		}
	}
	if err := s.sessions.Delete(ctx, sess); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.publish(ctx, domainauth.EventSignedOut, sess)
	s.logger.InfoContext(ctx, "user signed out", "user_id", sess.User.ID, "session_id", sess.ID)
	return nil
}

// BeginLoginResult contains the result of beginning an SSO flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginSSO initiates the operator sign-in flow.
func (s *AuthService) BeginSSO(ctx context.Context, redirectURL string) (*BeginLoginResult, error) {
	if s.sso.Provider == nil {
		return nil, ErrSSODisabled
	}
	if redirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}

	authURL, state, nonce, err := s.sso.Provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing an SSO flow.
type CompleteLoginInput struct {
	Code  string
	State string
	Nonce string
}

// CompleteSSO exchanges the authorization code, admits only identities that map to the admin
// role, ensures their admin profile and starts a session.
func (s *AuthService) CompleteSSO(ctx context.Context, in CompleteLoginInput) (domainauth.Session, error) {
	if s.sso.Provider == nil {
		return domainauth.Session{}, ErrSSODisabled
	}
	if in.Code == "" {
		return domainauth.Session{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.Session{}, errors.New("state parameter is required")
	}
	if in.Nonce == "" {
		return domainauth.Session{}, errors.New("nonce parameter is required")
	}

	ident, err := s.sso.Provider.Exchange(ctx, ports.ExchangeInput(in))
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	if s.sso.Roles == nil || s.sso.Roles.Map(ident.Groups) != domainauth.RoleAdmin {
		s.logger.WarnContext(ctx, "sso sign-in denied", "user_id", ident.UserID, "groups", ident.Groups)
		return domainauth.Session{}, ErrForbidden
	}
	if _, err := s.profiles.EnsureAdmin(ctx, ident.UserID, ident.Name); err != nil {
		return domainauth.Session{}, fmt.Errorf("ensure admin profile: %w", err)
	}
	return s.startSession(ctx, ident, domainauth.ProviderSSO)
}

func (s *AuthService) startSession(
	ctx context.Context,
	ident domainauth.Identity,
	provider domainauth.Provider,
) (domainauth.Session, error) {
	now := s.now()
	sess := domainauth.Session{
		ID:                   uuid.NewString(),
		User:                 ident.User(),
		AccessToken:          rand.Text(),
		RefreshToken:         rand.Text(),
		Provider:             provider,
		ProviderAccessToken:  ident.AccessToken,
		ProviderRefreshToken: ident.RefreshToken,
		ExpiresAt:            now.Add(s.cfg.AccessTTL),
		RefreshExpiresAt:     now.Add(s.cfg.RefreshTTL),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("save session: %w", err)
	}
	s.publish(ctx, domainauth.EventSignedIn, sess)
	s.logger.InfoContext(ctx, "user logged in", "user_id", sess.User.ID, "provider", provider)
	return sess, nil
}

func (s *AuthService) publish(ctx context.Context, kind domainauth.EventKind, sess domainauth.Session) {
	if s.events == nil {
		return
	}
	evt := domainauth.Event{Kind: kind, SessionID: sess.ID, UserID: sess.User.ID, At: s.now().UTC()}
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.WarnContext(ctx, "failed to publish auth event", "kind", kind, "error", err)
	}
}
