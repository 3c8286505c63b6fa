package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/asktourist/marketplace/config"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/guard"
	"github.com/asktourist/marketplace/internal/mocks"
	fakes "github.com/asktourist/marketplace/internal/mocks/auth"
	"github.com/asktourist/marketplace/internal/ports"
)

type authFixture struct {
	svc      *AuthService
	identity *fakes.FakeIdentityProvider
	sessions *fakes.MemorySessionStore
	profiles *fakes.MemoryProfileRepo
	events   *fakes.MemoryEventBus
	orphans  *fakes.MemoryOrphanQueue
}

func newAuthFixture(t *testing.T, mutate ...func(*AuthServiceOptions)) *authFixture {
	t.Helper()
	f := &authFixture{
		identity: fakes.NewFakeIdentityProvider(),
		sessions: fakes.NewMemorySessionStore(),
		profiles: fakes.NewMemoryProfileRepo(),
		events:   fakes.NewMemoryEventBus(),
		orphans:  &fakes.MemoryOrphanQueue{},
	}
	opts := AuthServiceOptions{
		Identity: f.identity,
		Sessions: f.sessions,
		Profiles: f.profiles,
		Events:   f.events,
		Orphans:  f.orphans,
		Session:  config.SessionConfig{AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
	}
	for _, m := range mutate {
		m(&opts)
	}
	f.svc = NewAuthService(opts)
	return f
}

func customerSignUp(email string) domainauth.SignUpRequest {
	return domainauth.SignUpRequest{Name: "Asha", Email: email, Password: "password1"}
}

func vendorSignUp(email string) domainauth.SignUpRequest {
	return domainauth.SignUpRequest{
		Name:        "Bikash",
		Email:       email,
		Password:    "password1",
		IsVendor:    true,
		CompanyName: "Himalayan Treks",
		Location:    "Pokhara",
		SocialLinks: map[string]string{"Instagram": " @treks ", "facebook": ""},
	}
}

func TestAuthService_SignUp_CustomerIsApproved(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	user, err := f.svc.SignUp(ctx, customerSignUp("  Asha@Example.com "))
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", user.Email)
	assert.Equal(t, "Asha", user.Name)

	p, err := f.profiles.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleCustomer, p.Role)
	assert.False(t, p.IsVendor)
	assert.True(t, p.IsApproved)
	assert.Nil(t, p.CompanyName)
}

func TestAuthService_SignUp_VendorIsNotApproved(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	user, err := f.svc.SignUp(ctx, vendorSignUp("vendor@example.com"))
	require.NoError(t, err)

	p, err := f.profiles.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleVendor, p.Role)
	assert.True(t, p.IsVendor)
	assert.False(t, p.IsApproved)
	require.NotNil(t, p.CompanyName)
	assert.Equal(t, "Himalayan Treks", *p.CompanyName)
	assert.Equal(t, map[string]string{"instagram": "@treks"}, p.SocialLinks)
}

func TestAuthService_SignUp_ValidationFailsBeforeRemoteCall(t *testing.T) {
	f := newAuthFixture(t)

	req := vendorSignUp("vendor@example.com")
	req.Location = " "
	_, err := f.svc.SignUp(context.Background(), req)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "location", apperrors.GetField(err))
	assert.False(t, f.identity.Has("vendor@example.com"))
}

func TestAuthService_SignUp_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, customerSignUp("dup@example.com"))
	require.NoError(t, err)
	_, err = f.svc.SignUp(ctx, customerSignUp("dup@example.com"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}

func TestAuthService_SignUp_ProfileFailureDeletesIdentity(t *testing.T) {
	f := newAuthFixture(t)
	profileErr := errors.New("profiles table unavailable")
	f.profiles.CreateErr = profileErr

	_, err := f.svc.SignUp(context.Background(), customerSignUp("asha@example.com"))
	require.ErrorIs(t, err, profileErr)

	assert.False(t, f.identity.Has("asha@example.com"))
	require.Len(t, f.identity.Deleted, 1)
	n, _ := f.orphans.Len(context.Background())
	assert.Zero(t, n)
}

func TestAuthService_SignUp_FailedCompensationQueuesOrphan(t *testing.T) {
	f := newAuthFixture(t)
	profileErr := errors.New("insert failed")
	f.profiles.CreateErr = profileErr
	f.identity.DeleteErr = apperrors.New(apperrors.ErrCodeUnavailable, "admin api down")

	_, err := f.svc.SignUp(context.Background(), customerSignUp("asha@example.com"))
	require.ErrorIs(t, err, profileErr)

	orphans, derr := f.orphans.Dequeue(context.Background(), 10)
	require.NoError(t, derr)
	require.Len(t, orphans, 1)
	assert.Equal(t, "asha@example.com", orphans[0].Email)
	assert.Equal(t, 1, orphans[0].Attempts)
	assert.Contains(t, orphans[0].Reason, "insert failed")
}

func TestAuthService_SignUp_CompensationWithGomock(t *testing.T) {
	ctrl := gomock.NewController(t)
	identity := mocks.NewMockIdentityProvider(ctrl)
	profiles := mocks.NewMockProfileRepository(ctrl)
	queue := mocks.NewMockOrphanQueue(ctrl)

	ident := domainauth.Identity{UserID: "user-9", Email: "asha@example.com"}
	gomock.InOrder(
		identity.EXPECT().SignUp(gomock.Any(), gomock.Any()).Return(ident, nil),
		profiles.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom")),
		identity.EXPECT().DeleteUser(gomock.Any(), "user-9").Return(errors.New("still down")),
		queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, o ports.Orphan) error {
				assert.Equal(t, "user-9", o.UserID)
				return nil
			}),
	)

	svc := NewAuthService(AuthServiceOptions{
		Identity: identity,
		Sessions: fakes.NewMemorySessionStore(),
		Profiles: profiles,
		Orphans:  queue,
	})
	_, err := svc.SignUp(context.Background(), customerSignUp("asha@example.com"))
	require.Error(t, err)
}

func TestAuthService_LogIn(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	fixed := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }

	user, err := f.svc.SignUp(ctx, customerSignUp("asha@example.com"))
	require.NoError(t, err)

	sess, err := f.svc.LogIn(ctx, domainauth.LoginRequest{Email: "ASHA@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.RefreshToken)
	assert.NotEqual(t, sess.AccessToken, sess.RefreshToken)
	assert.Equal(t, user.ID, sess.User.ID)
	assert.Equal(t, domainauth.ProviderPassword, sess.Provider)
	assert.Equal(t, fixed.Add(time.Hour), sess.ExpiresAt)
	assert.Equal(t, fixed.Add(24*time.Hour), sess.RefreshExpiresAt)
	assert.Equal(t, []domainauth.EventKind{domainauth.EventSignedIn}, f.events.Kinds())

	stored, err := f.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, stored)
}

func TestAuthService_LogIn_BadCredentials(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, customerSignUp("asha@example.com"))
	require.NoError(t, err)

	_, err = f.svc.LogIn(ctx, domainauth.LoginRequest{Email: "asha@example.com", Password: "wrong-pass"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
	assert.Zero(t, f.sessions.Len())
}

func TestAuthService_LogIn_RateLimited(t *testing.T) {
	f := newAuthFixture(t, func(o *AuthServiceOptions) { o.Limiter = NewLoginLimiter(1, 1) })
	ctx := context.Background()
	_, err := f.svc.SignUp(ctx, customerSignUp("asha@example.com"))
	require.NoError(t, err)

	_, err = f.svc.LogIn(ctx, domainauth.LoginRequest{Email: "asha@example.com", Password: "nope-nope"})
	require.Error(t, err)
	_, err = f.svc.LogIn(ctx, domainauth.LoginRequest{Email: "Asha@Example.com", Password: "password1"})
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestAuthService_VendorLogIn(t *testing.T) {
	ctx := context.Background()
	login := domainauth.LoginRequest{Email: "vendor@example.com", Password: "password1"}

	t.Run("customer account is rejected and signed out", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.svc.SignUp(ctx, customerSignUp("vendor@example.com"))
		require.NoError(t, err)

		_, err = f.svc.VendorLogIn(ctx, login)
		require.ErrorIs(t, err, ErrNotVendor)
		assert.Equal(t, ErrNotVendor.Message, apperrors.UserMessage(err, ""))
		assert.Zero(t, f.sessions.Len())
		assert.Len(t, f.identity.SignedOut, 1)
	})

	t.Run("unapproved vendor goes to pending page", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.svc.SignUp(ctx, vendorSignUp("vendor@example.com"))
		require.NoError(t, err)

		res, err := f.svc.VendorLogIn(ctx, login)
		require.NoError(t, err)
		assert.Equal(t, guard.PendingApprovalPath, res.Next)
		assert.Equal(t, 1, f.sessions.Len())
	})

	t.Run("approved vendor goes to dashboard", func(t *testing.T) {
		f := newAuthFixture(t)
		user, err := f.svc.SignUp(ctx, vendorSignUp("vendor@example.com"))
		require.NoError(t, err)
		_, err = f.profiles.SetApproval(ctx, ports.SetApprovalInput{UserID: user.ID, Approved: true, Actor: "admin"})
		require.NoError(t, err)

		res, err := f.svc.VendorLogIn(ctx, login)
		require.NoError(t, err)
		assert.Equal(t, guard.VendorHomePath, res.Next)
		assert.True(t, res.Profile.IsApproved)
	})
}

func TestAuthService_CurrentSession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	_, err := f.svc.SignUp(ctx, customerSignUp("asha@example.com"))
	require.NoError(t, err)
	sess, err := f.svc.LogIn(ctx, domainauth.LoginRequest{Email: "asha@example.com", Password: "password1"})
	require.NoError(t, err)

	got, refreshed, err := f.svc.CurrentSession(ctx, Credentials{AccessToken: sess.AccessToken})
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, sess.ID, got.ID)

	// access cookie gone, refresh cookie still present
	rotated, refreshed, err := f.svc.CurrentSession(ctx, Credentials{RefreshToken: sess.RefreshToken})
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, sess.ID, rotated.ID)
	assert.NotEqual(t, sess.AccessToken, rotated.AccessToken)
	assert.NotEqual(t, sess.RefreshToken, rotated.RefreshToken)
	assert.Contains(t, f.events.Kinds(), domainauth.EventTokenRefreshed)

	// the old refresh token was rotated away
	_, _, err = f.svc.CurrentSession(ctx, Credentials{RefreshToken: sess.RefreshToken})
	require.ErrorIs(t, err, ErrNoSession)

	_, _, err = f.svc.CurrentSession(ctx, Credentials{})
	require.ErrorIs(t, err, ErrNoSession)
}

func TestAuthService_CurrentSession_RevokedUpstream(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	_, err := f.svc.SignUp(ctx, customerSignUp("asha@example.com"))
	require.NoError(t, err)
	sess, err := f.svc.LogIn(ctx, domainauth.LoginRequest{Email: "asha@example.com", Password: "password1"})
	require.NoError(t, err)

	f.identity.RefreshErr = apperrors.Unauthorized("Invalid refresh token")
	_, _, err = f.svc.CurrentSession(ctx, Credentials{RefreshToken: sess.RefreshToken})
	require.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, f.sessions.Len())
	assert.Contains(t, f.events.Kinds(), domainauth.EventSignedOut)
}

func TestAuthService_CurrentSession_UpstreamOutageKeepsSession(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	_, err := f.svc.SignUp(ctx, customerSignUp("asha@example.com"))
	require.NoError(t, err)
	sess, err := f.svc.LogIn(ctx, domainauth.LoginRequest{Email: "asha@example.com", Password: "password1"})
	require.NoError(t, err)

	f.identity.RefreshErr = apperrors.New(apperrors.ErrCodeUnavailable, "identity service unavailable")
	_, _, err = f.svc.CurrentSession(ctx, Credentials{RefreshToken: sess.RefreshToken})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
	assert.Equal(t, 1, f.sessions.Len())
}

func TestAuthService_SignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("success clears the session", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.svc.SignUp(ctx, customerSignUp("asha@example.com"))
		require.NoError(t, err)
		sess, err := f.svc.LogIn(ctx, domainauth.LoginRequest{Email: "asha@example.com", Password: "password1"})
		require.NoError(t, err)

		require.NoError(t, f.svc.SignOut(ctx, sess))
		assert.Zero(t, f.sessions.Len())
		assert.Equal(t, []string{sess.ProviderAccessToken}, f.identity.SignedOut)
		assert.Equal(t, domainauth.EventSignedOut, f.events.Published[len(f.events.Published)-1].Kind)

		got, err := f.svc.Session(ctx, sess.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("remote failure leaves everything in place", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.svc.SignUp(ctx, customerSignUp("asha@example.com"))
		require.NoError(t, err)
		sess, err := f.svc.LogIn(ctx, domainauth.LoginRequest{Email: "asha@example.com", Password: "password1"})
		require.NoError(t, err)

		f.identity.SignOutErr = apperrors.New(apperrors.ErrCodeUnavailable, "identity service unavailable")
		require.Error(t, f.svc.SignOut(ctx, sess))
		assert.Equal(t, 1, f.sessions.Len())
		assert.NotContains(t, f.events.Kinds(), domainauth.EventSignedOut)
	})
}

func TestAuthService_SSO(t *testing.T) {
	ctx := context.Background()
	sso := fakes.NewMockSSOProvider()
	f := newAuthFixture(t, func(o *AuthServiceOptions) {
		o.SSO = SSOOptions{Provider: sso, Roles: fakes.StaticRoleMapper{AdminGroup: "marketplace-admins"}}
	})

	begin, err := f.svc.BeginSSO(ctx, "http://localhost:8080/auth/sso/callback")
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", begin.AuthURL)
	assert.NotEmpty(t, begin.State)

	sess, err := f.svc.CompleteSSO(ctx, CompleteLoginInput{Code: "code", State: begin.State, Nonce: begin.Nonce})
	require.NoError(t, err)
	assert.Equal(t, domainauth.ProviderSSO, sess.Provider)

	p, err := f.profiles.GetByUserID(ctx, "sso-admin-1")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAdmin, p.Role)

	// sso sessions are not signed out with the password identity service
	require.NoError(t, f.svc.SignOut(ctx, sess))
	assert.Empty(t, f.identity.SignedOut)

	sso.DefaultUser.Groups = []string{"everyone"}
	_, err = f.svc.CompleteSSO(ctx, CompleteLoginInput{Code: "code", State: "s", Nonce: "n"})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CompleteSSO(ctx, CompleteLoginInput{State: "s", Nonce: "n"})
	require.Error(t, err)
}

func TestAuthService_SSODisabled(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.BeginSSO(context.Background(), "http://localhost/cb")
	require.ErrorIs(t, err, ErrSSODisabled)
}
