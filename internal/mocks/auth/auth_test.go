package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
	apperrors "github.com/asktourist/marketplace/internal/errors"
	"github.com/asktourist/marketplace/internal/ports"
)

func TestMockSSOProvider_Begin_Defaults(t *testing.T) {
	provider := NewMockSSOProvider()
	ctx := context.Background()

	input := ports.BeginInput{RedirectURL: "http://localhost:8080/callback"}
	authURL, state, nonce, err := provider.Begin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "https://mock-idp/auth", authURL)
	assert.Equal(t, "state-1", state)
	assert.Equal(t, "nonce-1", nonce)

	// Second call should increment counters
	_, state2, nonce2, err := provider.Begin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "state-2", state2)
	assert.Equal(t, "nonce-2", nonce2)
}

func TestFakeIdentityProvider_Lifecycle(t *testing.T) {
	idp := NewFakeIdentityProvider()
	ctx := context.Background()

	id, err := idp.SignUp(ctx, ports.SignUpInput{Email: "a@example.com", Password: "secret123", Metadata: map[string]any{"name": "A"}})
	require.NoError(t, err)
	assert.Equal(t, "A", id.Name)

	_, err = idp.SignUp(ctx, ports.SignUpInput{Email: "a@example.com", Password: "x"})
	assert.True(t, apperrors.IsConflict(err))

	_, err = idp.SignInWithPassword(ctx, "a@example.com", "wrong")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))

	got, err := idp.SignInWithPassword(ctx, "a@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, id.UserID, got.UserID)

	refreshed, err := idp.Refresh(ctx, id.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, id.UserID, refreshed.UserID)

	require.NoError(t, idp.DeleteUser(ctx, id.UserID))
	assert.False(t, idp.Has("a@example.com"))
}

func TestMemorySessionStore_Indices(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	sess := domainauth.Session{ID: "s1", AccessToken: "a1", RefreshToken: "r1"}
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.GetByAccessToken(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	got, err = store.GetByRefreshToken(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	require.NoError(t, store.Delete(ctx, sess))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, store.Save(ctx, domainauth.Session{}))
}

func TestMemoryProfileRepo_Approval(t *testing.T) {
	repo := NewMemoryProfileRepo()
	ctx := context.Background()

	_, err := repo.Create(ctx, ports.CreateProfileInput{UserID: "v1", Role: domainauth.RoleVendor, IsVendor: true})
	require.NoError(t, err)
	pending, err := repo.ListPendingVendors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	p, err := repo.SetApproval(ctx, ports.SetApprovalInput{UserID: "v1", Approved: true})
	require.NoError(t, err)
	assert.True(t, p.IsApproved)

	_, err = repo.GetByUserID(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryEventBus(t *testing.T) {
	bus := NewMemoryEventBus()
	ctx := context.Background()
	ch, unsubscribe, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domainauth.Event{Kind: domainauth.EventSignedIn, SessionID: "s1"}))
	evt := <-ch
	assert.Equal(t, domainauth.EventSignedIn, evt.Kind)

	require.NoError(t, unsubscribe())
	require.NoError(t, unsubscribe())
	_, ok := <-ch
	assert.False(t, ok)
}

func TestMemoryOrphanQueue(t *testing.T) {
	q := &MemoryOrphanQueue{}
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, ports.Orphan{UserID: "u1"}))
	require.NoError(t, q.Enqueue(ctx, ports.Orphan{UserID: "u2"}))

	got, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStaticRoleMapper(t *testing.T) {
	m := StaticRoleMapper{AdminGroup: "admins"}
	assert.Equal(t, domainauth.RoleAdmin, m.Map([]string{"users", "admins"}))
	assert.Equal(t, domainauth.Role(""), m.Map([]string{"users"}))
}
