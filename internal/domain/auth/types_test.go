package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Vendor ")
	require.NoError(t, err)
	assert.Equal(t, RoleVendor, r)

	_, err = ParseRole("guest")
	require.Error(t, err)
}

func TestProfile_NeedsApproval(t *testing.T) {
	var nilProfile *Profile
	assert.False(t, nilProfile.NeedsApproval())
	assert.True(t, (&Profile{Role: RoleVendor}).NeedsApproval())
	assert.False(t, (&Profile{Role: RoleVendor, IsApproved: true}).NeedsApproval())
	assert.False(t, (&Profile{Role: RoleCustomer}).NeedsApproval())
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Minute)))
}

func TestIdentity_User(t *testing.T) {
	id := Identity{UserID: "u", Email: "e@example.com", Name: "Eve"}
	assert.Equal(t, User{ID: "u", Email: "e@example.com", Name: "Eve"}, id.User())
}
