package guard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()

	p, ok := tbl.Lookup("/vendor/dashboard")
	require.True(t, ok)
	assert.True(t, p.RequireAuth)
	assert.Equal(t, []domainauth.Role{domainauth.RoleVendor}, p.AllowedRoles)

	p, ok = tbl.Lookup("/profile/edit")
	require.True(t, ok)
	assert.True(t, p.RequireAuth)
	assert.Empty(t, p.AllowedRoles)

	_, ok = tbl.Lookup("/profiles")
	assert.False(t, ok)
	_, ok = tbl.Lookup("/")
	assert.False(t, ok)
}

func TestParseTable(t *testing.T) {
	data := []byte(`
routes:
  - prefix: /vendor
    require_auth: true
  - prefix: /vendor/dashboard/
    require_auth: true
    allowed_roles: [Vendor, admin]
`)
	tbl, err := ParseTable(data)
	require.NoError(t, err)

	p, ok := tbl.Lookup("/vendor/dashboard/packages")
	require.True(t, ok)
	assert.Equal(t, []domainauth.Role{domainauth.RoleVendor, domainauth.RoleAdmin}, p.AllowedRoles)

	p, ok = tbl.Lookup("/vendor/settings")
	require.True(t, ok)
	assert.Empty(t, p.AllowedRoles)

	routes := tbl.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "/vendor/dashboard", routes[0].Prefix)
}

func TestParseTable_Errors(t *testing.T) {
	tests := map[string]string{
		"bad role":      "routes:\n  - prefix: /x\n    allowed_roles: [root]\n",
		"relative":      "routes:\n  - prefix: x\n",
		"duplicate":     "routes:\n  - prefix: /x\n  - prefix: /x/\n",
		"unknown field": "routes:\n  - prefix: /x\n    roles: [vendor]\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadTable(t *testing.T) {
	tbl, err := LoadTable("")
	require.NoError(t, err)
	assert.NotEmpty(t, tbl.Routes())

	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - prefix: /admin\n    require_auth: true\n    allowed_roles: [admin]\n"), 0o600))
	tbl, err = LoadTable(path)
	require.NoError(t, err)
	_, ok := tbl.Lookup("/admin/dashboard")
	assert.True(t, ok)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
