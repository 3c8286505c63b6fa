package guard

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

// Route binds a path prefix to a policy.
type Route struct {
	Prefix string `yaml:"prefix"`
	Policy `yaml:",inline"`
}

// Table maps request paths to policies by longest segment-aligned prefix.
type Table struct {
	routes []Route
}

type tableFile struct {
	Routes []Route `yaml:"routes"`
}

// DefaultTable returns the built-in route policies.
func DefaultTable() *Table {
	t, _ := NewTable([]Route{
		{Prefix: "/vendor/dashboard", Policy: Policy{RequireAuth: true, AllowedRoles: []domainauth.Role{domainauth.RoleVendor}}},
		{Prefix: "/customer/dashboard", Policy: Policy{RequireAuth: true, AllowedRoles: []domainauth.Role{domainauth.RoleCustomer}}},
		{Prefix: "/admin/dashboard", Policy: Policy{RequireAuth: true, AllowedRoles: []domainauth.Role{domainauth.RoleAdmin}}},
		{Prefix: "/profile", Policy: Policy{RequireAuth: true}},
		{Prefix: PendingApprovalPath, Policy: Policy{RequireAuth: true}},
	})
	return t
}

// NewTable validates routes and builds a table.
func NewTable(routes []Route) (*Table, error) {
	seen := make(map[string]struct{}, len(routes))
	out := make([]Route, 0, len(routes))
	for i, r := range routes {
		prefix := strings.TrimSpace(r.Prefix)
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("route %d: prefix %q must start with /", i, r.Prefix)
		}
		if len(prefix) > 1 {
			prefix = strings.TrimSuffix(prefix, "/")
		}
		if _, dup := seen[prefix]; dup {
			return nil, fmt.Errorf("route %d: duplicate prefix %q", i, prefix)
		}
		roles := make([]domainauth.Role, 0, len(r.AllowedRoles))
		for _, role := range r.AllowedRoles {
			parsed, err := domainauth.ParseRole(string(role))
			if err != nil {
				return nil, fmt.Errorf("route %q: %w", prefix, err)
			}
			roles = append(roles, parsed)
		}
		r.AllowedRoles = roles
		seen[prefix] = struct{}{}
		r.Prefix = prefix
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Prefix) > len(out[j].Prefix) })
	return &Table{routes: out}, nil
}

// ParseTable decodes a YAML route table. Unknown fields are rejected.
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode route table: %w", err)
	}
	return NewTable(f.Routes)
}

// LoadTable reads a YAML route table from path, or returns DefaultTable when path is empty.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return ParseTable(data)
}

// Lookup returns the policy for path and whether any route matched.
func (t *Table) Lookup(path string) (Policy, bool) {
	for _, r := range t.routes {
		if matchPrefix(path, r.Prefix) {
			return r.Policy, true
		}
	}
	return Policy{}, false
}

// Routes returns a copy of the table's routes, longest prefix first.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
