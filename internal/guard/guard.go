// Package guard decides whether a request for a protected view may proceed, must wait for auth
// state to settle, or must be redirected.
package guard

import (
	"slices"
	"strings"

	"github.com/asktourist/marketplace/internal/authstate"
	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

const (
	VendorLoginPath     = "/login/vendor"
	CustomerLoginPath   = "/login/customer"
	PendingApprovalPath = "/login/pending-approval"
	VendorHomePath      = "/vendor/dashboard"
	AdminHomePath       = "/admin/dashboard"
	RootPath            = "/"
)

// Action is the outcome of a guard evaluation.
type Action int

const (
	Wait Action = iota
	Allow
	Redirect
)

func (a Action) String() string {
	switch a {
	case Wait:
		return "wait"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// MarshalText renders the action by name.
func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Policy describes who may see a view.
type Policy struct {
	AllowedRoles []domainauth.Role `yaml:"allowed_roles" json:"allowed_roles,omitempty"`
	RequireAuth  bool              `yaml:"require_auth"  json:"require_auth"`
}

// Decision is the result of Evaluate. RememberPath is set when the viewer should come back to
// the attempted path after logging in.
type Decision struct {
	Action       Action `json:"action"`
	Location     string `json:"location,omitempty"`
	RememberPath string `json:"remember_path,omitempty"`
}

// Evaluate applies policy to st for a request of path.
//
// Loading always yields Wait. A signed-out viewer of an auth-required view goes to the matching
// login page. A viewer whose role is not allowed goes to their own home. An unapproved vendor
// always goes to the pending-approval page. A redirect to path itself is reported as Allow.
func Evaluate(st authstate.State, policy Policy, path string) Decision {
	if st.Loading {
		return Decision{Action: Wait}
	}

	if st.User == nil {
		if policy.RequireAuth {
			return redirect(path, LoginPathFor(path), path)
		}
		return Decision{Action: Allow}
	}

	p := st.Profile
	if p != nil && p.Role == domainauth.RoleVendor && !p.IsApproved {
		return redirect(path, PendingApprovalPath, "")
	}

	if len(policy.AllowedRoles) > 0 && !roleAllowed(p, policy.AllowedRoles) {
		return redirect(path, HomeFor(p), "")
	}

	return Decision{Action: Allow}
}

func redirect(current, location, remember string) Decision {
	if samePath(current, location) {
		return Decision{Action: Allow}
	}
	return Decision{Action: Redirect, Location: location, RememberPath: remember}
}

func roleAllowed(p *domainauth.Profile, allowed []domainauth.Role) bool {
	if p == nil {
		return false
	}
	return slices.Contains(allowed, p.Role)
}

func samePath(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/") && a != "" && b != ""
}

// LoginPathFor picks the login page for a path: vendor login when the path mentions vendor.
func LoginPathFor(path string) string {
	if strings.Contains(path, "vendor") {
		return VendorLoginPath
	}
	return CustomerLoginPath
}

// HomeFor returns the landing page of a profile's role.
func HomeFor(p *domainauth.Profile) string {
	if p == nil {
		return RootPath
	}
	switch p.Role {
	case domainauth.RoleVendor:
		return VendorHomePath
	case domainauth.RoleAdmin:
		return AdminHomePath
	default:
		return RootPath
	}
}
