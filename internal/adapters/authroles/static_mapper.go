package authroles

import (
	"slices"

	domainauth "github.com/asktourist/marketplace/internal/domain/auth"
)

// GroupRoleMapper grants the admin role to members of AdminGroup. Everyone else maps to the
// empty role, which denies SSO sign-in: vendors and customers use password accounts.
type GroupRoleMapper struct {
	AdminGroup string
}

func (m GroupRoleMapper) Map(groups []string) domainauth.Role {
	if m.AdminGroup != "" && slices.Contains(groups, m.AdminGroup) {
		return domainauth.RoleAdmin
	}
	return ""
}
