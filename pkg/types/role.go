package types

import "strings"

// Role identifies the portal an action comes from.
type Role string

// Roles.
const (
	RoleAdmin    Role = "admin"
	RoleCompany  Role = "company"
	RoleSupplier Role = "supplier"
	RoleVerifier Role = "verifier"
)

// statusPermissions lists, per target status, the roles that may move a
// record into it.
var statusPermissions = map[ComplianceStatus][]Role{
	StatusVerified: {RoleAdmin, RoleVerifier},
	StatusRejected: {RoleAdmin, RoleVerifier},
	StatusPending:  {RoleAdmin, RoleCompany, RoleSupplier},
	StatusInvited:  {RoleAdmin, RoleCompany},
}

// ParseRole maps a case-insensitive name to a Role.
func ParseRole(name string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(name))); r {
	case RoleAdmin, RoleCompany, RoleSupplier, RoleVerifier:
		return r, nil
	}
	return "", ErrInvalidRole
}

// MayTransitionTo reports whether the role may move a record into status s.
func (r Role) MayTransitionTo(s ComplianceStatus) bool {
	for _, allowed := range statusPermissions[s] {
		if allowed == r {
			return true
		}
	}
	return false
}
