package shared

import "strings"

// Role is the caller role asserted by the authentication collaborator.
// This service trusts the assertion; it performs no authentication itself.
type Role string

const (
	RoleUser             Role = "user"
	RoleSecurityChampion Role = "security_champion"
	RoleAdmin            Role = "admin"
)

// IsValid checks if the role is valid.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleSecurityChampion, RoleAdmin:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (r Role) String() string {
	return string(r)
}

// IsElevated reports whether the role may decide exception requests.
// Elevated requesters also get their own requests auto-approved.
func (r Role) IsElevated() bool {
	return r == RoleAdmin || r == RoleSecurityChampion
}

// ParseRole parses a role string case-insensitively.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.IsValid() {
		return "", false
	}
	return role, true
}
