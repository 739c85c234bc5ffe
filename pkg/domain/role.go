package domain

import (
	"strings"

	dErrors "clubgate/pkg/domain-errors"
)

// Role is an operator's authorization level. Roles are ordered: every role
// holds the permissions of the roles below it.
type Role string

const (
	RoleSuperAdmin    Role = "superadmin"
	RoleAdministrator Role = "administrator"
	RoleOperator      Role = "operator"
	RoleGatekeeper    Role = "gatekeeper"
	RoleReadOnly      Role = "readonly"
)

var roleRank = map[Role]int{
	RoleReadOnly:      1,
	RoleGatekeeper:    2,
	RoleOperator:      3,
	RoleAdministrator: 4,
	RoleSuperAdmin:    5,
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants at least the permissions of min.
// Unknown roles grant nothing.
func (r Role) AtLeast(min Role) bool {
	rank, ok := roleRank[r]
	if !ok {
		return false
	}
	return rank >= roleRank[min]
}

func (r Role) String() string { return string(r) }

// ParseRole normalizes and validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown role: "+s)
	}
	return r, nil
}
