package auth

import (
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
)

// CheckRoleAssignment enforces that only a SuperAdmin grants the SuperAdmin
// role or changes an account that currently holds it.
func CheckRoleAssignment(actor, targetCurrent, requested id.Role) error {
	if actor == id.RoleSuperAdmin {
		return nil
	}
	if requested == id.RoleSuperAdmin {
		return dErrors.New(dErrors.CodeInsufficientRole, "only a superadmin can assign the superadmin role")
	}
	if targetCurrent == id.RoleSuperAdmin {
		return dErrors.New(dErrors.CodeInsufficientRole, "only a superadmin can modify a superadmin account")
	}
	return nil
}

// CheckNotSelf rejects administrative actions a user takes on their own
// account.
func CheckNotSelf(actor, target id.UserID, action string) error {
	if actor == target {
		return dErrors.New(dErrors.CodeBadRequest, "you cannot "+action+" your own account")
	}
	return nil
}
