package models

import (
	"time"

	id "clubgate/pkg/domain"
)

// User is an operator account. Deleted users are soft-deleted and kept for
// audit history; stores return them so callers can report the exact cause.
type User struct {
	ID           id.UserID
	Username     string
	Email        string
	PasswordHash string
	DisplayName  string
	Role         id.Role
	Active       bool
	Deleted      bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthFailure is the specific reason an authentication attempt or token
// resolution failed. It is recorded in audit details and never returned to
// callers.
type AuthFailure string

const (
	FailureUnknownUser AuthFailure = "unknown_user"
	FailureBadPassword AuthFailure = "bad_password"
	FailureInactive    AuthFailure = "inactive"
	FailureDeleted     AuthFailure = "deleted"
	FailureLocked      AuthFailure = "locked"
)

// UsabilityFailure reports why u may not act, or "" when it may.
func (u *User) UsabilityFailure() AuthFailure {
	switch {
	case u == nil:
		return FailureUnknownUser
	case u.Deleted:
		return FailureDeleted
	case !u.Active:
		return FailureInactive
	}
	return ""
}

// TokenResult is returned by a successful login.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
	User         *User
}

// CreateUserRequest carries the fields of a new account.
type CreateUserRequest struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
	Role        id.Role
}
