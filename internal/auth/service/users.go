package service

import (
	"context"
	"errors"
	"strings"

	"clubgate/internal/auth/models"
	"clubgate/internal/auth/password"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	"clubgate/pkg/email"
	"clubgate/pkg/platform/audit"
	authmw "clubgate/pkg/platform/middleware/auth"
	"clubgate/pkg/platform/sentinel"
	"clubgate/pkg/requestcontext"
)

// ChangePassword replaces the caller's password after checking the current
// one.
func (s *Service) ChangePassword(ctx context.Context, userID id.UserID, current, next string) error {
	user, err := s.liveUser(ctx, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Matches(user.PasswordHash, current) {
		s.auditor.Append(ctx, userEvent(audit.KindPasswordChangeFailed, audit.SeverityWarning, user.ID,
			"password change failed: bad current password", map[string]any{"reason": "bad_current"}))
		return dErrors.New(dErrors.CodeInvalidCredentials, "current password is incorrect")
	}
	if err := password.CheckStrength(next); err != nil {
		s.auditor.Append(ctx, userEvent(audit.KindPasswordChangeFailed, audit.SeverityInfo, user.ID,
			"password change failed: weak password", map[string]any{"reason": "weak_password"}))
		return err
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password")
	}
	s.auditor.Append(ctx, userEvent(audit.KindPasswordChanged, audit.SeverityInfo, user.ID, "password changed", nil))
	return nil
}

// CreateUser registers an operator account. Role defaults to operator.
func (s *Service) CreateUser(ctx context.Context, actor Actor, req models.CreateUserRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Role == "" {
		req.Role = id.RoleOperator
	}
	if !req.Role.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown role")
	}
	if err := authmw.CheckRoleAssignment(actor.Role, "", req.Role); err != nil {
		return nil, err
	}
	if err := password.CheckStrength(req.Password); err != nil {
		return nil, err
	}

	usernameTaken, emailTaken, err := s.users.Taken(ctx, req.Username, req.Email)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check user uniqueness")
	}
	if usernameTaken {
		return nil, dErrors.New(dErrors.CodeConflict, "username already exists")
	}
	if emailTaken {
		return nil, dErrors.New(dErrors.CodeConflict, "email already exists")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = email.DisplayName(req.Email)
	}
	now := requestcontext.Now(ctx)
	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "username or email already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.auditor.Append(ctx, userEvent(audit.KindUserCreated, audit.SeverityInfo, user.ID, "user created",
		map[string]any{"username": user.Username, "role": string(user.Role)}))
	return user, nil
}

// ChangeRole assigns a new role to target.
func (s *Service) ChangeRole(ctx context.Context, actor Actor, target id.UserID, role id.Role) (*models.User, error) {
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown role")
	}
	user, err := s.liveUser(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := authmw.CheckRoleAssignment(actor.Role, user.Role, role); err != nil {
		return nil, err
	}
	if user.Role == role {
		return user, nil
	}

	previous := user.Role
	user.Role = role
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update role")
	}
	s.auditor.Append(ctx, userEvent(audit.KindUserRoleChanged, audit.SeverityWarning, user.ID, "user role changed",
		map[string]any{"from": string(previous), "to": string(role)}))
	return user, nil
}

// ToggleActive flips the active flag of target. Users cannot toggle
// themselves.
func (s *Service) ToggleActive(ctx context.Context, actor Actor, target id.UserID) (*models.User, error) {
	user, err := s.liveUser(ctx, target)
	if err != nil {
		return nil, err
	}
	return s.setActive(ctx, actor, user, !user.Active)
}

// SetActive sets the active flag of target.
func (s *Service) SetActive(ctx context.Context, actor Actor, target id.UserID, active bool) (*models.User, error) {
	user, err := s.liveUser(ctx, target)
	if err != nil {
		return nil, err
	}
	return s.setActive(ctx, actor, user, active)
}

func (s *Service) setActive(ctx context.Context, actor Actor, user *models.User, active bool) (*models.User, error) {
	if err := authmw.CheckNotSelf(actor.ID, user.ID, "deactivate"); err != nil {
		return nil, err
	}
	if err := authmw.CheckRoleAssignment(actor.Role, user.Role, user.Role); err != nil {
		return nil, err
	}
	if user.Active == active {
		return user, nil
	}

	user.Active = active
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user")
	}
	kind, description := audit.KindUserActivated, "user activated"
	if !active {
		kind, description = audit.KindUserDeactivated, "user deactivated"
	}
	s.auditor.Append(ctx, userEvent(kind, audit.SeverityWarning, user.ID, description, nil))
	return user, nil
}

// DeleteUser soft-deletes target. The row is kept for audit history.
func (s *Service) DeleteUser(ctx context.Context, actor Actor, target id.UserID) error {
	if target.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	user, err := s.liveUser(ctx, target)
	if err != nil {
		return err
	}
	if err := authmw.CheckNotSelf(actor.ID, user.ID, "delete"); err != nil {
		return err
	}
	if err := authmw.CheckRoleAssignment(actor.Role, user.Role, user.Role); err != nil {
		return err
	}

	user.Deleted = true
	user.Active = false
	user.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete user")
	}
	s.auditor.Append(ctx, userEvent(audit.KindUserDeleted, audit.SeverityWarning, user.ID, "user deleted",
		map[string]any{"username": user.Username}))
	return nil
}

// ListUsers returns live accounts ordered by id.
func (s *Service) ListUsers(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

// GetUser returns a live account.
func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.liveUser(ctx, userID)
}

// ResolvePrincipal serves the authorization gate. Deleted and inactive users
// are returned as-is so the gate can name the failure.
func (s *Service) ResolvePrincipal(ctx context.Context, userID id.UserID) (*authmw.Principal, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return &authmw.Principal{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
		Active:   user.Active,
		Deleted:  user.Deleted,
	}, nil
}

func (s *Service) liveUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if user.Deleted {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return user, nil
}
