package handler

import (
	"strings"
	"time"

	"clubgate/internal/auth/models"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "username and password are required")
	}
	return nil
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (r *RefreshRequest) Validate() error {
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
	if r.RefreshToken == "" {
		return dErrors.New(dErrors.CodeValidation, "refresh_token is required")
	}
	return nil
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (r *ChangePasswordRequest) Validate() error {
	if r.CurrentPassword == "" || r.NewPassword == "" {
		return dErrors.New(dErrors.CodeValidation, "current_password and new_password are required")
	}
	if r.NewPassword != r.ConfirmPassword {
		return dErrors.New(dErrors.CodeValidation, "new_password and confirm_password do not match")
	}
	return nil
}

type CreateUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"nombre_completo"`
	Role        string `json:"rol"`
}

func (r *CreateUserRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
	if len(r.Username) < 3 || len(r.Username) > 50 {
		return dErrors.New(dErrors.CodeValidation, "username must be between 3 and 50 characters")
	}
	if !strings.Contains(r.Email, "@") {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if r.Role != "" {
		if _, err := id.ParseRole(r.Role); err != nil {
			return dErrors.New(dErrors.CodeValidation, "unknown role")
		}
	}
	return nil
}

func (r *CreateUserRequest) toModel() models.CreateUserRequest {
	role, _ := id.ParseRole(r.Role)
	return models.CreateUserRequest{
		Username:    r.Username,
		Email:       r.Email,
		Password:    r.Password,
		DisplayName: r.DisplayName,
		Role:        role,
	}
}

type ChangeRoleRequest struct {
	UserID id.UserID `json:"usuario_id"`
	Role   string    `json:"nuevo_rol"`
}

func (r *ChangeRoleRequest) Validate() error {
	if r.UserID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "usuario_id is required")
	}
	if _, err := id.ParseRole(r.Role); err != nil {
		return dErrors.New(dErrors.CodeValidation, "unknown role")
	}
	return nil
}

type ToggleActiveRequest struct {
	UserID id.UserID `json:"usuario_id"`
}

func (r *ToggleActiveRequest) Validate() error {
	if r.UserID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "usuario_id is required")
	}
	return nil
}

type TokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	User         *UserResponse `json:"user,omitempty"`
}

type UserResponse struct {
	ID          id.UserID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DisplayName string     `json:"nombre_completo"`
	Role        string     `json:"rol"`
	Active      bool       `json:"activo"`
	LastLoginAt *time.Time `json:"ultimo_acceso,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func toUserResponse(u *models.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        string(u.Role),
		Active:      u.Active,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func toTokenResponse(result *models.TokenResult) *TokenResponse {
	return &TokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    result.TokenType,
		ExpiresIn:    int64(result.ExpiresIn.Seconds()),
		User:         toUserResponse(result.User),
	}
}
