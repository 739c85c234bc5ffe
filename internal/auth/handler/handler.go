// Package handler exposes login, token refresh, password change and user
// administration over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clubgate/internal/auth/models"
	"clubgate/internal/auth/service"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	"clubgate/pkg/platform/httputil"
	authmw "clubgate/pkg/platform/middleware/auth"
	request "clubgate/pkg/platform/middleware/request"
	"clubgate/pkg/requestcontext"
)

// Service is the identity surface the handler drives.
type Service interface {
	Login(ctx context.Context, login, password string) (*models.TokenResult, error)
	RefreshAccess(ctx context.Context, refreshToken string) (*models.TokenResult, error)
	ChangePassword(ctx context.Context, userID id.UserID, current, next string) error
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	CreateUser(ctx context.Context, actor service.Actor, req models.CreateUserRequest) (*models.User, error)
	ChangeRole(ctx context.Context, actor service.Actor, target id.UserID, role id.Role) (*models.User, error)
	ToggleActive(ctx context.Context, actor service.Actor, target id.UserID) (*models.User, error)
	DeleteUser(ctx context.Context, actor service.Actor, target id.UserID) error
}

type Handler struct {
	auth   Service
	gate   *authmw.Gate
	logger *slog.Logger
}

func New(auth Service, gate *authmw.Gate, logger *slog.Logger) *Handler {
	return &Handler{auth: auth, gate: gate, logger: logger}
}

// Register mounts /auth and /usuarios routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/refresh", h.HandleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAuthenticated())
		r.Get("/auth/me", h.HandleMe)
		r.Post("/auth/change-password", h.HandleChangePassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAdmin())
		r.Get("/usuarios", h.HandleListUsers)
		r.Post("/usuarios", h.HandleCreateUser)
		r.Post("/usuarios/cambiar-rol", h.HandleChangeRole)
		r.Post("/usuarios/toggle-active", h.HandleToggleActive)
		r.Delete("/usuarios/{id}", h.HandleDeleteUser)
	})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		h.fail(ctx, w, requestID, "login failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTokenResponse(result))
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RefreshRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.auth.RefreshAccess(ctx, req.RefreshToken)
	if err != nil {
		h.fail(ctx, w, requestID, "token refresh failed", err)
		return
	}
	resp := toTokenResponse(result)
	resp.User = nil
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.auth.GetUser(ctx, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(ctx, w, request.GetRequestID(ctx), "failed to load current user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ChangePasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.auth.ChangePassword(ctx, requestcontext.UserID(ctx), req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(ctx, w, requestID, "password change failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})
}

func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := h.auth.ListUsers(ctx)
	if err != nil {
		h.fail(ctx, w, request.GetRequestID(ctx), "failed to list users", err)
		return
	}
	resp := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateUserRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	user, err := h.auth.CreateUser(ctx, service.ActorFrom(ctx), req.toModel())
	if err != nil {
		h.fail(ctx, w, requestID, "failed to create user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ChangeRoleRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	role, _ := id.ParseRole(req.Role)
	user, err := h.auth.ChangeRole(ctx, service.ActorFrom(ctx), req.UserID, role)
	if err != nil {
		h.fail(ctx, w, requestID, "failed to change role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) HandleToggleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ToggleActiveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	user, err := h.auth.ToggleActive(ctx, service.ActorFrom(ctx), req.UserID)
	if err != nil {
		h.fail(ctx, w, requestID, "failed to toggle user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	target, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return
	}
	if err := h.auth.DeleteUser(ctx, service.ActorFrom(ctx), target); err != nil {
		h.fail(ctx, w, requestID, "failed to delete user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail logs at warn for caller errors and error for internal ones, then writes
// the mapped response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, requestID, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.InfoContext(ctx, msg, "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}
