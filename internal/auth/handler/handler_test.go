package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"clubgate/internal/auth/models"
	"clubgate/internal/auth/password"
	"clubgate/internal/auth/service"
	userStore "clubgate/internal/auth/store/user"
	jwttoken "clubgate/internal/jwt_token"
	id "clubgate/pkg/domain"
	"clubgate/pkg/platform/audit"
	authmw "clubgate/pkg/platform/middleware/auth"
	request "clubgate/pkg/platform/middleware/request"
	"clubgate/pkg/testutil"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Append(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

type HandlerSuite struct {
	suite.Suite
	users   *userStore.InMemoryUserStore
	auditor *recordingAuditor
	router  http.Handler
	adminID id.UserID
	opID    id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.users = userStore.New()
	s.auditor = &recordingAuditor{}

	hasher := password.NewHasher(4)
	tokens, err := jwttoken.NewJWTService("handler-test-key", "HS256", 30*time.Minute, 24*time.Hour)
	s.Require().NoError(err)
	svc, err := service.New(s.users, tokens, hasher, s.auditor, service.WithLogger(logger))
	s.Require().NoError(err)

	s.adminID = s.seed(hasher, "admin", id.RoleAdministrator)
	s.opID = s.seed(hasher, "operador", id.RoleOperator)

	gate := authmw.NewGate(jwttoken.NewJWTServiceAdapter(tokens), svc, s.auditor, logger)
	r := chi.NewRouter()
	r.Use(request.RequestID)
	New(svc, gate, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) seed(hasher *password.Hasher, username string, role id.Role) id.UserID {
	hash, err := hasher.Hash("clave1234")
	s.Require().NoError(err)
	u := &models.User{Username: username, Email: username + "@club.test", PasswordHash: hash, Role: role, Active: true}
	s.Require().NoError(s.users.Create(context.Background(), u))
	return u.ID
}

func (s *HandlerSuite) login(username string) string {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"username": username, "password": "clave1234"}))
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	resp := testutil.UnmarshalResponse[TokenResponse](s.T(), rr)
	s.Equal("bearer", resp.TokenType)
	s.Equal(int64(1800), resp.ExpiresIn)
	return resp.AccessToken
}

func (s *HandlerSuite) authed(method, path, token string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) TestLoginAndMe() {
	token := s.login("admin")
	rr := s.authed(http.MethodGet, "/auth/me", token, nil)
	s.Equal(http.StatusOK, rr.Code)
	me := testutil.UnmarshalResponse[UserResponse](s.T(), rr)
	s.Equal("admin", me.Username)
	s.Equal("administrator", me.Role)
	s.NotNil(me.LastLoginAt)
}

func (s *HandlerSuite) TestLoginFailureIsOpaque() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"username": "admin", "password": "wrong"}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "invalid_credentials")

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"username": "nobody", "password": "wrong"}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "invalid_credentials")
}

func (s *HandlerSuite) TestRefresh() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"username": "operador", "password": "clave1234"}))
	s.Require().Equal(http.StatusOK, rr.Code)
	pair := testutil.UnmarshalResponse[TokenResponse](s.T(), rr)

	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/refresh",
		map[string]string{"refresh_token": pair.RefreshToken}))
	s.Equal(http.StatusOK, rr.Code)
	refreshed := testutil.UnmarshalResponse[TokenResponse](s.T(), rr)
	s.NotEmpty(refreshed.AccessToken)
	s.Empty(refreshed.RefreshToken)

	// An access token is not accepted as a refresh token.
	rr = testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/refresh",
		map[string]string{"refresh_token": pair.AccessToken}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "wrong_token_type")
}

func (s *HandlerSuite) TestRefreshTokenRejectedByGate() {
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/auth/login",
		map[string]string{"username": "admin", "password": "clave1234"}))
	pair := testutil.UnmarshalResponse[TokenResponse](s.T(), rr)

	rr = s.authed(http.MethodGet, "/auth/me", pair.RefreshToken, nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestChangePassword() {
	token := s.login("operador")

	rr := s.authed(http.MethodPost, "/auth/change-password", token, map[string]string{
		"current_password": "clave1234", "new_password": "nueva1234", "confirm_password": "otra1234",
	})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "validation_error")

	rr = s.authed(http.MethodPost, "/auth/change-password", token, map[string]string{
		"current_password": "mala1234", "new_password": "nueva1234", "confirm_password": "nueva1234",
	})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "invalid_credentials")

	rr = s.authed(http.MethodPost, "/auth/change-password", token, map[string]string{
		"current_password": "clave1234", "new_password": "solo", "confirm_password": "solo",
	})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "weak_password")

	rr = s.authed(http.MethodPost, "/auth/change-password", token, map[string]string{
		"current_password": "clave1234", "new_password": "nueva1234", "confirm_password": "nueva1234",
	})
	s.Equal(http.StatusOK, rr.Code)
}

func (s *HandlerSuite) TestSelfDeactivationIsRejected() {
	token := s.login("admin")

	rr := s.authed(http.MethodPost, "/usuarios/toggle-active", token, map[string]any{"usuario_id": s.adminID})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")

	stored, err := s.users.FindByID(context.Background(), s.adminID)
	s.Require().NoError(err)
	s.True(stored.Active, "no state change")
}

func (s *HandlerSuite) TestUserAdministration() {
	token := s.login("admin")

	rr := s.authed(http.MethodPost, "/usuarios", token, map[string]string{
		"username": "portero", "email": "portero@club.test", "password": "portero123", "rol": "gatekeeper",
	})
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	created := testutil.UnmarshalResponse[UserResponse](s.T(), rr)
	s.Equal("gatekeeper", created.Role)

	rr = s.authed(http.MethodPost, "/usuarios", token, map[string]string{
		"username": "portero", "email": "otro@club.test", "password": "portero123",
	})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")

	rr = s.authed(http.MethodPost, "/usuarios/cambiar-rol", token, map[string]any{"usuario_id": created.ID, "nuevo_rol": "superadmin"})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "insufficient_role")

	rr = s.authed(http.MethodPost, "/usuarios/cambiar-rol", token, map[string]any{"usuario_id": created.ID, "nuevo_rol": "operator"})
	s.Equal(http.StatusOK, rr.Code)

	rr = s.authed(http.MethodPost, "/usuarios/toggle-active", token, map[string]any{"usuario_id": created.ID})
	s.Equal(http.StatusOK, rr.Code)
	toggled := testutil.UnmarshalResponse[UserResponse](s.T(), rr)
	s.False(toggled.Active)

	rr = s.authed(http.MethodGet, "/usuarios", token, nil)
	s.Equal(http.StatusOK, rr.Code)
	var list []UserResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &list))
	s.Len(list, 3)

	rr = s.authed(http.MethodDelete, "/usuarios/"+created.ID.String(), token, nil)
	s.Equal(http.StatusNoContent, rr.Code)

	rr = s.authed(http.MethodDelete, "/usuarios/"+s.adminID.String(), token, nil)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *HandlerSuite) TestOperatorCannotAdminister() {
	token := s.login("operador")
	rr := s.authed(http.MethodGet, "/usuarios", token, nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "insufficient_role")
}
