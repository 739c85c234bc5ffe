package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"clubgate/internal/access"
	"clubgate/internal/access/service"
	accessstore "clubgate/internal/access/store"
	"clubgate/internal/credential"
	"clubgate/internal/member"
	memberstore "clubgate/internal/member/store"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	"clubgate/pkg/platform/audit"
	authmw "clubgate/pkg/platform/middleware/auth"
	request "clubgate/pkg/platform/middleware/request"
	"clubgate/pkg/platform/middleware/requesttime"
	"clubgate/pkg/testutil"
)

var (
	issuedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fixedNow = time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC)
)

// tokenValidator maps opaque test tokens to user ids.
type tokenValidator map[string]id.UserID

func (v tokenValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	userID, ok := v[token]
	if !ok {
		return nil, dErrors.New(dErrors.CodeMalformedToken, "invalid token")
	}
	return &authmw.JWTClaims{UserID: userID, Subject: userID.String()}, nil
}

type principals map[id.UserID]id.Role

func (p principals) ResolvePrincipal(_ context.Context, userID id.UserID) (*authmw.Principal, error) {
	role, ok := p[userID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return &authmw.Principal{ID: userID, Username: string(role), Role: role, Active: true}, nil
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Append(_ context.Context, e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAuditor) kinds() []audit.Kind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.Kind, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Kind)
	}
	return out
}

type HandlerSuite struct {
	suite.Suite
	members *memberstore.InMemoryStore
	records *accessstore.InMemoryStore
	auditor *recordingAuditor
	router  http.Handler
	payload string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec, err := credential.NewCodec("CLUB", "s")
	s.Require().NoError(err)
	s.payload, _ = codec.Issue(42, "10203040", issuedAt)

	s.members = memberstore.NewInMemory()
	s.records = accessstore.NewInMemory()
	s.auditor = &recordingAuditor{}

	svc, err := service.New(s.members, s.records, codec, s.auditor, 500, service.WithLogger(logger))
	s.Require().NoError(err)

	validator := tokenValidator{"readonly": 1, "gatekeeper": 2, "operator": 3}
	users := principals{1: id.RoleReadOnly, 2: id.RoleGatekeeper, 3: id.RoleOperator}
	gate := authmw.NewGate(validator, users, s.auditor, logger)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.WithClock(func() time.Time { return fixedNow }))
	New(svc, gate, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) putMember(state member.State, balance float64) {
	issued := issuedAt
	paid := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	s.members.Put(&member.Member{
		ID:                 42,
		Number:             "CLUB000042",
		DocumentType:       "DNI",
		DocumentNumber:     "10203040",
		FullName:           "Ana Pérez",
		Category:           "Activo",
		State:              state,
		Balance:            balance,
		LastPaidPeriod:     &paid,
		CredentialPayload:  s.payload,
		CredentialIssuedAt: &issued,
	})
}

func (s *HandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) scan(token, payload string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, "/accesos/validar-qr", token, map[string]any{
		"qr_code":        payload,
		"ubicacion":      "Entrada principal",
		"dispositivo_id": "gate-1",
	})
}

func (s *HandlerSuite) TestValidateQR_Permitted() {
	s.putMember(member.StateActive, 0)

	rr := s.scan("gatekeeper", s.payload)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())

	body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	env := *body
	s.Equal(true, env["acceso_permitido"])
	s.Equal("permitido", env["resultado"])
	s.Equal("success", env["nivel_alerta"])
	s.Nil(env["deuda"])
	s.Equal(float64(0), env["dias_mora"])
	s.Equal(float64(1), env["acceso_id"])
	s.Equal("2025-03-15T14:30:00Z", env["timestamp"])

	m := env["miembro"].(map[string]any)
	s.Equal(float64(42), m["id"])
	s.Equal("CLUB000042", m["numero_miembro"])
	s.Equal("activo", m["estado"])
	s.Equal("2025-02-01", m["ultima_cuota_pagada"])
	s.NotContains(m, "foto_url")

	records := s.records.All()
	s.Require().Len(records, 1)
	s.Equal(id.UserID(2), records[0].OperatorID)
	s.Equal("gate-1", records[0].DeviceID)
}

func (s *HandlerSuite) TestValidateQR_Warned() {
	s.putMember(member.StateActive, -250)

	rr := s.scan("gatekeeper", s.payload)
	s.Require().Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[DecisionResponse](s.T(), rr)
	s.True(resp.Allowed)
	s.Equal("advertencia", resp.Outcome)
	s.Equal("warning", resp.Level)
	s.Require().NotNil(resp.Debt)
	s.Equal(250.0, *resp.Debt)
}

func (s *HandlerSuite) TestValidateQR_Rejected() {
	s.putMember(member.StateActive, -1500)

	rr := s.scan("gatekeeper", s.payload)
	s.Require().Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[DecisionResponse](s.T(), rr)
	s.False(resp.Allowed)
	s.Equal("rechazado", resp.Outcome)
	s.Equal("error", resp.Level)
	s.Equal(1500.0, *resp.Debt)
}

func (s *HandlerSuite) TestValidateQR_Tampered() {
	s.putMember(member.StateActive, 0)
	tampered := s.payload[:len(s.payload)-1] + flip(s.payload[len(s.payload)-1])

	rr := s.scan("gatekeeper", tampered)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "tampered_credential")

	records := s.records.All()
	s.Require().Len(records, 1)
	s.False(records[0].PayloadVerified)
	s.Equal(access.OutcomeRejected, records[0].Outcome)
}

func (s *HandlerSuite) TestValidateQR_Malformed() {
	rr := s.scan("gatekeeper", "NOT-A-QR")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "malformed_credential")
	s.Empty(s.records.All())
	s.Contains(s.auditor.kinds(), audit.KindCredentialUnparseable)
}

func (s *HandlerSuite) TestValidateQR_UnknownMember() {
	rr := s.scan("gatekeeper", s.payload)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "unknown_member")
	s.Empty(s.records.All())
}

func (s *HandlerSuite) TestValidateQR_RequiresGatekeeper() {
	s.putMember(member.StateActive, 0)

	rr := s.scan("", s.payload)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	rr = s.scan("readonly", s.payload)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "insufficient_role")
	s.Empty(s.records.All())
}

func (s *HandlerSuite) TestValidateQR_MissingCode() {
	rr := s.do(http.MethodPost, "/accesos/validar-qr", "gatekeeper", map[string]any{"ubicacion": "x"})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "validation_error")
}

func (s *HandlerSuite) TestManual() {
	s.putMember(member.StateSuspended, 0)

	rr := s.do(http.MethodPost, "/accesos/manual", "gatekeeper", map[string]any{"miembro_id": 42})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "insufficient_role")

	rr = s.do(http.MethodPost, "/accesos/manual", "operator", map[string]any{"miembro_id": 42})
	s.Require().Equal(http.StatusOK, rr.Code)
	resp := testutil.UnmarshalResponse[DecisionResponse](s.T(), rr)
	s.False(resp.Allowed)

	rr = s.do(http.MethodPost, "/accesos/manual", "operator", map[string]any{
		"miembro_id": 42, "forzar_acceso": true, "observaciones": "evento especial",
	})
	s.Require().Equal(http.StatusOK, rr.Code)
	resp = testutil.UnmarshalResponse[DecisionResponse](s.T(), rr)
	s.True(resp.Allowed)
	s.Equal("permitido", resp.Outcome)

	rr = s.do(http.MethodPost, "/accesos/manual", "operator", map[string]any{"miembro_id": 0})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "validation_error")
}

func (s *HandlerSuite) TestHistory() {
	s.putMember(member.StateActive, 0)
	for iter := 0; iter < 3; iter++ {
		s.Require().Equal(http.StatusOK, s.scan("gatekeeper", s.payload).Code)
	}

	rr := s.do(http.MethodGet, "/accesos/historial?miembro_id=42&page=1&page_size=2&fecha_inicio=2025-03-15&fecha_fin=2025-03-15", "readonly", nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	resp := testutil.UnmarshalResponse[HistoryResponse](s.T(), rr)
	s.Equal(3, resp.Total)
	s.Equal(2, resp.Pages)
	s.Len(resp.Items, 2)
	s.Equal("qr", resp.Items[0].Channel)
	s.True(resp.Items[0].PayloadVerified)

	rr = s.do(http.MethodGet, "/accesos/historial?fecha_fin=2025-03-14", "readonly", nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Zero(testutil.UnmarshalResponse[HistoryResponse](s.T(), rr).Total)

	rr = s.do(http.MethodGet, "/accesos/historial?miembro_id=abc", "readonly", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")

	rr = s.do(http.MethodGet, "/accesos/historial?resultado=quizas", "readonly", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "validation_error")
}

func (s *HandlerSuite) TestSummaryAndStatistics() {
	s.putMember(member.StateActive, 0)
	s.Require().Equal(http.StatusOK, s.scan("gatekeeper", s.payload).Code)

	rr := s.do(http.MethodGet, "/accesos/resumen", "readonly", nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	summary := testutil.UnmarshalResponse[SummaryResponse](s.T(), rr)
	s.Equal(1, summary.Today)
	s.Equal(1, summary.Month)
	s.Len(summary.Recent, 1)

	rr = s.do(http.MethodGet, "/accesos/estadisticas", "readonly", nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	stats := testutil.UnmarshalResponse[StatisticsResponse](s.T(), rr)
	s.Equal("2025-03-15", stats.Day)
	s.Len(stats.Hourly, 24)
	s.Require().NotNil(stats.PeakHour)
	s.Equal(14, *stats.PeakHour)
	s.Equal(1, stats.Permitted)
}

type failingService struct{ Service }

func (failingService) Summary(context.Context) (*access.Summary, error) {
	return nil, dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "failed to load access summary")
}

func (s *HandlerSuite) TestInternalErrorCarriesRequestID() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := authmw.NewGate(tokenValidator{"readonly": 1}, principals{1: id.RoleReadOnly}, s.auditor, logger)
	r := chi.NewRouter()
	r.Use(request.RequestID)
	New(failingService{}, gate, logger).Register(r)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/accesos/resumen")
	req.Header.Set("Authorization", "Bearer readonly")
	req.Header.Set(request.HeaderRequestID, "req-123")
	rr := testutil.DoRequest(r, req)

	s.Equal(http.StatusInternalServerError, rr.Code)
	body := testutil.UnmarshalErrorResponse(s.T(), rr)
	s.Equal("req-123", body["request_id"])
}

func flip(c byte) string {
	if c == '0' {
		return "1"
	}
	return "0"
}
