// Package handler exposes the access decision engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clubgate/internal/access"
	id "clubgate/pkg/domain"
	dErrors "clubgate/pkg/domain-errors"
	"clubgate/pkg/platform/httputil"
	authmw "clubgate/pkg/platform/middleware/auth"
	request "clubgate/pkg/platform/middleware/request"
	"clubgate/pkg/requestcontext"
)

// Service is the decision engine surface the handler drives.
type Service interface {
	ValidateQR(ctx context.Context, scan access.QRScan) (*access.Result, error)
	RecordManual(ctx context.Context, entry access.ManualEntry) (*access.Result, error)
	History(ctx context.Context, filter access.HistoryFilter, page, pageSize int) (*access.Page, error)
	Summary(ctx context.Context) (*access.Summary, error)
	Statistics(ctx context.Context) (*access.Statistics, error)
}

type Handler struct {
	service Service
	gate    *authmw.Gate
	logger  *slog.Logger
}

func New(service Service, gate *authmw.Gate, logger *slog.Logger) *Handler {
	return &Handler{service: service, gate: gate, logger: logger}
}

// Register mounts the /accesos routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireGatekeeper())
		r.Post("/accesos/validar-qr", h.HandleValidateQR)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireOperator())
		r.Post("/accesos/manual", h.HandleManual)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireAuthenticated())
		r.Get("/accesos/historial", h.HandleHistory)
		r.Get("/accesos/resumen", h.HandleSummary)
		r.Get("/accesos/estadisticas", h.HandleStatistics)
	})
}

func (h *Handler) HandleValidateQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ValidateQRRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.ValidateQR(ctx, req.toScan())
	if err != nil {
		h.fail(ctx, w, requestID, "QR validation failed", err)
		return
	}

	h.logger.InfoContext(ctx, "access decided",
		"request_id", requestID,
		"channel", access.ChannelQR,
		"member_id", res.Member.ID,
		"access_id", res.Record.ID,
		"outcome", res.Record.Outcome,
		"operator_id", requestcontext.UserID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(res))
}

func (h *Handler) HandleManual(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ManualAccessRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.RecordManual(ctx, access.ManualEntry{
		MemberID:     req.MemberID,
		Location:     req.Location,
		Observations: req.Observations,
		Force:        req.Force,
	})
	if err != nil {
		h.fail(ctx, w, requestID, "manual access failed", err)
		return
	}

	h.logger.InfoContext(ctx, "access decided",
		"request_id", requestID,
		"channel", access.ChannelManual,
		"member_id", res.Member.ID,
		"access_id", res.Record.ID,
		"outcome", res.Record.Outcome,
		"forced", req.Force,
		"operator_id", requestcontext.UserID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, toDecisionResponse(res))
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	filter, page, pageSize, err := parseHistoryQuery(r.URL.Query())
	if err != nil {
		h.fail(ctx, w, requestID, "invalid history query", err)
		return
	}
	result, err := h.service.History(ctx, filter, page, pageSize)
	if err != nil {
		h.fail(ctx, w, requestID, "failed to load access history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toHistoryResponse(result))
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := h.service.Summary(ctx)
	if err != nil {
		h.fail(ctx, w, request.GetRequestID(ctx), "failed to load access summary", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &SummaryResponse{
		Today:  summary.Today,
		Week:   summary.Week,
		Month:  summary.Month,
		Recent: toRecordResponses(summary.Recent),
	})
}

func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.Statistics(ctx)
	if err != nil {
		h.fail(ctx, w, request.GetRequestID(ctx), "failed to load access statistics", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatisticsResponse(stats))
}

// parseHistoryQuery reads miembro_id, fecha_inicio, fecha_fin, resultado,
// page and page_size. Dates are YYYY-MM-DD (fecha_fin inclusive) or RFC 3339.
func parseHistoryQuery(q url.Values) (access.HistoryFilter, int, int, error) {
	var filter access.HistoryFilter

	if raw := strings.TrimSpace(q.Get("miembro_id")); raw != "" {
		memberID, err := id.ParseMemberID(raw)
		if err != nil {
			return filter, 0, 0, dErrors.New(dErrors.CodeBadRequest, "invalid miembro_id")
		}
		filter.MemberID = memberID
	}
	if raw := strings.TrimSpace(q.Get("fecha_inicio")); raw != "" {
		from, _, err := parseBound(raw)
		if err != nil {
			return filter, 0, 0, dErrors.New(dErrors.CodeBadRequest, "invalid fecha_inicio")
		}
		filter.From = from
	}
	if raw := strings.TrimSpace(q.Get("fecha_fin")); raw != "" {
		to, dateOnly, err := parseBound(raw)
		if err != nil {
			return filter, 0, 0, dErrors.New(dErrors.CodeBadRequest, "invalid fecha_fin")
		}
		if dateOnly {
			to = to.Add(24 * time.Hour)
		}
		filter.To = to
	}
	if raw := strings.TrimSpace(q.Get("resultado")); raw != "" {
		filter.Outcome = access.Outcome(strings.ToLower(raw))
	}

	page, err := optionalInt(q.Get("page"))
	if err != nil {
		return filter, 0, 0, dErrors.New(dErrors.CodeBadRequest, "invalid page")
	}
	pageSize, err := optionalInt(q.Get("page_size"))
	if err != nil {
		return filter, 0, 0, dErrors.New(dErrors.CodeBadRequest, "invalid page_size")
	}
	return filter, page, pageSize, nil
}

func parseBound(raw string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(dateLayout, raw); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(time.RFC3339, raw)
	return t.UTC(), false, err
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, requestID, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestID, "error", err)
	} else {
		h.logger.InfoContext(ctx, msg, "request_id", requestID, "error", err)
	}
	httputil.WriteError(w, err)
}
