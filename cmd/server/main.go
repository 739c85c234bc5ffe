package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	accesshandler "clubgate/internal/access/handler"
	accessmetrics "clubgate/internal/access/metrics"
	accessservice "clubgate/internal/access/service"
	auditquery "clubgate/internal/audit"
	audithandler "clubgate/internal/audit/handler"
	authhandler "clubgate/internal/auth/handler"
	"clubgate/internal/auth/lockout"
	"clubgate/internal/auth/password"
	authservice "clubgate/internal/auth/service"
	"clubgate/internal/credential"
	jwttoken "clubgate/internal/jwt_token"
	memberservice "clubgate/internal/member/service"
	"clubgate/internal/platform/config"
	"clubgate/internal/platform/httpserver"
	"clubgate/internal/platform/logger"
	"clubgate/internal/platform/metrics"
	"clubgate/internal/platform/middleware"
	"clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/audit/publisher"
	"clubgate/pkg/platform/audit/retention"
	"clubgate/pkg/platform/httputil"
	"clubgate/pkg/platform/middleware/admin"
	authmw "clubgate/pkg/platform/middleware/auth"
	"clubgate/pkg/platform/middleware/metadata"
	request "clubgate/pkg/platform/middleware/request"
	"clubgate/pkg/platform/middleware/requesttime"
)

const (
	shutdownTimeout = 10 * time.Second
	requestTimeout  = 30 * time.Second
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	deps, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	publisherOpts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
	}
	if deps.auditSink != nil {
		publisherOpts = append(publisherOpts, publisher.WithSink(deps.auditSink))
	}
	auditor := publisher.NewPublisher(deps.auditStore, publisherOpts...)

	codec, err := credential.NewCodec(cfg.Access.OrgPrefix, cfg.Access.QRSecretKey)
	if err != nil {
		return err
	}
	jwtService, err := jwttoken.NewJWTService(cfg.Auth.SecretKey, cfg.Auth.Algorithm, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		return err
	}
	hasher := password.NewHasher(cfg.Auth.BcryptCost)

	authOpts := []authservice.Option{authservice.WithLogger(log)}
	if cfg.Auth.LoginMaxAttempts > 0 {
		throttle, err := lockout.New(deps.lockoutStore, cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginLockoutWindow, lockout.WithLogger(log))
		if err != nil {
			return err
		}
		authOpts = append(authOpts, authservice.WithLoginThrottle(throttle))
	}
	authSvc, err := authservice.New(deps.users, jwtService, hasher, auditor, authOpts...)
	if err != nil {
		return err
	}

	memberOpts := []memberservice.Option{memberservice.WithLogger(log)}
	if deps.db != nil {
		memberOpts = append(memberOpts, memberservice.WithTxRunner(newEnrollTx(deps.db).Run))
	}
	memberSvc, err := memberservice.New(deps.members, codec, auditor, memberOpts...)
	if err != nil {
		return err
	}

	accessSvc, err := accessservice.New(deps.members, deps.records, codec, auditor, cfg.Access.WarningDebtCeiling,
		accessservice.WithLogger(log),
		accessservice.WithMetrics(accessmetrics.New(reg)),
		accessservice.WithTracer(otel.Tracer("clubgate/internal/access")),
	)
	if err != nil {
		return err
	}

	if cfg.SeedDev {
		if err := seedDev(ctx, deps.users, hasher, memberSvc, log); err != nil {
			return err
		}
	}

	gate := authmw.NewGate(jwttoken.NewJWTServiceAdapter(jwtService), authSvc, auditor, log)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.LatencyMiddleware(metrics.New(reg)))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{request.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/healthz", deps.handleHealth)
	r.With(admin.RequireAdminToken(cfg.AdminToken, log)).
		Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	authhandler.New(authSvc, gate, log).Register(r)
	accesshandler.New(accessSvc, gate, log).Register(r)
	audithandler.New(auditquery.NewService(deps.auditStore), gate, log).Register(r)

	if cfg.Audit.RetentionDays > 0 {
		job := retention.NewJob(deps.auditStore, cfg.Audit.ArchiveDir, retention.WithLogger(log))
		pruner := retention.NewPruner(job, retention.PrunerConfig{
			RetentionDays: cfg.Audit.RetentionDays,
			Interval:      cfg.Audit.RetentionInterval,
			OnReport: func(ctx context.Context, report retention.Report) {
				if report.Deleted == 0 {
					return
				}
				auditor.Append(ctx, audit.Event{
					Kind:        audit.KindAuditPurged,
					Severity:    audit.SeverityInfo,
					Description: "audit events past retention purged",
					Details: map[string]any{
						"cutoff":   report.Cutoff.Format(time.RFC3339),
						"archived": report.Archived,
						"deleted":  report.Deleted,
					},
				})
			},
		}, log)
		pruner.Start(ctx)
		defer pruner.Stop()
	}

	srv := httpserver.New(cfg.Addr, r)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting clubgate", "addr", cfg.Addr, "env", cfg.Environment, "postgres", deps.db != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Redis    string `json:"redis,omitempty"`
}

func (i *infra) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	if i.db != nil {
		resp.Database = "ok"
		if err := i.db.PingContext(ctx); err != nil {
			resp.Status, resp.Database, status = "degraded", "unreachable", http.StatusServiceUnavailable
		}
	}
	if i.redis != nil {
		resp.Redis = "ok"
		if err := i.redis.Health(ctx); err != nil {
			resp.Status, resp.Redis, status = "degraded", "unreachable", http.StatusServiceUnavailable
		}
	}
	httputil.WriteJSON(w, status, resp)
}
