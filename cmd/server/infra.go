package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	accessservice "clubgate/internal/access/service"
	accessstore "clubgate/internal/access/store"
	"clubgate/internal/auth/lockout"
	authservice "clubgate/internal/auth/service"
	"clubgate/internal/auth/store/user"
	memberservice "clubgate/internal/member/service"
	memberstore "clubgate/internal/member/store"
	"clubgate/internal/platform/config"
	"clubgate/internal/platform/kafka"
	"clubgate/internal/platform/postgres"
	"clubgate/internal/platform/redis"
	"clubgate/pkg/platform/audit"
	"clubgate/pkg/platform/audit/sink"
	auditmemory "clubgate/pkg/platform/audit/store/memory"
	auditpostgres "clubgate/pkg/platform/audit/store/postgres"
)

type memberStore interface {
	memberservice.Store
	accessservice.MemberStore
}

// infra holds the storage backends. Postgres is used when DATABASE_URL is
// set, otherwise everything lives in process memory. Redis and Kafka are
// optional.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kafka.Client

	users        authservice.UserStore
	members      memberStore
	records      accessservice.RecordStore
	auditStore   audit.Store
	auditSink    audit.Sink
	lockoutStore lockout.Store
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	i := &infra{}
	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		i.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			i.Close(ctx)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		i.users = user.NewPostgres(db)
		i.members = memberstore.NewPostgres(db)
		i.records = accessstore.NewPostgres(db)
		i.auditStore = auditpostgres.New(db)
	} else {
		log.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
		i.users = user.New()
		i.members = memberstore.NewInMemory()
		i.records = accessstore.NewInMemory()
		i.auditStore = auditmemory.NewInMemoryStore()
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		i.Close(ctx)
		return nil, err
	}
	if rc != nil {
		i.redis = rc
		i.lockoutStore = lockout.NewRedisStore(rc.Client)
	} else {
		i.lockoutStore = lockout.NewInMemoryStore()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kc, err := kafka.New(ctx, kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.AuditTopic}, log)
		if err != nil {
			i.Close(ctx)
			return nil, err
		}
		i.kafka = kc
		if err := kc.EnsureTopic(ctx); err != nil {
			i.Close(ctx)
			return nil, err
		}
		i.auditSink = sink.NewKafka(kc, cfg.Kafka.AuditTopic, log)
	}
	return i, nil
}

func (i *infra) Close(ctx context.Context) {
	if i.kafka != nil {
		i.kafka.Close(ctx)
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}
