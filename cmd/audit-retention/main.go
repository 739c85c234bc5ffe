// Command audit-retention archives and deletes audit events older than the
// retention window once and exits. It is meant for cron or a k8s CronJob; the
// server runs the same job on a schedule when AUDIT_RETENTION_DAYS > 0.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"clubgate/internal/platform/config"
	"clubgate/internal/platform/logger"
	"clubgate/internal/platform/postgres"
	auditpostgres "clubgate/pkg/platform/audit/store/postgres"
	"clubgate/pkg/platform/audit/retention"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	days := flag.Int("days", cfg.Audit.RetentionDays, "keep events newer than this many days")
	dryRun := flag.Bool("dry-run", false, "count candidates without archiving or deleting")
	skipArchive := flag.Bool("skip-archive", false, "delete without writing CSV archives")
	archiveDir := flag.String("archive-dir", cfg.Audit.ArchiveDir, "directory for CSV archives")
	flag.Parse()

	log := logger.New(cfg.LogLevel)
	if cfg.Database.URL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	job := retention.NewJob(auditpostgres.New(db), *archiveDir, retention.WithLogger(log))
	report, err := job.Run(ctx, retention.Options{
		RetentionDays: *days,
		DryRun:        *dryRun,
		SkipArchive:   *skipArchive,
	})
	if err != nil {
		log.Error("audit retention failed", "error", err, "deleted", report.Deleted)
		os.Exit(1)
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	_ = out.Encode(report)
	if report.Errors > 0 {
		os.Exit(3)
	}
}
