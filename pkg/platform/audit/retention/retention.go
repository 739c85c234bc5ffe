// Package retention archives and purges audit events older than the
// retention horizon.
package retention

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	id "clubgate/pkg/domain"
	audit "clubgate/pkg/platform/audit"
)

// DefaultBatchSize is the number of events archived and deleted together.
const DefaultBatchSize = 1000

// Store is the subset of audit.Store the job needs.
type Store interface {
	ListBefore(ctx context.Context, cutoff time.Time, afterID id.EventID, limit int) ([]audit.Event, error)
	DeleteByIDs(ctx context.Context, ids []id.EventID) (int64, error)
}

// Options are the parameters of a single run.
type Options struct {
	RetentionDays int
	DryRun        bool
	SkipArchive   bool
}

// Report summarizes a run.
type Report struct {
	Cutoff     time.Time `json:"cutoff"`
	Candidates int       `json:"candidates"`
	Archived   int       `json:"archived"`
	Deleted    int64     `json:"deleted"`
	Errors     int       `json:"errors"`
	Files      []string  `json:"files,omitempty"`
}

// Job runs the retention procedure.
type Job struct {
	store      Store
	archiveDir string
	batchSize  int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Job.
type Option func(*Job)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		j.logger = logger
	}
}

func WithBatchSize(n int) Option {
	return func(j *Job) {
		if n > 0 {
			j.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		j.now = now
	}
}

// NewJob creates a retention job writing archives under archiveDir.
func NewJob(store Store, archiveDir string, opts ...Option) *Job {
	j := &Job{
		store:      store,
		archiveDir: archiveDir,
		batchSize:  DefaultBatchSize,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run archives and deletes every event older than now - RetentionDays.
// A batch whose archive fails is not deleted; it stays a candidate for the
// next run. Running twice with the same cutoff is a no-op the second time.
func (j *Job) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.RetentionDays <= 0 {
		return Report{}, fmt.Errorf("retention days must be positive, got %d", opts.RetentionDays)
	}

	runAt := j.now().UTC()
	cutoff := runAt.AddDate(0, 0, -opts.RetentionDays)
	report := Report{Cutoff: cutoff}

	if !opts.DryRun && !opts.SkipArchive {
		if err := os.MkdirAll(j.archiveDir, 0o750); err != nil {
			return report, fmt.Errorf("create archive dir: %w", err)
		}
	}

	var afterID id.EventID
	for batchNum := 1; ; batchNum++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		batch, err := j.store.ListBefore(ctx, cutoff, afterID, j.batchSize)
		if err != nil {
			return report, fmt.Errorf("list retention batch: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		afterID = batch[len(batch)-1].ID
		report.Candidates += len(batch)

		if opts.DryRun {
			continue
		}

		if !opts.SkipArchive {
			path, err := j.archive(batch, cutoff, runAt, batchNum)
			if err != nil {
				report.Errors++
				j.logger.ErrorContext(ctx, "audit archive failed, batch kept",
					"batch", batchNum,
					"events", len(batch),
					"error", err,
				)
				continue
			}
			report.Archived += len(batch)
			report.Files = append(report.Files, path)
		}

		ids := make([]id.EventID, len(batch))
		for i, event := range batch {
			ids[i] = event.ID
		}
		deleted, err := j.store.DeleteByIDs(ctx, ids)
		if err != nil {
			report.Errors++
			j.logger.ErrorContext(ctx, "audit purge failed",
				"batch", batchNum,
				"error", err,
			)
			continue
		}
		report.Deleted += deleted
	}

	j.logger.InfoContext(ctx, "audit retention finished",
		"cutoff", cutoff.Format(time.RFC3339),
		"dry_run", opts.DryRun,
		"skip_archive", opts.SkipArchive,
		"candidates", report.Candidates,
		"archived", report.Archived,
		"deleted", report.Deleted,
		"errors", report.Errors,
	)
	return report, nil
}

var csvHeader = []string{
	"id", "created_at", "kind", "severity", "description", "actor_user_id",
	"subject_kind", "subject_id", "details", "ip_address", "user_agent", "request_id",
}

func (j *Job) archive(batch []audit.Event, cutoff, runAt time.Time, batchNum int) (path string, err error) {
	name := fmt.Sprintf("audit_archive_%s_%s_%04d.csv",
		cutoff.Format("20060102"), runAt.Format("20060102T150405"), batchNum)
	path = filepath.Join(j.archiveDir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("open archive file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close archive file: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write archive header: %w", err)
	}
	for _, event := range batch {
		record, err := csvRecord(event)
		if err != nil {
			return "", err
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write archive row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush archive: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("sync archive: %w", err)
	}
	return path, nil
}

func csvRecord(event audit.Event) ([]string, error) {
	details := ""
	if len(event.Details) > 0 {
		raw, err := json.Marshal(event.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal details of event %d: %w", event.ID, err)
		}
		details = string(raw)
	}
	actor := ""
	if !event.ActorID.IsNil() {
		actor = event.ActorID.String()
	}
	subjectID := ""
	if event.SubjectID != 0 {
		subjectID = strconv.FormatInt(event.SubjectID, 10)
	}
	return []string{
		event.ID.String(),
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		string(event.Kind),
		string(event.Severity),
		event.Description,
		actor,
		string(event.SubjectKind),
		subjectID,
		details,
		event.IP,
		event.UserAgent,
		event.RequestID,
	}, nil
}

