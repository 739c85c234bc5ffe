package retention

import (
	"context"
	"log/slog"
	"time"
)

// Runner is satisfied by *Job.
type Runner interface {
	Run(ctx context.Context, opts Options) (Report, error)
}

// Pruner periodically runs the retention job in the background. It is safe
// to stop via its context or the Stop method.
//
// A retention of 0 disables pruning entirely.
type Pruner struct {
	job      Runner
	opts     Options
	interval time.Duration
	logger   *slog.Logger
	onReport func(context.Context, Report)
	cancel   context.CancelFunc
	done     chan struct{}
}

// PrunerConfig holds the parameters for NewPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of audit history to keep.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// Interval is how often the pruner runs. Defaults to 24h.
	Interval time.Duration

	SkipArchive bool

	// OnReport is called after every successful run.
	OnReport func(context.Context, Report)
}

// NewPruner creates a pruner but does not start it.
func NewPruner(job Runner, cfg PrunerConfig, logger *slog.Logger) *Pruner {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Pruner{
		job:      job,
		opts:     Options{RetentionDays: cfg.RetentionDays, SkipArchive: cfg.SkipArchive},
		interval: interval,
		logger:   logger,
		onReport: cfg.OnReport,
		done:     make(chan struct{}),
	}
}

// Start begins the background loop. It runs once immediately, then on the
// configured interval, until ctx is cancelled or Stop is called.
func (p *Pruner) Start(ctx context.Context) {
	if p.opts.RetentionDays <= 0 {
		p.logger.InfoContext(ctx, "audit pruner disabled", "retention_days", p.opts.RetentionDays)
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.InfoContext(ctx, "audit pruner started",
		"retention_days", p.opts.RetentionDays,
		"interval", p.interval.String(),
	)
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Pruner) loop(ctx context.Context) {
	defer close(p.done)

	p.prune(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	report, err := p.job.Run(ctx, p.opts)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.ErrorContext(ctx, "audit prune failed", "error", err)
		}
		return
	}
	if p.onReport != nil {
		p.onReport(ctx, report)
	}
}
