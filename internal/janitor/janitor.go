package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/me/aquaproc/internal/store"
)

// sweepTimeout bounds one scheduled sweep.
const sweepTimeout = 10 * time.Minute

// Janitor deletes finished jobs, and their output directories, once they are
// older than the retention period.
type Janitor struct {
	cron      *cron.Cron
	store     store.Store
	retention time.Duration
	schedule  string
	logger    *slog.Logger
	now       func() time.Time
	active    func(jobID string) bool
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithActiveCheck makes Sweep skip jobs for which active returns true, such
// as a dismissed job whose container is still being killed.
func WithActiveCheck(active func(jobID string) bool) Option {
	return func(j *Janitor) {
		j.active = active
	}
}

// New creates a Janitor running on schedule (standard cron syntax or
// descriptors such as "@daily"). A retention of 0 disables sweeping.
func New(st store.Store, retention time.Duration, schedule string, logger *slog.Logger, opts ...Option) (*Janitor, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("cleanup schedule %q: %w", schedule, err)
	}
	logger = logger.With("component", "janitor")
	j := &Janitor{
		cron:      cron.New(cron.WithLogger(cronLogger{logger})),
		store:     st,
		retention: retention,
		schedule:  schedule,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Start registers the sweep and starts the cron scheduler. It does nothing
// when retention is disabled.
func (j *Janitor) Start() error {
	if j.retention <= 0 {
		j.logger.Info("job retention disabled, janitor not started")
		return nil
	}
	if _, err := j.cron.AddFunc(j.schedule, j.scheduledSweep); err != nil {
		return fmt.Errorf("add sweep: %w", err)
	}
	j.cron.Start()
	j.logger.Info("janitor started", "schedule", j.schedule, "retention", j.retention.String())
	return nil
}

// Stop stops the scheduler and waits for a running sweep to return.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *Janitor) scheduledSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := j.Sweep(ctx); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			j.logger.Error("sweep timed out", "timeout", sweepTimeout.String(), "error", err)
			return
		}
		j.logger.Error("sweep failed", "error", err)
	}
}

// Sweep deletes every terminal job completed more than the retention period
// ago and returns how many were removed.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	if j.retention <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-j.retention)
	jobs, err := j.store.ListJobsCompletedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired jobs: %w", err)
	}

	removed := 0
	for _, job := range jobs {
		if j.active != nil && j.active(job.ID) {
			j.logger.Debug("skip active job", "job_id", job.ID)
			continue
		}
		if job.OutputDir != "" {
			if err := os.RemoveAll(job.OutputDir); err != nil {
				j.logger.Warn("remove output dir", "job_id", job.ID, "dir", job.OutputDir, "error", err)
				continue
			}
		}
		if err := j.store.DeleteJob(ctx, job.ID); err != nil {
			return removed, fmt.Errorf("delete job %s: %w", job.ID, err)
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("expired jobs removed", "count", removed, "cutoff", cutoff.UTC().Format(time.RFC3339))
	}
	return removed, nil
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
