package store

import (
	"context"
	"time"

	"github.com/me/aquaproc/pkg/model"
)

// Store defines the persistence layer for jobs.
type Store interface {
	CreateJob(ctx context.Context, job *model.Job) error
	// GetJob returns nil, nil when no job has the given id.
	GetJob(ctx context.Context, id string) (*model.Job, error)
	// ListJobs returns one page of jobs, newest first, and the total count
	// matching the filters in opts.
	ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error)
	UpdateJob(ctx context.Context, job *model.Job) error
	DeleteJob(ctx context.Context, id string) error
	// ListJobsCompletedBefore returns terminal jobs whose completion time is
	// older than t.
	ListJobsCompletedBefore(ctx context.Context, t time.Time) ([]*model.Job, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}
