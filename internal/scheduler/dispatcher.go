package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/aquaproc/internal/metrics"
	"github.com/me/aquaproc/internal/process"
	"github.com/me/aquaproc/internal/store"
	"github.com/me/aquaproc/pkg/model"
)

// ErrJobNotFound is returned for job ids the store does not know.
var ErrJobNotFound = errors.New("job not found")

const (
	dismissedMessage   = "Job dismissed"
	interruptedMessage = "Job interrupted by server restart"
)

// Dispatcher turns process submissions into jobs and runs them, at most
// MaxConcurrentJobs containers at a time.
type Dispatcher struct {
	catalog  *process.Catalog
	executor *process.Executor
	store    store.Store
	metrics  *metrics.Metrics
	sem      *Semaphore
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	active    map[string]context.CancelFunc
	dismissed map[string]bool
	wg        sync.WaitGroup

	baseCtx context.Context
	stop    context.CancelFunc
}

// NewDispatcher creates a Dispatcher. m may be nil.
func NewDispatcher(cat *process.Catalog, exec *process.Executor, st store.Store, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		catalog:   cat,
		executor:  exec,
		store:     st,
		metrics:   m,
		sem:       NewSemaphore(exec.Config().MaxConcurrentJobs),
		logger:    logger.With("component", "dispatcher"),
		now:       func() time.Time { return time.Now().UTC() },
		active:    make(map[string]context.CancelFunc),
		dismissed: make(map[string]bool),
		baseCtx:   ctx,
		stop:      cancel,
	}
}

// Stats describes current dispatcher load.
type Stats struct {
	Running  int `json:"running"`
	Capacity int `json:"capacity"` // 0 means unlimited
	Tracked  int `json:"tracked"`  // accepted or running jobs owned by this process
}

// Stats returns a snapshot of current load.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	tracked := len(d.active)
	d.mu.Unlock()
	return Stats{Running: d.sem.InUse(), Capacity: d.sem.Capacity(), Tracked: tracked}
}

// Submit creates a job for processID and runs it.
//
// Unknown processes and missing inputs are rejected before any job record
// exists. A synchronous submission returns the terminal job together with
// the execution error, if any. An asynchronous one returns the ACCEPTED job
// immediately and runs it in the background.
func (d *Dispatcher) Submit(ctx context.Context, processID string, inputs map[string]any, async bool) (*model.Job, error) {
	def, ok := d.catalog.Get(processID)
	if !ok {
		return nil, &process.UnknownProcessError{ID: processID}
	}
	if err := process.CheckInputs(def, inputs); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	job := &model.Job{
		ID:        id,
		ProcessID: def.ID,
		State:     model.JobStateAccepted,
		Async:     async,
		Inputs:    inputs,
		OutputDir: d.executor.Config().OutputDir(def.ID, id),
		CreatedAt: d.now(),
	}
	if err := d.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	d.metrics.JobSubmitted(def.ID, async)
	d.logger.Info("job accepted", "job_id", job.ID, "process", def.ID, "async", async)

	if !async {
		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		d.track(job.ID, cancel)
		defer d.untrack(job.ID)
		err := d.run(runCtx, def, job)
		return job, err
	}

	accepted := *job
	runCtx, cancel := context.WithCancel(d.baseCtx)
	d.track(job.ID, cancel)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.untrack(job.ID)
		defer cancel()
		if err := d.run(runCtx, def, job); err != nil {
			d.logger.Warn("async job failed", "job_id", job.ID, "process", def.ID, "error", err)
		}
	}()
	return &accepted, nil
}

// Dismiss stops an ACCEPTED or RUNNING job and marks it DISMISSED. A job that
// already finished is deleted together with its output directory, and
// deleted is true.
func (d *Dispatcher) Dismiss(ctx context.Context, jobID string) (job *model.Job, deleted bool, err error) {
	job, cancel, changed, err := d.markDismissed(ctx, jobID)
	if err != nil {
		return nil, false, err
	}
	if changed {
		if cancel != nil {
			d.logger.Info("dismissing job", "job_id", jobID)
			cancel()
		}
		return job, false, nil
	}
	if d.stopping(jobID) {
		return job, false, nil
	}

	if err := d.store.DeleteJob(ctx, jobID); err != nil {
		return nil, false, fmt.Errorf("delete job %s: %w", jobID, err)
	}
	if job.OutputDir != "" {
		if err := os.RemoveAll(job.OutputDir); err != nil {
			d.logger.Warn("remove job output", "job_id", jobID, "dir", job.OutputDir, "error", err)
		}
	}
	d.logger.Info("job deleted", "job_id", jobID, "process", job.ProcessID)
	return job, true, nil
}

// markDismissed moves an unfinished job to DISMISSED and returns the cancel
// func of its run, if this dispatcher owns one. changed is false when the
// job was already terminal.
func (d *Dispatcher) markDismissed(ctx context.Context, jobID string) (job *model.Job, cancel context.CancelFunc, changed bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	job, err = d.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, false, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, nil, false, ErrJobNotFound
	}
	if job.State.IsTerminal() {
		return job, nil, false, nil
	}

	if err := job.Transition(model.JobStateDismissed, d.now()); err != nil {
		return nil, nil, false, err
	}
	job.Message = dismissedMessage
	if err := d.store.UpdateJob(ctx, job); err != nil {
		return nil, nil, false, fmt.Errorf("update job %s: %w", jobID, err)
	}
	cancel = d.active[jobID]
	if cancel != nil {
		d.dismissed[jobID] = true
	}
	return job, cancel, true, nil
}

// Recover settles jobs left unfinished by a previous server process:
// RUNNING jobs become FAILED and ACCEPTED jobs DISMISSED.
func (d *Dispatcher) Recover(ctx context.Context) (int, error) {
	n := 0
	for _, state := range []model.JobState{model.JobStateRunning, model.JobStateAccepted} {
		next := model.JobStateFailed
		if state == model.JobStateAccepted {
			next = model.JobStateDismissed
		}
		for {
			jobs, _, err := d.store.ListJobs(ctx, model.ListOptions{Limit: 100, State: string(state)})
			if err != nil {
				return n, fmt.Errorf("list %s jobs: %w", state, err)
			}
			if len(jobs) == 0 {
				break
			}
			for _, job := range jobs {
				if err := job.Transition(next, d.now()); err != nil {
					return n, err
				}
				job.Message = interruptedMessage
				if err := d.store.UpdateJob(ctx, job); err != nil {
					return n, fmt.Errorf("update job %s: %w", job.ID, err)
				}
				n++
			}
		}
	}
	if n > 0 {
		d.logger.Warn("settled interrupted jobs", "count", n)
	}
	return n, nil
}

// Wait blocks until every background job has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stop cancels every background job. Their containers are killed and the
// jobs end up FAILED. Call Wait afterwards to let them settle.
func (d *Dispatcher) Stop() {
	d.stop()
}

func (d *Dispatcher) run(ctx context.Context, def *process.Definition, job *model.Job) error {
	if !d.sem.Acquire(ctx) {
		// Never started: a dismissed job is already settled, anything else
		// (caller gone, shutdown) is dismissed here.
		job.Message = "Job cancelled before it started"
		if _, err := d.commit(job, model.JobStateDismissed); err != nil {
			return err
		}
		return ctx.Err()
	}
	defer d.sem.Release()

	ok, err := d.commit(job, model.JobStateRunning)
	if err != nil {
		return err
	}
	if !ok {
		return context.Canceled
	}

	d.metrics.JobStarted()
	defer d.metrics.JobFinished()

	outcome, execErr := d.executor.Execute(ctx, def, job.ID, job.Inputs)
	if err := d.finish(job, outcome, execErr); err != nil {
		d.logger.Error("record job result", "job_id", job.ID, "error", err)
	}
	return execErr
}

// commit applies a transition and persists the job unless it was dismissed
// in the meantime. It reports whether the transition was applied.
func (d *Dispatcher) commit(job *model.Job, next model.JobState) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dismissed[job.ID] {
		return false, nil
	}
	if err := job.Transition(next, d.now()); err != nil {
		return false, err
	}
	if err := d.store.UpdateJob(context.Background(), job); err != nil {
		return false, fmt.Errorf("update job %s: %w", job.ID, err)
	}
	return true, nil
}

// finish records what the container run left behind and the terminal state.
func (d *Dispatcher) finish(job *model.Job, outcome *process.Outcome, execErr error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var duration time.Duration
	if outcome != nil && outcome.Result != nil {
		res := outcome.Result
		code := res.ExitCode
		job.ExitCode = &code
		job.Stdout = res.Stdout
		job.Stderr = res.Stderr
		job.ContainerName = res.ContainerName
		duration = res.Duration
	}

	next := model.JobStateSuccessful
	label := metrics.OutcomeSuccess
	var ee *process.ExecuteError
	switch {
	case execErr == nil:
		job.Outputs = outcome.Outputs
	case errors.As(execErr, &ee):
		next = model.JobStateFailed
		job.Message = ee.UserMessage
		label = metrics.OutcomeFailed
		if errors.Is(execErr, context.DeadlineExceeded) {
			label = metrics.OutcomeTimeout
		}
	default:
		next = model.JobStateFailed
		job.Message = execErr.Error()
		label = metrics.OutcomeLaunchError
	}

	if d.dismissed[job.ID] {
		next = model.JobStateDismissed
		label = metrics.OutcomeDismissed
		job.Message = dismissedMessage
		job.Outputs = nil
	}
	d.metrics.ObserveRun(job.ProcessID, label, duration)

	if err := job.Transition(next, d.now()); err != nil {
		return err
	}
	if err := d.store.UpdateJob(context.Background(), job); err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	d.logger.Info("job finished", "job_id", job.ID, "process", job.ProcessID, "state", job.State, "duration", duration.String())
	return nil
}

func (d *Dispatcher) track(id string, cancel context.CancelFunc) {
	d.mu.Lock()
	d.active[id] = cancel
	d.mu.Unlock()
}

func (d *Dispatcher) untrack(id string) {
	d.mu.Lock()
	delete(d.active, id)
	delete(d.dismissed, id)
	d.mu.Unlock()
}

// Active reports whether id is still owned by a run of this dispatcher,
// including a dismissed job whose container has not exited yet.
func (d *Dispatcher) Active(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[id]
	return ok
}

// stopping reports whether id was dismissed and its container is still
// being killed.
func (d *Dispatcher) stopping(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dismissed[id]
}
