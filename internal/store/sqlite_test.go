package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/me/aquaproc/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleJob(id string, created time.Time) *model.Job {
	return &model.Job{
		ID:        id,
		ProcessID: "combine-eurostat-data",
		State:     model.JobStateAccepted,
		Async:     true,
		Inputs:    map[string]any{"country_code": "DE", "year": "2021"},
		OutputDir: "/srv/download/out/combine-eurostat-data/job_" + id,
		CreatedAt: created,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestJob_CreateGet(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	job := sampleJob("job_1", now)

	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := st.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil {
		t.Fatal("GetJob returned nil")
	}
	if got.ProcessID != job.ProcessID || got.State != model.JobStateAccepted || !got.Async {
		t.Errorf("got %+v", got)
	}
	if got.Inputs["country_code"] != "DE" {
		t.Errorf("inputs = %v", got.Inputs)
	}
	if got.OutputDir != job.OutputDir {
		t.Errorf("OutputDir = %q, want %q", got.OutputDir, job.OutputDir)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if got.ExitCode != nil || got.StartedAt != nil || got.CompletedAt != nil || got.Outputs != nil {
		t.Errorf("unexpected fields on new job: %+v", got)
	}
}

func TestJob_GetMissing(t *testing.T) {
	st := testStore(t)
	got, err := st.GetJob(context.Background(), "job_nope")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestJob_Update(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	job := sampleJob("job_1", now)
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job.Transition(model.JobStateRunning, now)
	job.Transition(model.JobStateSuccessful, now.Add(time.Second))
	code := 0
	job.ExitCode = &code
	job.Stdout = "OK"
	job.Stderr = "Warning: x"
	job.ContainerName = "aquainfra-elbe-usecase-image_0a1b2c3d4e"
	job.Outputs = map[string]model.OutputLink{
		"nuts3_pop_data": {Title: "t", Description: "d", Href: "https://h/out/x.gpkg"},
	}
	if err := st.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	got, err := st.GetJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != model.JobStateSuccessful {
		t.Errorf("State = %s", got.State)
	}
	if got.ExitCode == nil || *got.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", got.ExitCode)
	}
	if got.Stdout != "OK" || got.Stderr != "Warning: x" || got.ContainerName != job.ContainerName {
		t.Errorf("captured output not stored: %+v", got)
	}
	if got.Outputs["nuts3_pop_data"].Href != "https://h/out/x.gpkg" {
		t.Errorf("Outputs = %v", got.Outputs)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Errorf("timestamps missing: started=%v completed=%v", got.StartedAt, got.CompletedAt)
	}
}

func TestJob_UpdateMissing(t *testing.T) {
	st := testStore(t)
	if err := st.UpdateJob(context.Background(), sampleJob("job_nope", time.Now())); err == nil {
		t.Error("expected error updating missing job")
	}
}

func TestJob_Delete(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.CreateJob(ctx, sampleJob("job_1", time.Now())); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := st.DeleteJob(ctx, "job_1"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if got, _ := st.GetJob(ctx, "job_1"); got != nil {
		t.Error("job still present after delete")
	}
	if err := st.DeleteJob(ctx, "job_1"); err == nil {
		t.Error("expected error deleting twice")
	}
}

func TestJob_List(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 19, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		job := sampleJob(fmt.Sprintf("job_%d", i), base.Add(time.Duration(i)*time.Minute))
		if i%2 == 1 {
			job.ProcessID = "weighting-functions"
		}
		if err := st.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	jobs, total, err := st.ListJobs(ctx, model.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if total != 5 || len(jobs) != 2 {
		t.Fatalf("total=%d len=%d, want 5 and 2", total, len(jobs))
	}
	if jobs[0].ID != "job_4" || jobs[1].ID != "job_3" {
		t.Errorf("order = %s, %s; want newest first", jobs[0].ID, jobs[1].ID)
	}

	jobs, total, err = st.ListJobs(ctx, model.ListOptions{Limit: 10, ProcessID: "weighting-functions"})
	if err != nil {
		t.Fatalf("ListJobs by process: %v", err)
	}
	if total != 2 || len(jobs) != 2 {
		t.Errorf("process filter: total=%d len=%d, want 2", total, len(jobs))
	}

	jobs, total, err = st.ListJobs(ctx, model.ListOptions{State: string(model.JobStateFailed)})
	if err != nil {
		t.Fatalf("ListJobs by state: %v", err)
	}
	if total != 0 || len(jobs) != 0 {
		t.Errorf("state filter: total=%d len=%d, want 0", total, len(jobs))
	}
}

func TestJob_ListCompletedBefore(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 19, 8, 0, 0, 0, time.UTC)

	old := sampleJob("job_old", base)
	old.Transition(model.JobStateRunning, base)
	old.Transition(model.JobStateFailed, base.Add(time.Second))

	recent := sampleJob("job_recent", base)
	recent.Transition(model.JobStateRunning, base)
	recent.Transition(model.JobStateSuccessful, base.Add(48*time.Hour))

	running := sampleJob("job_running", base)
	running.Transition(model.JobStateRunning, base)

	for _, job := range []*model.Job{old, recent, running} {
		if err := st.CreateJob(ctx, job); err != nil {
			t.Fatalf("CreateJob %s: %v", job.ID, err)
		}
	}

	jobs, err := st.ListJobsCompletedBefore(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListJobsCompletedBefore: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job_old" {
		t.Errorf("got %d jobs, want only job_old", len(jobs))
	}
}

func TestSQLiteStore_FileDatabase(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	path := filepath.Join(t.TempDir(), "jobs.db")
	ctx := context.Background()

	st, err := NewSQLiteStore(path, logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := st.CreateJob(ctx, sampleJob("job_1", time.Now())); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	st.Close()

	st, err = NewSQLiteStore(path, logger)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate reopened: %v", err)
	}
	if got, err := st.GetJob(ctx, "job_1"); err != nil || got == nil {
		t.Errorf("job not persisted: %v, %v", got, err)
	}
}
