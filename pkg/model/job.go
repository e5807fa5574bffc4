package model

import "time"

// Job is one execution of a process: its inputs, its state and, once the
// container has run, the captured outcome.
type Job struct {
	ID            string                `json:"id"`
	ProcessID     string                `json:"process_id"`
	State         JobState              `json:"state"`
	Async         bool                  `json:"async"`
	Inputs        map[string]any        `json:"inputs"`
	Outputs       map[string]OutputLink `json:"outputs,omitempty"`
	Message       string                `json:"message,omitempty"`
	ContainerName string                `json:"container_name,omitempty"`
	OutputDir     string                `json:"-"`
	ExitCode      *int                  `json:"exit_code,omitempty"`
	Stdout        string                `json:"-"`
	Stderr        string                `json:"-"`
	CreatedAt     time.Time             `json:"created_at"`
	StartedAt     *time.Time            `json:"started_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
}

// OutputLink points at one file a job produced.
type OutputLink struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Href        string `json:"href"`
}

// JobLogs carries the captured container output of a job.
type JobLogs struct {
	JobID    string `json:"job_id"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Logs returns the job's captured output.
func (j *Job) Logs() JobLogs {
	return JobLogs{JobID: j.ID, ExitCode: j.ExitCode, Stdout: j.Stdout, Stderr: j.Stderr}
}

// Transition moves the job to next, stamping StartedAt/CompletedAt.
func (j *Job) Transition(next JobState, now time.Time) error {
	if !j.State.CanTransitionTo(next) {
		return &InvalidTransitionError{
			Entity: "Job",
			ID:     j.ID,
			From:   string(j.State),
			To:     string(next),
		}
	}
	j.State = next
	if next == JobStateRunning {
		j.StartedAt = &now
	}
	if next.IsTerminal() {
		j.CompletedAt = &now
	}
	return nil
}
