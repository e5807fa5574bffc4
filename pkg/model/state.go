package model

// JobState represents the lifecycle state of a Job.
type JobState string

const (
	JobStateAccepted   JobState = "ACCEPTED"
	JobStateRunning    JobState = "RUNNING"
	JobStateSuccessful JobState = "SUCCESSFUL"
	JobStateFailed     JobState = "FAILED"
	JobStateDismissed  JobState = "DISMISSED"
)

// String returns the string representation of the job state.
func (s JobState) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final state.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSuccessful, JobStateFailed, JobStateDismissed:
		return true
	}
	return false
}

// ValidJobTransitions defines the allowed state transitions for Jobs.
var ValidJobTransitions = map[JobState][]JobState{
	JobStateAccepted: {JobStateRunning, JobStateDismissed},
	JobStateRunning:  {JobStateSuccessful, JobStateFailed, JobStateDismissed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s JobState) CanTransitionTo(next JobState) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseJobState returns the JobState named by s and whether it is known.
func ParseJobState(s string) (JobState, bool) {
	switch st := JobState(s); st {
	case JobStateAccepted, JobStateRunning, JobStateSuccessful, JobStateFailed, JobStateDismissed:
		return st, true
	}
	return "", false
}
