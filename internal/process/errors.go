package process

import "fmt"

// failurePrefix starts every user-facing message about a failed run.
const failurePrefix = "Running docker container failed"

// FailureMessage builds the user-facing message for a failed run from the
// error line extracted from stderr, falling back to "no message".
func FailureMessage(extracted string) string {
	if extracted == "" {
		extracted = "no message"
	}
	return failurePrefix + ": " + extracted
}

// UnknownProcessError is returned for a process id that is not in the catalog.
type UnknownProcessError struct {
	ID string
}

func (e *UnknownProcessError) Error() string {
	return fmt.Sprintf("unknown process %q", e.ID)
}

// MissingInputError names the first required input absent from a request.
type MissingInputError struct {
	ProcessID string
	Input     string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("Missing parameter %q. Please provide a %s.", e.Input, e.Input)
}

// ExecuteError reports a container run that started but did not succeed:
// non-zero exit, timeout or cancellation. UserMessage is safe to show to the
// caller; Err is set when the run was interrupted.
type ExecuteError struct {
	ProcessID   string
	ExitCode    int
	UserMessage string
	Err         error
}

func (e *ExecuteError) Error() string {
	return e.UserMessage
}

func (e *ExecuteError) Unwrap() error {
	return e.Err
}
