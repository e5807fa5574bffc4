package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"

	"github.com/me/aquaproc/internal/config"
	"github.com/me/aquaproc/internal/runner"
	"github.com/me/aquaproc/pkg/model"
)

// ScriptRunner runs one containerized script. *runner.Runner implements it.
type ScriptRunner interface {
	Run(ctx context.Context, req runner.Request) (*runner.Result, error)
}

// Outcome is what a container run left behind for a job.
type Outcome struct {
	Result    *runner.Result
	OutputDir string
	Outputs   map[string]model.OutputLink // set only when the script succeeded
}

// Executor runs catalog processes for jobs.
type Executor struct {
	cfg    config.ServiceConfig
	runner ScriptRunner
	logger *slog.Logger
}

// NewExecutor creates an Executor using cfg for paths, URLs and the engine.
func NewExecutor(cfg config.ServiceConfig, r ScriptRunner, logger *slog.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		runner: r,
		logger: logger.With("component", "process-executor"),
	}
}

// Config returns the service configuration the executor was built with.
func (e *Executor) Config() config.ServiceConfig {
	return e.cfg
}

// CheckInputs returns a *MissingInputError for the first declared input that
// is absent or null in inputs.
func CheckInputs(def *Definition, inputs map[string]any) error {
	for _, in := range def.Inputs {
		if v, ok := inputs[in.ID]; !ok || v == nil {
			return &MissingInputError{ProcessID: def.ID, Input: in.ID}
		}
	}
	return nil
}

// ScriptArgs returns the positional script arguments for a job: every input
// value in declaration order, then the in-container path of every output.
func ScriptArgs(def *Definition, jobID string, inputs map[string]any) ([]string, error) {
	args := make([]string, 0, len(def.Inputs)+len(def.Outputs))
	for _, in := range def.Inputs {
		s, err := inputString(inputs[in.ID])
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", in.ID, err)
		}
		args = append(args, s)
	}
	for _, out := range def.Outputs {
		args = append(args, path.Join(runner.ContainerMountPath, def.OutputFilename(out, jobID)))
	}
	return args, nil
}

// Execute validates inputs and runs def's script for jobID.
//
// The returned Outcome is non-nil whenever the container started, including
// failed runs, so callers can keep stdout and stderr. Errors are
// *MissingInputError (nothing ran), *runner.LaunchError wrapped (engine not
// runnable) or *ExecuteError (script failed, timed out or was cancelled).
func (e *Executor) Execute(ctx context.Context, def *Definition, jobID string, inputs map[string]any) (*Outcome, error) {
	if err := CheckInputs(def, inputs); err != nil {
		return nil, err
	}
	args, err := ScriptArgs(def, jobID, inputs)
	if err != nil {
		return nil, err
	}

	image := def.Image
	if image == "" {
		image = e.cfg.Image
	}
	outDir := e.cfg.OutputDir(def.ID, jobID)
	req := runner.Request{
		Executable: e.cfg.DockerExecutable,
		Image:      image,
		Script:     def.Script,
		HostDir:    outDir,
		Args:       args,
		Timeout:    e.cfg.RunTimeout,
	}

	e.logger.Info("running process", "process", def.ID, "job_id", jobID, "image", image)
	res, err := e.runner.Run(ctx, req)
	if res == nil {
		return nil, fmt.Errorf("process %s: %w", def.ID, err)
	}
	outcome := &Outcome{Result: res, OutputDir: outDir}

	if err != nil {
		msg := "container was cancelled"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "container did not finish within " + e.cfg.RunTimeout.String()
		}
		return outcome, &ExecuteError{
			ProcessID:   def.ID,
			ExitCode:    res.ExitCode,
			UserMessage: FailureMessage(msg),
			Err:         err,
		}
	}
	if !res.Success() {
		return outcome, &ExecuteError{
			ProcessID:   def.ID,
			ExitCode:    res.ExitCode,
			UserMessage: FailureMessage(res.Message),
		}
	}

	baseURL := e.cfg.OutputURL(def.ID, jobID)
	outcome.Outputs = make(map[string]model.OutputLink, len(def.Outputs))
	for _, out := range def.Outputs {
		outcome.Outputs[out.ID] = model.OutputLink{
			Title:       out.Title,
			Description: out.Description,
			Href:        baseURL + "/" + def.OutputFilename(out, jobID),
		}
	}
	e.logger.Info("process finished", "process", def.ID, "job_id", jobID, "duration", res.Duration.String())
	return outcome, nil
}

// inputString renders a JSON input value as a script argument. Qualified
// values of the form {"href": "..."} pass their href.
func inputString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	case json.Number:
		return t.String(), nil
	case map[string]any:
		if href, ok := t["href"].(string); ok {
			return href, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
