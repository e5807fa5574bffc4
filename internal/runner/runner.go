// Package runner runs one R script packaged in a container image through a
// container engine CLI and reports the outcome as data.
package runner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// ContainerMountPath is where the host output directory appears inside
	// the container.
	ContainerMountPath = "/out"

	// ScriptEnvVar names the environment variable that selects the script
	// the image entrypoint runs.
	ScriptEnvVar = "R_SCRIPT"

	// ErrorMarker starts a stderr line that reports the script's error.
	ErrorMarker = "Error"

	// DefaultExecutable is used when a Request leaves Executable empty.
	DefaultExecutable = "docker"

	killTimeout = 30 * time.Second
)

// Request describes one container invocation.
type Request struct {
	Executable string        // container engine binary, e.g. "docker" or "/usr/bin/podman"
	Image      string        // image reference, optionally tagged
	Script     string        // script identifier passed through ScriptEnvVar
	HostDir    string        // host directory mounted read-write at ContainerMountPath
	Args       []string      // positional arguments forwarded to the script in order
	Timeout    time.Duration // zero means wait until the container exits
}

// Result is the outcome of a container run that actually started.
type Result struct {
	ExitCode      int
	Stdout        string
	Stderr        string
	Message       string // first error line extracted from Stderr; empty on success
	ContainerName string
	Duration      time.Duration
}

// Success reports whether the script exited 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// LaunchError reports that the container engine could not be started at all
// (binary missing, not executable). There is no exit code in this case.
type LaunchError struct {
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Runner runs containerized scripts. It keeps no per-invocation state and is
// safe for concurrent use.
type Runner struct {
	logger *slog.Logger
	cmd    CommandRunner
}

// New creates a Runner that executes the container engine with os/exec.
func New(logger *slog.Logger) *Runner {
	return NewWithCommandRunner(logger, &osCommandRunner{})
}

// NewWithCommandRunner creates a Runner backed by cmd. Tests use it to
// inject a fake engine.
func NewWithCommandRunner(logger *slog.Logger, cmd CommandRunner) *Runner {
	return &Runner{
		logger: logger.With("component", "runner"),
		cmd:    cmd,
	}
}

// Run creates req.HostDir, starts the container and blocks until it exits.
//
// A non-zero exit is not an error: it comes back as a Result whose Message
// holds the extracted error line. A *LaunchError is returned when the engine
// binary cannot be started. When req.Timeout expires or ctx is cancelled the
// container is killed and the partial Result is returned together with an
// error wrapping the context error.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Image == "" {
		return nil, errors.New("runner: image reference is empty")
	}
	if req.HostDir == "" {
		return nil, errors.New("runner: host directory is empty")
	}
	exe := req.Executable
	if exe == "" {
		exe = DefaultExecutable
	}

	// The engine reads a relative -v source as a named volume.
	hostDir, err := filepath.Abs(req.HostDir)
	if err != nil {
		return nil, fmt.Errorf("resolve host dir %s: %w", req.HostDir, err)
	}
	req.HostDir = hostDir

	if err := os.MkdirAll(req.HostDir, 0o755); err != nil {
		return nil, fmt.Errorf("create host dir %s: %w", req.HostDir, err)
	}

	name := ContainerName(req.Image)
	args := Args(name, req)

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	r.logger.Debug("start container",
		"image", req.Image,
		"container", name,
		"script", req.Script,
		"host_dir", req.HostDir,
		"args", req.Args,
	)

	start := time.Now()
	stdout, stderr, exitCode, runErr := r.cmd.Run(runCtx, exe, args...)
	res := &Result{
		ExitCode:      exitCode,
		Stdout:        stdout,
		Stderr:        stderr,
		ContainerName: name,
		Duration:      time.Since(start),
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		r.kill(exe, name)
		res.ExitCode = -1
		res.Message = ExtractErrorMessage(stderr)
		r.logger.Warn("container interrupted", "container", name, "error", ctxErr)
		return res, fmt.Errorf("container %s: %w", name, ctxErr)
	}
	if runErr != nil {
		r.logger.Warn("container engine launch failed", "executable", exe, "error", runErr)
		return nil, &LaunchError{Executable: exe, Err: runErr}
	}

	if exitCode != 0 {
		res.Message = ExtractErrorMessage(stderr)
		r.logger.Warn("container failed",
			"image", req.Image,
			"container", name,
			"exit_code", exitCode,
			"message", res.Message,
		)
		return res, nil
	}

	r.logger.Debug("finished container",
		"image", req.Image,
		"container", name,
		"duration", res.Duration.String(),
	)
	return res, nil
}

// kill removes a container left behind by an interrupted run. The engine
// client was killed, but the container itself keeps running until told
// otherwise.
func (r *Runner) kill(exe, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	if _, stderr, code, err := r.cmd.Run(ctx, exe, "kill", name); err != nil || code != 0 {
		r.logger.Debug("container kill failed", "container", name, "exit_code", code, "stderr", stderr, "error", err)
	}
}

// Args builds the engine argument list for one invocation.
func Args(containerName string, req Request) []string {
	args := []string{
		"run", "--rm",
		"--name", containerName,
		"-v", req.HostDir + ":" + ContainerMountPath,
		"-e", ScriptEnvVar + "=" + req.Script,
		req.Image,
	}
	return append(args, req.Args...)
}

// ContainerName returns a fresh container name for image: a prefix derived
// from the image repository and a random 10-digit hex suffix.
func ContainerName(image string) string {
	return containerPrefix(image) + "_" + randomSuffix()
}

func containerPrefix(image string) string {
	ref := image
	if i := strings.LastIndex(ref, "@"); i >= 0 {
		ref = ref[:i]
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	if i := strings.Index(ref, ":"); i >= 0 {
		ref = ref[:i]
	}

	var b strings.Builder
	for _, c := range ref {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '.', c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('-')
		}
	}
	prefix := strings.TrimLeft(b.String(), "_.-")
	if prefix == "" {
		return "container"
	}
	return prefix
}

func randomSuffix() string {
	b := make([]byte, 5)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// ExtractErrorMessage returns the first stderr line starting with
// ErrorMarker. "Error: <text>" yields "<text>"; any other marked line (R's
// "Error in f(x) : ...") is returned whole. Returns "" if no line matches.
func ExtractErrorMessage(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, ErrorMarker) {
			continue
		}
		if rest, ok := strings.CutPrefix(line, ErrorMarker+":"); ok {
			if msg := strings.TrimSpace(rest); msg != "" {
				return msg
			}
		}
		return strings.TrimSpace(line)
	}
	return ""
}
