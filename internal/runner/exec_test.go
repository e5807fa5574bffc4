package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/me/aquaproc/internal/logging"
)

// writeEngineStub writes a shell script standing in for the container
// engine and returns its path.
func writeEngineStub(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs need a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "docker")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestExec_Success(t *testing.T) {
	exe := writeEngineStub(t, `printf OK`)
	r := New(logging.Discard())
	req := noopRequest(filepath.Join(t.TempDir(), "job1"))
	req.Executable = exe

	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 0 || res.Stdout != "OK" || res.Stderr != "" || res.Message != "" {
		t.Errorf("result = (%d, %q, %q, %q), want (0, \"OK\", \"\", \"\")",
			res.ExitCode, res.Stdout, res.Stderr, res.Message)
	}
}

func TestExec_ScriptFailure(t *testing.T) {
	exe := writeEngineStub(t, `printf 'Error: bad input\n' >&2; exit 1`)
	r := New(logging.Discard())
	req := noopRequest(filepath.Join(t.TempDir(), "job1"))
	req.Executable = exe

	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 1 || res.Stdout != "" || res.Stderr != "Error: bad input\n" || res.Message != "bad input" {
		t.Errorf("result = (%d, %q, %q, %q), want (1, \"\", \"Error: bad input\\n\", \"bad input\")",
			res.ExitCode, res.Stdout, res.Stderr, res.Message)
	}
}

func TestExec_ArgumentsReachEngine(t *testing.T) {
	exe := writeEngineStub(t, `for a in "$@"; do echo "$a"; done`)
	r := New(logging.Discard())
	hostDir := filepath.Join(t.TempDir(), "job1")
	req := noopRequest(hostDir)
	req.Executable = exe
	req.Args = []string{"with space.gpkg", "b.gpkg", "/out/result.gpkg"}

	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	got := strings.Split(strings.TrimSuffix(res.Stdout, "\n"), "\n")
	want := Args(res.ContainerName, req)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("engine saw %q\nwant          %q", got, want)
	}
}

func TestExec_LargeOutput(t *testing.T) {
	exe := writeEngineStub(t, `i=0; while [ $i -lt 2000 ]; do echo "line $i"; i=$((i+1)); done`)
	r := New(logging.Discard())
	req := noopRequest(t.TempDir())
	req.Executable = exe

	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	lines := strings.Count(res.Stdout, "\n")
	if lines != 2000 {
		t.Errorf("captured %d lines, want 2000", lines)
	}
}

func TestExec_MissingExecutable(t *testing.T) {
	r := New(logging.Discard())
	hostDir := filepath.Join(t.TempDir(), "job1")
	req := noopRequest(hostDir)
	req.Executable = filepath.Join(t.TempDir(), "no-such-docker")

	res, err := r.Run(context.Background(), req)
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("err = %v, want *LaunchError", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if _, err := os.Stat(hostDir); err != nil {
		t.Errorf("host dir should exist: %v", err)
	}
}

func TestExec_NotExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are POSIX only")
	}
	path := filepath.Join(t.TempDir(), "docker")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(logging.Discard())
	req := noopRequest(t.TempDir())
	req.Executable = path

	_, err := r.Run(context.Background(), req)
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("err = %v, want *LaunchError", err)
	}
}

func TestExec_Timeout(t *testing.T) {
	exe := writeEngineStub(t, `if [ "$1" = kill ]; then exit 0; fi; exec sleep 5`)
	r := New(logging.Discard())
	req := noopRequest(t.TempDir())
	req.Executable = exe
	req.Timeout = 100 * time.Millisecond

	start := time.Now()
	res, err := r.Run(context.Background(), req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if res == nil || res.ExitCode != -1 {
		t.Errorf("result = %+v, want exit code -1", res)
	}
	if elapsed := time.Since(start); elapsed > 4*time.Second {
		t.Errorf("Run took %s, timeout not enforced", elapsed)
	}
}
