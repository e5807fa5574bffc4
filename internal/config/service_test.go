package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadService_JSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"docker_executable": "/usr/bin/docker",
		"download_dir": "/srv/download/",
		"download_url": "https://example.org/download/",
		"run_timeout": "2h",
		"max_concurrent_jobs": 2,
		"job_retention": "168h",
		"serve_downloads": true
	}`)

	cfg, err := LoadService(path)
	if err != nil {
		t.Fatalf("LoadService: %v", err)
	}
	if cfg.DockerExecutable != "/usr/bin/docker" {
		t.Errorf("DockerExecutable = %q", cfg.DockerExecutable)
	}
	if cfg.DownloadDir != "/srv/download" {
		t.Errorf("DownloadDir = %q, want trailing slash trimmed", cfg.DownloadDir)
	}
	if cfg.DownloadURL != "https://example.org/download" {
		t.Errorf("DownloadURL = %q, want trailing slash trimmed", cfg.DownloadURL)
	}
	if cfg.RunTimeout != 2*time.Hour {
		t.Errorf("RunTimeout = %s, want 2h", cfg.RunTimeout)
	}
	if cfg.MaxConcurrentJobs != 2 {
		t.Errorf("MaxConcurrentJobs = %d, want 2", cfg.MaxConcurrentJobs)
	}
	if cfg.JobRetention != 168*time.Hour {
		t.Errorf("JobRetention = %s, want 168h", cfg.JobRetention)
	}
	if !cfg.ServeDownloads {
		t.Error("ServeDownloads = false, want true")
	}
	if cfg.Image != DefaultImage {
		t.Errorf("Image = %q, want default %q", cfg.Image, DefaultImage)
	}
	if cfg.CleanupSchedule != "@daily" {
		t.Errorf("CleanupSchedule = %q, want @daily", cfg.CleanupSchedule)
	}
}

func TestLoadService_Defaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{"download_dir": "/d", "download_url": "http://h/d"}`)

	cfg, err := LoadService(path)
	if err != nil {
		t.Fatalf("LoadService: %v", err)
	}
	if cfg.DockerExecutable != "docker" {
		t.Errorf("DockerExecutable = %q, want docker", cfg.DockerExecutable)
	}
	if cfg.RunTimeout != 0 {
		t.Errorf("RunTimeout = %s, want 0 (no timeout)", cfg.RunTimeout)
	}
	if cfg.MaxConcurrentJobs != 4 {
		t.Errorf("MaxConcurrentJobs = %d, want 4", cfg.MaxConcurrentJobs)
	}
}

func TestLoadService_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", "download_dir: /d\ndownload_url: http://h/d\nimage: other:1\n")

	cfg, err := LoadService(path)
	if err != nil {
		t.Fatalf("LoadService: %v", err)
	}
	if cfg.Image != "other:1" {
		t.Errorf("Image = %q, want other:1", cfg.Image)
	}
}

func TestLoadService_NoExtensionIsJSON(t *testing.T) {
	path := writeConfig(t, "aquainfra", `{"download_dir": "/d", "download_url": "http://h/d"}`)

	if _, err := LoadService(path); err != nil {
		t.Fatalf("LoadService: %v", err)
	}
}

func TestLoadService_EnvOverride(t *testing.T) {
	path := writeConfig(t, "config.json", `{"download_dir": "/d", "download_url": "http://h/d"}`)
	t.Setenv("AQUAINFRA_DOCKER_EXECUTABLE", "podman")
	t.Setenv("AQUAINFRA_MAX_CONCURRENT_JOBS", "9")

	cfg, err := LoadService(path)
	if err != nil {
		t.Fatalf("LoadService: %v", err)
	}
	if cfg.DockerExecutable != "podman" {
		t.Errorf("DockerExecutable = %q, want podman", cfg.DockerExecutable)
	}
	if cfg.MaxConcurrentJobs != 9 {
		t.Errorf("MaxConcurrentJobs = %d, want 9", cfg.MaxConcurrentJobs)
	}
}

func TestLoadService_MissingRequired(t *testing.T) {
	path := writeConfig(t, "config.json", `{"docker_executable": "docker"}`)

	_, err := LoadService(path)
	if err == nil {
		t.Fatal("expected error for missing download_dir/download_url")
	}
	for _, want := range []string{"download_dir", "download_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}

func TestLoadService_MissingFile(t *testing.T) {
	if _, err := LoadService(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	if got := ResolvePath(""); got != DefaultConfigFile {
		t.Errorf("ResolvePath(\"\") = %q, want %q", got, DefaultConfigFile)
	}

	t.Setenv(ConfigFileEnv, "/etc/aquainfra.json")
	if got := ResolvePath(""); got != "/etc/aquainfra.json" {
		t.Errorf("ResolvePath with env = %q", got)
	}
	if got := ResolvePath("/flag.json"); got != "/flag.json" {
		t.Errorf("flag should win, got %q", got)
	}
}

func TestOutputLayout(t *testing.T) {
	cfg := ServiceConfig{DownloadDir: "/srv/dl", DownloadURL: "https://h/dl"}

	if got := cfg.OutputDir("weighting-functions", "abc"); got != "/srv/dl/out/weighting-functions/job_abc" {
		t.Errorf("OutputDir = %q", got)
	}
	if got := cfg.OutputURL("weighting-functions", "abc"); got != "https://h/dl/out/weighting-functions/job_abc" {
		t.Errorf("OutputURL = %q", got)
	}
}
