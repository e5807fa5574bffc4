package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ConfigFileEnv names the environment variable holding the service
	// config path.
	ConfigFileEnv = "AQUAINFRA_CONFIG_FILE"

	// DefaultConfigFile is used when neither a flag nor ConfigFileEnv is set.
	DefaultConfigFile = "./config.json"

	// DefaultImage is the container image bundling the R runtime and scripts.
	DefaultImage = "aquainfra-elbe-usecase-image:20251119"

	envPrefix = "AQUAINFRA"
)

// ServiceConfig is the runtime configuration shared by every process. It is
// loaded once and passed by value to the components that need it.
type ServiceConfig struct {
	DockerExecutable  string        `mapstructure:"docker_executable"`
	DownloadDir       string        `mapstructure:"download_dir"`
	DownloadURL       string        `mapstructure:"download_url"`
	Image             string        `mapstructure:"image"`
	RunTimeout        time.Duration `mapstructure:"run_timeout"`         // 0 waits for the container indefinitely
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"` // 0 means unlimited
	JobRetention      time.Duration `mapstructure:"job_retention"`       // 0 keeps jobs forever
	CleanupSchedule   string        `mapstructure:"cleanup_schedule"`
	ServeDownloads    bool          `mapstructure:"serve_downloads"`
}

// DefaultServiceConfig returns the defaults applied before the config file
// is read. DownloadDir and DownloadURL have no default.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DockerExecutable:  "docker",
		Image:             DefaultImage,
		MaxConcurrentJobs: 4,
		CleanupSchedule:   "@daily",
	}
}

// ResolvePath picks the service config path: explicit flag value first,
// then ConfigFileEnv, then DefaultConfigFile.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(ConfigFileEnv); p != "" {
		return p
	}
	return DefaultConfigFile
}

// LoadService reads the service config from path (JSON unless the
// extension says otherwise). AQUAINFRA_<KEY> environment variables override
// file values.
func LoadService(path string) (ServiceConfig, error) {
	def := DefaultServiceConfig()

	v := viper.New()
	v.SetDefault("docker_executable", def.DockerExecutable)
	v.SetDefault("download_dir", "")
	v.SetDefault("download_url", "")
	v.SetDefault("image", def.Image)
	v.SetDefault("run_timeout", def.RunTimeout)
	v.SetDefault("max_concurrent_jobs", def.MaxConcurrentJobs)
	v.SetDefault("job_retention", def.JobRetention)
	v.SetDefault("cleanup_schedule", def.CleanupSchedule)
	v.SetDefault("serve_downloads", def.ServeDownloads)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return ServiceConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg ServiceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServiceConfig{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return ServiceConfig{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Normalize trims trailing slashes from the download root and URL.
func (c *ServiceConfig) Normalize() {
	c.DownloadDir = strings.TrimRight(c.DownloadDir, "/")
	c.DownloadURL = strings.TrimRight(c.DownloadURL, "/")
}

// Validate checks required keys and value ranges.
func (c ServiceConfig) Validate() error {
	var errs []error
	if c.DownloadDir == "" {
		errs = append(errs, errors.New("download_dir is required"))
	}
	if c.DownloadURL == "" {
		errs = append(errs, errors.New("download_url is required"))
	}
	if c.DockerExecutable == "" {
		errs = append(errs, errors.New("docker_executable must not be empty"))
	}
	if c.Image == "" {
		errs = append(errs, errors.New("image must not be empty"))
	}
	if c.RunTimeout < 0 {
		errs = append(errs, errors.New("run_timeout must not be negative"))
	}
	if c.MaxConcurrentJobs < 0 {
		errs = append(errs, errors.New("max_concurrent_jobs must not be negative"))
	}
	if c.JobRetention < 0 {
		errs = append(errs, errors.New("job_retention must not be negative"))
	}
	return errors.Join(errs...)
}

// OutputDir returns the host directory that receives one job's files.
func (c ServiceConfig) OutputDir(processID, jobID string) string {
	return filepath.Join(c.DownloadDir, "out", processID, "job_"+jobID)
}

// OutputURL returns the public URL prefix for one job's files.
func (c ServiceConfig) OutputURL(processID, jobID string) string {
	return c.DownloadURL + "/out/" + processID + "/job_" + jobID
}
