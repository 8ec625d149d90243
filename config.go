package modregistry

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/GoCodeAlone/modregistry/feeders"
)

// RunnerConfig is the file-loadable configuration for a job runner
// deployment. Zero values defer to the runner's defaults.
type RunnerConfig struct {
	// Workers is the worker pool size.
	Workers int `yaml:"workers" toml:"workers" json:"workers"`
	// QueueSize is the job queue capacity.
	QueueSize int `yaml:"queue_size" toml:"queue_size" json:"queueSize"`
	// StallTimeout is how long a Running job may stall before the sweep
	// fails it, in Go duration syntax, e.g. "10m".
	StallTimeout string `yaml:"stall_timeout" toml:"stall_timeout" json:"stallTimeout"`
	// SweepSchedule is the cron expression driving the sweep, e.g.
	// "@every 1m".
	SweepSchedule string `yaml:"sweep_schedule" toml:"sweep_schedule" json:"sweepSchedule"`
	// CatalogDir is the module definition directory fed to the catalog
	// file loader, empty to disable file loading.
	CatalogDir string `yaml:"catalog_dir" toml:"catalog_dir" json:"catalogDir"`
}

// LoadRunnerConfig reads runner configuration from a YAML, TOML, or JSON
// file chosen by extension.
func LoadRunnerConfig(path string) (RunnerConfig, error) {
	var feeder feeders.Feeder
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		feeder = feeders.NewYamlFeeder(path)
	case ".toml":
		feeder = feeders.NewTomlFeeder(path)
	case ".json":
		feeder = feeders.NewJSONFeeder(path)
	default:
		return RunnerConfig{}, fmt.Errorf("unsupported config file extension: %s", path)
	}

	var cfg RunnerConfig
	if err := feeder.Feed(&cfg); err != nil {
		return RunnerConfig{}, fmt.Errorf("failed to load runner config %s: %w", path, err)
	}
	return cfg, nil
}

// RunnerOptions converts the configuration into JobRunner options.
// Invalid durations fail rather than silently falling back.
func (c RunnerConfig) RunnerOptions() ([]JobRunnerOption, error) {
	opts := []JobRunnerOption{
		WithWorkerCount(c.Workers),
		WithQueueSize(c.QueueSize),
		WithSweepSchedule(c.SweepSchedule),
	}
	if c.StallTimeout != "" {
		timeout, err := time.ParseDuration(c.StallTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid stall_timeout %q: %w", c.StallTimeout, err)
		}
		opts = append(opts, WithStallTimeout(timeout))
	}
	return opts, nil
}
