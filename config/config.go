// Package config holds the settings of a run, as read from a YAML file.
package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of a run. Durations are in seconds; 0 means no limit.
type Config struct {
	MaxWidth          int     `yaml:"max_width"`
	PerformanceFactor float64 `yaml:"performance_factor"`
	ThreadLimit       int     `yaml:"thread_limit"`
	Timeout           float64 `yaml:"timeout"`
	PlanTimeout       float64 `yaml:"plan_timeout"`
	TargetWidth       int     `yaml:"target_width"`
	MemoryLimit       int64   `yaml:"memory_limit"` // Max number of entries of a tensor; 0 means the backend default
	Planner           string  `yaml:"planner"`      // Planner command line, reading the formula on stdin
	Format            string  `yaml:"format"`
	MetricsFile       string  `yaml:"metrics_file"`
	Store             string  `yaml:"store"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		MaxWidth:          30,
		PerformanceFactor: 1e-11,
		ThreadLimit:       1,
		Format:            "text",
	}
}

// Parse reads a configuration from r. Fields missing from r keep their default value.
// Unknown fields are errors.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrap(err, "could not parse configuration")
	}
	return cfg, cfg.Validate()
}

// Load reads the configuration file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Default(), errors.Wrap(err, "could not open configuration")
	}
	defer f.Close()
	cfg, err := Parse(f)
	return cfg, errors.Wrapf(err, "in %q", path)
}

// Validate checks that the values of the configuration make sense.
func (c Config) Validate() error {
	switch {
	case c.MaxWidth < 0:
		return errors.Errorf("max_width must not be negative, got %d", c.MaxWidth)
	case c.PerformanceFactor < 0:
		return errors.Errorf("performance_factor must not be negative, got %v", c.PerformanceFactor)
	case c.ThreadLimit < 1:
		return errors.Errorf("thread_limit must be at least 1, got %d", c.ThreadLimit)
	case c.Timeout < 0 || c.PlanTimeout < 0:
		return errors.New("timeouts must not be negative")
	case c.MemoryLimit < 0:
		return errors.Errorf("memory_limit must not be negative, got %d", c.MemoryLimit)
	case c.Format != "text" && c.Format != "yaml":
		return errors.Errorf("unknown format %q", c.Format)
	}
	return nil
}

// TimeoutDuration returns the execution timeout.
func (c Config) TimeoutDuration() time.Duration {
	return seconds(c.Timeout)
}

// PlanTimeoutDuration returns the plan search timeout.
func (c Config) PlanTimeoutDuration() time.Duration {
	return seconds(c.PlanTimeout)
}

// PlannerCommand returns the planner command line split into words, or nil if there is none.
func (c Config) PlannerCommand() []string {
	return strings.Fields(c.Planner)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
