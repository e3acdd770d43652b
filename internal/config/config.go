// Package config loads the runtime configuration every KOS subsystem is
// constructed from.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kaedeos/kos/internal/klog"
)

// Config holds the tunables the spec calls out: the storage root, logging
// setup, and the supervisor/scheduler cadences.
type Config struct {
	Root     string     `yaml:"root"`
	LogLevel klog.Level `yaml:"log_level"`
	LogJSON  bool       `yaml:"log_json"`

	// LogLevelComponents overrides LogLevel for specific klog.WithComponent
	// names, e.g. {"scheduler": "debug"} to chase a cron bug without turning
	// on debug logging process-wide.
	LogLevelComponents map[string]klog.Level `yaml:"log_level_components"`

	SupervisorInterval time.Duration `yaml:"supervisor_interval"`
	SchedulerInterval  time.Duration `yaml:"scheduler_interval"`
	ProcessScanInterval time.Duration `yaml:"process_scan_interval"`

	ServiceStopGrace time.Duration `yaml:"service_stop_grace"`
	JobCancelGrace   time.Duration `yaml:"job_cancel_grace"`
}

// Default returns the configuration used when no environment variables or
// override file are present.
func Default() Config {
	return Config{
		Root:                "/tmp/kos",
		LogLevel:            klog.InfoLevel,
		LogJSON:             false,
		SupervisorInterval:  2 * time.Second,
		SchedulerInterval:   1 * time.Minute,
		ProcessScanInterval: 100 * time.Millisecond,
		ServiceStopGrace:    10 * time.Second,
		JobCancelGrace:      2500 * time.Millisecond,
	}
}

// Load builds a Config starting from Default, applying overrideFile (if
// non-empty) and then environment variables, in that order, so env always
// wins.
func Load(overrideFile string) (Config, error) {
	cfg := Default()

	if overrideFile != "" {
		data, err := os.ReadFile(overrideFile)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := os.Getenv("KOS_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("KOS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = klog.Level(v)
	}
	if v := os.Getenv("KOS_LOG_JSON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LogJSON = b
		}
	}
	if v := os.Getenv("KOS_LOG_LEVEL_COMPONENTS"); v != "" {
		if cfg.LogLevelComponents == nil {
			cfg.LogLevelComponents = make(map[string]klog.Level)
		}
		for _, pair := range strings.Split(v, ",") {
			name, level, ok := strings.Cut(pair, "=")
			if !ok || name == "" || level == "" {
				continue
			}
			cfg.LogLevelComponents[name] = klog.Level(level)
		}
	}

	return cfg, nil
}
