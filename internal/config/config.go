// Package config parses the process-wide environment variables that
// govern the shared monitor runtime and crash-diagnostics behavior.
package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Monitor holds the environment-derived settings for the shared
// monitor runtime (monitor.Shared).
type Monitor struct {
	Threads     int    `env:"HYPERLIGHT_MONITOR_THREADS" envDefault:"2"`
	CoreDumpDir string `env:"HYPERLIGHT_CORE_DUMP_DIR" envDefault:""`
}

// LoadMonitor parses Monitor from the environment. On a parse error
// (a non-integer HYPERLIGHT_MONITOR_THREADS, for instance) it logs the
// offending value and falls back to defaults rather than failing the
// process, since the monitor runtime is an internal performance knob,
// not a required dependency.
func LoadMonitor() Monitor {
	var cfg Monitor
	if err := env.Parse(&cfg); err != nil {
		logrus.WithError(err).Warn("failed to parse monitor environment config, using defaults")
		return Monitor{Threads: 2}
	}
	if cfg.Threads < 1 {
		logrus.WithField("value", cfg.Threads).Warn("ignoring non-positive HYPERLIGHT_MONITOR_THREADS, using default")
		cfg.Threads = 2
	}
	return cfg
}
