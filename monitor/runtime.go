package monitor

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kata-containers/hyperlight-js/internal/config"
)

const defaultWorkerCount = 2

// Runtime is the process-wide async runtime that hosts Watcher
// futures. It is initialized lazily on first use and its worker count
// is fixed at that point for the lifetime of the process (spec.md
// §4.2, §5).
type Runtime struct {
	sem chan struct{}
}

func newRuntime(workers int) *Runtime {
	if workers < 1 {
		workers = defaultWorkerCount
	}
	return &Runtime{sem: make(chan struct{}, workers)}
}

var (
	sharedOnce sync.Once
	shared     *Runtime
)

// Shared returns the process-wide monitor runtime, constructing it on
// first call from HYPERLIGHT_MONITOR_THREADS (default 2). Subsequent
// calls, and subsequent changes to the environment variable, have no
// effect on the already-constructed runtime.
func Shared() *Runtime {
	sharedOnce.Do(func() {
		cfg := config.LoadMonitor()
		shared = newRuntime(cfg.Threads)
		logrus.WithField("workers", cfg.Threads).Debug("initialized shared monitor runtime")
	})
	return shared
}

// acquire reserves one worker slot, blocking until one is free. A
// slot is held for the duration of one Launch's race, not per watch
// future within it — a single guest call's monitor set (up to
// MaxMonitors watchers) always occupies exactly one slot, so a call
// never blocks itself regardless of how many monitors it composes.
func (rt *Runtime) acquire() {
	rt.sem <- struct{}{}
}

func (rt *Runtime) release() {
	<-rt.sem
}
