// Package monitor implements the composable, fail-closed
// execution-monitor framework: monitors race resource predicates
// against a guest call, and the first to fire kills the vCPU.
package monitor

import "context"

// Killer is the narrow capability the monitor framework needs from a
// sandbox: a thread-safe, idempotent signal to stop the current call.
// sandbox.InterruptHandle satisfies this.
type Killer interface {
	Kill()
}

// Watcher is the future-like object produced by a Monitor's Prepare
// step. The returned channel stays open while the predicate holds and
// is closed exactly once when the predicate fires.
type Watcher interface {
	Watch(ctx context.Context) <-chan struct{}
}

// Monitor is a resource predicate that can be raced against a guest
// call. Prepare runs on the calling thread (the one about to enter the
// vCPU) because some monitors must capture thread-local state there;
// Watch then runs on the shared Runtime.
type Monitor interface {
	// Prepare may fail; a failure here must prevent the handler from
	// ever being entered (fail-closed).
	Prepare(ctx context.Context) (Watcher, error)

	// Name is a stable short identifier used as a metric label when
	// this monitor terminates a call, e.g. "wall-clock", "cpu-time".
	Name() string
}

type watcherFunc func(ctx context.Context) <-chan struct{}

func (f watcherFunc) Watch(ctx context.Context) <-chan struct{} { return f(ctx) }
