package monitor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Set is a monitor-set: either empty (no monitoring), a single
// monitor, or a composition of up to five. The source this system was
// distilled from generates arity-specific tuple impls at compile time;
// Go's variadic functions model the same "fixed small tuple" shape
// without codegen, so a single Set type replaces the five tuple impls
// (see DESIGN.md).
type Set struct {
	monitors []Monitor
}

// MaxMonitors bounds a single Set, matching the source's tuple arities 1..5.
const MaxMonitors = 5

// NewSet composes up to MaxMonitors monitors. Composing more panics,
// since it signals a programming error, not a runtime condition.
func NewSet(monitors ...Monitor) Set {
	if len(monitors) > MaxMonitors {
		panic("monitor: a Set supports at most 5 monitors")
	}
	return Set{monitors: monitors}
}

// Empty reports whether the set has no monitors, i.e. the call should
// enter the vCPU directly with no racing.
func (s Set) Empty() bool { return len(s.monitors) == 0 }

// Race is the live result of Launch: a running composition of watch
// futures racing a guest call.
type Race struct {
	cancel context.CancelFunc
	group  *errgroup.Group
	rt     *Runtime

	mu     sync.Mutex
	winner string
	fired  bool
}

// Launch runs the fail-closed launch protocol described in spec.md
// §4.2:
//  1. Prepare every monitor, in order, on the calling goroutine.
//     The first error aborts the whole call with no monitor watching
//     and no vCPU entry.
//  2. Spawn the composed watch futures on the shared Runtime.
//  3. Race them; the first to fire calls killer.Kill() and records its
//     name for metrics.
//
// The caller must call Stop on the returned Race once the guarded vCPU
// entry returns, whether normally, by abort, or by kill.
func Launch(ctx context.Context, rt *Runtime, killer Killer, set Set) (*Race, error) {
	watchers := make([]Watcher, len(set.monitors))
	names := make([]string, len(set.monitors))

	for i, m := range set.monitors {
		w, err := m.Prepare(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "monitor %q failed to prepare", m.Name())
		}
		watchers[i] = w
		names[i] = m.Name()
	}

	rt.acquire()

	watchCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(watchCtx)
	race := &Race{cancel: cancel, group: g, rt: rt}

	for i := range watchers {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-watchers[i].Watch(gctx):
				race.recordWinner(names[i])
				killer.Kill()
				return nil
			}
		})
	}

	return race, nil
}

func (r *Race) recordWinner(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fired {
		r.fired = true
		r.winner = name
	}
}

// Winner returns the name of the monitor that fired first, if any.
func (r *Race) Winner() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.winner, r.fired
}

// Stop ends the race: it cancels every still-pending watch future and
// waits for their goroutines to return. Call once the guarded vCPU
// entry has returned control to the host.
func (r *Race) Stop() {
	r.cancel()
	_ = r.group.Wait()
	r.rt.release()
}
