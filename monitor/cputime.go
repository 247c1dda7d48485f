package monitor

import (
	"context"
	"time"
)

type cpuTimeMonitor struct {
	budget time.Duration
}

// CPUTime builds a monitor that fires once the calling thread has
// consumed budget worth of CPU time since the call began. Prepare
// captures the thread handle; it MUST run on the thread that will
// enter the vCPU (spec.md §4.2). sandbox.HandlersLoaded.CallHandler
// locks the calling goroutine to its OS thread for the duration of
// any monitored call so that guarantee holds in Go as it does for a
// native OS thread.
func CPUTime(budget time.Duration) Monitor { return cpuTimeMonitor{budget: budget} }

func (m cpuTimeMonitor) Name() string { return "cpu-time" }

func (m cpuTimeMonitor) Prepare(ctx context.Context) (Watcher, error) {
	clock, err := captureThreadCPUClock()
	if err != nil {
		return nil, err
	}
	budget := m.budget
	return watcherFunc(func(ctx context.Context) <-chan struct{} {
		ch := make(chan struct{})
		go func() {
			for {
				used, err := clock.elapsed()
				if err != nil {
					return
				}
				remaining := budget - used
				if remaining <= 0 {
					close(ch)
					return
				}
				sleep := remaining / 2
				if sleep < time.Millisecond {
					sleep = time.Millisecond
				}
				if sleep > 10*time.Millisecond {
					sleep = 10 * time.Millisecond
				}
				select {
				case <-time.After(sleep):
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch
	}), nil
}
