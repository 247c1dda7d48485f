package monitor

import (
	"context"
	"time"
)

type wallClockMonitor struct {
	d time.Duration
}

// WallClock builds a monitor that fires once d has elapsed in real
// time since the call began.
func WallClock(d time.Duration) Monitor { return wallClockMonitor{d: d} }

func (m wallClockMonitor) Name() string { return "wall-clock" }

// Prepare is infallible for the wall-clock monitor.
func (m wallClockMonitor) Prepare(ctx context.Context) (Watcher, error) {
	d := m.d
	return watcherFunc(func(ctx context.Context) <-chan struct{} {
		ch := make(chan struct{})
		go func() {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				close(ch)
			case <-ctx.Done():
			}
		}()
		return ch
	}), nil
}
