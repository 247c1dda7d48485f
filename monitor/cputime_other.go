//go:build !linux

package monitor

import "time"

// threadCPUClock falls back to wall-clock elapsed time on platforms
// other than Linux. The source's own non-Linux path (Windows) reads a
// thread-cycles counter and a CPU-frequency constant instead of a
// kernel-reported thread CPU clock; Kata Containers' own hypervisor
// drivers are Linux-only, so this port does not implement that path
// and uses the wall-clock approximation instead.
type threadCPUClock struct {
	start time.Time
}

func captureThreadCPUClock() (*threadCPUClock, error) {
	return &threadCPUClock{start: time.Now()}, nil
}

func (c *threadCPUClock) elapsed() (time.Duration, error) {
	return time.Since(c.start), nil
}
