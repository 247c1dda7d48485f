//go:build linux

package monitor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// clockTicksPerSecond is USER_HZ, the kernel's jiffies-per-second
// constant baked into /proc/.../stat. It is 100 on every architecture
// Kata Containers supports.
const clockTicksPerSecond = 100

// threadCPUClock tracks CPU time consumed by one OS thread since a
// baseline point, read via /proc/self/task/<tid>/stat rather than
// clock_gettime(CLOCK_THREAD_CPUTIME_ID, ...): that call only reports
// the calling thread's own time, but Watch polls from a different
// goroutine (and likely a different OS thread) than the one that
// entered the vCPU.
type threadCPUClock struct {
	tid      int
	baseline time.Duration
}

func captureThreadCPUClock() (*threadCPUClock, error) {
	tid := unix.Gettid()
	base, err := readThreadCPUTime(tid)
	if err != nil {
		return nil, fmt.Errorf("monitor: capture cpu clock for tid %d: %w", tid, err)
	}
	return &threadCPUClock{tid: tid, baseline: base}, nil
}

func (c *threadCPUClock) elapsed() (time.Duration, error) {
	now, err := readThreadCPUTime(c.tid)
	if err != nil {
		return 0, err
	}
	return now - c.baseline, nil
}

func readThreadCPUTime(tid int) (time.Duration, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/self/task/%d/stat", tid))
	if err != nil {
		return 0, err
	}

	// comm may itself contain spaces/parens; fields are well-defined
	// only after the final ')'.
	s := string(data)
	idx := strings.LastIndexByte(s, ')')
	if idx < 0 || idx+2 >= len(s) {
		return 0, fmt.Errorf("unexpected stat format for tid %d", tid)
	}
	fields := strings.Fields(s[idx+2:])
	// state is field 3 overall and fields[0] here, so overall field N
	// is fields[N-3]. utime=14, stime=15.
	if len(fields) < 13 {
		return 0, fmt.Errorf("short stat for tid %d", tid)
	}
	utime, err1 := strconv.ParseUint(fields[11], 10, 64)
	stime, err2 := strconv.ParseUint(fields[12], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, fmt.Errorf("malformed cpu ticks for tid %d", tid)
	}

	ticks := utime + stime
	return time.Duration(ticks) * time.Second / clockTicksPerSecond, nil
}
