package hostcall

import "time"

// RealClock is the Surface implementation wired into a production
// sandbox: it reports the host process's own wall-clock time.
type RealClock struct{}

func (RealClock) CurrentTime() (sec int64, nsec int32) {
	now := time.Now()
	return now.Unix(), int32(now.Nanosecond())
}
