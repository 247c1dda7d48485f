package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWallClock_FiresAfterDuration(t *testing.T) {
	m := WallClock(20 * time.Millisecond)
	assert.Equal(t, "wall-clock", m.Name())

	w, err := m.Prepare(context.Background())
	require.NoError(t, err)

	start := time.Now()
	<-w.Watch(context.Background())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWallClock_CancelledContextNeverFires(t *testing.T) {
	m := WallClock(time.Hour)
	w, err := m.Prepare(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := w.Watch(ctx)
	cancel()

	select {
	case <-ch:
		t.Fatal("wall-clock watcher fired on context cancellation, not on timeout")
	case <-time.After(50 * time.Millisecond):
	}
}
