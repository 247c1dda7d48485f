package sandbox_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kata-containers/hyperlight-js/internal/fakevm"
	"github.com/kata-containers/hyperlight-js/sandbox"
)

func newLoadedRuntime(t *testing.T) *sandbox.LoadedRuntime {
	t.Helper()
	hv := fakevm.NewHypervisor(nil)
	b := sandbox.NewBuilder(hv).
		SetHeapSize(1 << 20).
		SetStackSize(1 << 16).
		SetInputBufferSize(4096).
		SetOutputBufferSize(4096)

	proto, err := b.Build(context.Background())
	require.NoError(t, err)

	rt, err := proto.LoadRuntime(context.Background())
	require.NoError(t, err)
	return rt
}

func intPtr(v int) *int { return &v }

// Scenario 1: echo.
func TestEcho(t *testing.T) {
	rt := newLoadedRuntime(t)
	require.NoError(t, rt.AddHandler("echo", "echo"))

	h, err := rt.GetLoaded(context.Background())
	require.NoError(t, err)

	out, err := h.CallHandler(context.Background(), "echo", map[string]int{"x": 1}, sandbox.CallOptions{})
	require.NoError(t, err)

	var got map[string]int
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, 1, got["x"])
	assert.False(t, h.Poisoned())
}

// Scenario 2: calculator, including divide-by-zero.
func TestCalculator(t *testing.T) {
	rt := newLoadedRuntime(t)
	require.NoError(t, rt.AddHandler("calc", "calculator"))
	h, err := rt.GetLoaded(context.Background())
	require.NoError(t, err)

	call := func(a, b float64, op string) any {
		out, err := h.CallHandler(context.Background(), "calc", map[string]any{
			"a": a, "b": b, "operation": op,
		}, sandbox.CallOptions{})
		require.NoError(t, err)
		var resp struct {
			Result any `json:"result"`
		}
		require.NoError(t, json.Unmarshal(out, &resp))
		return resp.Result
	}

	assert.Equal(t, float64(15), call(10, 5, "add"))
	assert.Equal(t, float64(4), call(100, 25, "divide"))
	assert.Equal(t, "Error: Division by zero", call(100, 0, "divide"))
	assert.False(t, h.Poisoned())
}

// Scenario 3: wall-clock kill then restore.
func TestWallClockKillThenRestore(t *testing.T) {
	rt := newLoadedRuntime(t)
	require.NoError(t, rt.AddHandler("slow", "sleeploop"))
	h, err := rt.GetLoaded(context.Background())
	require.NoError(t, err)

	snap, err := h.Snapshot(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = h.CallHandler(context.Background(), "slow", nil, sandbox.CallOptions{
		WallClockTimeoutMS: intPtr(500),
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, sandbox.CodeCancelled, sandbox.CodeOf(err))
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.True(t, h.Poisoned())

	require.NoError(t, h.Restore(context.Background(), snap))
	assert.False(t, h.Poisoned())

	_, err = h.CallHandler(context.Background(), "slow", nil, sandbox.CallOptions{
		WallClockTimeoutMS: intPtr(50),
	})
	require.Error(t, err)
	assert.Equal(t, sandbox.CodeCancelled, sandbox.CodeOf(err))
}

// Scenario 4: CPU-time kill.
func TestCPUTimeKill(t *testing.T) {
	rt := newLoadedRuntime(t)
	require.NoError(t, rt.AddHandler("busy", "busyloop"))
	h, err := rt.GetLoaded(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = h.CallHandler(context.Background(), "busy", nil, sandbox.CallOptions{
		CPUTimeoutMS: intPtr(500),
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, sandbox.CodeCancelled, sandbox.CodeOf(err))
	assert.Less(t, elapsed, 2*time.Second)
	assert.True(t, h.Poisoned())
}

// Scenario 5: combined monitors, CPU wins.
func TestCombinedMonitorsCPUWins(t *testing.T) {
	rt := newLoadedRuntime(t)
	require.NoError(t, rt.AddHandler("busy", "busyloop"))
	h, err := rt.GetLoaded(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = h.CallHandler(context.Background(), "busy", nil, sandbox.CallOptions{
		WallClockTimeoutMS: intPtr(5000),
		CPUTimeoutMS:       intPtr(500),
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, sandbox.CodeCancelled, sandbox.CodeOf(err))
	assert.Less(t, elapsed, 3*time.Second)
}

// Scenario 6: double consumption of each stage.
func TestDoubleConsumption(t *testing.T) {
	hv := fakevm.NewHypervisor(nil)
	b := sandbox.NewBuilder(hv).
		SetHeapSize(1 << 20).SetStackSize(1 << 16).
		SetInputBufferSize(4096).SetOutputBufferSize(4096)

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	_, err = b.Build(context.Background())
	assert.Equal(t, sandbox.CodeConsumed, sandbox.CodeOf(err))

	rt := newLoadedRuntime(t)
	require.NoError(t, rt.AddHandler("echo", "echo"))
	h, err := rt.GetLoaded(context.Background())
	require.NoError(t, err)

	_, err = h.Unload(context.Background())
	require.NoError(t, err)
	_, err = h.Unload(context.Background())
	assert.Equal(t, sandbox.CodeConsumed, sandbox.CodeOf(err))

	_, err = h.CallHandler(context.Background(), "echo", 1, sandbox.CallOptions{})
	assert.Equal(t, sandbox.CodeConsumed, sandbox.CodeOf(err))

	// Registry mutations on an already-consumed LoadedRuntime must also
	// fail with consumed, not silently no-op.
	assert.Equal(t, sandbox.CodeConsumed, sandbox.CodeOf(rt.AddHandler("x", "echo")))
	assert.Equal(t, sandbox.CodeConsumed, sandbox.CodeOf(rt.RemoveHandler("echo")))
	assert.Equal(t, sandbox.CodeConsumed, sandbox.CodeOf(rt.ClearHandlers()))
}

// Scenario 7: manual kill from another goroutine.
func TestManualKillFromAnotherGoroutine(t *testing.T) {
	rt := newLoadedRuntime(t)
	require.NoError(t, rt.AddHandler("slow", "sleeploop"))
	h, err := rt.GetLoaded(context.Background())
	require.NoError(t, err)

	handle := h.InterruptHandle()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(200 * time.Millisecond)
		handle.Kill()
	}()

	start := time.Now()
	_, err = h.CallHandler(context.Background(), "slow", nil, sandbox.CallOptions{})
	elapsed := time.Since(start)
	wg.Wait()

	require.Error(t, err)
	assert.Equal(t, sandbox.CodeCancelled, sandbox.CodeOf(err))
	assert.True(t, h.Poisoned())
	assert.Less(t, elapsed, 10*time.Second)
}

// Scenario 8: unload then reload with a fresh registry.
func TestUnloadReload(t *testing.T) {
	rt := newLoadedRuntime(t)
	require.NoError(t, rt.AddHandler("a", "echo"))
	h, err := rt.GetLoaded(context.Background())
	require.NoError(t, err)

	out, err := h.CallHandler(context.Background(), "a", "hello", sandbox.CallOptions{})
	require.NoError(t, err)
	var s string
	require.NoError(t, json.Unmarshal(out, &s))
	assert.Equal(t, "hello", s)

	rt2, err := h.Unload(context.Background())
	require.NoError(t, err)

	require.NoError(t, rt2.AddHandler("b", "echo"))
	h2, err := rt2.GetLoaded(context.Background())
	require.NoError(t, err)

	out2, err := h2.CallHandler(context.Background(), "b", "world", sandbox.CallOptions{})
	require.NoError(t, err)
	var s2 string
	require.NoError(t, json.Unmarshal(out2, &s2))
	assert.Equal(t, "world", s2)

	_, err = h2.CallHandler(context.Background(), "a", "hello", sandbox.CallOptions{})
	require.Error(t, err)
}
