package sandbox_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kata-containers/hyperlight-js/internal/fakevm"
	"github.com/kata-containers/hyperlight-js/sandbox"
)

func TestBuilder_ZeroSizeIsInvalidArg(t *testing.T) {
	hv := fakevm.NewHypervisor(nil)

	_, err := sandbox.NewBuilder(hv).
		SetHeapSize(0).
		SetStackSize(1 << 16).
		SetInputBufferSize(4096).
		SetOutputBufferSize(4096).
		Build(context.Background())

	assert.Equal(t, sandbox.CodeInvalidArg, sandbox.CodeOf(err))
}

func TestHandlerName_EmptyIsInvalidArg(t *testing.T) {
	rt := newLoadedRuntime(t)

	assert.Equal(t, sandbox.CodeInvalidArg, sandbox.CodeOf(rt.AddHandler("", "echo")))
	assert.Equal(t, sandbox.CodeInvalidArg, sandbox.CodeOf(rt.RemoveHandler("")))

	require.NoError(t, rt.AddHandler("echo", "echo"))
	h, err := rt.GetLoaded(context.Background())
	require.NoError(t, err)

	_, err = h.CallHandler(context.Background(), "", nil, sandbox.CallOptions{})
	assert.Equal(t, sandbox.CodeInvalidArg, sandbox.CodeOf(err))
}

func TestTimeout_OutOfRangeIsInvalidArg(t *testing.T) {
	rt := newLoadedRuntime(t)
	require.NoError(t, rt.AddHandler("echo", "echo"))
	h, err := rt.GetLoaded(context.Background())
	require.NoError(t, err)

	cases := []int{0, -1, sandbox.MaxTimeoutMS + 1}
	for _, ms := range cases {
		_, err := h.CallHandler(context.Background(), "echo", 1, sandbox.CallOptions{
			WallClockTimeoutMS: intPtr(ms),
		})
		assert.Equal(t, sandbox.CodeInvalidArg, sandbox.CodeOf(err), "timeout=%d", ms)
	}
}

func TestSnapshotRestore_RejectsForeignSnapshot(t *testing.T) {
	rtA := newLoadedRuntime(t)
	require.NoError(t, rtA.AddHandler("echo", "echo"))
	hA, err := rtA.GetLoaded(context.Background())
	require.NoError(t, err)
	snapA, err := hA.Snapshot(context.Background())
	require.NoError(t, err)

	rtB := newLoadedRuntime(t)
	require.NoError(t, rtB.AddHandler("echo", "echo"))
	hB, err := rtB.GetLoaded(context.Background())
	require.NoError(t, err)

	err = hB.Restore(context.Background(), snapA)
	assert.Equal(t, sandbox.CodeInvalidArg, sandbox.CodeOf(err))
}
