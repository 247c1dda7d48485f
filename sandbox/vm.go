package sandbox

import (
	"context"
	"sync/atomic"
)

// VMConfig is the hypervisor allocation request produced by Builder.Build.
type VMConfig struct {
	HeapSizeBytes         uint64
	StackSizeBytes        uint64
	InputBufferSizeBytes  uint64
	OutputBufferSizeBytes uint64
}

// ExitReason classifies why a guest entry returned control to the host.
type ExitReason int

const (
	ExitNormal ExitReason = iota
	ExitKilled
	ExitGuestAbort
	ExitStackOverflow
)

// InvokeResult is the product of a single handler invocation.
type InvokeResult struct {
	Output []byte
	Exit   ExitReason
}

// Hypervisor is the narrow collaborator this core demands of the
// underlying hardware-virtualization layer. Its implementation
// (vCPU creation, memory mapping, register I/O, VM-exit dispatch,
// native snapshot bytes) is out of scope for this spec; see
// internal/fakevm for the in-process stand-in used by this module's
// own tests.
type Hypervisor interface {
	// NewVM allocates a vCPU and guest memory map sized per cfg, with
	// empty guest memory (Proto stage).
	NewVM(ctx context.Context, cfg VMConfig) (VM, error)
}

// VM is a single guest's vCPU plus its guest memory, addressed through
// the host-call surface described in spec.md §4.5. Every method enters
// the vCPU and blocks the calling goroutine until the guest yields
// control back (normal exit, abort, or kill acknowledgement).
type VM interface {
	// Bootstrap runs the embedded engine's construction, intrinsics
	// registration, and host-call surface wiring (Proto.LoadRuntime).
	Bootstrap(ctx context.Context) error

	// CompileHandlers compiles every entry of src (routing key ->
	// source text) into the engine (LoadedRuntime.GetLoaded). Each
	// source must define a top-level function literally named
	// `handler`.
	CompileHandlers(ctx context.Context, src map[string]string) error

	// ResetHandlers clears the compiled handler table, used by Unload.
	ResetHandlers(ctx context.Context) error

	// Invoke writes event into the guest input buffer, enters the
	// vCPU, and returns once the guest has written a result or the
	// call was interrupted via handle. The stage clears any pending
	// kill before the call; the VM implementation polls
	// handle.KillPending to notice a kill during the call.
	Invoke(ctx context.Context, handlerName string, event []byte, handle *InterruptHandle) (InvokeResult, error)

	// GC requests an additional vCPU entry to run the engine's
	// garbage collector.
	GC(ctx context.Context) error

	// Snapshot captures the complete vCPU-and-guest-memory state.
	Snapshot(ctx context.Context) ([]byte, error)

	// Restore overwrites the live vCPU/memory state with a
	// previously captured Snapshot. The sandbox behaves exactly as
	// it did at capture time after this returns successfully.
	Restore(ctx context.Context, state []byte) error

	// Close releases hypervisor resources. No stage in this package
	// calls it; Unload resets the handler table and keeps the VM.
	Close(ctx context.Context) error
}

// InterruptHandle is a cheaply cloneable, thread-safe reference to a
// sandbox's cancellation signal. Kill is idempotent and safe from any
// thread at any time; it is a no-op while no call is in progress, but
// a kill issued during the quiescent period between calls persists as
// "kill pending" until the start of the next call, where it is
// cleared before the vCPU is entered.
type InterruptHandle struct {
	pending *atomic.Bool
}

func newInterruptHandle() *InterruptHandle {
	return &InterruptHandle{pending: &atomic.Bool{}}
}

// Clone returns a handle sharing the same underlying signal.
func (h *InterruptHandle) Clone() *InterruptHandle {
	return &InterruptHandle{pending: h.pending}
}

// Kill signals the vCPU to exit at its next safe instruction boundary.
func (h *InterruptHandle) Kill() {
	h.pending.Store(true)
}

// KillPending reports whether a kill signal is currently latched.
func (h *InterruptHandle) KillPending() bool {
	return h.pending.Load()
}

// clearForNewCall is invoked by the stage at the start of every
// CallHandler, per spec.md §4.4.
func (h *InterruptHandle) clearForNewCall() {
	h.pending.Store(false)
}
