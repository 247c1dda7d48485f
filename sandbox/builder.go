package sandbox

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// stageGuard enforces the linear "consumed exactly once" discipline
// described in spec.md §9: an atomic one-shot take on a field that
// yields CodeConsumed on any subsequent attempt.
type stageGuard struct {
	taken atomic.Bool
}

// take returns nil the first time it is called on a given guard and
// CodeConsumed every time thereafter, regardless of concurrent callers.
func (g *stageGuard) take() error {
	if g.taken.Swap(true) {
		return newErr(CodeConsumed, "stage already consumed")
	}
	return nil
}

// consumed reports whether take has already succeeded once, without
// itself consuming the guard. Used by non-terminating operations that
// must still reject calls on an already-consumed stage.
func (g *stageGuard) consumed() bool {
	return g.taken.Load()
}

// Builder accumulates guest resource configuration before allocating
// any hypervisor resources. Setters validate their argument
// immediately and record the first invalid-arg error encountered so
// that chained calls (Builder.Set*.Set*.Build) remain ergonomic; Build
// surfaces that sticky error instead of allocating.
type Builder struct {
	guard stageGuard

	hv Hypervisor

	heapSize  uint64
	stackSize uint64
	inBufSize uint64
	outBufSize uint64

	firstErr error
	log       *logrus.Entry
}

// NewBuilder creates an empty Builder over the given hypervisor
// collaborator.
func NewBuilder(hv Hypervisor) *Builder {
	return &Builder{
		hv:  hv,
		log: logrus.WithField("component", "sandbox.Builder"),
	}
}

func (b *Builder) recordIfInvalid(field string, v uint64) bool {
	if v == 0 {
		if b.firstErr == nil {
			b.firstErr = newErr(CodeInvalidArg, field+" must be strictly positive")
		}
		return false
	}
	return true
}

// SetHeapSize records the guest heap size in bytes. Must be > 0.
func (b *Builder) SetHeapSize(bytes uint64) *Builder {
	if b.recordIfInvalid("heap size", bytes) {
		b.heapSize = bytes
	}
	return b
}

// SetStackSize records the guest stack size in bytes. Must be > 0.
func (b *Builder) SetStackSize(bytes uint64) *Builder {
	if b.recordIfInvalid("stack size", bytes) {
		b.stackSize = bytes
	}
	return b
}

// SetInputBufferSize records the guest input buffer size in bytes. Must be > 0.
func (b *Builder) SetInputBufferSize(bytes uint64) *Builder {
	if b.recordIfInvalid("input buffer size", bytes) {
		b.inBufSize = bytes
	}
	return b
}

// SetOutputBufferSize records the guest output buffer size in bytes. Must be > 0.
func (b *Builder) SetOutputBufferSize(bytes uint64) *Builder {
	if b.recordIfInvalid("output buffer size", bytes) {
		b.outBufSize = bytes
	}
	return b
}

// Build allocates the hypervisor resources (vCPU, guest memory map)
// and returns a Proto stage, consuming the Builder. Fails with
// invalid-arg if any setter rejected its argument, or internal if the
// hypervisor allocation itself fails.
func (b *Builder) Build(ctx context.Context) (*Proto, error) {
	if err := b.guard.take(); err != nil {
		return nil, err
	}
	if b.firstErr != nil {
		return nil, b.firstErr
	}

	cfg := VMConfig{
		HeapSizeBytes:         b.heapSize,
		StackSizeBytes:        b.stackSize,
		InputBufferSizeBytes:  b.inBufSize,
		OutputBufferSizeBytes: b.outBufSize,
	}

	vm, err := b.hv.NewVM(ctx, cfg)
	if err != nil {
		return nil, wrapErr(CodeInternal, err, "hypervisor failed to allocate vCPU and guest memory")
	}

	b.log.WithFields(logrus.Fields{
		"heap_bytes":   cfg.HeapSizeBytes,
		"stack_bytes":  cfg.StackSizeBytes,
		"in_buf_bytes": cfg.InputBufferSizeBytes,
		"out_buf_bytes": cfg.OutputBufferSizeBytes,
	}).Debug("allocated vCPU and guest memory")

	return &Proto{vm: vm, cfg: cfg, log: logrus.WithField("component", "sandbox.Proto")}, nil
}
