// Package fakevm is an in-process stand-in for the hardware-virtualized
// engine that sandbox.Hypervisor and sandbox.VM abstract over. It never
// touches real hardware virtualization; it is to this module what
// mockAgent is to virtcontainers.Sandbox — a deterministic double that
// exercises every stage transition, call outcome, and snapshot/restore
// path without a hypervisor, a compiled engine, or real guest code.
//
// A "handler" compiled by this fake is not JavaScript: it is one of a
// small fixed set of kind strings (see handlers.go) chosen by whatever
// is registered under LoadedRuntime.AddHandler. Anything else fails to
// compile, mirroring the real engine rejecting a syntax error.
package fakevm

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kata-containers/hyperlight-js/hostcall"
	"github.com/kata-containers/hyperlight-js/sandbox"
)

// Hypervisor is a sandbox.Hypervisor backed by in-process goroutines
// instead of vCPUs. The zero value is not usable; use NewHypervisor.
type Hypervisor struct {
	clock hostcall.Surface
	log   *logrus.Entry
}

// NewHypervisor builds a fake hypervisor. A nil clock defaults to
// hostcall.RealClock{}.
func NewHypervisor(clock hostcall.Surface) *Hypervisor {
	if clock == nil {
		clock = hostcall.RealClock{}
	}
	return &Hypervisor{
		clock: clock,
		log:   logrus.WithField("component", "fakevm.Hypervisor"),
	}
}

func (h *Hypervisor) NewVM(ctx context.Context, cfg sandbox.VMConfig) (sandbox.VM, error) {
	h.log.WithField("heap_bytes", cfg.HeapSizeBytes).Debug("allocated fake vCPU")
	return &VM{
		cfg:   cfg,
		clock: h.clock,
		log:   logrus.WithField("component", "fakevm.VM"),
	}, nil
}

// VM is a sandbox.VM backed by an in-memory handler table and a plain
// Go map standing in for guest heap state. Every exported method takes
// mu while it reads or writes that state; Invoke releases it before a
// handler runs, so mu does not serialize whole handler calls.
type VM struct {
	cfg   sandbox.VMConfig
	clock hostcall.Surface
	log   *logrus.Entry

	mu          sync.Mutex
	bootstrapped bool
	handlers    map[string]kind
	gcCount     int
	counter     int64
	closed      bool
}

func (v *VM) Bootstrap(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bootstrapped = true
	v.handlers = make(map[string]kind)
	v.log.Debug("fake engine bootstrap complete")
	return nil
}

func (v *VM) CompileHandlers(ctx context.Context, src map[string]string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	compiled := make(map[string]kind, len(src))
	for name, source := range src {
		k, ok := kindOf(source)
		if !ok {
			return &compileError{handler: name, source: source}
		}
		compiled[name] = k
	}
	v.handlers = compiled
	v.log.WithField("handler_count", len(compiled)).Debug("compiled fake handlers")
	return nil
}

func (v *VM) ResetHandlers(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers = make(map[string]kind)
	return nil
}

func (v *VM) GC(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gcCount++
	return nil
}

func (v *VM) Close(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

type compileError struct {
	handler string
	source  string
}

func (e *compileError) Error() string {
	return "fakevm: unrecognized handler kind for " + e.handler + ": " + e.source
}
