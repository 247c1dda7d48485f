package sandbox

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Proto holds a constructed vCPU with empty guest memory. Its only
// terminating operation, LoadRuntime, executes the embedded engine's
// bootstrap sequence inside the vCPU.
type Proto struct {
	guard stageGuard

	vm  VM
	cfg VMConfig
	log *logrus.Entry
}

// LoadRuntime enters the vCPU to run engine construction, intrinsics
// registration, and host-call surface wiring, consuming Proto and
// returning a LoadedRuntime. A bootstrap failure is fatal: the Proto
// stage is consumed and there is no recovery path (spec.md §4.1).
func (p *Proto) LoadRuntime(ctx context.Context) (*LoadedRuntime, error) {
	if err := p.guard.take(); err != nil {
		return nil, err
	}

	if err := p.vm.Bootstrap(ctx); err != nil {
		return nil, wrapErr(CodeInternal, err, "engine bootstrap failed")
	}

	p.log.Debug("engine bootstrap complete")

	return &LoadedRuntime{
		vm:       p.vm,
		cfg:      p.cfg,
		handlers: make(map[string]string),
		log:      logrus.WithField("component", "sandbox.LoadedRuntime"),
	}, nil
}
