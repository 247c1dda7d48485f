package sandbox

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// LoadedRuntime holds the vCPU plus an initialized engine, and owns the
// handler registry: a mapping from routing key to JavaScript source
// text. Registry mutations never enter the vCPU; only GetLoaded does.
type LoadedRuntime struct {
	guard stageGuard

	vm  VM
	cfg VMConfig
	log *logrus.Entry

	mu       sync.Mutex
	handlers map[string]string
}

// AddHandler registers source under name, overwriting any existing
// entry for that name. name must be non-empty.
func (r *LoadedRuntime) AddHandler(name, source string) error {
	if r.guard.consumed() {
		return newErr(CodeConsumed, "stage already consumed")
	}
	if name == "" {
		return newErr(CodeInvalidArg, "handler name must be non-empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = source
	return nil
}

// RemoveHandler deletes name from the registry if present. name must
// be non-empty.
func (r *LoadedRuntime) RemoveHandler(name string) error {
	if r.guard.consumed() {
		return newErr(CodeConsumed, "stage already consumed")
	}
	if name == "" {
		return newErr(CodeInvalidArg, "handler name must be non-empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
	return nil
}

// ClearHandlers empties the registry.
func (r *LoadedRuntime) ClearHandlers() error {
	if r.guard.consumed() {
		return newErr(CodeConsumed, "stage already consumed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string]string)
	return nil
}

// GetLoaded enters the vCPU once to compile every registered handler's
// source into the engine, consuming LoadedRuntime and returning a
// HandlersLoaded stage. A compilation error in any handler surfaces as
// internal.
func (r *LoadedRuntime) GetLoaded(ctx context.Context) (*HandlersLoaded, error) {
	if err := r.guard.take(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	snapshot := make(map[string]string, len(r.handlers))
	for k, v := range r.handlers {
		snapshot[k] = v
	}
	r.mu.Unlock()

	if err := r.vm.CompileHandlers(ctx, snapshot); err != nil {
		return nil, wrapErr(CodeInternal, err, "handler compilation failed")
	}

	r.log.WithField("handler_count", len(snapshot)).Debug("compiled handlers")

	return &HandlersLoaded{
		vm:     r.vm,
		cfg:    r.cfg,
		handle: newInterruptHandle(),
		log:    logrus.WithField("component", "sandbox.HandlersLoaded"),
	}, nil
}
