package sandbox

import (
	"context"
	"encoding/json"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kata-containers/hyperlight-js/monitor"
)

// tracer emits one span per CallHandler invocation. This package never
// configures an SDK or exporter: it calls only the otel API, so an
// embedder that never calls otel.SetTracerProvider gets the no-op
// tracer and pays nothing for spans it doesn't want.
var tracer = otel.Tracer("github.com/kata-containers/hyperlight-js/sandbox")

// MaxTimeoutMS is the implementation-chosen upper bound for both
// WallClockTimeoutMS and CPUTimeoutMS (spec.md §9 Open Questions:
// "implementations SHOULD pick a sane cap ... e.g., one hour").
const MaxTimeoutMS = 3_600_000

// CallOptions controls a single CallHandler invocation. The zero value
// is equivalent to every field absent: no monitors, gc=true.
type CallOptions struct {
	WallClockTimeoutMS *int
	CPUTimeoutMS       *int
	GC                 *bool
}

func (o CallOptions) gcRequested() bool {
	return o.GC == nil || *o.GC
}

// HandlersLoaded holds the vCPU, engine, and compiled handlers. It
// carries the poisoned flag described in spec.md §3: set after any
// call killed mid-instruction, cleared only by a successful Restore.
type HandlersLoaded struct {
	guard stageGuard

	vm     VM
	cfg    VMConfig
	handle *InterruptHandle
	log    *logrus.Entry

	poisoned atomic.Bool
}

// Poisoned reports the current value of the poisoned flag. Infallible.
func (h *HandlersLoaded) Poisoned() bool { return h.poisoned.Load() }

// InterruptHandle returns a cloneable handle to this sandbox's
// cancellation signal. Infallible, callable at any time.
func (h *HandlersLoaded) InterruptHandle() *InterruptHandle { return h.handle.Clone() }

// CallHandler is the central operation of the call path described in
// spec.md §4.1.
func (h *HandlersLoaded) CallHandler(ctx context.Context, name string, event any, opts CallOptions) (json.RawMessage, error) {
	if h.guard.consumed() {
		return nil, newErr(CodeConsumed, "stage already consumed")
	}
	if h.poisoned.Load() {
		return nil, newErr(CodePoisoned, "sandbox is poisoned; restore or unload before calling again")
	}
	if name == "" {
		return nil, newErr(CodeInvalidArg, "handler name must be non-empty")
	}
	if err := validateTimeout(opts.WallClockTimeoutMS); err != nil {
		return nil, err
	}
	if err := validateTimeout(opts.CPUTimeoutMS); err != nil {
		return nil, err
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return nil, wrapErr(CodeInvalidArg, err, "event is not JSON-encodable")
	}
	if h.cfg.InputBufferSizeBytes > 0 && uint64(len(eventBytes)) > h.cfg.InputBufferSizeBytes {
		return nil, newErr(CodeInternal, "encoded event exceeds the configured input buffer")
	}

	set := h.buildMonitorSet(opts)

	log := h.log.WithField("handler", name)
	start := time.Now()
	outcome := "ok"

	ctx, span := tracer.Start(ctx, "sandbox.CallHandler", trace.WithAttributes(
		attribute.String("handler", name),
	))
	defer func() {
		span.SetAttributes(attribute.String("outcome", outcome))
		if outcome != "ok" {
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		recordCallMetrics(name, outcome, time.Since(start))
	}()

	needsMonitor := !set.Empty()
	if needsMonitor {
		// Pin this goroutine to its OS thread before any monitor's
		// Prepare runs, so a CPU-time monitor's captured thread handle
		// (captured inside Launch, on this goroutine) stays valid for
		// the whole call instead of going stale to a scheduler migration.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	h.handle.clearForNewCall()

	var race *monitor.Race
	if needsMonitor {
		race, err = monitor.Launch(ctx, monitor.Shared(), h.handle, set)
		if err != nil {
			// Fail-closed: the vCPU is never entered.
			outcome = "internal"
			return nil, wrapErr(CodeInternal, err, "monitor failed to prepare")
		}
	}

	result, invokeErr := h.vm.Invoke(ctx, name, eventBytes, h.handle)

	if race != nil {
		race.Stop()
	}

	if invokeErr != nil {
		outcome = "internal"
		return nil, wrapErr(CodeInternal, invokeErr, "vCPU entry failed")
	}

	switch result.Exit {
	case ExitNormal:
		if opts.gcRequested() {
			if err := h.vm.GC(ctx); err != nil {
				outcome = "internal"
				return nil, wrapErr(CodeInternal, err, "post-call garbage collection failed")
			}
		}
		log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("handler call completed")
		return json.RawMessage(result.Output), nil

	case ExitKilled:
		h.poisoned.Store(true)
		outcome = "cancelled"
		if race != nil {
			if winner, ok := race.Winner(); ok {
				monitor.RecordTermination(winner)
				log.WithField("monitor_type", winner).Warn("call cancelled by monitor")
			}
		}
		return nil, newErr(CodeCancelled, "call terminated by monitor or explicit kill")

	case ExitGuestAbort:
		h.poisoned.Store(true)
		outcome = "guest-abort"
		return nil, newErr(CodeGuestAbort, "guest aborted")

	case ExitStackOverflow:
		outcome = "stack-overflow"
		return nil, newErr(CodeStackOverflow, "guest exhausted its stack")

	default:
		outcome = "internal"
		return nil, newErr(CodeInternal, "unrecognized vCPU exit reason")
	}
}

func (h *HandlersLoaded) buildMonitorSet(opts CallOptions) monitor.Set {
	var monitors []monitor.Monitor
	if opts.WallClockTimeoutMS != nil {
		monitors = append(monitors, monitor.WallClock(time.Duration(*opts.WallClockTimeoutMS)*time.Millisecond))
	}
	if opts.CPUTimeoutMS != nil {
		monitors = append(monitors, monitor.CPUTime(time.Duration(*opts.CPUTimeoutMS)*time.Millisecond))
	}
	return monitor.NewSet(monitors...)
}

func validateTimeout(ms *int) error {
	if ms == nil {
		return nil
	}
	if *ms <= 0 || *ms > MaxTimeoutMS {
		return newErr(CodeInvalidArg, "timeout must be > 0 and <= the implementation maximum")
	}
	return nil
}

// Snapshot captures the complete vCPU-and-guest-memory state through
// the hypervisor's native snapshot facility.
func (h *HandlersLoaded) Snapshot(ctx context.Context) (*Snapshot, error) {
	if h.guard.consumed() {
		return nil, newErr(CodeConsumed, "stage already consumed")
	}
	if h.poisoned.Load() {
		return nil, newErr(CodePoisoned, "sandbox is poisoned; restore or unload before calling again")
	}
	state, err := h.vm.Snapshot(ctx)
	if err != nil {
		return nil, wrapErr(CodeInternal, err, "snapshot failed")
	}
	snap := newSnapshot(state, h)
	h.log.WithField("snapshot_id", snap.id).Debug("captured snapshot")
	return snap, nil
}

// Restore applies s to this stage, overwriting the live vCPU/memory
// state, and clears the poisoned flag on success. If restore fails the
// sandbox remains in its prior state and poisoned is unchanged.
func (h *HandlersLoaded) Restore(ctx context.Context, s *Snapshot) error {
	if h.guard.consumed() {
		return newErr(CodeConsumed, "stage already consumed")
	}
	if !s.belongsTo(h) {
		return newErr(CodeInvalidArg, "snapshot does not belong to this sandbox")
	}
	if err := h.vm.Restore(ctx, s.state); err != nil {
		return wrapErr(CodeInternal, err, "restore failed")
	}
	h.poisoned.Store(false)
	h.log.WithField("snapshot_id", s.id).Debug("restored snapshot; poisoned flag cleared")
	return nil
}

// Unload consumes this stage, resets the engine's handler table, and
// returns a LoadedRuntime whose registry is empty (not the original —
// callers must re-add handlers).
func (h *HandlersLoaded) Unload(ctx context.Context) (*LoadedRuntime, error) {
	if err := h.guard.take(); err != nil {
		return nil, err
	}
	if err := h.vm.ResetHandlers(ctx); err != nil {
		return nil, wrapErr(CodeInternal, err, "failed to reset handler table")
	}
	return &LoadedRuntime{
		vm:       h.vm,
		cfg:      h.cfg,
		handlers: make(map[string]string),
		log:      logrus.WithField("component", "sandbox.LoadedRuntime"),
	}, nil
}
