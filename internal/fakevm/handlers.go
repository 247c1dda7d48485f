package fakevm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kata-containers/hyperlight-js/sandbox"
)

// kind enumerates the behaviors this fake engine knows how to compile
// a registered handler source into. Real source text is free-form
// JavaScript; a kind string here is the fake's entire "language".
type kind string

const (
	kindEcho          kind = "echo"
	kindCalculator    kind = "calculator"
	kindCounter       kind = "counter"
	kindNow           kind = "now"
	kindBusyLoop      kind = "busyloop"
	kindSleepLoop     kind = "sleeploop"
	kindStackOverflow kind = "stackoverflow"
	kindGuestAbort    kind = "guestabort"
)

func kindOf(source string) (kind, bool) {
	switch kind(source) {
	case kindEcho, kindCalculator, kindCounter, kindNow, kindBusyLoop, kindSleepLoop, kindStackOverflow, kindGuestAbort:
		return kind(source), true
	default:
		return "", false
	}
}

// calcRequest is the event payload the "calculator" handler expects.
type calcRequest struct {
	Op string  `json:"operation"`
	A  float64 `json:"a"`
	B  float64 `json:"b"`
}

// calcResponse mirrors the guest-level convention of scenario 2: a
// successful op yields a numeric result, a division by zero yields a
// result that is itself a descriptive string. Both are valid JSON
// values for the same field, hence the any-typed Result.
type calcResponse struct {
	Result any `json:"result"`
}

// pollInterval is how often busyloop/sleeploop handlers check for a
// pending kill signal or context cancellation.
const pollInterval = 2 * time.Millisecond

func (v *VM) Invoke(ctx context.Context, handlerName string, event []byte, handle *sandbox.InterruptHandle) (sandbox.InvokeResult, error) {
	v.mu.Lock()
	k, ok := v.handlers[handlerName]
	v.mu.Unlock()
	if !ok {
		return sandbox.InvokeResult{}, &compileError{handler: handlerName, source: "<not compiled>"}
	}

	switch k {
	case kindEcho:
		return sandbox.InvokeResult{Output: event, Exit: sandbox.ExitNormal}, nil

	case kindCalculator:
		return v.invokeCalculator(event)

	case kindCounter:
		return v.invokeCounter()

	case kindNow:
		return v.invokeNow()

	case kindBusyLoop:
		return v.spin(ctx, handle, true)

	case kindSleepLoop:
		return v.spin(ctx, handle, false)

	case kindStackOverflow:
		return sandbox.InvokeResult{Exit: sandbox.ExitStackOverflow}, nil

	case kindGuestAbort:
		return sandbox.InvokeResult{Exit: sandbox.ExitGuestAbort}, nil

	default:
		return sandbox.InvokeResult{}, &compileError{handler: handlerName, source: string(k)}
	}
}

func (v *VM) invokeCalculator(event []byte) (sandbox.InvokeResult, error) {
	var req calcRequest
	if err := json.Unmarshal(event, &req); err != nil {
		return sandbox.InvokeResult{}, err
	}

	var resp calcResponse
	switch req.Op {
	case "add":
		resp.Result = req.A + req.B
	case "subtract":
		resp.Result = req.A - req.B
	case "multiply":
		resp.Result = req.A * req.B
	case "divide":
		if req.B == 0 {
			resp.Result = "Error: Division by zero"
		} else {
			resp.Result = req.A / req.B
		}
	default:
		resp.Result = "Error: unknown operator " + req.Op
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return sandbox.InvokeResult{}, err
	}
	return sandbox.InvokeResult{Output: out, Exit: sandbox.ExitNormal}, nil
}

func (v *VM) invokeCounter() (sandbox.InvokeResult, error) {
	v.mu.Lock()
	v.counter++
	current := v.counter
	v.mu.Unlock()

	out, err := json.Marshal(struct {
		Count int64 `json:"count"`
	}{Count: current})
	if err != nil {
		return sandbox.InvokeResult{}, err
	}
	return sandbox.InvokeResult{Output: out, Exit: sandbox.ExitNormal}, nil
}

func (v *VM) invokeNow() (sandbox.InvokeResult, error) {
	sec, nsec := v.clock.CurrentTime()
	out, err := json.Marshal(struct {
		Sec  int64 `json:"sec"`
		Nsec int32 `json:"nsec"`
	}{Sec: sec, Nsec: nsec})
	if err != nil {
		return sandbox.InvokeResult{}, err
	}
	return sandbox.InvokeResult{Output: out, Exit: sandbox.ExitNormal}, nil
}

// spin runs until handle reports a pending kill or ctx is done. burnCPU
// chooses between a tight busy-spin (exercises a CPUTime monitor) and a
// sleep-based wait (exercises a WallClock monitor without burning a
// core). It never returns ExitNormal: the only way out is a kill.
func (v *VM) spin(ctx context.Context, handle *sandbox.InterruptHandle, burnCPU bool) (sandbox.InvokeResult, error) {
	for {
		if handle.KillPending() {
			return sandbox.InvokeResult{Exit: sandbox.ExitKilled}, nil
		}
		select {
		case <-ctx.Done():
			return sandbox.InvokeResult{Exit: sandbox.ExitKilled}, nil
		default:
		}
		if burnCPU {
			busyWait(pollInterval)
		} else {
			time.Sleep(pollInterval)
		}
	}
}

// busyWait spends roughly d consuming CPU rather than sleeping, so a
// CPUTime monitor watching this thread observes real usage.
func busyWait(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
