package fakevm

import (
	"bytes"
	"context"
	"encoding/gob"
)

// snapshotState is the complete mutable state this fake considers part
// of "guest memory": the compiled handler table, the counter
// handler's running value, and the GC count. A real hypervisor snapshot would instead be
// an opaque byte capture of vCPU registers and guest RAM; gob-encoding
// this struct is this fake's equivalent.
type snapshotState struct {
	Handlers map[string]kind
	Counter  int64
	GCCount  int
}

func (v *VM) Snapshot(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	state := snapshotState{
		Handlers: make(map[string]kind, len(v.handlers)),
		Counter:  v.counter,
		GCCount:  v.gcCount,
	}
	for k, val := range v.handlers {
		state.Handlers[k] = val
	}
	v.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *VM) Restore(ctx context.Context, data []byte) error {
	var state snapshotState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers = state.Handlers
	v.counter = state.Counter
	v.gcCount = state.GCCount
	return nil
}
