package sandbox

import "github.com/google/uuid"

// Snapshot is an opaque, immutable capture of a HandlersLoaded stage's
// vCPU-and-guest-memory state. It may outlive the stage that produced
// it and may be applied any number of times, but only to the sandbox
// it was taken from (spec.md §3, §6 "Implementations MAY refuse to
// restore snapshots from a different sandbox"; this implementation
// does refuse).
type Snapshot struct {
	id     uuid.UUID
	origin *HandlersLoaded
	state  []byte
}

func newSnapshot(state []byte, origin *HandlersLoaded) *Snapshot {
	return &Snapshot{id: uuid.New(), origin: origin, state: state}
}

func (s *Snapshot) belongsTo(h *HandlersLoaded) bool {
	return s.origin == h
}
