// Package event implements the fixed-layout inspection record (C2) and a
// per-CPU ring that carries it from the classifiers to the observer,
// mirroring a perf-ring consumer loop: fire-and-forget, tolerant of a
// slow reader.
package event

import (
	"runtime"
	"sync/atomic"
)

// Direction distinguishes an egress (outbound) inspection from an
// ingress (inbound) one.
type Direction uint32

const (
	Outbound Direction = 0
	Inbound  Direction = 1
)

// Log is the fixed-layout event emitted by every inspection, regardless
// of verdict. All fields are kept 32-bit to avoid alignment padding, as
// in the source record.
type Log struct {
	EType Direction
	// ERoute is [saddr, daddr], host-order IPv4.
	ERoute [2]uint32
	// EAction is [dropped, overridden].
	EAction [2]uint32
	// ELvls carries component-specific detail; see pkg/egress and
	// pkg/ingress for the encoding of each slot.
	ELvls [3]uint32
}

func (l Log) Dropped() bool    { return l.EAction[0] != 0 }
func (l Log) Overridden() bool { return l.EAction[1] != 0 }

// Ring fans events out across one channel per CPU, matching the
// one-reader-task-per-online-CPU consumer shape. Sends never block: a
// full slot drops the event and bumps a per-slot drop counter, the
// userspace analogue of a perf-ring overrun.
type Ring struct {
	slots []chan Log
	drops []uint64
}

// NewRing allocates a ring with one buffered channel per CPU, each
// holding up to depth events.
func NewRing(depth int) *Ring {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	r := &Ring{
		slots: make([]chan Log, n),
		drops: make([]uint64, n),
	}
	for i := range r.slots {
		r.slots[i] = make(chan Log, depth)
	}
	return r
}

// Emit writes ev to the ring slot for the calling goroutine's CPU
// affinity approximation (cpu is caller-supplied since Go does not
// expose real CPU affinity; callers typically pass their worker index).
func (r *Ring) Emit(cpu int, ev Log) {
	slot := r.slots[cpu%len(r.slots)]
	select {
	case slot <- ev:
	default:
		atomic.AddUint64(&r.drops[cpu%len(r.drops)], 1)
	}
}

// Slot returns the receive-only channel for CPU slot i, for a consumer
// to range over in its own goroutine.
func (r *Ring) Slot(i int) <-chan Log {
	return r.slots[i]
}

// Slots reports how many CPU slots this ring has.
func (r *Ring) Slots() int {
	return len(r.slots)
}

// Drops reports the cumulative drop count for slot i.
func (r *Ring) Drops(i int) uint64 {
	return atomic.LoadUint64(&r.drops[i])
}

// TotalDrops sums the drop counters across all slots.
func (r *Ring) TotalDrops() uint64 {
	var n uint64
	for i := range r.drops {
		n += atomic.LoadUint64(&r.drops[i])
	}
	return n
}
