// Package lsmgate implements the LSM gate (C5): boot-phase learning of
// the trusted loader pid, and steady-state denial of map/object-get
// operations on the kernel's extensible-program syscall.
//
// The decision state machine here is independent of how it gets wired
// to a real enforcement point; the gate itself only needs the same cmd/
// attr/pid triple a seccomp-BPF trap or an LSM hook would hand it. The
// opcode constants mirror the bpf(2) cmd selectors a loader issues.
package lsmgate

import (
	"sync"

	"github.com/WillGAndre/eLogJ/pkg/state"
)

// Cmd mirrors the subset of bpf(2) command selectors the gate cares
// about.
type Cmd int

const (
	MapCreate Cmd = iota
	MapLookupElem
	MapUpdateElem
	MapDeleteElem
	ProgLoad
	BTFLoad
	LinkCreate
	ObjGet
)

// MaxCalls is the number of counted boot-phase BPF_MAP_UPDATE_ELEM
// calls with fd==0 the loader is expected to make before the gate arms.
const MaxCalls = 4

// Call is the (cmd, attr) pair the gate receives on each invocation.
type Call struct {
	Cmd Cmd
	FD  int
	PID uint32
}

// Gate holds the boot counter and the learned trusted pid. Evaluate may
// run concurrently from any number of syscall paths; the mutex covers
// the counter, the bootpid map has its own.
type Gate struct {
	mu      sync.Mutex
	counter int
	bootpid *state.BoundedMap

	// OnDeny, if set, is invoked after each denied call. Set it before
	// the gate sees traffic.
	OnDeny func(Call)
}

// New returns a Gate primed with MaxCalls boot-phase allowances.
func New() *Gate {
	return &Gate{
		counter: MaxCalls,
		bootpid: state.NewBoundedMap(state.BootpidCapacity),
	}
}

// Armed reports whether the gate has left the boot phase.
func (g *Gate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter <= 0
}

// Seal arms the gate immediately, consuming any remaining boot
// allowances. The loader calls this once its attaches and map seeds are
// done, so arming does not depend on an exact call count.
func (g *Gate) Seal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter = 0
}

// BootPID returns the learned loader pid, if any.
func (g *Gate) BootPID() (uint32, bool) {
	return g.bootpid.Get(0)
}

// Evaluate returns 0 to allow the call, or a negative errno-shaped value
// to deny it, exactly mirroring the bpf(2) LSM hook's return contract.
func (g *Gate) Evaluate(c Call) int {
	g.mu.Lock()
	if g.counter > 0 {
		if c.Cmd == MapUpdateElem && c.FD == 0 {
			pid, learned := g.BootPID()
			if !learned {
				_ = g.bootpid.Insert(0, c.PID)
				g.counter--
			} else if c.PID == pid {
				g.counter--
			}
			// calls from an unrelated pid during boot don't count,
			// but are still allowed: the verifier needs the loader
			// to complete its attaches undisturbed.
		}
		g.mu.Unlock()
		return 0
	}
	g.mu.Unlock()

	pid, learned := g.BootPID()
	if learned && c.PID == pid {
		return 0
	}

	switch c.Cmd {
	case MapLookupElem, MapUpdateElem, MapDeleteElem, ObjGet:
		if g.OnDeny != nil {
			g.OnDeny(c)
		}
		return -1
	default:
		return 0
	}
}
