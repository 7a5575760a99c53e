// Package sched implements the kernel's per-CPU decaying priority
// scheduler: 32 run-queues ("bands"), each carrying a signed decay counter,
// selected by a single linear pass that favors whichever runnable band has
// gone longest without a turn. Ported from original_source/system/kern/kern_sched.c.
package sched

import (
	"sync/atomic"

	"mazcore/internal/ring"
)

// NumBands is the number of priority bands a scheduler maintains
// (SCHED_NRQS in the source kernel). A thread's band is priority mod
// NumBands.
const NumBands = 32

// StateFlags is the subset of a thread's state bits the scheduler reads
// and writes.
type StateFlags uint32

const (
	// FlagLockSched marks a thread that is currently mutating some
	// scheduler's state. Preempt refuses to touch a thread with this flag
	// set — see Preempt.
	FlagLockSched StateFlags = 1 << iota
	// FlagPreempt marks a thread that was just displaced by a preemption.
	FlagPreempt
)

// Thread is the scheduler's view of a runnable unit of execution: a
// priority, a current-CPU reference, a state-flags bitset, and the
// embedded ring node that lets it sit in exactly one run-ring at a time.
// Everything else about a thread is the caller's concern (spec §3: opaque
// except for these four attributes).
type Thread struct {
	// Priority only matters modulo NumBands; placement uses Priority %
	// NumBands.
	Priority uint32

	flags atomic.Uint32
	cpu   atomic.Pointer[CPU]
	entry ring.Node[*Thread]
}

// NewThread creates a thread at the given priority. The ring node's
// back-pointer is wired to the thread itself, matching the source
// kernel's sched_elem() assigning ring->data = thread.
func NewThread(priority uint32) *Thread {
	t := &Thread{Priority: priority}
	t.entry.Value = t
	return t
}

// Flags returns the thread's current state flags.
func (t *Thread) Flags() StateFlags { return StateFlags(t.flags.Load()) }

func (t *Thread) setFlag(f StateFlags)   { t.flags.Or(uint32(f)) }
func (t *Thread) clearFlag(f StateFlags) { t.flags.And(^uint32(f)) }

// CurrentCPU returns the CPU this thread is currently resident on, or nil
// if it belongs to no scheduler right now.
func (t *Thread) CurrentCPU() *CPU { return t.cpu.Load() }
