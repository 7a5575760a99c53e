package sched

import (
	"fmt"
	"sync"

	"mazcore/internal/errno"
	"mazcore/internal/klog"
	"mazcore/internal/platform"
	"mazcore/internal/ring"
)

// prios is the fixed reset value for each band's decay counter (sched_prios
// in the source kernel). A lower value means the band comes up more often;
// these exact values define scheduling behavior and must not be tuned.
var prios = [NumBands]int32{
	1, 5, 11, 19, 28, 38, 49, 60, 72, 84,
	97, 110, 123, 137, 151, 165, 180, 195,
	210, 225, 240, 256, 272, 288, 304, 320,
	337, 354, 371, 388, 405, 422,
}

// Scheduler holds one CPU's run-queues. Bands not currently runnable keep
// their decay counter reset to the table value; a runnable band's counter
// strictly decreases pass over pass until it is selected.
type Scheduler struct {
	mu sync.Mutex

	runRing  [NumBands]ring.List[*Thread]
	runDecay [NumBands]int32

	idle        *Thread
	threadCount uint32
}

// Instantiate creates a scheduler for cpu with idle as the thread returned
// when no band is runnable. idle is never itself enqueued.
//
// The scheduler requires the platform to have reached at least the CPUPtr
// bring-up stage (spec §6: "the scheduler requires ≥ CPU_PTR") — a working
// *cpu is meaningless before that point.
func Instantiate(cpu *CPU, idle *Thread) (*Scheduler, error) {
	if !platform.Require(platform.CPUPtr) {
		return nil, fmt.Errorf("sched: platform has not reached CPUPtr capability stage: %w", errno.EPERM)
	}

	s := &Scheduler{idle: idle}
	for i := range s.runDecay {
		s.runDecay[i] = prios[i]
	}
	cpu.Scheduler = s
	klog.Sched().Debug("scheduler instantiated", "cpu", cpu.ID)
	return s, nil
}

// ThreadCount reports the scheduler's thread count. As recorded in
// SPEC_FULL.md's decisions on open questions, RemoveNext decrements this
// even when the scheduler was empty, matching the source kernel's
// unconditional decrement.
func (s *Scheduler) ThreadCount() uint32 { return s.threadCount }

// runnable reports whether band i currently has a thread waiting. Caller
// must hold s.mu.
func (s *Scheduler) runnable(i int) bool { return !s.runRing[i].Empty() }

// scheduleNext implements the §4.2 selection algorithm: one pass over all
// bands, resetting empty ones and decaying runnable ones, picking the
// first-seen minimum decay among runnable bands. Caller must hold s.mu.
func (s *Scheduler) scheduleNext() *Thread {
	mi := -1
	var mdecay int32
	for i := 0; i < NumBands; i++ {
		if !s.runnable(i) {
			s.runDecay[i] = prios[i]
			continue
		}
		s.runDecay[i]--
		if mi < 0 || s.runDecay[i] < mdecay {
			mdecay = s.runDecay[i]
			mi = i
		}
	}
	if mi < 0 {
		return nil
	}
	s.runDecay[mi] = prios[mi]
	node := s.runRing[mi].PopTail()
	return node.Value
}

// reenqueue implements §4.3. Caller must hold s.mu.
func (s *Scheduler) reenqueue(t *Thread) {
	if t == s.idle {
		return
	}
	i := int(t.Priority % NumBands)
	if !s.runnable(i) {
		s.runDecay[i] = prios[i]
	}
	s.runRing[i].PushHead(&t.entry)
}

// Insert implements sched_insert (§4.4): binds thread to cpu and enqueues
// it, under the reentrancy-gate protocol — self's FlagLockSched is set for
// the duration so a concurrent Preempt on self's own CPU declines to touch
// any scheduler.
func (s *Scheduler) Insert(cpu *CPU, self, thread *Thread) {
	thread.cpu.Store(cpu)

	self.setFlag(FlagLockSched)
	s.mu.Lock()
	s.reenqueue(thread)
	s.threadCount++
	s.mu.Unlock()
	self.clearFlag(FlagLockSched)
}

// RemoveNext implements sched_remove (§4.5): selects and removes the next
// runnable thread, or nil if none is runnable.
//
// The source kernel decrements sched_thread_count unconditionally and then
// dereferences the (possibly null) result to clear its current-CPU field —
// an open question flagged in spec §9, preserved here as documented in
// SPEC_FULL.md: the count still decrements unconditionally, but clearing
// CurrentCPU is skipped when no thread was selected, since Go has no
// unsafe null dereference to replicate the source's undefined behavior.
// Callers are assumed, as in the source, to call RemoveNext only on a
// non-empty scheduler.
func (s *Scheduler) RemoveNext(cpu *CPU, self *Thread) *Thread {
	self.setFlag(FlagLockSched)
	s.mu.Lock()
	thread := s.scheduleNext()
	s.threadCount--
	s.mu.Unlock()
	self.clearFlag(FlagLockSched)

	if thread != nil {
		thread.cpu.Store(nil)
	}
	return thread
}

// Preempt implements sched_preempt (§4.6): invoked from a preemption event
// (typically the platform timer) for cpu. If the thread currently running
// on cpu is mid-mutation of some scheduler (FlagLockSched set), this
// returns immediately without touching any scheduler state — the critical
// reentrancy gate. Otherwise it selects a replacement (or idle), installs
// it as cpu's current thread, and re-enqueues the displaced thread, all
// while holding the scheduler lock so a concurrent observer never sees a
// torn (current thread, PREEMPT bit) pair.
func (s *Scheduler) Preempt(cpu *CPU) *Thread {
	old := cpu.Current()
	if old != nil && old.Flags()&FlagLockSched != 0 {
		return old
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newThread := s.scheduleNext()
	if newThread == nil {
		newThread = s.idle
	}

	newThread.clearFlag(FlagPreempt)
	cpu.setCurrent(newThread)
	if old != nil {
		old.setFlag(FlagPreempt)
		s.reenqueue(old)
	}
	return newThread
}
