package sched

import "sync/atomic"

// CPU is one processor's scheduling context: its own Scheduler and the
// thread currently executing on it. The source kernel reaches this state
// through kernel_get_current_cpu()/kernel_get_current_thread() globals;
// per the design note on avoiding ambient global state, callers here thread
// a *CPU through explicitly instead.
type CPU struct {
	ID        int
	Scheduler *Scheduler

	current atomic.Pointer[Thread]
}

// NewCPU creates an idle CPU with no scheduler yet attached. Call
// Instantiate to attach one.
func NewCPU(id int) *CPU { return &CPU{ID: id} }

// Current returns the thread currently executing on this CPU, or nil
// before the first thread has been installed.
func (c *CPU) Current() *Thread { return c.current.Load() }

func (c *CPU) setCurrent(t *Thread) { c.current.Store(t) }
