// Package platform models the monotonic boot-capability gate described by
// the source kernel's sysplatform/caps.h: each stage implies every stage
// below it.
package platform

import "sync/atomic"

// CapStage is one of the monotonic bring-up stages a platform port reaches
// during boot.
type CapStage int32

const (
	Alive      CapStage = 0 // the port is alive enough to boot.
	HigherHalf CapStage = 1 // the port runs as a higher-half kernel.
	CPUPtr     CapStage = 2 // a working *cpu, including its kernslice, exists.
	MMU        CapStage = 3 // the MMU is enabled and usable.
	Interrupts CapStage = 4 // interrupts are enabled.
)

var stage atomic.Int32

// GetCapStage returns the highest bring-up stage reached so far.
func GetCapStage() CapStage { return CapStage(stage.Load()) }

// SetCapStage advances the recorded bring-up stage. Boot code is expected
// to call this monotonically; it is not an error to call it with a stage
// lower than the current one, but doing so does not move the gate backward.
func SetCapStage(s CapStage) {
	for {
		cur := stage.Load()
		if int32(s) <= cur {
			return
		}
		if stage.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Require reports whether the platform has reached at least want.
func Require(want CapStage) bool { return GetCapStage() >= want }
