// Package zone stands in for the kernel's slab/zone allocator
// (zinit/zalloc/zfree/zrefill): a pool of fixed-type objects, optionally
// pre-warmed so a caller in a critical allocation path never has to grow
// the pool itself. Modeled on cloudwego-gopkg/cache/mempool's
// sync.Pool-backed size-classed allocator, adapted from byte buffers to
// typed objects since the kernel zones hold structs (schedulers, address
// spaces, segments, range nodes), not byte slices.
package zone

import "sync"

// Zone is a typed object pool. The zero value is not usable; use New.
type Zone[T any] struct {
	name       string
	autoRefill bool
	pool       sync.Pool
}

// New creates a zone for *T values named name. When autoRefill is true
// (mirroring ZONE_AUTO_REFILL), Alloc always succeeds by constructing a
// fresh object once the pool runs dry; otherwise a caller must Refill
// before the reserve is exhausted.
func New[T any](name string, autoRefill bool) *Zone[T] {
	z := &Zone[T]{name: name, autoRefill: autoRefill}
	if autoRefill {
		z.pool.New = func() any { return new(T) }
	}
	return z
}

// Name returns the zone's diagnostic name.
func (z *Zone[T]) Name() string { return z.name }

// Alloc returns a zeroed *T, or nil if the pool is exhausted and the zone
// was not created with autoRefill.
func (z *Zone[T]) Alloc() *T {
	v := z.pool.Get()
	if v == nil {
		return nil
	}
	return v.(*T)
}

// Free returns v to the pool, first zeroing it so no stale pointers are
// retained by the next Alloc.
func (z *Zone[T]) Free(v *T) {
	if v == nil {
		return
	}
	var zero T
	*v = zero
	z.pool.Put(v)
}

// Refill pre-warms the zone with at least min objects, up to max, matching
// the source kernel's zrefill(zone, min, max) pre-warming of a critical
// reserve at boot.
func (z *Zone[T]) Refill(min, max int) {
	if max < min {
		max = min
	}
	for i := 0; i < max; i++ {
		z.pool.Put(new(T))
	}
}
