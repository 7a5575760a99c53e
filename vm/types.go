// Package vm implements the kernel's virtual-memory address-space object,
// free-range search, and the critical kernel allocation path: round up to
// page size, carve a segment out of the lowest free gap, back every page
// with a physical frame, install hardware mappings, and unwind cleanly on
// partial failure. Ported from original_source/system/vm/vm_as.c and
// vm_critical_util.c.
package vm

import (
	"fmt"
	"sync"

	"mazcore/internal/errno"
	"mazcore/internal/platform"
	"mazcore/internal/pmap"
	"mazcore/internal/tree"
)

// PageSize is the page granularity every allocation rounds up to and every
// backing range is quantized in.
const PageSize = 4096

// RangeCap is the fixed capacity of a single range node (VM_RANGE_NUM in
// the source kernel): how many physical-page records one range node can
// hold before a new one must be chained on.
const RangeCap = 32

// BackingKind tags which variant of memory backing a segment has.
type BackingKind int

const (
	// BackingNone is a segment not yet backed by any physical memory.
	BackingNone BackingKind = iota
	// BackingPage is a single physical page (PGADDR in the source kernel).
	BackingPage
	// BackingRange is a chain of RangeNodes (PMRANGE in the source kernel).
	BackingRange
)

// Backing is the tagged union describing a segment's physical-page
// bookkeeping.
type Backing struct {
	Kind BackingKind
	Page uintptr    // valid when Kind == BackingPage
	Head *RangeNode // valid when Kind == BackingRange
}

// RangeNode holds up to RangeCap physical-page records with a presence
// bitmap, chained in ascending virtual-offset order.
type RangeNode struct {
	Pages   [RangeCap]uintptr
	Present uint32 // bit j set => Pages[j] holds a valid physical page
	Next    *RangeNode
}

func (r *RangeNode) set(j int)      { r.Present |= 1 << uint(j) }
func (r *RangeNode) has(j int) bool { return r.Present&(1<<uint(j)) != 0 }

// Protection is the protection set installed for a segment's mapping. The
// bitfield tags mirror the teacher's src/bitfield package convention for
// packing small flag sets, even though this module packs them directly
// rather than through that package's reflect-based Pack/Unpack (a fixed
// three-bit word has no need for the general packer).
type Protection struct {
	Read  bool   `bitfield:",1"`
	Write bool   `bitfield:",1"`
	Exec  bool   `bitfield:",1"`
	_     uint32 `bitfield:",29"`
}

func (p Protection) toPmapProt() pmap.Prot {
	var out pmap.Prot
	if p.Read {
		out |= pmap.ProtRead
	}
	if p.Write {
		out |= pmap.ProtWrite
	}
	if p.Exec {
		out |= pmap.ProtExec
	}
	return out
}

// Segment is an inclusive virtual range [Begin, End] with a protection set
// and a memory backing descriptor.
type Segment struct {
	Begin, End uintptr
	Prot       Protection
	Mem        Backing
}

// AddressSpace is a tree of non-overlapping segments under one hardware
// page map.
type AddressSpace struct {
	mu    sync.Mutex
	segs  tree.Tree[uintptr, *Segment]
	begin uintptr
	end   uintptr
	pmap  pmap.PMap
}

// NewAddressSpace creates an address space spanning the bounds reported by
// pm (the source kernel's pmap_get_address_range, called once at boot for
// the kernel address space).
//
// The VM subsystem requires the platform to have reached at least the MMU
// bring-up stage (spec §6: "the VM subsystem requires ≥ MMU") — there is no
// hardware page map to install mappings into before that point.
func NewAddressSpace(pm pmap.PMap) (*AddressSpace, error) {
	if !platform.Require(platform.MMU) {
		return nil, fmt.Errorf("vm: platform has not reached MMU capability stage: %w", errno.EPERM)
	}
	begin, end := pm.AddressRange()
	return &AddressSpace{begin: begin, end: end, pmap: pm}, nil
}

// Begin and End report the address space's inclusive virtual-address
// bounds.
func (as *AddressSpace) Begin() uintptr { return as.begin }
func (as *AddressSpace) End() uintptr   { return as.end }

// SegmentCount reports how many segments currently exist. Exercised by
// tests to check that a failed allocation leaves no segment behind.
func (as *AddressSpace) SegmentCount() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.segs.Len()
}

// InOrderSegments returns every segment in ascending seg_begin order.
func (as *AddressSpace) InOrderSegments() []*Segment {
	as.mu.Lock()
	defer as.mu.Unlock()
	var out []*Segment
	as.segs.InOrder(func(_ uintptr, seg *Segment) { out = append(out, seg) })
	return out
}
