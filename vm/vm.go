package vm

import (
	"fmt"

	"mazcore/internal/errno"
	"mazcore/internal/klog"
	"mazcore/internal/phys"
	"mazcore/internal/platform"
	"mazcore/internal/pmap"
	"mazcore/internal/zone"
)

// Dependencies bundles the external collaborators a vm operation needs.
// Threading these explicitly (rather than reaching for package-level
// globals, as the source kernel's single static vm_as_zone/vm_range_zone
// do) keeps AddressSpace safe to instantiate more than once, which the
// test suite relies on.
type Dependencies struct {
	Frames          phys.Allocator
	SegZone         *zone.Zone[Segment]
	CriticalSegZone *zone.Zone[Segment]
	RangeZone       *zone.Zone[RangeNode]
}

// roundUpPages rounds size up to the next multiple of PageSize. Matches
// the source kernel's PAGE_ROUND_UP macro.
func roundUpPages(size uintptr) uintptr {
	return (size + PageSize - 1) &^ (PageSize - 1)
}

// findFree implements the §4.7 free-range search: first-fit from the low
// end of the address space, for a segment of exactly size bytes. out is
// filled in on success. lowestAllowed is the lowest address the search may
// return; CreateEntry and AllocCritical both pass as.begin.
func findFree(as *AddressSpace, out *Segment, size, lowestAllowed uintptr) bool {
	candidate := lowestAllowed
	if candidate < as.begin {
		candidate = as.begin
	}
	// Ceiling only sees segments starting at or above candidate, so first
	// step past a segment that starts below candidate and covers it.
	covered := false
	as.segs.InOrder(func(_ uintptr, s *Segment) {
		if s.Begin < candidate && s.End >= candidate {
			if s.End == ^uintptr(0) {
				covered = true
				return
			}
			candidate = s.End + 1
		}
	})
	if covered {
		return false
	}

	for {
		if candidate > as.end || as.end-candidate+1 < size {
			return false
		}
		wantEnd := candidate + size - 1

		next, ok := as.segs.Ceiling(candidate)
		if !ok {
			out.Begin, out.End = candidate, wantEnd
			return true
		}
		if next.Begin > wantEnd {
			out.Begin, out.End = candidate, wantEnd
			return true
		}
		// candidate collides with next; retry just past it.
		if next.End == ^uintptr(0) {
			return false
		}
		candidate = next.End + 1
	}
}

// createEntry carves out size bytes of free address space and inserts an
// empty (BackingNone) segment for it into as, using z as the segment
// allocator. Implements the shared core of §4.8's vm_create_entry /
// vm_create_entry_critical split.
func createEntry(as *AddressSpace, z *zone.Zone[Segment], size, lowestAllowed uintptr) (*Segment, error) {
	seg := z.Alloc()
	if seg == nil {
		return nil, fmt.Errorf("vm: segment zone exhausted: %w", errno.ENOMEM)
	}

	if !findFree(as, seg, size, lowestAllowed) {
		z.Free(seg)
		return nil, fmt.Errorf("vm: no free range of %d bytes: %w", size, errno.ENOMEM)
	}

	if !as.segs.Insert(seg.Begin, seg) {
		z.Free(seg)
		return nil, fmt.Errorf("vm: address %#x already has a segment: %w", seg.Begin, errno.EBUSY)
	}
	return seg, nil
}

// unwind walks the entire range-node chain starting at head, freeing
// every physical frame it finds present and returning every node to zone.
// Used when a multi-page kcFill fails partway through: every page
// allocated so far, across every node in the chain built up to that
// point, must be released (spec testable property 9).
func unwind(head *RangeNode, frames phys.Allocator, zone *zone.Zone[RangeNode]) {
	for n := head; n != nil; {
		for j := 0; j < RangeCap; j++ {
			if n.has(j) {
				frames.Free(n.Pages[j])
			}
		}
		next := n.Next
		zone.Free(n)
		n = next
	}
}

// kcFill implements §4.10 vm_mem_kcfilled: back size bytes beginning at
// begin with freshly allocated physical frames, installing each page into
// pm as it is allocated. size must already be a multiple of PageSize.
func kcFill(pm pmap.PMap, prot pmap.Prot, frames phys.Allocator, rangeZone *zone.Zone[RangeNode], begin, size uintptr) (Backing, error) {
	n := size / PageSize

	if n == 1 {
		pa, ok := frames.Alloc()
		if !ok {
			return Backing{}, fmt.Errorf("vm: out of physical frames: %w", errno.ENOMEM)
		}
		if err := pm.Enter(begin, pa, prot); err != nil {
			frames.Free(pa)
			return Backing{}, err
		}
		return Backing{Kind: BackingPage, Page: pa}, nil
	}

	var head, tail *RangeNode
	va := begin
	remaining := n
	for remaining > 0 {
		node := rangeZone.Alloc()
		if node == nil {
			if head != nil {
				unwind(head, frames, rangeZone)
			}
			return Backing{}, fmt.Errorf("vm: range-node zone exhausted: %w", errno.ENOMEM)
		}
		if head == nil {
			head = node
		} else {
			tail.Next = node
		}
		tail = node

		count := remaining
		if count > RangeCap {
			count = RangeCap
		}
		for j := uintptr(0); j < count; j++ {
			pa, ok := frames.Alloc()
			if !ok {
				unwind(head, frames, rangeZone)
				return Backing{}, fmt.Errorf("vm: out of physical frames: %w", errno.ENOMEM)
			}
			node.Pages[j] = pa
			node.set(int(j))

			if err := pm.Enter(va, pa, prot); err != nil {
				unwind(head, frames, rangeZone)
				return Backing{}, err
			}
			va += PageSize
		}
		remaining -= count
	}

	return Backing{Kind: BackingRange, Head: head}, nil
}

// segKCFill implements §4.9 step 4: back every page of seg with physical
// memory, via kcFill, tagging seg.Mem on success. On failure it applies
// the REDESIGN fix recorded in SPEC_FULL.md — unmap whatever hardware
// entries kcFill may have installed before any of them leaked into a
// dangling segment.
func segKCFill(as *AddressSpace, seg *Segment, deps Dependencies) error {
	size := seg.End - seg.Begin + 1
	prot := seg.Prot.toPmapProt()

	backing, err := kcFill(as.pmap, prot, deps.Frames, deps.RangeZone, seg.Begin, size)
	if err != nil {
		as.pmap.Remove(seg.Begin, seg.End)
		return err
	}
	seg.Mem = backing
	return nil
}

// CreateEntry implements vm_create_entry: reserve size bytes of free
// address space for an ordinary (non-critical) segment, with prot as its
// protection set. The segment is left unbacked (BackingNone) — callers
// fault pages in lazily. Grounded on §4.8.
func CreateEntry(as *AddressSpace, deps Dependencies, size uintptr, prot Protection) (*Segment, error) {
	size = roundUpPages(size)
	as.mu.Lock()
	defer as.mu.Unlock()

	seg, err := createEntry(as, deps.SegZone, size, as.begin)
	if err != nil {
		return nil, err
	}
	seg.Prot = prot
	return seg, nil
}

// AllocCritical implements vm_alloc_critical (§4.9): reserve size bytes,
// round up to whole pages, and eagerly back every page with a physical
// frame mapped read/write/no-exec. Used for kernel structures that must
// never take a page fault. Returns the allocated address and the actual
// (page-rounded) size.
func AllocCritical(as *AddressSpace, deps Dependencies, size uintptr) (addr uintptr, actualSize uintptr, err error) {
	if !platform.Require(platform.MMU) {
		return 0, 0, fmt.Errorf("vm: platform has not reached MMU capability stage: %w", errno.EPERM)
	}
	size = roundUpPages(size)

	as.mu.Lock()
	defer as.mu.Unlock()

	seg, err := createEntry(as, deps.CriticalSegZone, size, as.begin)
	if err != nil {
		return 0, 0, err
	}
	seg.Prot = Protection{Read: true, Write: true}

	if err := segKCFill(as, seg, deps); err != nil {
		as.segs.Remove(seg.Begin)
		deps.CriticalSegZone.Free(seg)
		klog.VM().Error("critical allocation failed, unwound", "size", size, "err", err)
		return 0, 0, err
	}

	return seg.Begin, size, nil
}
