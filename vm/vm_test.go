package vm

import (
	"testing"

	"mazcore/internal/phys"
	"mazcore/internal/platform"
	"mazcore/internal/pmap"
	"mazcore/internal/zone"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSpaceEnd = 0x100000

func newTestDeps(numFrames int) (Dependencies, *phys.BitmapAllocator) {
	frames := phys.NewBitmapAllocator(0x10000, numFrames, PageSize)
	return Dependencies{
		Frames:          frames,
		SegZone:         zone.New[Segment]("seg", true),
		CriticalSegZone: zone.New[Segment]("critical-seg", true),
		RangeZone:       zone.New[RangeNode]("range", true),
	}, frames
}

func newTestSpace(t *testing.T) (*AddressSpace, pmap.PMap) {
	t.Helper()
	platform.SetCapStage(platform.MMU)

	pm := pmap.NewSimpleMap(0, testSpaceEnd)
	as, err := NewAddressSpace(pm)
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}
	return as, pm
}

// failAfterK wraps an Allocator so its Alloc succeeds k times and then
// fails forever, modeling exhaustion partway through a multi-page fill
// (spec testable property 9).
type failAfterK struct {
	inner phys.Allocator
	k     int
}

func (f *failAfterK) Alloc() (uintptr, bool) {
	if f.k <= 0 {
		return 0, false
	}
	f.k--
	return f.inner.Alloc()
}
func (f *failAfterK) Free(addr uintptr) { f.inner.Free(addr) }

func TestFindFreeFirstFit(t *testing.T) {
	as, _ := newTestSpace(t)
	as.segs.Insert(10, &Segment{Begin: 10, End: 19})
	as.segs.Insert(30, &Segment{Begin: 30, End: 39})

	var out Segment
	ok := findFree(as, &out, 10, as.begin)
	require.True(t, ok)
	assert.Equal(t, uintptr(0), out.Begin)
	assert.Equal(t, uintptr(9), out.End)

	// A request that only fits in the 20-29 gap.
	var out2 Segment
	ok = findFree(as, &out2, 10, 11)
	require.True(t, ok)
	assert.Equal(t, uintptr(20), out2.Begin)
	assert.Equal(t, uintptr(29), out2.End)
}

func TestRoundUpPages(t *testing.T) {
	assert.Equal(t, uintptr(PageSize), roundUpPages(1))
	assert.Equal(t, uintptr(PageSize), roundUpPages(PageSize))
	assert.Equal(t, uintptr(2*PageSize), roundUpPages(PageSize+1))
	assert.Equal(t, uintptr(0), roundUpPages(0))
}

func TestAllocCriticalSinglePage(t *testing.T) {
	as, pm := newTestSpace(t)
	deps, frames := newTestDeps(4)

	addr, size, err := AllocCritical(as, deps, 1)
	require.NoError(t, err)
	assert.Equal(t, uintptr(PageSize), size)
	assert.Equal(t, 3, frames.FreeCount())

	segs := as.InOrderSegments()
	require.Len(t, segs, 1)
	assert.Equal(t, BackingPage, segs[0].Mem.Kind)

	_, _, ok := pm.(*pmap.SimpleMap).Lookup(addr)
	assert.True(t, ok)
}

func TestAllocCriticalMultiPageChainsRangeNodes(t *testing.T) {
	as, _ := newTestSpace(t)
	deps, _ := newTestDeps(RangeCap + 2)

	addr, size, err := AllocCritical(as, deps, (RangeCap+2)*PageSize)
	require.NoError(t, err)
	assert.Equal(t, uintptr((RangeCap+2)*PageSize), size)

	segs := as.InOrderSegments()
	require.Len(t, segs, 1)
	seg := segs[0]
	assert.Equal(t, addr, seg.Begin)
	require.Equal(t, BackingRange, seg.Mem.Kind)

	head := seg.Mem.Head
	require.NotNil(t, head)
	assert.Equal(t, uint32(0xFFFFFFFF), head.Present, "first range node must be fully populated")
	require.NotNil(t, head.Next)
	assert.True(t, head.Next.has(0))
	assert.True(t, head.Next.has(1))
	assert.False(t, head.Next.has(2))
	assert.Nil(t, head.Next.Next)
}

func TestAllocCriticalUnwindsOnExhaustion(t *testing.T) {
	as, pm := newTestSpace(t)
	real := phys.NewBitmapAllocator(0x10000, RangeCap+2, PageSize)
	deps := Dependencies{
		Frames:          &failAfterK{inner: real, k: RangeCap + 1},
		SegZone:         zone.New[Segment]("seg", true),
		CriticalSegZone: zone.New[Segment]("critical-seg", true),
		RangeZone:       zone.New[RangeNode]("range", true),
	}

	_, _, err := AllocCritical(as, deps, (RangeCap+2)*PageSize)
	require.Error(t, err)

	assert.Equal(t, RangeCap+2, real.FreeCount(), "every frame allocated before the failure must be freed")
	assert.Equal(t, 0, as.SegmentCount(), "failed critical allocation must not leave a dangling segment")
	assert.Equal(t, 0, pm.(*pmap.SimpleMap).Len(), "failed critical allocation must not leave stray mappings")
}

func TestSegmentTreeStaysOrdered(t *testing.T) {
	as, _ := newTestSpace(t)
	deps, _ := newTestDeps(64)

	for i := 0; i < 5; i++ {
		_, _, err := AllocCritical(as, deps, PageSize)
		require.NoError(t, err)
	}

	segs := as.InOrderSegments()
	require.Len(t, segs, 5)
	for i := 1; i < len(segs); i++ {
		assert.Less(t, segs[i-1].End, segs[i].Begin, "segments must be non-overlapping and ascending")
	}
}

func TestCreateEntryLeavesSegmentUnbacked(t *testing.T) {
	as, _ := newTestSpace(t)
	deps, _ := newTestDeps(4)

	seg, err := CreateEntry(as, deps, 1, Protection{Read: true})
	require.NoError(t, err)
	assert.Equal(t, BackingNone, seg.Mem.Kind)
	assert.True(t, seg.Prot.Read)
}
