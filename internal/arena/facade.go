package arena

import "unsafe"

// AllocAligned reserves a span of at least size bytes aligned to at
// least alignment. Requests larger than RegionMaxAlloc or more aligned
// than BlockSize bypass the region table and go straight to the OS
// adapter. A nil ptr means the request could not be satisfied (the OS
// adapter failed, whether via the bypass path or while backing a
// claimed region); the paired id is always IDBypass in that case and
// must not be passed to Free. Otherwise ptr is aligned to at least
// alignment and id is valid for a later Free.
func (t *Table) AllocAligned(size uintptr, alignment uintptr, commit bool) (unsafe.Pointer, ID) {
	if size == 0 {
		return nil, IDBypass
	}

	if size > RegionMaxAlloc || alignment > BlockSize {
		return t.bypassAlloc(size, alignment, commit)
	}

	pageSize := t.os.PageSize()
	size = alignUp(size, pageSize)
	need := blockCount(size)

	ptr, id, outcome := t.scanPopulated(need, size, commit)
	if outcome == scanOOM {
		return nil, IDBypass
	}
	if outcome == scanClaimed {
		return ptr, id
	}

	ptr, id, outcome = t.scanGrow(need, size, commit)
	if outcome == scanOOM {
		return nil, IDBypass
	}
	if outcome == scanClaimed {
		return ptr, id
	}

	// Both phases found no qualifying free run (NoRoom throughout); fall
	// back to the OS adapter with the original alignment.
	return t.bypassAlloc(size, alignment, commit)
}

// Alloc is AllocAligned(size, 0, commit).
func (t *Table) Alloc(size uintptr, commit bool) (unsafe.Pointer, ID) {
	return t.AllocAligned(size, 0, commit)
}

// scanOutcome distinguishes "found nothing, keep looking" from the two
// terminal outcomes of a region scan.
type scanOutcome int

const (
	scanNoRoom  scanOutcome = iota // no candidate had a qualifying free run
	scanClaimed                    // a run was claimed and backed successfully
	scanOOM                        // a run was claimed but OS reservation failed
)

// scanPopulated is Phase A: visit only descriptors known to have
// backing memory, starting from the advisory next-index hint.
func (t *Table) scanPopulated(need int, size uintptr, commit bool) (unsafe.Pointer, ID, scanOutcome) {
	count := loadRegionsCount(t)
	if count == 0 {
		return nil, 0, scanNoRoom
	}

	start := loadNextIdx(t) % count

	for i := 0; i < count; i++ {
		idx := (start + i) % count
		if ptr, id, outcome := t.tryRegion(idx, need, size, commit); outcome != scanNoRoom {
			return ptr, id, outcome
		}
	}

	return nil, 0, scanNoRoom
}

// scanGrow is Phase B: visit never-yet-populated descriptors in order.
func (t *Table) scanGrow(need int, size uintptr, commit bool) (unsafe.Pointer, ID, scanOutcome) {
	count := loadRegionsCount(t)

	for idx := count; idx < RegionCountMax; idx++ {
		if ptr, id, outcome := t.tryRegion(idx, need, size, commit); outcome != scanNoRoom {
			return ptr, id, outcome
		}
	}

	return nil, 0, scanNoRoom
}

// tryRegion attempts to claim and back need blocks from regions[idx].
func (t *Table) tryRegion(idx int, need int, size uintptr, commit bool) (unsafe.Pointer, ID, scanOutcome) {
	r := &t.regions[idx]

	claim := tryClaim(r, need)
	if !claim.ok {
		return nil, 0, scanNoRoom
	}

	ptr, err := t.reserveAndCommit(idx, claim.bitIdx, need, size, commit)
	if err != nil {
		return nil, 0, scanOOM
	}

	return ptr, encodeID(idx, claim.bitIdx), scanClaimed
}

// bypassAlloc routes size/alignment directly to the OS adapter and tags
// the result with IDBypass.
func (t *Table) bypassAlloc(size, alignment uintptr, commit bool) (unsafe.Pointer, ID) {
	commitSize := goodCommitSize(size, t.os.LargePageSize())

	ptr, err := t.os.ReserveAligned(commitSize, alignment, commit)
	if err != nil {
		return nil, IDBypass
	}

	t.opts.Stats.OnBypassAlloc(commitSize)

	return ptr, IDBypass
}

// Free releases an allocation previously returned by Alloc/AllocAligned.
// It is infallible and silent: a mismatched or malformed (ptr, size, id)
// triple is treated as a no-op rather than signaled, matching the
// defensive posture of the source allocator.
func (t *Table) Free(ptr unsafe.Pointer, size uintptr, id ID) {
	if ptr == nil || size == 0 {
		return
	}

	if id.IsBypass() {
		if err := t.os.Free(ptr, size); err == nil {
			t.opts.Stats.OnBypassFree(size)
		}

		return
	}

	if size > RegionMaxAlloc {
		return
	}

	idx, bitIdx := decodeID(id)
	if idx < 0 || idx >= RegionCountMax {
		return
	}

	r := &t.regions[idx]

	start := r.loadStart()
	if start == nil {
		return
	}

	size = alignUp(size, t.os.PageSize())
	blocks := blockCount(size)

	if bitIdx < 0 || bitIdx+blocks > Bits {
		return
	}

	blockPtr := unsafe.Add(start, bitIdx*BlockSize)
	if blockPtr != ptr {
		return
	}

	t.releaseWorkingSet(blockPtr, size)

	mask := blockMask(blocks, bitIdx)
	releaseClaim(r, mask)
}

// releaseWorkingSet hands the physical pages behind [ptr, ptr+size) back
// to the OS: Reset when the region is eager-committed (contents may be
// discarded, mapping retained), Decommit otherwise (mapping released,
// next touch requires recommit). region.start is never cleared; the
// span remains available for future claims.
func (t *Table) releaseWorkingSet(ptr unsafe.Pointer, size uintptr) {
	if t.opts.EagerRegionCommit {
		if err := t.os.Reset(ptr, size); err == nil {
			t.opts.Stats.OnReset(size)
		}

		return
	}

	if err := t.os.Decommit(ptr, size); err == nil {
		t.opts.Stats.OnDecommit(size)
	}
}

// Passthrough operations. These forward unchanged to the OS adapter and
// never consult arena state.

func (t *Table) Commit(ptr unsafe.Pointer, size uintptr) error   { return t.os.Commit(ptr, size) }
func (t *Table) Decommit(ptr unsafe.Pointer, size uintptr) error { return t.os.Decommit(ptr, size) }
func (t *Table) Reset(ptr unsafe.Pointer, size uintptr) error    { return t.os.Reset(ptr, size) }
func (t *Table) Unreset(ptr unsafe.Pointer, size uintptr) error  { return t.os.Unreset(ptr, size) }
func (t *Table) Protect(ptr unsafe.Pointer, size uintptr) error  { return t.os.Protect(ptr, size) }
func (t *Table) Unprotect(ptr unsafe.Pointer, size uintptr) error {
	return t.os.Unprotect(ptr, size)
}

// RegionsCount reports the number of descriptors that have ever had
// backing memory installed. Monotonically non-decreasing.
func (t *Table) RegionsCount() int { return loadRegionsCount(t) }
