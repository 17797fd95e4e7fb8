package arena

import "unsafe"

// reserveAndCommit ensures region idx is backed by OS memory and that the
// requested sub-range starting at bitIdx is committed, then returns a
// pointer to that sub-range. On OS reservation failure it rolls back the
// claim made by the caller (the one rollback path in the arena) and
// returns a nil pointer.
//
// A commit failure after a successful reservation is, per spec, not
// rolled back: the claim stands and the caller receives a non-nil
// pointer to a possibly-uncommitted range, which the next touch would
// fault on. This mirrors the source behavior rather than inventing a new
// error channel (see SPEC_FULL.md Open Questions).
func (t *Table) reserveAndCommit(idx, bitIdx, blocks int, size uintptr, commit bool) (unsafe.Pointer, error) {
	r := &t.regions[idx]

	start := r.loadStart()
	if start == nil {
		reserved, err := t.os.ReserveAligned(RegionSize, RegionSize, t.opts.EagerRegionCommit)
		if err != nil {
			rollbackClaim(r, blocks, bitIdx)

			return nil, err
		}

		if r.casStart(nil, reserved) {
			addRegionsCount(t)
			start = reserved
		} else {
			// Another goroutine published first; give back our
			// reservation and adopt theirs.
			_ = t.os.Free(reserved, RegionSize)
			start = r.loadStart()
		}
	}

	blockPtr := unsafe.Add(start, bitIdx*BlockSize)

	if commit && !t.opts.EagerRegionCommit {
		commitSize := goodCommitSize(size, t.os.LargePageSize())
		if err := t.os.Commit(blockPtr, commitSize); err == nil {
			t.opts.Stats.OnCommit(commitSize)
		}
	}

	storeNextIdx(t, idx)

	return blockPtr, nil
}
