package arena

// ID is an opaque handle returned by Alloc/AllocAligned. It packs a
// region index and a bit index, or carries the IDBypass sentinel for
// requests the arena routed straight to the OS adapter.
type ID uint64

// IDBypass denotes an allocation satisfied directly by the OS adapter
// (oversized or over-aligned); it must be released by the OS adapter on
// free rather than by clearing a claim bit.
const IDBypass ID = ID(idBypass)

// encodeID packs a region index and bit index into an ID. Invertible
// over idx < RegionCountMax, bitIdx < Bits.
func encodeID(idx int, bitIdx int) ID {
	return ID(uint64(idx)*uint64(Bits) + uint64(bitIdx))
}

// decodeID unpacks an ID produced by encodeID.
func decodeID(id ID) (idx int, bitIdx int) {
	idx = int(uint64(id) / uint64(Bits))
	bitIdx = int(uint64(id) % uint64(Bits))

	return idx, bitIdx
}

// IsBypass reports whether id is the bypass sentinel.
func (id ID) IsBypass() bool { return id == IDBypass }
