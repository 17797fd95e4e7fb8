package runtime

import (
	"sync"
	"testing"
	"unsafe"
)

func newTestRegionAllocator() *RegionAllocator {
	return NewRegionAllocator(DefaultAllocatorPolicy())
}

func writeTestPattern(ptr unsafe.Pointer, size RegionSize) {
	slice := (*[1 << 30]byte)(ptr)[:size:size]
	for i := range slice {
		slice[i] = byte(i % 256)
	}
}

func verifyTestPattern(ptr unsafe.Pointer, size RegionSize) bool {
	slice := (*[1 << 30]byte)(ptr)[:size:size]
	for i := range slice {
		if slice[i] != byte(i%256) {
			return false
		}
	}

	return true
}

// TestRegionLifecycle exercises CreateRegion/DestroyRegion, verifying each
// region's backing span is genuinely claimed from and returned to the
// allocator's region arena rather than the Go heap.
func TestRegionLifecycle(t *testing.T) {
	ra := newTestRegionAllocator()

	t.Run("CreateDestroy", func(t *testing.T) {
		region, err := ra.CreateRegion(RegionSize(64*1024), RegionAlignment(16))
		if err != nil {
			t.Fatalf("CreateRegion failed: %v", err)
		}

		if region.Data == nil {
			t.Fatal("region has no backing data pointer")
		}

		if err := ra.DestroyRegion(region.Header.ID); err != nil {
			t.Fatalf("DestroyRegion failed: %v", err)
		}
	})

	t.Run("BackingSpanReusedAfterDestroy", func(t *testing.T) {
		// Create-and-destroy in a loop: if DestroyRegion genuinely returns
		// each span to the arena, every cycle is handed the same span back.
		const size = RegionSize(256 * 1024)

		var firstData unsafe.Pointer

		for i := 0; i < 8; i++ {
			region, err := ra.CreateRegion(size, RegionAlignment(16))
			if err != nil {
				t.Fatalf("CreateRegion iteration %d failed: %v", i, err)
			}

			if i == 0 {
				firstData = region.Data
			} else if region.Data != firstData {
				t.Errorf("iteration %d got span %p, want the released span %p", i, region.Data, firstData)
			}

			if err := ra.DestroyRegion(region.Header.ID); err != nil {
				t.Fatalf("DestroyRegion iteration %d failed: %v", i, err)
			}
		}
	})

	t.Run("DestroyRefusesActiveAllocations", func(t *testing.T) {
		region, err := ra.CreateRegion(RegionSize(64*1024), RegionAlignment(16))
		if err != nil {
			t.Fatalf("CreateRegion failed: %v", err)
		}
		defer ra.DestroyRegion(region.Header.ID)

		if _, err := region.Allocate(RegionSize(128), RegionAlignment(8), nil); err != nil {
			t.Fatalf("Allocate failed: %v", err)
		}

		if err := ra.DestroyRegion(region.Header.ID); err == nil {
			t.Error("expected DestroyRegion to refuse a region with live allocations")
		}
	})
}

// TestRegionAllocate covers basic allocation, alignment, and data integrity
// within a single region's arena-claimed span.
func TestRegionAllocate(t *testing.T) {
	ra := newTestRegionAllocator()

	region, err := ra.CreateRegion(RegionSize(1024*1024), RegionAlignment(16))
	if err != nil {
		t.Fatalf("CreateRegion failed: %v", err)
	}
	defer ra.DestroyRegion(region.Header.ID)

	sizes := []RegionSize{16, 32, 64, 128, 256, 512, 1024, 2048}

	for _, size := range sizes {
		ptr, err := region.Allocate(size, RegionAlignment(8), nil)
		if err != nil {
			t.Errorf("Allocate(%d) failed: %v", size, err)
			continue
		}

		writeTestPattern(ptr, size)

		if !verifyTestPattern(ptr, size) {
			t.Errorf("pattern mismatch after Allocate(%d)", size)
		}

		if err := region.Deallocate(ptr); err != nil {
			t.Errorf("Deallocate after Allocate(%d) failed: %v", size, err)
		}
	}

	t.Run("ZeroSizeRejected", func(t *testing.T) {
		if _, err := region.Allocate(0, RegionAlignment(8), nil); err == nil {
			t.Error("expected zero-size allocation to fail")
		}
	})

	t.Run("NonPowerOfTwoAlignmentRejected", func(t *testing.T) {
		if _, err := region.Allocate(RegionSize(64), RegionAlignment(3), nil); err == nil {
			t.Error("expected non-power-of-two alignment to fail")
		}
	})

	t.Run("AlignedOffsets", func(t *testing.T) {
		for _, alignment := range []RegionAlignment{1, 2, 4, 8, 16, 32, 64, 128} {
			ptr, err := region.Allocate(RegionSize(256), alignment, nil)
			if err != nil {
				t.Errorf("Allocate with alignment %d failed: %v", alignment, err)
				continue
			}

			if uintptr(ptr)%uintptr(alignment) != 0 {
				t.Errorf("pointer %p not aligned to %d", ptr, alignment)
			}

			region.Deallocate(ptr)
		}
	})
}

// TestRegionDoubleFree verifies freeing an unrecognized pointer is reported
// rather than silently accepted.
func TestRegionDoubleFree(t *testing.T) {
	ra := newTestRegionAllocator()

	region, err := ra.CreateRegion(RegionSize(64*1024), RegionAlignment(16))
	if err != nil {
		t.Fatalf("CreateRegion failed: %v", err)
	}
	defer ra.DestroyRegion(region.Header.ID)

	ptr, err := region.Allocate(RegionSize(128), RegionAlignment(8), nil)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if err := region.Deallocate(ptr); err != nil {
		t.Fatalf("first Deallocate failed: %v", err)
	}

	if err := region.Deallocate(ptr); err == nil {
		t.Error("expected second Deallocate of the same pointer to fail")
	}
}

// TestRegionFragmentationAndCompaction exercises the free-block search and
// coalescing paths by punching holes in the free list and checking that
// compact() never leaves behind more free blocks than it started with.
func TestRegionFragmentationAndCompaction(t *testing.T) {
	ra := newTestRegionAllocator()

	region, err := ra.CreateRegion(RegionSize(1024*1024), RegionAlignment(16))
	if err != nil {
		t.Fatalf("CreateRegion failed: %v", err)
	}
	defer ra.DestroyRegion(region.Header.ID)

	region.Policy = &RegionPolicy{
		MaxAllocations:     100000,
		MaxMemoryUsage:     RegionSize(1024 * 1024),
		AllocationStrategy: BestFit,
		CompactionPolicy: CompactionPolicy{
			Enabled:           true,
			ThresholdRatio:    0,
			MinFreeBlocks:     0,
			MaxCompactionTime: 1_000_000_000,
		},
	}

	var allocations []unsafe.Pointer

	for i := 0; i < 200; i++ {
		ptr, err := region.Allocate(RegionSize(1024), RegionAlignment(8), nil)
		if err != nil {
			break
		}

		allocations = append(allocations, ptr)
	}

	// Free every other block to fragment the free list with holes separated
	// by live blocks.
	for i := 0; i < len(allocations); i += 2 {
		if err := region.Deallocate(allocations[i]); err != nil {
			t.Fatalf("Deallocate failed: %v", err)
		}
	}

	before := region.countFreeBlocks()

	if err := region.compact(); err != nil {
		t.Fatalf("compact failed: %v", err)
	}

	after := region.countFreeBlocks()

	if after > before {
		t.Errorf("compact increased free block count: %d -> %d", before, after)
	}
}

// TestRegionConcurrentAccess exercises Region.Allocate/Deallocate from
// multiple goroutines against a single arena-backed span.
func TestRegionConcurrentAccess(t *testing.T) {
	ra := newTestRegionAllocator()

	region, err := ra.CreateRegion(RegionSize(4*1024*1024), RegionAlignment(16))
	if err != nil {
		t.Fatalf("CreateRegion failed: %v", err)
	}
	defer ra.DestroyRegion(region.Header.ID)

	const goroutines = 8
	const perGoroutine = 200

	var wg sync.WaitGroup

	errs := make(chan error, goroutines*perGoroutine)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			var ptrs []unsafe.Pointer

			for i := 0; i < perGoroutine; i++ {
				ptr, err := region.Allocate(RegionSize(64), RegionAlignment(8), nil)
				if err != nil {
					continue
				}

				ptrs = append(ptrs, ptr)
			}

			for _, ptr := range ptrs {
				if err := region.Deallocate(ptr); err != nil {
					errs <- err
				}
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent deallocate failed: %v", err)
	}
}

// TestRegionAllocatorStats verifies the allocator tracks which region IDs
// are live across CreateRegion/DestroyRegion.
func TestRegionAllocatorStats(t *testing.T) {
	ra := newTestRegionAllocator()

	region, err := ra.CreateRegion(RegionSize(64*1024), RegionAlignment(16))
	if err != nil {
		t.Fatalf("CreateRegion failed: %v", err)
	}

	if ra.stats.TotalRegions == 0 {
		t.Error("expected TotalRegions to be nonzero after CreateRegion")
	}

	if _, err := ra.GetRegion(region.Header.ID); err != nil {
		t.Errorf("expected region %d to be live: %v", region.Header.ID, err)
	}

	if err := ra.DestroyRegion(region.Header.ID); err != nil {
		t.Fatalf("DestroyRegion failed: %v", err)
	}

	if _, err := ra.GetRegion(region.Header.ID); err == nil {
		t.Errorf("expected region %d to be gone after DestroyRegion", region.Header.ID)
	}
}
