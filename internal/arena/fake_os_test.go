package arena

import (
	"fmt"
	"sync"
	"unsafe"
)

// fakeOSAdapter backs OSAdapter with plain Go heap memory so arena
// logic can be exercised deterministically without touching real
// virtual memory. It tracks every live reservation so Free can be
// asserted against and can be made to fail on demand.
type fakeOSAdapter struct {
	mu           sync.Mutex
	live         map[unsafe.Pointer][]byte
	pageSize     uintptr
	largePage    uintptr
	failReserve  bool // next ReserveAligned call fails
	failAfterN   int  // -1 disables; else fail the Nth future ReserveAligned call
	reserveCalls int
}

func newFakeOSAdapter() *fakeOSAdapter {
	return &fakeOSAdapter{
		live:       make(map[unsafe.Pointer][]byte),
		pageSize:   4096,
		largePage:  2 << 20,
		failAfterN: -1,
	}
}

func (f *fakeOSAdapter) ReserveAligned(size, alignment uintptr, commit bool) (unsafe.Pointer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reserveCalls++

	if f.failReserve || f.reserveCalls == f.failAfterN {
		return nil, fmt.Errorf("fakeOSAdapter: simulated reservation failure")
	}

	if alignment == 0 {
		alignment = 1
	}

	// Over-allocate and hand back an aligned interior pointer, same
	// trick the real mmap/VirtualAlloc adapters use.
	buf := make([]byte, size+alignment)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := alignUp(base, alignment)
	ptr := unsafe.Pointer(aligned)

	f.live[ptr] = buf

	return ptr, nil
}

func (f *fakeOSAdapter) Free(ptr unsafe.Pointer, size uintptr) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.live[ptr]; !ok {
		return fmt.Errorf("fakeOSAdapter: free of unknown pointer")
	}

	delete(f.live, ptr)

	return nil
}

func (f *fakeOSAdapter) Commit(ptr unsafe.Pointer, size uintptr) error   { return nil }
func (f *fakeOSAdapter) Decommit(ptr unsafe.Pointer, size uintptr) error { return nil }
func (f *fakeOSAdapter) Reset(ptr unsafe.Pointer, size uintptr) error    { return nil }
func (f *fakeOSAdapter) Unreset(ptr unsafe.Pointer, size uintptr) error  { return nil }
func (f *fakeOSAdapter) Protect(ptr unsafe.Pointer, size uintptr) error  { return nil }
func (f *fakeOSAdapter) Unprotect(ptr unsafe.Pointer, size uintptr) error {
	return nil
}

func (f *fakeOSAdapter) PageSize() uintptr      { return f.pageSize }
func (f *fakeOSAdapter) LargePageSize() uintptr { return f.largePage }

func (f *fakeOSAdapter) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.live)
}
