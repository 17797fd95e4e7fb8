//go:build linux || darwin || freebsd || netbsd || openbsd
// +build linux darwin freebsd netbsd openbsd

package arena

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/regionarena/regionarena/internal/errors"
)

// unixOSAdapter backs OSAdapter with mmap/munmap/mprotect/madvise.
type unixOSAdapter struct {
	pageSize uintptr
}

func newPlatformOSAdapter() OSAdapter {
	return &unixOSAdapter{pageSize: uintptr(unix.Getpagesize())}
}

// ReserveAligned over-maps by alignment and trims the slop on either
// side, since mmap has no native alignment parameter.
func (a *unixOSAdapter) ReserveAligned(size, alignment uintptr, commit bool) (unsafe.Pointer, error) {
	if alignment <= a.pageSize {
		return a.reservePlain(size, commit)
	}

	prot := unix.PROT_NONE
	if commit {
		prot = unix.PROT_READ | unix.PROT_WRITE
	}

	overSize := size + alignment
	region, err := unix.Mmap(-1, 0, int(overSize), prot, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.SystemCallFailed("mmap reserve", overSize, err)
	}

	base := uintptr(unsafe.Pointer(&region[0]))
	aligned := alignUp(base, alignment)

	if headSlop := aligned - base; headSlop > 0 {
		_ = unix.Munmap(region[:headSlop])
	}

	if tailSlop := overSize - (aligned - base) - size; tailSlop > 0 {
		tailOff := (aligned - base) + size
		tailBytes := unsafe.Slice((*byte)(unsafe.Pointer(base+tailOff)), tailSlop)
		_ = unix.Munmap(tailBytes)
	}

	return unsafe.Pointer(aligned), nil
}

func (a *unixOSAdapter) reservePlain(size uintptr, commit bool) (unsafe.Pointer, error) {
	prot := unix.PROT_NONE
	if commit {
		prot = unix.PROT_READ | unix.PROT_WRITE
	}

	region, err := unix.Mmap(-1, 0, int(size), prot, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.SystemCallFailed("mmap reserve", size, err)
	}

	return unsafe.Pointer(&region[0]), nil
}

func (a *unixOSAdapter) Free(ptr unsafe.Pointer, size uintptr) error {
	if err := unix.Munmap(byteSlice(ptr, size)); err != nil {
		return errors.SystemCallFailed("munmap", size, err)
	}

	return nil
}

func (a *unixOSAdapter) Commit(ptr unsafe.Pointer, size uintptr) error {
	if err := unix.Mprotect(byteSlice(ptr, size), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return errors.SystemCallFailed("mprotect commit", size, err)
	}

	return nil
}

func (a *unixOSAdapter) Decommit(ptr unsafe.Pointer, size uintptr) error {
	buf := byteSlice(ptr, size)

	if err := unix.Madvise(buf, unix.MADV_DONTNEED); err != nil {
		return errors.SystemCallFailed("madvise dontneed", size, err)
	}

	if err := unix.Mprotect(buf, unix.PROT_NONE); err != nil {
		return errors.SystemCallFailed("mprotect decommit", size, err)
	}

	return nil
}

func (a *unixOSAdapter) Reset(ptr unsafe.Pointer, size uintptr) error {
	if err := unix.Madvise(byteSlice(ptr, size), unix.MADV_DONTNEED); err != nil {
		return errors.SystemCallFailed("madvise dontneed (reset)", size, err)
	}

	return nil
}

func (a *unixOSAdapter) Unreset(ptr unsafe.Pointer, size uintptr) error {
	// Already mapped and readable; nothing further to do on POSIX.
	return nil
}

func (a *unixOSAdapter) Protect(ptr unsafe.Pointer, size uintptr) error {
	if err := unix.Mprotect(byteSlice(ptr, size), unix.PROT_NONE); err != nil {
		return errors.SystemCallFailed("mprotect protect", size, err)
	}

	return nil
}

func (a *unixOSAdapter) Unprotect(ptr unsafe.Pointer, size uintptr) error {
	if err := unix.Mprotect(byteSlice(ptr, size), unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return errors.SystemCallFailed("mprotect unprotect", size, err)
	}

	return nil
}

func (a *unixOSAdapter) PageSize() uintptr { return a.pageSize }

// LargePageSize reports 0: this adapter does not attempt to negotiate
// transparent or explicit huge pages. Commit sizes are used as-is.
func (a *unixOSAdapter) LargePageSize() uintptr { return 0 }

func byteSlice(ptr unsafe.Pointer, size uintptr) []byte {
	return unsafe.Slice((*byte)(ptr), size)
}
