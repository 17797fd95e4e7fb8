//go:build windows
// +build windows

package arena

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/regionarena/regionarena/internal/errors"
)

// windowsOSAdapter backs OSAdapter with VirtualAlloc/VirtualFree/VirtualProtect.
type windowsOSAdapter struct {
	pageSize      uintptr
	largePageSize uintptr
}

func newPlatformOSAdapter() OSAdapter {
	var si windows.SystemInfo
	windows.GetSystemInfo(&si)

	return &windowsOSAdapter{
		pageSize:      uintptr(si.PageSize),
		largePageSize: windows.GetLargePageMinimum(),
	}
}

// ReserveAligned uses VirtualAlloc directly when alignment does not
// exceed the OS page size. For a stricter alignment it
// reserves an oversized region, frees it immediately, and re-requests
// an allocation at the computed aligned address; this narrows but does
// not eliminate a race with another thread claiming that address,
// matching the approach long used by allocators targeting Windows.
func (a *windowsOSAdapter) ReserveAligned(size, alignment uintptr, commit bool) (unsafe.Pointer, error) {
	allocType := uint32(windows.MEM_RESERVE)
	if commit {
		allocType |= windows.MEM_COMMIT
	}

	if alignment <= a.pageSize {
		addr, err := windows.VirtualAlloc(0, size, allocType, windows.PAGE_READWRITE)
		if err != nil {
			return nil, errors.SystemCallFailed("VirtualAlloc reserve", size, err)
		}

		return unsafe.Pointer(addr), nil
	}

	overSize := size + alignment

	probe, err := windows.VirtualAlloc(0, overSize, windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, errors.SystemCallFailed("VirtualAlloc alignment probe", overSize, err)
	}

	aligned := alignUp(uintptr(probe), alignment)

	if err := windows.VirtualFree(probe, 0, windows.MEM_RELEASE); err != nil {
		return nil, errors.SystemCallFailed("VirtualFree alignment probe", overSize, err)
	}

	addr, err := windows.VirtualAlloc(aligned, size, allocType, windows.PAGE_READWRITE)
	if err != nil {
		return nil, errors.SystemCallFailed("VirtualAlloc aligned reserve", size, err)
	}

	return unsafe.Pointer(addr), nil
}

func (a *windowsOSAdapter) Free(ptr unsafe.Pointer, size uintptr) error {
	if err := windows.VirtualFree(uintptr(ptr), 0, windows.MEM_RELEASE); err != nil {
		return errors.SystemCallFailed("VirtualFree", size, err)
	}

	return nil
}

func (a *windowsOSAdapter) Commit(ptr unsafe.Pointer, size uintptr) error {
	if _, err := windows.VirtualAlloc(uintptr(ptr), size, windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
		return errors.SystemCallFailed("VirtualAlloc commit", size, err)
	}

	return nil
}

func (a *windowsOSAdapter) Decommit(ptr unsafe.Pointer, size uintptr) error {
	if err := windows.VirtualFree(uintptr(ptr), size, windows.MEM_DECOMMIT); err != nil {
		return errors.SystemCallFailed("VirtualFree decommit", size, err)
	}

	return nil
}

func (a *windowsOSAdapter) Reset(ptr unsafe.Pointer, size uintptr) error {
	if _, err := windows.VirtualAlloc(uintptr(ptr), size, windows.MEM_RESET, windows.PAGE_READWRITE); err != nil {
		return errors.SystemCallFailed("VirtualAlloc reset", size, err)
	}

	return nil
}

func (a *windowsOSAdapter) Unreset(ptr unsafe.Pointer, size uintptr) error {
	if _, err := windows.VirtualAlloc(uintptr(ptr), size, windows.MEM_RESET_UNDO, windows.PAGE_READWRITE); err != nil {
		return errors.SystemCallFailed("VirtualAlloc reset_undo", size, err)
	}

	return nil
}

func (a *windowsOSAdapter) Protect(ptr unsafe.Pointer, size uintptr) error {
	var old uint32
	if err := windows.VirtualProtect(uintptr(ptr), size, windows.PAGE_NOACCESS, &old); err != nil {
		return errors.SystemCallFailed("VirtualProtect noaccess", size, err)
	}

	return nil
}

func (a *windowsOSAdapter) Unprotect(ptr unsafe.Pointer, size uintptr) error {
	var old uint32
	if err := windows.VirtualProtect(uintptr(ptr), size, windows.PAGE_READWRITE, &old); err != nil {
		return errors.SystemCallFailed("VirtualProtect readwrite", size, err)
	}

	return nil
}

func (a *windowsOSAdapter) PageSize() uintptr { return a.pageSize }

func (a *windowsOSAdapter) LargePageSize() uintptr { return a.largePageSize }
