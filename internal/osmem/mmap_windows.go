// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package osmem

import (
	"golang.org/x/sys/windows"
)

// Reserve maps n bytes via VirtualAlloc. Windows has no mmap address
// hint in the POSIX sense; passing a non-zero Hint asks
// VirtualAlloc to place the mapping there and falls back to letting
// the OS choose on failure, same as a missed hint on POSIX.
func Reserve(n uintptr, opt MmapOptions) (Mmap, error) {
	addr := uintptr(0)
	if opt.Hint != 0 {
		a, err := windows.VirtualAlloc(opt.Hint, n, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
		if err == nil {
			return Mmap{addr: a, size: n}, nil
		}
	}
	a, err := windows.VirtualAlloc(addr, n, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return Mmap{}, &ErrMapFailed{Size: n, Errno: err}
	}
	return Mmap{addr: a, size: n}, nil
}

// Unmap releases a reservation back to the OS.
func Unmap(m Mmap) error {
	return windows.VirtualFree(m.addr, 0, windows.MEM_RELEASE)
}

// DontNeed resets the pages covered by m without releasing the
// address range, mirroring the POSIX MADV_DONTNEED companion.
func DontNeed(m Mmap) error {
	return windows.VirtualFree(m.addr, m.size, windows.MEM_DECOMMIT)
}
