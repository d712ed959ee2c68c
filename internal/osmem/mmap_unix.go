// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux || darwin || freebsd || netbsd || openbsd

package osmem

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Reserve maps n bytes of zero-filled, read-write memory. n must
// already be a multiple of the OS page size; the caller (pagealloc.go)
// is responsible for rounding. Hint is passed straight through to
// mmap(2); the kernel is free to place the mapping elsewhere, which is
// why pagealloc.go re-validates the result against the stack-scan
// "bomb" set before handing pages out.
func Reserve(n uintptr, opt MmapOptions) (Mmap, error) {
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_ANON | unix.MAP_PRIVATE
	if opt.Populate {
		flags |= mapPopulate
	}
	if opt.NoReserve {
		flags |= mapNoReserve
	}

	addr, _, errno := unix.Syscall6(unix.SYS_MMAP, opt.Hint, n,
		uintptr(prot), uintptr(flags), ^uintptr(0), 0)
	if errno != 0 {
		return Mmap{}, &ErrMapFailed{Size: n, Errno: errno}
	}
	return Mmap{addr: addr, size: n}, nil
}

// Unmap releases a reservation back to the OS.
func Unmap(m Mmap) error {
	return unix.Munmap(bytesAt(m.addr, m.size))
}

// DontNeed advises the OS that the pages covered by m are no longer
// needed, without unmapping the address range. The collector does not
// call it: emptied pages are unmapped instead (sweep.go).
func DontNeed(m Mmap) error {
	return unix.Madvise(bytesAt(m.addr, m.size), unix.MADV_DONTNEED)
}

func bytesAt(addr, size uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
}
