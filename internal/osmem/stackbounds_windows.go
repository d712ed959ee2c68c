// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build windows

package osmem

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// StackBounds uses VirtualQuery on the current stack pointer to find
// the bounds of the thread's committed stack region, the Windows
// analogue of pthread_getattr_np.
func StackBounds() (low, high uintptr, err error) {
	var local byte
	sp := uintptr(unsafe.Pointer(&local))

	var mbi windows.MemoryBasicInformation
	if e := windows.VirtualQuery(sp, &mbi, unsafe.Sizeof(mbi)); e != nil {
		return 0, 0, e
	}
	base := mbi.AllocationBase
	// Walk forward through committed regions belonging to the same
	// allocation to find the top of the stack.
	addr := base
	for {
		var m windows.MemoryBasicInformation
		if e := windows.VirtualQuery(addr, &m, unsafe.Sizeof(m)); e != nil {
			break
		}
		if m.AllocationBase != base {
			break
		}
		addr = m.BaseAddress + m.RegionSize
	}
	return base, addr, nil
}
