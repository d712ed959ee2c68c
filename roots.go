// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"unsafe"

	"github.com/rudo-gc/rudogc/internal/gclog"
	"github.com/rudo-gc/rudogc/internal/osmem"
)

// scanStack implements the conservative stack/register scan. Go
// already spills every live register to the stack at any
// function-call boundary as part of its own calling convention and
// stop-the-world cooperation with its runtime GC, so step 1 (explicit
// register spilling via inline assembly in the source language) has no
// equivalent here: by the time this function runs at a safepoint, the
// goroutine's registers are already on the stack or in the scheduler's
// saved g state, which this module cannot reach without cgo. We scan
// the portion of the stack this module can see: its own call frames
// down to the safepoint call site, plus whatever stack bounds the
// platform layer can report, and treat every pointer-aligned word as a
// candidate interior pointer. This is intentionally permissive: false
// positives only over-retain, the sound direction to err in.
func scanStack(h *Heap, v *Visitor) {
	low, high, err := osmem.StackBounds()
	if err != nil {
		gclog.L().Debugw("stack bounds unavailable, skipping conservative scan", "err", err)
		return
	}

	var sp uintptr
	sp = approximateSP()
	if sp < low || sp > high {
		sp = low
	}

	h.lastStackSnapshot = h.lastStackSnapshot[:0]
	align := unsafe.Sizeof(uintptr(0))
	for addr := sp &^ (align - 1); addr < high; addr += align {
		word := *(*uintptr)(unsafe.Pointer(addr))
		h.lastStackSnapshot = append(h.lastStackSnapshot, word)
		if box, ok := FindGcBoxFromPtr(h, unsafe.Pointer(word)); ok {
			v.visitBox(box)
		}
	}
}

// approximateSP returns an address near the current goroutine's stack
// pointer, obtained the only portable way available without cgo or
// assembly: the address of a local variable in this frame. It is
// always a valid stack address for the calling goroutine, though not
// literally the hardware SP.
func approximateSP() uintptr {
	var local byte
	return uintptr(unsafe.Pointer(&local))
}

// collectAllRoots walks the full root set: local handle slots, async
// scopes, cross-thread root maps (plus the orphan table), and the
// conservative stack scan, across every registered thread.
func collectAllRoots(v *Visitor) {
	for _, t := range allTCBs() {
		visitLocalHandles(t, v)
		visitAsyncScopes(t, v)
		visitCrossThreadRoots(t, v)
		if t.heap != nil {
			scanStack(t.heap, v)
		}
	}
	visitOrphanRoots(v)
}
