// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync/atomic"
	"unsafe"
)

// generationalBarrierActive and incrementalBarrierActive are the two
// flags the unified barrier ORs together for its fast-path guard.
// Keeping them as package-level atomics (rather than per-Heap) makes
// the barrier a process-wide mode switch, not a per-thread one, the
// same way a language runtime's own write-barrier-enabled flag works.
var (
	generationalBarrierActive int32
	incrementalBarrierActive  int32
)

func barrierFastGuard() bool {
	return atomic.LoadInt32(&generationalBarrierActive) != 0 ||
		atomic.LoadInt32(&incrementalBarrierActive) != 0
}

func setGenerationalBarrier(on bool) {
	atomic.StoreInt32(&generationalBarrierActive, boolToInt32(on))
}

func setIncrementalBarrier(on bool) {
	atomic.StoreInt32(&incrementalBarrierActive, boolToInt32(on))
}

func boolToInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// writeBarrier is the unified entry point invoked before a managed
// pointer slot is overwritten. selfPtr is the address of the
// cell/slot doing the overwrite; oldBox is the outgoing GcBox pointer
// if any (nil for a first write).
//
// This is the single function every interior-mutable cell in this
// package (GcCell, GcRwLock, GcMutex) calls on mutation, so that the
// generational and SATB barriers stay in one place, driving both the
// remembered-set scan for minor GC and marking correctness during
// incremental major GC.
func writeBarrier(h *Heap, selfPtr unsafe.Pointer, oldBox unsafe.Pointer) {
	if !barrierFastGuard() {
		return
	}

	p := pageOf(uintptr(selfPtr))
	if p == nil || p.magic != magicGcPage {
		return
	}

	if p.generation >= 1 && atomic.LoadInt32(&generationalBarrierActive) != 0 {
		markDirty(p, selfPtr)
	}

	if atomic.LoadInt32(&incrementalBarrierActive) != 0 && oldBox != nil {
		satbRecord(h, oldBox)
	}
}

// markDirty sets the containing slot's dirty bit and, if the page is
// not already on the heap's dirty-page list, appends it using a
// double-check pattern: set the page's dirty-listed flag with a CAS;
// on success take the heap-local lock, check again, and append; on
// collision (another thread already listed it) skip.
func markDirty(p *page, selfPtr unsafe.Pointer) {
	i := p.slotIndex(uintptr(selfPtr))
	p.dirty.set(i)

	if atomic.LoadUint32(&p.flags)&pageDirtyListed != 0 {
		return
	}
	if !casPageFlag(p, pageDirtyListed) {
		return // another thread won the race to list it
	}
	h := p.heap
	h.dirtyMu.Lock()
	alreadyPresent := false
	for _, existing := range h.dirtyPages {
		if existing == p {
			alreadyPresent = true
			break
		}
	}
	if !alreadyPresent {
		h.dirtyPages = append(h.dirtyPages, p)
	}
	h.dirtyMu.Unlock()
}

// casPageFlag sets bit in p.flags if clear, returning whether this
// call won the race.
func casPageFlag(p *page, bit uint32) bool {
	for {
		old := atomic.LoadUint32(&p.flags)
		if old&bit != 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(&p.flags, old, old|bit) {
			return true
		}
	}
}

func clearPageFlag(p *page, bit uint32) {
	for {
		old := atomic.LoadUint32(&p.flags)
		if old&bit == 0 {
			return
		}
		if atomic.CompareAndSwapUint32(&p.flags, old, old&^bit) {
			return
		}
	}
}

// satbRecord appends oldBox to the calling thread's SATB buffer,
// spilling to the global overflow buffer (and requesting fallback if
// that too is saturated) when the thread-local buffer is full.
func satbRecord(h *Heap, oldBox unsafe.Pointer) {
	t := h.tcb
	if !t.satb.push(oldBox) {
		if !h.satbOverflow.push(oldBox) {
			requestFallback(FallbackSatbBufferOverflow)
		}
	}
}
