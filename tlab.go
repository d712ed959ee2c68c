// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// tlab is a thread-local allocation buffer: a bump pointer pair into
// the current page of one size class. No locks are taken on the fast
// path; cursor/limit are only ever touched by the
// owning thread.
type tlab struct {
	cursor uintptr
	limit  uintptr
	page   *page
}

// alloc services one allocation request for (size, align) from h's
// TLABs, taking the slow path on exhaustion. align is currently
// advisory: every size class's block size is already a multiple of
// the largest alignment rudogc hands out (pointer width).
func alloc(h *Heap, size uintptr, align uintptr) (unsafe.Pointer, error) {
	total := headerSize() + size
	class := sizeClassFor(total)
	if class == 0 {
		box, err := reserveLargeObject(h, total)
		if err != nil {
			return nil, err
		}
		initLargeObjectHeader(box)
		return box, nil
	}

	t := &h.tlabs[class]
	bs := uintptr(blockSize(class))
	if t.cursor+bs <= t.limit {
		slot := t.cursor
		t.cursor += bs
		markAllocatedFast(t.page, slot)
		return unsafe.Pointer(slot), nil
	}
	return allocSlow(h, class)
}

func markAllocatedFast(p *page, slotAddr uintptr) {
	i := p.slotIndex(slotAddr)
	p.allocated.set(i)
}

// allocSlow runs the ordered fallback chain:
// 1. pop a free-list slot (lazy-sweep reuse)
// 2. sweep one needs-sweep page, then retry the fast path
// 3. advance to the next not-full page of this class
// 4. reserve a fresh page from the OS
//
// Step 5 ("collect first") is left to the caller's allocation-debt
// policy (collect.go's DefaultCollectCondition); allocSlow itself never triggers a GC, keeping
// its own contract simple and testable.
func allocSlow(h *Heap, class uint8) (unsafe.Pointer, error) {
	if slot, ok := popFreeSlot(h, class); ok {
		return unsafe.Pointer(slot), nil
	}

	if p := findNeedsSweepPage(h, class); p != nil {
		sweepPage(p)
		if slot, ok := popFreeSlotOnPage(p); ok {
			return unsafe.Pointer(slot), nil
		}
	}

	if p := findNotFullPage(h, class); p != nil {
		rebindTLAB(h, class, p)
		return alloc(h, uintptr(blockSize(class))-headerSize(), 0)
	}

	p, err := reservePage(h, class)
	if err != nil {
		return nil, err
	}
	rebindTLAB(h, class, p)
	return alloc(h, uintptr(blockSize(class))-headerSize(), 0)
}

func rebindTLAB(h *Heap, class uint8, p *page) {
	t := &h.tlabs[class]
	t.page = p
	base := uintptr(unsafe.Pointer(p)) + uintptr(p.headerSize)
	t.cursor = base
	t.limit = base + uintptr(p.objCount)*uintptr(p.blockSize)
}

// popFreeSlot scans the class's owned pages for one with a non-empty
// free list, in page-registration order.
func popFreeSlot(h *Heap, class uint8) (uintptr, bool) {
	for _, p := range h.ownedPages {
		if p.class != class {
			continue
		}
		if slot, ok := popFreeSlotOnPage(p); ok {
			return slot, true
		}
	}
	return 0, false
}

func popFreeSlotOnPage(p *page) (uintptr, bool) {
	if p.freeHead == freeListEmpty {
		return 0, false
	}
	i := p.freeHead
	slot := p.slotAddr(i)
	// The free-list link is stored in the slot's first word; it is
	// opaque to tracing because the slot is not yet marked allocated.
	p.freeHead = *(*uint32)(unsafe.Pointer(slot))
	p.allocated.set(i)
	return slot, true
}

func pushFreeSlot(p *page, i uint32) {
	slot := p.slotAddr(i)
	*(*uint32)(unsafe.Pointer(slot)) = p.freeHead
	p.freeHead = i
}

func findNeedsSweepPage(h *Heap, class uint8) *page {
	for _, p := range h.ownedPages {
		if p.class == class && p.flags&pageNeedsSweep != 0 {
			return p
		}
	}
	return nil
}

func findNotFullPage(h *Heap, class uint8) *page {
	for _, p := range h.ownedPages {
		if p.class != class {
			continue
		}
		if p == h.tlabs[class].page {
			continue
		}
		if p.freeHead != freeListEmpty {
			return p
		}
	}
	return nil
}
