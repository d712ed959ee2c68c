// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"unsafe"

	"github.com/rudo-gc/rudogc/internal/gclog"
	"github.com/rudo-gc/rudogc/internal/osmem"
)

// sweepPage is the per-page reclaim primitive shared by every sweep
// path in this package: minor GC's sweep-young step, major GC's eager
// sweep, and the lazy allocation-slow-path sweep in tlab.go. It
// reclaims every unmarked allocated slot, invoking drop_fn unless the
// object is already drop-in-progress or
// dead, then clears the mark bitmap and the page's dirty/needs-sweep
// flags. It returns the bytes reclaimed, the number of slots freed,
// and the number of slots still live, which callers use for occupancy
// and page-release decisions.
func sweepPage(p *page) (reclaimedBytes uint64, freedCount uint32, live uint32) {
	for i := uint32(0); i < p.objCount; i++ {
		if !p.allocated.test(i) {
			continue
		}
		if p.mark.test(i) {
			live++
			continue
		}

		box := unsafe.Pointer(p.slotAddr(i))
		hdr := boxHeader(box)
		if hdr.loadFlags()&(flagDropInProgress|flagDead) == 0 && hdr.dropFn != nil {
			hdr.dropFn(payloadOf(box))
		}
		p.allocated.clear(i)
		pushFreeSlot(p, i)
		reclaimedBytes += uint64(p.blockSize)
		freedCount++
	}

	p.mark.clearAll()
	clearPageFlag(p, pageDirtyListed)
	clearPageFlag(p, pageNeedsSweep)
	return reclaimedBytes, freedCount, live
}

// releaseIfEmpty hands a page with no live slots and no cross-thread
// root referencing it back to the OS (removeOwnedPage unmaps it)
// rather than keeping it bound to h.
func releaseIfEmpty(h *Heap, p *page, live uint32) {
	if live != 0 {
		return
	}
	if pageHasCrossThreadRoot(h, p) {
		return
	}
	removeOwnedPage(h, p)
}

// pageHasCrossThreadRoot reports whether any live cross-thread handle,
// in any thread's root map or the orphan table, still points at an
// address on p. A page that is otherwise fully dead cannot be released
// while a cross-thread handle could still resolve into it.
func pageHasCrossThreadRoot(h *Heap, p *page) bool {
	base := uintptr(unsafe.Pointer(p))
	limit := base + pageSize()

	inRange := func(box unsafe.Pointer) bool {
		a := uintptr(box)
		return a >= base && a < limit
	}

	for _, t := range allTCBs() {
		t.crossThreadMu.Lock()
		for _, e := range t.crossThread {
			if inRange(e.box) {
				t.crossThreadMu.Unlock()
				return true
			}
		}
		t.crossThreadMu.Unlock()
	}

	orphanMuCT.Lock()
	defer orphanMuCT.Unlock()
	for _, m := range orphanTable {
		for _, e := range m {
			if inRange(e.box) {
				return true
			}
		}
	}
	return false
}

// removeOwnedPage drops p from h.ownedPages and unmaps it.
func removeOwnedPage(h *Heap, p *page) {
	for i, owned := range h.ownedPages {
		if owned == p {
			h.ownedPages = append(h.ownedPages[:i], h.ownedPages[i+1:]...)
			break
		}
	}
	unmapPageHeader(p)
}

// unmapPageHeader releases p's backing mapping to the OS. p's header
// fields must not be read after this call returns.
func unmapPageHeader(p *page) {
	m := osmem.MappingAt(uintptr(unsafe.Pointer(p)), pageSize())
	if err := osmem.Unmap(m); err != nil {
		gclog.L().Warnw("failed to unmap page", "err", err)
	}
}

// sweepLargeObjects walks the process-wide large-object map and frees
// every entry whose mark bit was not set during this cycle, then
// clears the live flag on every survivor so the next cycle's tracing
// starts from "unmarked" again. The map holds one key per
// page-aligned address an object spans, so entries
// are deduplicated by pointer identity before being processed.
func sweepLargeObjects() (reclaimedBytes uint64, freed uint64) {
	largeObjectMu.Lock()
	seen := map[*largeObjectEntry]bool{}
	var dead []*largeObjectEntry
	var survivors []*largeObjectEntry
	for _, e := range largeObjectMap {
		if seen[e] {
			continue
		}
		seen[e] = true
		if e.live {
			survivors = append(survivors, e)
		} else {
			dead = append(dead, e)
		}
	}
	for _, e := range survivors {
		e.live = false // traceBox/markBox sets it again if reached next cycle
	}
	largeObjectMu.Unlock()

	for _, e := range dead {
		hdr := boxHeader(e.box)
		if hdr.loadFlags()&(flagDropInProgress|flagDead) == 0 && hdr.dropFn != nil {
			hdr.dropFn(payloadOf(e.box))
		}
		releaseLargeEntry(e)
		reclaimedBytes += uint64(e.totalSize)
		freed++
	}
	return reclaimedBytes, freed
}

// releaseLargeEntry unmaps a dead large object's backing memory and
// drops its largeMapping from its owning heap's bookkeeping. Entries
// from a terminated thread have no owning tcb left (orphanizePages
// only moves small-object pages, not large mappings, since large
// objects are tracked process-wide already); those are unmapped
// directly without touching any heap's ownedLarge slice.
func releaseLargeEntry(e *largeObjectEntry) {
	t, ok := lookupTCB(e.ownerThread)
	if !ok || t.heap == nil {
		freeLargeObjectAddr(e)
		return
	}
	h := t.heap
	for i, lm := range h.ownedLarge {
		if lm.entry == e {
			h.ownedLarge = append(h.ownedLarge[:i], h.ownedLarge[i+1:]...)
			freeLargeObject(lm)
			return
		}
	}
	freeLargeObjectAddr(e)
}

// freeLargeObjectAddr unmaps e's backing memory when no live
// largeMapping can be found for it (owning thread gone, or bookkeeping
// already dropped it), reconstructing the mapping descriptor from the
// entry's own address and size the same way unmapPageHeader does for
// page headers.
func freeLargeObjectAddr(e *largeObjectEntry) {
	m := osmem.MappingAt(uintptr(e.box), e.totalSize)
	if err := osmem.Unmap(m); err != nil {
		gclog.L().Warnw("failed to unmap large object", "err", err)
	}
}
