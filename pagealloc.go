// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"unsafe"

	"golang.org/x/sync/semaphore"

	"github.com/rudo-gc/rudogc/internal/gclog"
	"github.com/rudo-gc/rudogc/internal/osmem"
)

// thePageSize is resolved once at package init, the max of the OS
// page size and 4 KiB.
var thePageSize = initPageSize()

func initPageSize() uintptr {
	s := osmem.PageSize()
	if s < 4096 {
		s = 4096
	}
	return s
}

// reservationSem bounds how many page reservations may be in flight
// to the OS at once. A minor-GC-triggering allocation burst across
// many threads can otherwise queue thousands of concurrent mmap calls;
// the semaphore throttles that without serializing the common case of
// one page at a time.
var reservationSem = semaphore.NewWeighted(64)

// reservePage maps one fresh page for the given size class, owned by
// the calling thread's heap, with pre-zeroed bitmaps.
func reservePage(h *Heap, class uint8) (*page, error) {
	ctx := h.ctx()
	if err := reservationSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer reservationSem.Release(1)

	headerSize, objCount := pageHeaderLayout(class)

	m, err := reserveWithBombAvoidance(h, pageSize())
	if err != nil {
		return nil, err
	}

	hdr := (*page)(unsafe.Pointer(m.Addr()))
	*hdr = page{
		magic:       magicGcPage,
		class:       class,
		generation:  0,
		blockSize:   blockSize(class),
		objCount:    objCount,
		headerSize:  headerSize,
		ownerThread: h.threadID,
		freeHead:    freeListEmpty,
		allocated:   newBitmap(objCount),
		mark:        newBitmap(objCount),
		dirty:       newBitmap(objCount),
		heap:        h,
	}
	h.ownedPages = append(h.ownedPages, hdr)
	gclog.L().Debugw("reserved page",
		"thread", h.threadID, "class", class, "objCount", objCount)
	return hdr, nil
}

// reserveWithBombAvoidance reserves pageSize bytes, retrying away
// from any address range that overlaps a word currently seen on the
// thread's conservative-scan stack snapshot. Colliding mappings are
// quarantined rather than unmapped, since unmapping and retrying the
// identical hint would just reproduce the same OS placement on many
// kernels.
func reserveWithBombAvoidance(h *Heap, size uintptr) (osmem.Mmap, error) {
	const maxAttempts = 8
	var last error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		m, err := osmem.Reserve(size, osmem.MmapOptions{Populate: false})
		if err != nil {
			last = err
			continue
		}
		if bombConflict(h, m) {
			quarantine(m)
			continue
		}
		return m, nil
	}
	if last == nil {
		last = &quarantineExhaustedError{}
	}
	return osmem.Mmap{}, last
}

type quarantineExhaustedError struct{}

func (*quarantineExhaustedError) Error() string {
	return "gc: page reservation repeatedly collided with scan-visible addresses"
}

var (
	quarantineMu   sync.Mutex
	quarantinedSet []osmem.Mmap
)

// bombConflict reports whether m's address range overlaps any word
// value currently observed on the requesting thread's stack scan
// snapshot. This protects conservative scanning from treating the
// allocator's own freshly-minted page as a stale stack value.
func bombConflict(h *Heap, m osmem.Mmap) bool {
	for _, w := range h.lastStackSnapshot {
		if m.Contains(w) {
			return true
		}
	}
	return false
}

func quarantine(m osmem.Mmap) {
	quarantineMu.Lock()
	quarantinedSet = append(quarantinedSet, m)
	quarantineMu.Unlock()
}

// --- Large-object space ---

type largeObjectEntry struct {
	box         unsafe.Pointer
	ownerThread uint64
	totalSize   uintptr
	live        bool
}

var (
	largeObjectMu  sync.Mutex
	largeObjectMap = map[uintptr]*largeObjectEntry{}
)

// reserveLargeObject maps ceil(total/pageSize) pages directly and
// registers every covered page-aligned address in the process-wide
// large-object map.
func reserveLargeObject(h *Heap, total uintptr) (unsafe.Pointer, error) {
	n := roundUp(total, pageSize())
	m, err := osmem.Reserve(n, osmem.MmapOptions{NoReserve: true})
	if err != nil {
		return nil, err
	}
	entry := &largeObjectEntry{
		box:         unsafe.Pointer(m.Addr()),
		ownerThread: h.threadID,
		totalSize:   n,
		live:        false,
	}
	largeObjectMu.Lock()
	for a := m.Addr(); a < m.Addr()+n; a += pageSize() {
		largeObjectMap[a] = entry
	}
	largeObjectMu.Unlock()
	h.ownedLarge = append(h.ownedLarge, largeMapping{m: m, entry: entry})
	return entry.box, nil
}

func lookupLargeObject(pageAddr uintptr) (*largeObjectEntry, bool) {
	largeObjectMu.Lock()
	e, ok := largeObjectMap[pageAddr]
	largeObjectMu.Unlock()
	return e, ok
}

type largeMapping struct {
	m     osmem.Mmap
	entry *largeObjectEntry
}

// freeLargeObject unmaps a dead large object and removes every page
// entry it registered.
func freeLargeObject(lm largeMapping) {
	largeObjectMu.Lock()
	for a := lm.m.Addr(); a < lm.m.Addr()+lm.m.Size(); a += pageSize() {
		delete(largeObjectMap, a)
	}
	largeObjectMu.Unlock()
	if err := osmem.Unmap(lm.m); err != nil {
		gclog.L().Warnw("failed to unmap large object", "err", err)
	}
}

// --- Orphan pages ---

var (
	orphanMu    sync.Mutex
	orphanPages []*page
)

// orphanizePages transfers a terminating thread's pages to the
// process-wide orphan table, queryable by interior-pointer resolution
// the same way owned pages are (pageOf doesn't care who owns a page).
func orphanizePages(h *Heap) {
	orphanMu.Lock()
	orphanPages = append(orphanPages, h.ownedPages...)
	orphanMu.Unlock()
}
