// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"time"
	"unsafe"

	"github.com/rudo-gc/rudogc/internal/gclog"
	"github.com/rudo-gc/rudogc/internal/gcmetrics"
)

// nowMonotonic is the single time source every phase-duration
// measurement in the collector uses, so a future switch to a
// platform-specific monotonic clock only touches one function.
func nowMonotonic() int64 { return time.Now().UnixNano() }

// sliceQueue is the plain LIFO worklist a sequential Visitor drains
// into. Minor GC, major GC's Snapshot/FinalMark STW sections and the
// incremental Marking slices all use it; worklist.go's deque backs
// only CollectMajor's parallel-marking pool.
type sliceQueue struct {
	items  []unsafe.Pointer
	marked uint64 // total pushes this queue has ever seen, for metrics
}

func (q *sliceQueue) push(box unsafe.Pointer) {
	q.items = append(q.items, box)
	q.marked++
}

func (q *sliceQueue) pop() (unsafe.Pointer, bool) {
	n := len(q.items)
	if n == 0 {
		return nil, false
	}
	box := q.items[n-1]
	q.items = q.items[:n-1]
	return box, true
}

// drainSequential runs trace to completion against v, following every pointer
// enqueued until the queue is empty.
func drainSequential(q *sliceQueue, v *Visitor) {
	for {
		box, ok := q.pop()
		if !ok {
			return
		}
		traceBox(box, v)
	}
}

// MinorStats reports what a single minor collection did, mirrored into
// gcmetrics after every cycle.
type MinorStats struct {
	BytesReclaimed uint64
	ObjectsMarked  uint64
	ObjectsSwept   uint64
	PagesPromoted  uint64
}

// shouldRunMinor reports whether h's young-allocation debt has crossed
// its configured threshold.
func shouldRunMinor(h *Heap) bool {
	return h.young.bytesAllocated >= h.config.MinorDebtBytes
}

// CollectMinor runs a full minor collection cycle across every
// registered thread. Although each thread owns its own young
// generation, root discovery and the remembered-set scan are
// inherently process-wide: a cross-thread handle or a dirty old-page
// slot on any thread can keep another thread's young object alive,
// so a single minor cycle pauses every thread, not just h's.
func CollectMinor(h *Heap) MinorStats {
	acquireSTW()
	defer releaseSTW()

	start := nowMonotonic()
	var stats MinorStats

	q := &sliceQueue{}
	v := newSequentialVisitor(VisitModeMinor, q)

	collectAllRoots(v)
	remember := snapshotDirtyPages()
	scanRememberedSet(remember, v)
	drainSequential(q, v)
	stats.ObjectsMarked = q.marked

	for _, t := range allTCBs() {
		if t.heap == nil {
			continue
		}
		reclaimed, swept, promoted := sweepAndPromoteYoung(t.heap)
		stats.BytesReclaimed += reclaimed
		stats.ObjectsSwept += swept
		stats.PagesPromoted += promoted
	}

	for _, p := range remember {
		p.dirty.clearAll()
	}

	gcmetrics.RecordCollection(gcmetrics.CollectionSample{
		Kind:           gcmetrics.KindMinor,
		DurationNanos:  uint64(nowMonotonic() - start),
		BytesReclaimed: stats.BytesReclaimed,
		ObjectsSwept:   stats.ObjectsSwept,
	})
	gclog.L().Debugw("minor collection complete",
		"bytes_reclaimed", stats.BytesReclaimed,
		"objects_swept", stats.ObjectsSwept,
		"pages_promoted", stats.PagesPromoted,
	)
	return stats
}

// snapshotDirtyPages gathers every thread's current dirty-page list
// into one slice.
func snapshotDirtyPages() []*page {
	var out []*page
	for _, t := range allTCBs() {
		if t.heap == nil {
			continue
		}
		t.heap.dirtyMu.Lock()
		out = append(out, t.heap.dirtyPages...)
		t.heap.dirtyPages = nil
		t.heap.dirtyMu.Unlock()
	}
	return out
}

// scanRememberedSet walks every dirty page's allocated slots whose
// dirty bit is set, tracing each through the slot's own trace function so outgoing pointers into
// young pages get discovered.
func scanRememberedSet(pages []*page, v *Visitor) {
	for _, p := range pages {
		for i := uint32(0); i < p.objCount; i++ {
			if !p.allocated.test(i) {
				continue
			}
			if !p.dirty.test(i) {
				continue
			}
			traceBox(unsafe.Pointer(p.slotAddr(i)), v)
		}
	}
}

// sweepAndPromoteYoung sweeps one heap's young generation: reclaim
// unmarked young slots, then retag any young page that has earned
// promotion.
func sweepAndPromoteYoung(h *Heap) (reclaimedBytes uint64, swept uint64, promoted uint64) {
	// Pages snapshot first: releaseIfEmpty below may remove entries from
	// h.ownedPages, which would otherwise shift the slice out from under
	// a live range over it.
	pages := append([]*page(nil), h.ownedPages...)
	var empty []*page

	for _, p := range pages {
		if p.generation != 0 {
			continue
		}
		freedBytes, freedCount, live := sweepPage(p)
		reclaimedBytes += freedBytes
		swept += uint64(freedCount)

		if live == 0 {
			empty = append(empty, p)
			continue
		}
		occupancy := float64(live) / float64(p.objCount)
		p.survivorCycles++
		if occupancy >= h.config.PromotionOccupancyThreshold || p.survivorCycles >= h.config.PromotionAgeCycles {
			p.generation = 1
			promoted++
		}
	}

	for _, p := range empty {
		releaseIfEmpty(h, p, 0)
	}
	return reclaimedBytes, swept, promoted
}
