// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// crossThreadEntry is the {handle_id -> GcBox*} map value backing a
// cross-thread handle. It lives either in its origin TCB's
// crossThread map, or, once that TCB has terminated, in the
// process-wide orphan table.
type crossThreadEntry struct {
	box unsafe.Pointer
}

var nextCrossThreadID uint64

func newCrossThreadID() uint64 {
	return atomic.AddUint64(&nextCrossThreadID, 1)
}

// orphanTable holds cross-thread root entries whose origin TCB has
// terminated, keyed by origin thread id then handle id.
var (
	orphanMuCT  sync.Mutex
	orphanTable = map[uint64]map[uint64]*crossThreadEntry{}
)

// GcHandle is a Send+Sync cross-thread root: a strong reference a
// non-origin thread can hold and later resolve back on the origin
// thread.
type GcHandle[T any] struct {
	handleID       uint64
	originThreadID uint64
	box            unsafe.Pointer
}

// CrossThreadHandle registers a new strong cross-thread root for g,
// incrementing the box's strong count, and returns a handle any thread
// may hold and later resolve from the origin thread.
func CrossThreadHandle[T any](g Gc[T]) GcHandle[T] {
	hdr := boxHeader(g.box)
	hdr.incStrong()
	id := newCrossThreadID()
	origin := hdr.ownerThread
	registerCrossThreadEntry(origin, id, &crossThreadEntry{box: g.box})
	return GcHandle[T]{handleID: id, originThreadID: origin, box: g.box}
}

func registerCrossThreadEntry(origin, id uint64, e *crossThreadEntry) {
	if t, ok := lookupTCB(origin); ok {
		t.crossThreadMu.Lock()
		t.crossThread[id] = e
		t.crossThreadMu.Unlock()
		return
	}
	orphanMuCT.Lock()
	m, ok := orphanTable[origin]
	if !ok {
		m = map[uint64]*crossThreadEntry{}
		orphanTable[origin] = m
	}
	m[id] = e
	orphanMuCT.Unlock()
}

func unregisterCrossThreadEntry(origin, id uint64) {
	if t, ok := lookupTCB(origin); ok {
		t.crossThreadMu.Lock()
		delete(t.crossThread, id)
		t.crossThreadMu.Unlock()
		return
	}
	orphanMuCT.Lock()
	if m, ok := orphanTable[origin]; ok {
		delete(m, id)
	}
	orphanMuCT.Unlock()
}

// Resolve asserts current is the origin heap and returns a fresh
// Gc[T]; it panics on a thread-affinity violation. Go has no ambient
// thread-local identity, so the caller supplies the heap it
// believes is current, the same way every other heap-scoped operation
// in this package takes its Heap explicitly.
func (gh GcHandle[T]) Resolve(current *Heap) Gc[T] {
	if current == nil || current.threadID != gh.originThreadID {
		panic("gc: GcHandle.Resolve called on a non-origin thread")
	}
	return Gc[T]{box: gh.box}
}

// TryResolve is Resolve without the panic; it reports false on a
// thread mismatch.
func (gh GcHandle[T]) TryResolve(current *Heap) (Gc[T], bool) {
	if current == nil || current.threadID != gh.originThreadID {
		return Gc[T]{}, false
	}
	return Gc[T]{box: gh.box}, true
}

// OriginThread returns the thread id this handle must be resolved
// from.
func (gh GcHandle[T]) OriginThread() uint64 { return gh.originThreadID }

// IsValid reports whether the handle is still registered (its
// origin's root map, or the orphan table if the origin has
// terminated).
func (gh GcHandle[T]) IsValid() bool {
	if t, ok := lookupTCB(gh.originThreadID); ok {
		t.crossThreadMu.Lock()
		_, present := t.crossThread[gh.handleID]
		t.crossThreadMu.Unlock()
		return present
	}
	orphanMuCT.Lock()
	defer orphanMuCT.Unlock()
	m, ok := orphanTable[gh.originThreadID]
	if !ok {
		return false
	}
	_, present := m[gh.handleID]
	return present
}

// Unregister removes the root entry and decrements the box's strong
// count, the same bookkeeping Drop performs; it is provided separately
// because a caller may want to release the root without necessarily
// holding this exact handle value afterward.
func (gh GcHandle[T]) Unregister() {
	unregisterCrossThreadEntry(gh.originThreadID, gh.handleID)
	boxHeader(gh.box).decStrong()
}

// Downgrade converts this strong handle into a WeakCrossThreadHandle,
// releasing the strong root entry.
func (gh GcHandle[T]) Downgrade() WeakCrossThreadHandle[T] {
	unregisterCrossThreadEntry(gh.originThreadID, gh.handleID)
	hdr := boxHeader(gh.box)
	hdr.incWeak()
	hdr.decStrong()
	return WeakCrossThreadHandle[T]{originThreadID: gh.originThreadID, box: gh.box}
}

// Clone allocates a new handle id for the same box and increments the
// strong count.
func (gh GcHandle[T]) Clone() GcHandle[T] {
	boxHeader(gh.box).incStrong()
	id := newCrossThreadID()
	registerCrossThreadEntry(gh.originThreadID, id, &crossThreadEntry{box: gh.box})
	return GcHandle[T]{handleID: id, originThreadID: gh.originThreadID, box: gh.box}
}

// Drop removes the root entry and decrements the strong count.
func (gh GcHandle[T]) Drop() {
	gh.Unregister()
}

// WeakCrossThreadHandle is the Send+Sync weak counterpart to GcHandle;
// it does not hold a strong root, so it never needs registration in a
// root map.
type WeakCrossThreadHandle[T any] struct {
	originThreadID uint64
	box            unsafe.Pointer
}

// WeakCrossThreadHandleOf builds a weak cross-thread handle for g.
func WeakCrossThreadHandleOf[T any](g Gc[T]) WeakCrossThreadHandle[T] {
	hdr := boxHeader(g.box)
	hdr.incWeak()
	return WeakCrossThreadHandle[T]{originThreadID: hdr.ownerThread, box: g.box}
}

// Resolve behaves like GcHandle.Resolve but additionally requires the
// box still be live, since a weak handle never kept it alive on its
// own.
func (w WeakCrossThreadHandle[T]) Resolve(current *Heap) (Gc[T], bool) {
	if current == nil || current.threadID != w.originThreadID {
		return Gc[T]{}, false
	}
	if !boxHeader(w.box).tryIncStrongIfLive() {
		return Gc[T]{}, false
	}
	return Gc[T]{box: w.box}, true
}

// Drop decrements the weak count.
func (w WeakCrossThreadHandle[T]) Drop() {
	boxHeader(w.box).decWeak()
}

// visitCrossThreadRoots enqueues every box strongly rooted by t's
// cross-thread handle map.
func visitCrossThreadRoots(t *tcb, v *Visitor) {
	t.crossThreadMu.Lock()
	entries := make([]*crossThreadEntry, 0, len(t.crossThread))
	for _, e := range t.crossThread {
		entries = append(entries, e)
	}
	t.crossThreadMu.Unlock()

	for _, e := range entries {
		v.visitBox(e.box)
	}
}

// visitOrphanRoots visits the process-wide orphan table.
func visitOrphanRoots(v *Visitor) {
	orphanMuCT.Lock()
	var boxes []unsafe.Pointer
	for _, m := range orphanTable {
		for _, e := range m {
			boxes = append(boxes, e.box)
		}
	}
	orphanMuCT.Unlock()

	for _, box := range boxes {
		v.visitBox(box)
	}
}

// orphanizeCrossThreadRoots moves t's strong cross-thread root map
// into the process-wide orphan table when its owning thread exits
func orphanizeCrossThreadRoots(t *tcb) {
	t.crossThreadMu.Lock()
	entries := t.crossThread
	t.crossThread = map[uint64]*crossThreadEntry{}
	t.crossThreadMu.Unlock()

	if len(entries) == 0 {
		return
	}
	orphanMuCT.Lock()
	m, ok := orphanTable[t.id]
	if !ok {
		m = map[uint64]*crossThreadEntry{}
		orphanTable[t.id] = m
	}
	for id, e := range entries {
		m[id] = e
	}
	orphanMuCT.Unlock()
}
