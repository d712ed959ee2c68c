// Copyright 2024 The rudogc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync/atomic"
	"unsafe"
)

// ptrCollector is the markQueue implementation used by VisitModeCollect:
// it just appends, with no mark-bit bookkeeping of its own.
type ptrCollector struct {
	boxes []unsafe.Pointer
}

func (c *ptrCollector) push(box unsafe.Pointer) {
	c.boxes = append(c.boxes, box)
}

// captureGcPtrs returns every box reachable directly from *v, if T
// implements Tracer; otherwise it returns nil. It never allocates a
// GC box itself and never sets mark bits.
func captureGcPtrs[T any](v *T) []unsafe.Pointer {
	tracer, ok := any(v).(Tracer)
	if !ok {
		return nil
	}
	var c ptrCollector
	tracer.Trace(&Visitor{mode: VisitModeCollect, queue: &c})
	return c.boxes
}

// GcCell is a single-threaded, runtime-borrow-checked interior-mutable
// cell. It is meant to live embedded in a GC-managed object's
// payload: owner is
// the address of the box that contains it, so BorrowMut can hand that
// address to the unified write barrier before returning the
// exclusive reference.
type GcCell[T any] struct {
	heap   *Heap
	owner  unsafe.Pointer
	borrow int32 // 0 free, -1 mutably borrowed, n>0 shared borrows
	value  T
}

// NewCell constructs a cell bound to h and owner, the box that will
// contain it (typically g.InternalPtr() for some Gc[T] g being
// constructed around this cell).
func NewCell[T any](h *Heap, owner unsafe.Pointer, value T) *GcCell[T] {
	return &GcCell[T]{heap: h, owner: owner, value: value}
}

// CellRef is the shared-borrow guard returned by Borrow.
type CellRef[T any] struct {
	c *GcCell[T]
}

// Get reads the cell's current value.
func (r CellRef[T]) Get() T { return r.c.value }

// Release ends the shared borrow. Go has no implicit destructors, so
// callers release explicitly, the same convention as Gc[T].Drop.
func (r CellRef[T]) Release() {
	atomic.AddInt32(&r.c.borrow, -1)
}

// CellRefMut is the exclusive-borrow guard returned by BorrowMut.
type CellRefMut[T any] struct {
	c *GcCell[T]
}

// Get returns a pointer to the cell's value, valid until Release.
func (r *CellRefMut[T]) Get() *T { return &r.c.value }

// Release ends the exclusive borrow. If T implements Tracer, every box
// currently reachable from the value is re-marked black while an
// incremental cycle is Marking, so a mutation made through the guard
// cannot hide a live reference from the collector.
func (r *CellRefMut[T]) Release() {
	if r.c.heap != nil && r.c.heap.majorPhase() == phaseMarking {
		for _, box := range captureGcPtrs(&r.c.value) {
			markAndEnqueueIfMarking(box)
		}
	}
	atomic.StoreInt32(&r.c.borrow, 0)
}

// Borrow takes a shared reference, panicking if the cell is currently
// mutably borrowed.
func (c *GcCell[T]) Borrow() CellRef[T] {
	for {
		old := atomic.LoadInt32(&c.borrow)
		if old < 0 {
			panic("gc: GcCell already mutably borrowed")
		}
		if atomic.CompareAndSwapInt32(&c.borrow, old, old+1) {
			return CellRef[T]{c: c}
		}
	}
}

// BorrowMut takes the exclusive reference, invoking the unified write
// barrier before returning it.
func (c *GcCell[T]) BorrowMut() *CellRefMut[T] {
	if !atomic.CompareAndSwapInt32(&c.borrow, 0, -1) {
		panic("gc: GcCell already borrowed")
	}
	writeBarrier(c.heap, c.owner, nil)
	return &CellRefMut[T]{c: c}
}
